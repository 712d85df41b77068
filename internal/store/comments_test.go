package store

import "testing"

func TestDecodeComments(t *testing.T) {
	got, err := decodeComments([]byte(`["a","b"]`))
	if err != nil || len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("decodeComments() = %v, %v", got, err)
	}

	got, err = decodeComments(nil)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty list for NULL comments, got %v, %v", got, err)
	}

	if _, err := decodeComments([]byte(`{"not":"a list"}`)); err == nil {
		t.Fatal("expected an error for a corrupt comment list")
	}
}
