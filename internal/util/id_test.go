package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("jti")
	if !strings.HasPrefix(id, "jti_") || len(id) != len("jti_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Corp":        "acme-corp",
		"  Acme   Corp  ":  "acme-corp",
		"Divine\tSoftware": "divine-software",
		"single":           "single",
		"Smith/Jones LLC":  "smith-jones-llc",
		"-Acme, Inc.-":     "acme-inc",
		"a?b#c%d":          "a-b-c-d",
		"Café 2024":        "caf-2024",
		"???":              "client",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"kickoff photo.png":    "kickoff-photo.png",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\shot.JPG`: "shot.JPG",
		"???":                  "file",
		"résumé.pdf":           "rsum.pdf",
	}
	for in, want := range cases {
		if got := SafeFilename(in); got != want {
			t.Errorf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID(8); len(got) != 8 {
		t.Fatalf("ShortID(8) length = %d", len(got))
	}
}
