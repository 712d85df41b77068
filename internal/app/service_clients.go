package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"progress/api/internal/search"
	"progress/api/internal/store"
	"progress/api/internal/util"
)

const maxSlugAttempts = 50

type ClientInput struct {
	Name           string `json:"name" validate:"notblank"`
	Company        string `json:"company" validate:"notblank"`
	Description    string `json:"description" validate:"notblank"`
	Date           string `json:"date" validate:"notblank"`
	CompletionDate string `json:"completionDate" validate:"notblank"`
}

// ClientChanges is an edit form. Blank fields mean "leave as is".
type ClientChanges struct {
	Name           string `json:"name"`
	Company        string `json:"company"`
	Description    string `json:"description"`
	Date           string `json:"date"`
	CompletionDate string `json:"completionDate"`
}

// parseDate accepts a calendar date (YYYY-MM-DD) or an RFC 3339 timestamp.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.DateOnly, raw); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	return time.Time{}, validationError("Invalid date.", map[string]string{field: field + " must be YYYY-MM-DD"})
}

func (s *Service) clientURL(clientID string) string {
	return s.cfg.PublicBaseURL + "/client/" + url.PathEscape(clientID)
}

func (s *Service) indexClient(client store.Client) {
	if s.search != nil {
		s.search.IndexClient(search.RecordFromClient(client))
	}
}

func (s *Service) ListClients(ctx context.Context) ([]store.Client, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		log.Printf("list clients: %v", err)
		return nil, serverError("load clients")
	}
	return clients, nil
}

func (s *Service) GetClient(ctx context.Context, clientID string) (store.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Client{}, notFound("Client")
	}
	if err != nil {
		log.Printf("get client %s: %v", clientID, err)
		return store.Client{}, serverError("load client")
	}
	return client, nil
}

// CreateClient stores a new in-progress client under the slug of its name.
// A taken slug gets -2, -3, ... appended.
func (s *Service) CreateClient(ctx context.Context, input ClientInput) (store.Client, error) {
	if err := s.check(input); err != nil {
		return store.Client{}, err
	}
	start, err := parseDate("date", input.Date)
	if err != nil {
		return store.Client{}, err
	}
	completion, err := parseDate("completionDate", input.CompletionDate)
	if err != nil {
		return store.Client{}, err
	}

	client := store.Client{
		Name:           strings.TrimSpace(input.Name),
		Company:        strings.TrimSpace(input.Company),
		Description:    strings.TrimSpace(input.Description),
		Date:           start,
		CompletionDate: completion,
	}
	base := util.Slugify(client.Name)
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		client.ID = base
		if attempt > 1 {
			client.ID = base + "-" + strconv.Itoa(attempt)
		}
		client.URL = s.clientURL(client.ID)
		inserted, err := s.store.InsertClient(ctx, client)
		if err != nil {
			log.Printf("create client %s: %v", client.ID, err)
			return store.Client{}, serverError("create client")
		}
		if inserted {
			now := s.now()
			client.CreatedAt, client.UpdatedAt = now, now
			s.indexClient(client)
			s.publish(ctx, store.CollectionClients)
			return client, nil
		}
	}
	log.Printf("create client: no free id for %q after %d attempts", base, maxSlugAttempts)
	return store.Client{}, serverError("create client")
}

// UpdateClient writes only the fields that were filled in and differ from
// the stored client, and returns the merged result. Completion is not
// editable here.
func (s *Service) UpdateClient(ctx context.Context, clientID string, changes ClientChanges) (store.Client, error) {
	current, err := s.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}

	var patch store.ClientPatch
	if v := strings.TrimSpace(changes.Name); v != "" && v != current.Name {
		patch.Name = &v
	}
	if v := strings.TrimSpace(changes.Company); v != "" && v != current.Company {
		patch.Company = &v
	}
	if v := strings.TrimSpace(changes.Description); v != "" && v != current.Description {
		patch.Description = &v
	}
	if strings.TrimSpace(changes.Date) != "" {
		v, err := parseDate("date", changes.Date)
		if err != nil {
			return store.Client{}, err
		}
		if !v.Equal(current.Date) {
			patch.Date = &v
		}
	}
	if strings.TrimSpace(changes.CompletionDate) != "" {
		v, err := parseDate("completionDate", changes.CompletionDate)
		if err != nil {
			return store.Client{}, err
		}
		if !v.Equal(current.CompletionDate) {
			patch.CompletionDate = &v
		}
	}
	if patch.Empty() {
		return current, nil
	}

	if err := s.store.PatchClient(ctx, clientID, patch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Client{}, notFound("Client")
		}
		log.Printf("update client %s: %v", clientID, err)
		return store.Client{}, serverError("update client")
	}

	merged := applyPatch(current, patch)
	merged.UpdatedAt = s.now()
	s.indexClient(merged)
	s.publish(ctx, store.CollectionClients)
	return merged, nil
}

func applyPatch(client store.Client, patch store.ClientPatch) store.Client {
	if patch.Name != nil {
		client.Name = *patch.Name
	}
	if patch.Company != nil {
		client.Company = *patch.Company
	}
	if patch.Description != nil {
		client.Description = *patch.Description
	}
	if patch.Date != nil {
		client.Date = *patch.Date
	}
	if patch.CompletionDate != nil {
		client.CompletionDate = *patch.CompletionDate
	}
	return client
}

// MarkComplete is one-way. Completing a completed client succeeds without
// writing.
func (s *Service) MarkComplete(ctx context.Context, clientID string) (store.Client, error) {
	changed, err := s.store.MarkClientComplete(ctx, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Client{}, notFound("Client")
	}
	if err != nil {
		log.Printf("complete client %s: %v", clientID, err)
		return store.Client{}, serverError("mark client complete")
	}
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	if changed {
		s.indexClient(client)
		s.publish(ctx, store.CollectionClients)
	}
	return client, nil
}

// DeleteClient removes the client. Its updates stay in the updates
// collection.
func (s *Service) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Client")
		}
		log.Printf("delete client %s: %v", clientID, err)
		return serverError("delete client")
	}
	if s.search != nil {
		s.search.DeleteClient(clientID)
	}
	s.publish(ctx, store.CollectionClients)
	return nil
}
