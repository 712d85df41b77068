package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"progress/api/internal/blob"
	"progress/api/internal/store"
)

// Upload is an image attached to a form submission.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UpdateInput struct {
	ClientID    string `json:"clientId" validate:"notblank"`
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
}

const onlyImagesMessage = "Only image files are allowed"

// CreateUpdate posts a new unseen update for a client. The image, when
// present, is uploaded first; a failed upload is logged and the update is
// stored without one.
func (s *Service) CreateUpdate(ctx context.Context, input UpdateInput, image *Upload) (store.Update, error) {
	if err := s.check(input); err != nil {
		return store.Update{}, err
	}
	if image != nil && !blob.IsImage(image.ContentType) {
		return store.Update{}, domainError(http.StatusUnprocessableEntity, CodeValidation, onlyImagesMessage, map[string]any{
			"fields": map[string]string{"image": onlyImagesMessage},
		})
	}

	clientID := strings.TrimSpace(input.ClientID)
	fileURL := ""
	if image != nil {
		fileURL = s.uploadImage(ctx, blob.UpdateImageKey(clientID, image.Filename), image)
	}

	stored, err := s.store.InsertUpdate(ctx, store.Update{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		FileURL:     fileURL,
	})
	if err != nil {
		log.Printf("create update for %s: %v", clientID, err)
		return store.Update{}, serverError("create update")
	}
	s.publish(ctx, store.CollectionUpdates)
	return stored, nil
}

// uploadImage returns the public URL of the stored image, or "" when the
// upload failed.
func (s *Service) uploadImage(ctx context.Context, key string, image *Upload) string {
	if s.blobs == nil {
		log.Printf("upload %s: no blob store configured", key)
		return ""
	}
	fileURL, err := s.blobs.Put(ctx, key, image.Body, image.Size, image.ContentType)
	if err != nil {
		log.Printf("upload %s: %v", key, err)
		return ""
	}
	return fileURL
}

func (s *Service) ListUpdates(ctx context.Context) ([]store.Update, error) {
	updates, err := s.store.ListUpdates(ctx)
	if err != nil {
		log.Printf("list updates: %v", err)
		return nil, serverError("load updates")
	}
	return updates, nil
}

func (s *Service) ClientUpdates(ctx context.Context, clientID string) ([]store.Update, error) {
	updates, err := s.store.ListClientUpdates(ctx, clientID)
	if err != nil {
		log.Printf("list updates of %s: %v", clientID, err)
		return nil, serverError("load updates")
	}
	return updates, nil
}

func (s *Service) getUpdate(ctx context.Context, updateID string) (store.Update, error) {
	update, err := s.store.GetUpdate(ctx, updateID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Update{}, notFound("Update")
	}
	if err != nil {
		log.Printf("get update %s: %v", updateID, err)
		return store.Update{}, serverError("load update")
	}
	return update, nil
}

// MarkSeen flips the seen flag once. Later calls return the update without
// writing or publishing.
func (s *Service) MarkSeen(ctx context.Context, updateID string) (store.Update, error) {
	update, err := s.getUpdate(ctx, updateID)
	if err != nil {
		return store.Update{}, err
	}
	return s.markSeen(ctx, update)
}

func (s *Service) markSeen(ctx context.Context, update store.Update) (store.Update, error) {
	if update.Completed {
		return update, nil
	}
	changed, err := s.store.MarkUpdateSeen(ctx, update.ID)
	if err != nil {
		log.Printf("mark update %s seen: %v", update.ID, err)
		return store.Update{}, serverError("mark update as seen")
	}
	update.Completed = true
	if changed {
		s.publish(ctx, store.CollectionUpdates)
	}
	return update, nil
}

// OpenUpdate is a visitor viewing one update of a client's page. Viewing
// marks it seen.
func (s *Service) OpenUpdate(ctx context.Context, clientID, updateID string) (store.Update, error) {
	update, err := s.getUpdate(ctx, updateID)
	if err != nil {
		return store.Update{}, err
	}
	if update.ClientID != clientID {
		return store.Update{}, notFound("Update")
	}
	return s.markSeen(ctx, update)
}

// AddComment appends text to the update's comments and returns the full list.
func (s *Service) AddComment(ctx context.Context, updateID, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("Comment cannot be empty.", map[string]string{"comment": "comment is required"})
	}
	comments, err := s.store.AppendComment(ctx, updateID, text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Update")
	}
	if err != nil {
		log.Printf("comment on update %s: %v", updateID, err)
		return nil, serverError("add comment")
	}
	s.publish(ctx, store.CollectionUpdates)
	return comments, nil
}

// CheckUpdateOwner reports NOT_FOUND unless the update belongs to clientID.
func (s *Service) CheckUpdateOwner(ctx context.Context, clientID, updateID string) error {
	update, err := s.getUpdate(ctx, updateID)
	if err != nil {
		return err
	}
	if update.ClientID != clientID {
		return notFound("Update")
	}
	return nil
}
