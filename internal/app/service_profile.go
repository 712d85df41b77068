package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"progress/api/internal/blob"
	"progress/api/internal/dashboard"
	"progress/api/internal/store"
)

type ProfileInput struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

type displayNameInput struct {
	Name string `json:"name" validate:"notblank"`
}

func (s *Service) GetProfile(ctx context.Context, session Session) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, notFound("User")
	}
	if err != nil {
		log.Printf("get profile %s: %v", session.UserID, err)
		return store.User{}, serverError("load profile")
	}
	return user, nil
}

func (s *Service) updateProfile(ctx context.Context, session Session, patch store.ProfilePatch, action string) (store.User, error) {
	if err := s.store.UpdateUserProfile(ctx, session.UserID, patch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, notFound("User")
		}
		log.Printf("%s for %s: %v", action, session.UserID, err)
		return store.User{}, serverError(action)
	}
	s.publish(ctx, store.CollectionUsers)
	return s.GetProfile(ctx, session)
}

// UpdateProfile merges the filled-in fields into the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (store.User, error) {
	var patch store.ProfilePatch
	if v := strings.TrimSpace(input.Name); v != "" {
		patch.Name = &v
	}
	if v := strings.TrimSpace(input.Position); v != "" {
		patch.Position = &v
	}
	if patch.Name == nil && patch.Position == nil {
		return s.GetProfile(ctx, session)
	}
	return s.updateProfile(ctx, session, patch, "update profile")
}

// SetDisplayName answers the name prompt shown to accounts without a name.
func (s *Service) SetDisplayName(ctx context.Context, session Session, name string) (store.User, error) {
	if err := s.check(displayNameInput{Name: name}); err != nil {
		return store.User{}, err
	}
	name = strings.TrimSpace(name)
	return s.updateProfile(ctx, session, store.ProfilePatch{Name: &name}, "save name")
}

func (s *Service) UploadProfilePhoto(ctx context.Context, session Session, image *Upload) (store.User, error) {
	if image == nil {
		return store.User{}, validationError("Please choose an image.", map[string]string{"image": "image is required"})
	}
	if !blob.IsImage(image.ContentType) {
		return store.User{}, domainError(http.StatusUnprocessableEntity, CodeValidation, onlyImagesMessage, map[string]any{
			"fields": map[string]string{"image": onlyImagesMessage},
		})
	}
	fileURL := s.uploadImage(ctx, blob.ProfileImageKey(session.UserID, image.Filename), image)
	if fileURL == "" {
		return store.User{}, serverError("upload profile photo")
	}
	return s.updateProfile(ctx, session, store.ProfilePatch{ProfileImage: &fileURL}, "save profile photo")
}

// TeamMembers lists every account by name, a page at a time.
func (s *Service) TeamMembers(ctx context.Context, page int) (dashboard.Page[store.User], error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		log.Printf("list users: %v", err)
		return dashboard.Page[store.User]{}, serverError("load team members")
	}
	return dashboard.Paginate(users, page, dashboard.TeamPerPage), nil
}
