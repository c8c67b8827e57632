package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
)

type UserService struct {
	repo    repository.UserRepository
	avatars AvatarStorage
	now     func() time.Time
}

// NewUserService wires the user CRUD surface. avatars may be nil, in which
// case avatar uploads report ErrServiceUnavailable.
func NewUserService(repo repository.UserRepository, avatars AvatarStorage) *UserService {
	return &UserService{repo: repo, avatars: avatars, now: time.Now}
}

// UpdateInput carries optional profile changes; nil fields are left alone.
type UpdateInput struct {
	Username  *string
	Email     *string
	Password  *string
	AvatarURL *string
}

// UserPage is one page of users. Page and Limit are the values actually
// applied, not the ones requested.
type UserPage struct {
	Users []UserInfo
	Total int64
	Page  int
	Limit int
}

func (s *UserService) List(ctx context.Context, page, limit int) (UserPage, error) {
	page, limit = repository.NormalizePage(page, limit)
	users, total, err := s.repo.GetAllUsers(ctx, page, limit)
	if err != nil {
		return UserPage{}, err
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, toUserInfo(u))
	}
	return UserPage{Users: out, Total: total, Page: page, Limit: limit}, nil
}

func (s *UserService) GetByID(ctx context.Context, userID uuid.UUID) (UserInfo, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}
	return toUserInfo(u), nil
}

// Lookup returns the stored user. The realtime handshake uses it to confirm a
// token's subject still exists.
func (s *UserService) Lookup(ctx context.Context, userID uuid.UUID) (user.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *UserService) Update(ctx context.Context, actorID, userID uuid.UUID, in UpdateInput) (UserInfo, error) {
	if actorID != userID {
		return UserInfo{}, pulse_errors.ErrForbidden
	}

	current, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}

	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if n := utf8.RuneCountInString(name); n < minUsernameLen || n > maxUsernameLen {
			return UserInfo{}, fmt.Errorf("username must be %d-%d characters: %w", minUsernameLen, maxUsernameLen, pulse_errors.ErrInvalidInput)
		}
		current.Username = name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := validateEmail(email); err != nil {
			return UserInfo{}, err
		}
		current.Email = email
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return UserInfo{}, err
		}
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return UserInfo{}, err
		}
		current.PasswordHash = hash
	}
	if in.AvatarURL != nil {
		url := strings.TrimSpace(*in.AvatarURL)
		current.AvatarURL = sql.NullString{String: url, Valid: url != ""}
	}

	current.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateUser(ctx, current); err != nil {
		return UserInfo{}, err
	}
	return toUserInfo(current), nil
}

func (s *UserService) Delete(ctx context.Context, actorID, userID uuid.UUID) error {
	if actorID != userID {
		return pulse_errors.ErrForbidden
	}
	return s.repo.DeleteUser(ctx, userID)
}

// AvatarUpload returns a presigned URL the owner can PUT an image to, and the
// public URL to store in the profile afterwards.
func (s *UserService) AvatarUpload(ctx context.Context, actorID, userID uuid.UUID, contentType string) (AvatarUploadResult, error) {
	if actorID != userID {
		return AvatarUploadResult{}, pulse_errors.ErrForbidden
	}
	if s.avatars == nil {
		return AvatarUploadResult{}, fmt.Errorf("avatar storage is not configured: %w", pulse_errors.ErrServiceUnavailable)
	}
	ext, ok := avatarExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return AvatarUploadResult{}, fmt.Errorf("unsupported content type %q: %w", contentType, pulse_errors.ErrInvalidInput)
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return AvatarUploadResult{}, err
	}

	key := fmt.Sprintf("avatars/%s/%s%s", userID.String(), uuid.New().String(), ext)
	uploadURL, headers, err := s.avatars.PresignPut(ctx, key, contentType, 0)
	if err != nil {
		return AvatarUploadResult{}, fmt.Errorf("presign avatar upload: %w: %w", pulse_errors.ErrServiceUnavailable, err)
	}

	return AvatarUploadResult{
		UploadURL: uploadURL,
		UploadKey: key,
		Headers:   headers,
		FileURL:   s.avatars.FileURL(key),
	}, nil
}
