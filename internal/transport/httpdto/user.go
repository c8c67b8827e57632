package httpdto

import (
	"time"

	"pulse-chat/internal/services"
)

// UpdateUserRequest is used for PUT /api/users/:id. Omitted fields are kept.
type UpdateUserRequest struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// AvatarUploadRequest is used for POST /api/users/:id/avatar
type AvatarUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

type AvatarUploadResponse struct {
	UploadURL string            `json:"uploadUrl"`
	UploadKey string            `json:"uploadKey"`
	Headers   map[string]string `json:"headers,omitempty"`
	FileURL   string            `json:"fileUrl"`
}

type ListUsersResponse struct {
	Users []UserDTO `json:"users"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func FromUserInfo(u services.UserInfo) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func FromUserInfoSlice(users []services.UserInfo) []UserDTO {
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = FromUserInfo(u)
	}
	return dtos
}
