package services

import (
	"context"
)

// AvatarStorage is the slice of the S3 client the user service needs.
type AvatarStorage interface {
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (string, map[string]string, error)
	FileURL(key string) string
}

type AvatarUploadResult struct {
	UploadURL string
	UploadKey string
	Headers   map[string]string
	FileURL   string
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}
