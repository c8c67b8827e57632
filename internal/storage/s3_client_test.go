package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	appconfig "pulse-chat/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMinioClient(t *testing.T, publicBase string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), S3Config{
		Region:     "us-east-1",
		Bucket:     "pulse",
		AccessKey:  "minioadmin",
		SecretKey:  "minioadmin",
		Endpoint:   "http://127.0.0.1:9000",
		PublicBase: publicBase,
		PresignTTL: 5 * time.Minute,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBucketAndRegion(t *testing.T) {
	_, err := NewClient(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = NewClient(context.Background(), S3Config{Bucket: "pulse"})
	assert.Error(t, err)
}

func TestPresignPut(t *testing.T) {
	c := newMinioClient(t, "")

	raw, headers, err := c.PresignPut(context.Background(), "avatars/u1/a.png", "image/png", 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", headers["Content-Type"])
	assert.NotContains(t, headers, "Content-Length")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/pulse/avatars/u1/a.png", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	_, _, err = c.PresignPut(context.Background(), "", "image/png", 0)
	assert.Error(t, err)
}

func TestFileURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9000/pulse/k.png", newMinioClient(t, "").FileURL("k.png"))
	assert.Equal(t, "https://cdn.test/k.png", newMinioClient(t, "https://cdn.test/").FileURL("k.png"))
	assert.Empty(t, newMinioClient(t, "").FileURL(""))

	var nilClient *Client
	assert.Empty(t, nilClient.FileURL("k.png"))
	assert.True(t, strings.HasPrefix((&Client{cfg: S3Config{Bucket: "b", Region: "eu-west-1"}}).FileURL("k"), "https://b.s3.eu-west-1"))
}

func TestS3ConfigFrom(t *testing.T) {
	cfg := S3ConfigFrom(&appconfig.Config{S3Region: "us-east-1", S3Bucket: "pulse", S3PresignMin: 15})
	assert.Equal(t, "pulse", cfg.Bucket)
	assert.Equal(t, 15*time.Minute, cfg.PresignTTL)
}
