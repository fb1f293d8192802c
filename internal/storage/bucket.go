package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"selfcall-platform/internal/config"
)

var ErrObjectNotFound = errors.New("storage: object not found")

// AudioStore abstracts the bucket holding uploaded voice recordings.
type AudioStore interface {
	// SignedDownloadURL issues a short-lived V4 GET URL for an object.
	SignedDownloadURL(ctx context.Context, objectPath string) (string, error)

	// Download fetches the object bytes via a signed URL, the same path a
	// browser client would take.
	Download(ctx context.Context, objectPath string) (data []byte, contentType string, err error)
}

// BucketStore implements AudioStore on Google Cloud Storage.
// Credentials come from application default credentials.
type BucketStore struct {
	client     *gcs.Client
	bucket     string
	urlTTL     time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

func NewBucketStore(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*BucketStore, error) {
	if cfg.AudioBucket == "" {
		return nil, fmt.Errorf("storage: audio bucket is required")
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	// The store only reads uploads; never request write scopes.
	client, err := gcs.NewClient(ctx, option.WithScopes(gcs.ScopeReadOnly))
	if err != nil {
		return nil, fmt.Errorf("storage: client init: %w", err)
	}
	return &BucketStore{
		client:     client,
		bucket:     cfg.AudioBucket,
		urlTTL:     cfg.SignedURLTTL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log.With("service", "audio_store"),
	}, nil
}

func (s *BucketStore) Close() error { return s.client.Close() }

func (s *BucketStore) SignedDownloadURL(ctx context.Context, objectPath string) (string, error) {
	if objectPath == "" {
		return "", fmt.Errorf("storage: object path is required")
	}
	url, err := s.client.Bucket(s.bucket).SignedURL(objectPath, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.urlTTL),
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign url: %w", err)
	}
	return url, nil
}

func (s *BucketStore) Download(ctx context.Context, objectPath string) ([]byte, string, error) {
	url, err := s.SignedDownloadURL(ctx, objectPath)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrObjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("storage: download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read body: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return data, ct, nil
}
