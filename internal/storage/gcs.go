package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStorage implements Storage using Google Cloud Storage
type GCSStorage struct {
	client     *storage.Client
	bucketName string
	baseDir    string
}

// NewGCSStorage creates a new GCS storage instance
// projectID: Your GCP project ID
// bucketName: The GCS bucket name
// baseDir: Base directory/prefix within the bucket (e.g., "screenshots")
func NewGCSStorage(ctx context.Context, projectID, bucketName, baseDir string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Verify bucket exists
	bucket := client.Bucket(bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %s in project %s: %w", bucketName, projectID, err)
	}

	return &GCSStorage{
		client:     client,
		bucketName: bucketName,
		baseDir:    baseDir,
	}, nil
}

// Write writes data to GCS
func (s *GCSStorage) Write(ctx context.Context, path string, data []byte) error {
	name, err := s.fullPath(path)
	if err != nil {
		return err
	}
	w := s.client.Bucket(s.bucketName).Object(name).NewWriter(ctx)

	// Set metadata
	w.ContentType = ContentType(path)
	w.CacheControl = "private, max-age=300"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return nil
}

// Read reads data from GCS
func (s *GCSStorage) Read(ctx context.Context, path string) ([]byte, error) {
	name, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucketName).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return data, nil
}

// Delete deletes an object from GCS
func (s *GCSStorage) Delete(ctx context.Context, path string) error {
	name, err := s.fullPath(path)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucketName).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}

	return nil
}

// Prune deletes objects under dir older than maxAge and returns how many were removed
func (s *GCSStorage) Prune(ctx context.Context, dir string, maxAge time.Duration) (int, error) {
	prefix, err := s.fullPath(dir)
	if err != nil {
		return 0, err
	}
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	it := s.client.Bucket(s.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	cutoff := time.Now().Add(-maxAge)

	removed := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		if attrs.Created.After(cutoff) {
			continue
		}

		err = s.client.Bucket(s.bucketName).Object(attrs.Name).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return removed, fmt.Errorf("failed to delete %s: %w", attrs.Name, err)
		}
		removed++
	}

	return removed, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// GetSignedURL generates a signed URL for downloading a saved screenshot
func (s *GCSStorage) GetSignedURL(path string, expiration time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiration),
	}

	name, err := s.fullPath(path)
	if err != nil {
		return "", err
	}

	url, err := s.client.Bucket(s.bucketName).SignedURL(name, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return url, nil
}

func (s *GCSStorage) fullPath(path string) (string, error) {
	if err := validObjectPath(path); err != nil {
		return "", err
	}
	if s.baseDir == "" {
		return path, nil
	}
	if path == "" {
		return s.baseDir, nil
	}
	return s.baseDir + "/" + path, nil
}
