package store

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Archiver uploads finished reports to object storage.
type Archiver interface {
	Upload(key, contentType string, data []byte) error
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseArchive writes objects to a Supabase Storage bucket.
type SupabaseArchive struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseArchive(cfg SupabaseConfig) (*SupabaseArchive, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseArchive{client: client, bucket: cfg.Bucket}, nil
}

func (s *SupabaseArchive) Upload(key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}

func reportKey(token string) string { return "reports/" + token + ".json" }
