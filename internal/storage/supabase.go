package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	supastorage "github.com/supabase-community/storage-go"

	"reelmill/internal/services"
)

// Supabase stores artifacts in a Supabase Storage bucket.
type Supabase struct {
	client  *supastorage.Client
	bucket  string
	baseURL string
}

// NewSupabase connects to the project at supabaseURL with a service-role key.
func NewSupabase(supabaseURL, serviceRoleKey, bucket string) (*Supabase, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(supabaseURL), "/")
	if baseURL == "" || serviceRoleKey == "" || bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "supabase",
			"supabase_url, supabase_key and bucket are required", nil)
	}
	return &Supabase{
		client:  supastorage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil),
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

// PublicURL returns the public object URL of objectPath.
func (s *Supabase) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, objectPath)
}

func (s *Supabase) Put(ctx context.Context, objectPath, localPath, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("read artifact: %w", err)
	}
	upsert := true
	_, err = s.client.UploadFile(s.bucket, objectPath, bytes.NewReader(data), supastorage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return Object{}, services.Wrap(services.ErrTransient, "storage", "supabase upload", objectPath, err)
	}
	return Object{Path: objectPath, URL: s.PublicURL(objectPath)}, nil
}

func (s *Supabase) Get(ctx context.Context, obj Object, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	objectPath := obj.Path
	if objectPath == "" {
		objectPath = strings.TrimPrefix(obj.URL, s.PublicURL(""))
	}
	data, err := s.client.DownloadFile(s.bucket, objectPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "storage", "supabase download", objectPath, err)
	}
	return writeAtomic(dest, bytes.NewReader(data))
}
