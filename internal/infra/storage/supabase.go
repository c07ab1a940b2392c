package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/voicebot/internal/logging"
)

// SupabaseConfig locates the archive bucket.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

type uploadFunc func(bucket, path, contentType string, body []byte) error

// SupabaseArchive uploads each transcript as JSON to <channel>/<id>.json in
// a storage bucket. Call recordings go under recordings/.
type SupabaseArchive struct {
	bucket string
	upload uploadFunc
}

func NewSupabaseArchive(cfg SupabaseConfig) (*SupabaseArchive, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, errors.New("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "transcripts"
	}
	return &SupabaseArchive{
		bucket: bucket,
		upload: func(bucket, path, contentType string, body []byte) error {
			_, err := client.Storage.UploadFile(bucket, path, bytes.NewReader(body), storage_go.FileOptions{
				ContentType: &contentType,
			})
			return err
		},
	}, nil
}

// ObjectPath is where a record is stored inside the bucket.
func ObjectPath(rec Record) string {
	channel := rec.ChannelID
	if channel == "" {
		channel = "unknown"
	}
	return channel + "/" + rec.ID + ".json"
}

func (a *SupabaseArchive) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	path := ObjectPath(rec)
	if err := a.upload(a.bucket, path, "application/json", body); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	logging.DebugwCtx(ctx, "transcript archived", "bucket", a.bucket, "path", path)
	return nil
}

// Upload stores a call recording at recordings/<key>.
func (a *SupabaseArchive) Upload(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("recording key is empty")
	}
	path := "recordings/" + key
	if err := a.upload(a.bucket, path, contentType, data); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	logging.Infow("recording archived", "bucket", a.bucket, "path", path, "bytes", len(data))
	return nil
}
