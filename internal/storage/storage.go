// Package storage moves artifacts between the workspace and durable object
// storage. Finals are uploaded as soon as they are produced so the local disk
// never holds the only copy.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelmill/internal/config"
	"reelmill/internal/project"
	"reelmill/internal/services"
)

// Object identifies a stored artifact.
type Object struct {
	Path string
	URL  string
}

// Backend is a concrete object store.
type Backend interface {
	Put(ctx context.Context, objectPath, localPath, contentType string) (Object, error)
	Get(ctx context.Context, obj Object, dest string) error
}

// Store uploads and fetches project artifacts.
type Store struct {
	backend Backend
	version func() string
}

// New wraps backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, version: newVersion}
}

func newVersion() string {
	return uuid.NewString()[:8]
}

// FromConfig selects the backend configured in cfg. plane serves the
// control_plane backend.
func FromConfig(cfg *config.Config, plane PlaneUploader) (*Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageSupabase:
		backend, err := NewSupabase(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	case config.StorageControlPlane, "":
		if plane == nil {
			return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "control plane uploader unavailable", nil)
		}
		return New(NewPlaneBackend(plane, nil)), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init",
			fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend), nil)
	}
}

// ObjectPath returns the object key of an artifact. Every upload gets its
// own version so a regenerated artifact never shares a URL with the copy it
// replaces.
func ObjectPath(projectID, lang string, stage project.Stage, version, name string) string {
	if lang == "" {
		lang = "_project"
	}
	return path.Join("projects", projectID, lang, string(stage), version, filepath.Base(name))
}

// Upload stores localPath under the artifact key for the given scope.
func (s *Store) Upload(ctx context.Context, projectID, lang string, stage project.Stage, localPath string) (Object, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Object{}, services.Wrap(services.ErrValidation, "storage", "upload", "artifact missing", err)
	}
	if info.Size() == 0 {
		return Object{}, services.Wrap(services.ErrValidation, "storage", "upload",
			fmt.Sprintf("artifact %s is empty", filepath.Base(localPath)), nil)
	}
	key := ObjectPath(projectID, lang, stage, s.version(), localPath)
	obj, err := s.backend.Put(ctx, key, localPath, ContentType(localPath))
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}
	// A missing record only costs a download later.
	_ = recordSource(localPath, obj)
	return obj, nil
}

// Ensure makes dest hold the artifact. The workspace copy is reused only
// when it was fetched from, or uploaded as, the same object; anything else
// (a restart on another host, a regenerated artifact after a rollback) is
// downloaded again.
func (s *Store) Ensure(ctx context.Context, obj Object, dest string) error {
	if obj.URL == "" && obj.Path == "" {
		return services.Wrap(services.ErrValidation, "storage", "fetch", "artifact reference is empty", nil)
	}
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 && cachedSource(dest) == sourceKey(obj) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	if err := s.backend.Get(ctx, obj, dest); err != nil {
		return fmt.Errorf("fetch %s: %w", firstNonEmpty(obj.Path, obj.URL), err)
	}
	if err := recordSource(dest, obj); err != nil {
		return fmt.Errorf("record source of %s: %w", filepath.Base(dest), err)
	}
	return nil
}

// sourceFile is the hidden sidecar naming the object a workspace file holds.
func sourceFile(local string) string {
	return filepath.Join(filepath.Dir(local), "."+filepath.Base(local)+".src")
}

func sourceKey(obj Object) string {
	return firstNonEmpty(obj.URL, obj.Path)
}

func cachedSource(local string) string {
	data, err := os.ReadFile(sourceFile(local))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func recordSource(local string, obj Object) error {
	return writeAtomic(sourceFile(local), strings.NewReader(sourceKey(obj)))
}

// ContentType guesses the MIME type of an artifact from its extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".ass":
		return "text/x-ssa"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// httpGet downloads url into dest atomically.
func httpGet(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "storage", "download", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "storage", "download", url, nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrTransient, "storage", "download", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return writeAtomic(dest, resp.Body)
}

func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
