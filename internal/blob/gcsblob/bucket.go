// Package gcsblob is the Google Cloud Storage backed implementation of
// blob.Store (6.2): a single bucket addressed by the logical path the core
// assigns each payload, rather than the category/key split an asset
// pipeline would use.
package gcsblob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/platform/logger"
)

// Store implements blob.Store against one GCS bucket (or its local emulator).
type Store struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	emulatorHost  string
	bucketName    string
	publicBaseURL string
}

var _ blob.Store = (*Store)(nil)

// NewStore builds a Store from BLOB_GCS_BUCKET_NAME and the object storage
// mode env vars (storage_mode.go).
func NewStore(log *logger.Logger) (*Store, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewStoreWithConfig(log, storageCfg)
}

// NewStoreWithConfig builds a Store from an explicit ObjectStorageConfig,
// used by integration tests against the GCS emulator.
func NewStoreWithConfig(log *logger.Logger, storageCfg ObjectStorageConfig) (*Store, error) {
	if err := ValidateObjectStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	storeLog := log.With("service", "blob.gcsblob.Store")

	bucketName := os.Getenv("BLOB_GCS_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var BLOB_GCS_BUCKET_NAME")
	}
	publicBaseURL, publicBaseSource, err := resolveObjectStoragePublicBaseURL(storageCfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	storeLog.Info(
		"blob store initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"public_base_source", publicBaseSource,
		"public_base_url", publicBaseURL,
		"bucket", bucketName,
	)

	return &Store{
		log:           storeLog,
		storageClient: stClient,
		storageMode:   storageCfg.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"),
		bucketName:    bucketName,
		publicBaseURL: publicBaseURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		opts := []option.ClientOption{
			option.WithoutAuthentication(),
		}
		return storage.NewClient(ctx, opts...)
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func resolveObjectStoragePublicBaseURL(storageCfg ObjectStorageConfig) (baseURL string, source string, err error) {
	raw := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL"))
	if raw != "" {
		parsed, parseErr := url.Parse(raw)
		if parseErr != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return "", "", fmt.Errorf(
				"invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443",
				raw,
			)
		}
		return strings.TrimRight(raw, "/"), "object_storage_public_base_url", nil
	}
	if storageCfg.IsEmulatorMode() {
		return strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"), "storage_emulator_host", nil
	}
	return "", "gcs_default", nil
}

// objectKey strips the logical name's leading slash; GCS object names never
// start with one.
func objectKey(logicalName string) string {
	return strings.TrimPrefix(logicalName, "/")
}

func (s *Store) Put(ctx context.Context, logicalName string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := s.storageClient.Bucket(s.bucketName).Object(objectKey(logicalName)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write blob %q: %w", logicalName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close blob writer for %q: %w", logicalName, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, logicalName string) ([]byte, error) {
	r, err := s.openReader(ctx, logicalName, 0, 0)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *Store) GetRange(ctx context.Context, logicalName string, offset, length int64) ([]byte, error) {
	r, err := s.openReader(ctx, logicalName, offset, length)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *Store) Delete(ctx context.Context, logicalName string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.storageClient.Bucket(s.bucketName).Object(objectKey(logicalName)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", logicalName, err)
	}
	return nil
}

// IMPORTANT FIX:
// Do NOT `defer cancel()` before returning the reader.
// If you do, the context is canceled immediately and callers read 0 bytes.
// We attach the cancel to the reader's Close().
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (s *Store) isEmulatorMode() bool {
	return s != nil && IsEmulatorObjectStorageMode(s.storageMode) && strings.TrimSpace(s.emulatorHost) != ""
}

func (s *Store) emulatorObjectMediaURL(key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		strings.TrimRight(strings.TrimSpace(s.emulatorHost), "/"),
		url.PathEscape(s.bucketName),
		url.PathEscape(key),
	)
}

func (s *Store) openReader(ctx context.Context, logicalName string, offset, length int64) (io.ReadCloser, error) {
	key := objectKey(logicalName)
	if s.isEmulatorMode() {
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, s.emulatorObjectMediaURL(key), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator read request: %w", err)
		}
		if offset > 0 || length != 0 {
			var rangeHeader string
			if length > 0 {
				end := offset + length - 1
				rangeHeader = fmt.Sprintf("bytes=%d-%d", offset, end)
			} else {
				rangeHeader = fmt.Sprintf("bytes=%d-", offset)
			}
			req.Header.Set("Range", rangeHeader)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed emulator read request: %w", err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator read failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	var r *storage.Reader
	var err error
	obj := s.storageClient.Bucket(s.bucketName).Object(key)
	if offset == 0 && length == 0 {
		r, err = obj.NewReader(ctx2)
	} else {
		r, err = obj.NewRangeReader(ctx2, offset, length)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open blob reader for %q: %w", logicalName, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}
