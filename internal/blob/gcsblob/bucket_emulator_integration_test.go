package gcsblob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/brightforge/modelengine/internal/platform/logger"
)

func TestStoreEmulatorCRUDLifecycle(t *testing.T) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("NB_RUN_GCS_EMULATOR_INTEGRATION")), "true") {
		t.Skip("set NB_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}

	emulatorHost := strings.TrimSpace(os.Getenv("NB_GCS_EMULATOR_HOST"))
	if emulatorHost == "" {
		emulatorHost = strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))
	}
	if emulatorHost == "" {
		emulatorHost = "http://127.0.0.1:4443"
	}
	emulatorHost = strings.TrimRight(emulatorHost, "/")

	if !isEmulatorReachable(t, emulatorHost) {
		t.Skipf("storage emulator not reachable at %s", emulatorHost)
	}

	suffix := time.Now().UnixNano()
	bucketName := fmt.Sprintf("nb-it-blob-%d", suffix)
	createBucketIfMissing(t, emulatorHost, bucketName)

	t.Setenv("BLOB_GCS_BUCKET_NAME", bucketName)
	t.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", emulatorHost)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	store, err := NewStoreWithConfig(log, ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: emulatorHost,
	})
	if err != nil {
		t.Fatalf("NewStoreWithConfig: %v", err)
	}

	ctx := context.Background()
	nameA := fmt.Sprintf("/it/%d/a.bin", suffix)
	nameB := fmt.Sprintf("/it/%d/b.bin", suffix)

	if err := store.Put(ctx, nameA, []byte("alpha")); err != nil {
		t.Fatalf("Put(%s): %v", nameA, err)
	}
	if err := store.Put(ctx, nameB, []byte("beta")); err != nil {
		t.Fatalf("Put(%s): %v", nameB, err)
	}

	body, err := getWithRetry(ctx, store, nameA, 5*time.Second)
	if err != nil {
		t.Fatalf("getWithRetry(%s): %v", nameA, err)
	}
	if string(body) != "alpha" {
		t.Fatalf("body: want=%q got=%q", "alpha", string(body))
	}

	ranged, err := store.GetRange(ctx, nameA, 1, 3)
	if err != nil {
		t.Fatalf("GetRange(%s): %v", nameA, err)
	}
	if string(ranged) != "lph" {
		t.Fatalf("ranged body: want=%q got=%q", "lph", string(ranged))
	}

	if err := store.Delete(ctx, nameA); err != nil {
		t.Fatalf("Delete(%s): %v", nameA, err)
	}
	if _, err := store.Get(ctx, nameA); err == nil {
		t.Fatalf("expected %s to be deleted", nameA)
	}
	if _, err := store.Get(ctx, nameB); err != nil {
		t.Fatalf("expected %s to remain: %v", nameB, err)
	}
}

func isEmulatorReachable(t *testing.T, emulatorHost string) bool {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(emulatorHost + "/storage/v1/b?project=local-dev")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func createBucketIfMissing(t *testing.T, emulatorHost string, bucket string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": bucket})
	if err != nil {
		t.Fatalf("json.Marshal(bucket): %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(
		http.MethodPost,
		emulatorHost+"/storage/v1/b?project=local-dev",
		bytes.NewReader(payload),
	)
	if err != nil {
		t.Fatalf("http.NewRequest(create bucket): %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create bucket %q: %v", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return
	}
	b, _ := io.ReadAll(resp.Body)
	t.Fatalf("create bucket %q failed: status=%d body=%s", bucket, resp.StatusCode, strings.TrimSpace(string(b)))
}

func getWithRetry(ctx context.Context, store *Store, logicalName string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		body, err := store.Get(ctx, logicalName)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, lastErr
		}
		time.Sleep(100 * time.Millisecond)
	}
}
