package gcsblob

import (
	"testing"
)

func TestResolveObjectStoragePublicBaseURLGCSDefault(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode: ObjectStorageModeGCS,
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "" {
		t.Fatalf("baseURL: want empty got=%q", baseURL)
	}
	if source != "gcs_default" {
		t.Fatalf("source: want=%q got=%q", "gcs_default", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEmulatorFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://fake-gcs:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://fake-gcs:4443", baseURL)
	}
	if source != "storage_emulator_host" {
		t.Fatalf("source: want=%q got=%q", "storage_emulator_host", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEnvOverride(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:4443/")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://localhost:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://localhost:4443", baseURL)
	}
	if source != "object_storage_public_base_url" {
		t.Fatalf("source: want=%q got=%q", "object_storage_public_base_url", source)
	}
}

func TestResolveObjectStoragePublicBaseURLInvalidEnv(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "localhost:4443")

	_, _, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err == nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: expected error, got nil")
	}
}
