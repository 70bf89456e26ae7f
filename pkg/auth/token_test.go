package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestMockStore(t *testing.T) {
	store := NewMockStore()

	profile := &Profile{
		Name:         "default",
		AccessToken:  "MLY|1234567890|abcdef",
		LastModified: time.Now(),
	}

	// Store and retrieve
	if err := store.Store(profile); err != nil {
		t.Fatalf("Failed to store profile: %v", err)
	}
	got, err := store.Retrieve("default")
	if err != nil {
		t.Fatalf("Failed to retrieve profile: %v", err)
	}
	if got.AccessToken != profile.AccessToken {
		t.Errorf("Expected token %s, got %s", profile.AccessToken, got.AccessToken)
	}

	// The retrieved profile is a copy
	got.AccessToken = "mutated"
	again, _ := store.Retrieve("default")
	if again.AccessToken != profile.AccessToken {
		t.Error("Expected retrieved profile to be isolated from mutation")
	}

	// Exists
	if !store.Exists("default") {
		t.Error("Expected profile to exist")
	}
	if store.Exists("other") {
		t.Error("Expected other profile to not exist")
	}

	// List
	profiles, err := store.List()
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("Expected 1 profile, got %d", len(profiles))
	}

	// Delete
	if err := store.Delete("default"); err != nil {
		t.Fatalf("Failed to delete profile: %v", err)
	}
	if _, err := store.Retrieve("default"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound after delete, got %v", err)
	}
	if err := store.Delete("default"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound for double delete, got %v", err)
	}
}

func TestMockStoreRejectsInvalidProfiles(t *testing.T) {
	store := NewMockStore()

	if err := store.Store(nil); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Expected ErrInvalidProfile for nil profile, got %v", err)
	}
	if err := store.Store(&Profile{Name: ""}); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Expected ErrInvalidProfile for empty name, got %v", err)
	}
	if _, err := store.Retrieve(""); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Expected ErrInvalidProfile for empty name lookup, got %v", err)
	}
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	injected := errors.New("store broken")
	store.StoreError = injected

	err := store.Store(&Profile{Name: "x", AccessToken: "y"})
	if !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got %v", err)
	}
}

func TestEncryptedFileStoreRoundtrip(t *testing.T) {
	t.Setenv("MAPFETCH_PASSPHRASE", "test passphrase for the suite")
	path := filepath.Join(t.TempDir(), "tokens.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	profile := &Profile{
		Name:         "default",
		AccessToken:  "MLY|1234567890|abcdef",
		LastModified: time.Now(),
	}
	if err := store.Store(profile); err != nil {
		t.Fatalf("Failed to store profile: %v", err)
	}

	// A fresh store over the same file decrypts the same profile
	store2, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen encrypted store: %v", err)
	}
	got, err := store2.Retrieve("default")
	if err != nil {
		t.Fatalf("Failed to retrieve profile: %v", err)
	}
	if got.AccessToken != profile.AccessToken {
		t.Errorf("Expected token to survive roundtrip, got %s", got.AccessToken)
	}

	// Delete removes the profile durably
	if err := store2.Delete("default"); err != nil {
		t.Fatalf("Failed to delete profile: %v", err)
	}
	store3, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen encrypted store: %v", err)
	}
	if _, err := store3.Retrieve("default"); err == nil {
		t.Error("Expected profile to be gone after delete")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("MAPFETCH_ACCESS_TOKEN", "env-token-1234567890")

	store := NewEnvironmentStore()

	profile, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if profile.AccessToken != "env-token-1234567890" {
		t.Errorf("Unexpected token: %s", profile.AccessToken)
	}

	// The environment store is read-only
	if err := store.Store(&Profile{Name: "x", AccessToken: "y"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable on store, got %v", err)
	}
	if err := store.Delete("x"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable on delete, got %v", err)
	}
}

func TestSanitizeProfile(t *testing.T) {
	profile := &Profile{
		Name:        "default",
		AccessToken: "MLY|1234567890|abcdefghij",
	}

	sanitized := SanitizeProfile(profile)
	if sanitized.AccessToken == profile.AccessToken {
		t.Error("Expected token to be masked")
	}
	if sanitized.AccessToken != "MLY|...ghij" {
		t.Errorf("Unexpected mask: %s", sanitized.AccessToken)
	}

	// Short tokens are fully masked
	short := SanitizeProfile(&Profile{Name: "x", AccessToken: "tiny"})
	if short.AccessToken != "********" {
		t.Errorf("Expected short token fully masked, got %s", short.AccessToken)
	}

	if SanitizeProfile(nil) != nil {
		t.Error("Expected nil profile to sanitize to nil")
	}
}
