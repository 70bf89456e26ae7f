package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements TokenStore using environment variables.
// This matches the original .env based setup.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based token store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve gets a token from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	token := os.Getenv("MAPFETCH_ACCESS_TOKEN")
	if token == "" {
		token = os.Getenv("MAPILLARY_TOKEN")
	}
	if token == "" {
		return nil, ErrTokenNotFound
	}

	// Environment variables don't store a profile name
	if name == "" {
		name = "default"
	}

	return &Profile{
		Name:         name,
		AccessToken:  token,
		LastModified: time.Now(),
	}, nil
}

// List returns a single profile if environment variables are set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment token exists
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("MAPFETCH_ACCESS_TOKEN") != "" || os.Getenv("MAPILLARY_TOKEN") != ""
}
