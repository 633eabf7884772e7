package auth

import (
	"os"
	"strings"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables
// of the form IMAGEDL_<PLATFORM>_USERNAME / IMAGEDL_<PLATFORM>_PASSWORD.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(platform string) (*Account, error) {
	if platform == "" {
		return nil, ErrInvalidCredentials
	}

	prefix := "IMAGEDL_" + strings.ToUpper(platform) + "_"
	username := os.Getenv(prefix + "USERNAME")
	password := os.Getenv(prefix + "PASSWORD")

	if username == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Platform:     platform,
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

// List cannot enumerate platforms from the environment
func (e *EnvironmentStore) List() ([]*Account, error) {
	return []*Account{}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(platform string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(platform string) bool {
	_, err := e.Retrieve(platform)
	return err == nil
}
