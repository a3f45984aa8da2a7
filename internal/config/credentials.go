package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Names of the secrets the search API needs.
const (
	APIKey            = "API_KEY"
	APIKeySecret      = "API_KEY_SECRET"
	AccessToken       = "ACCESS_TOKEN"
	AccessTokenSecret = "ACCESS_TOKEN_SECRET"
)

// SearchCredentialNames lists every secret the signed search client requires.
var SearchCredentialNames = []string{APIKey, APIKeySecret, AccessToken, AccessTokenSecret}

// ConfigError reports required credentials that are absent.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing credentials: " + strings.Join(e.Missing, ", ")
}

// CredentialStore holds the API secrets for one process. It is built once at
// startup and handed to whatever needs it.
type CredentialStore struct {
	values map[string]string
}

// NewCredentialStore builds a store from explicit values. Empty values count
// as absent.
func NewCredentialStore(values map[string]string) *CredentialStore {
	s := &CredentialStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v != "" {
			s.values[k] = v
		}
	}
	return s
}

// LoadCredentials reads the named env file and overlays the process
// environment on top of it, so exported variables win over the file.
// A missing file is not an error; Require reports what is still absent.
func LoadCredentials(envFile string) (*CredentialStore, error) {
	values := make(map[string]string)
	if envFile != "" {
		fileValues, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}

	for _, name := range SearchCredentialNames {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			values[name] = v
		}
	}

	return NewCredentialStore(values), nil
}

// Get returns the named credential and whether it is present.
func (s *CredentialStore) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[name]
	return v, ok
}

// Require returns a *ConfigError listing every name that is absent.
func (s *CredentialStore) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := s.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}
