package credentials

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// SecretStore looks up secrets by key.
type SecretStore interface {
	Lookup(key string) (string, bool)
}

// EnvStore reads secrets from the process environment.
type EnvStore struct{}

// Lookup implements SecretStore. Empty values count as absent.
func (EnvStore) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

// MapStore is an in-memory SecretStore.
type MapStore map[string]string

// Lookup implements SecretStore. Empty values count as absent.
func (m MapStore) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok && v != ""
}

// ChainStore consults each store in order; the first hit wins.
type ChainStore []SecretStore

// Lookup implements SecretStore.
func (c ChainStore) Lookup(key string) (string, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// FileStore holds secrets parsed from a dotenv file. The values are kept
// in memory and never exported to the process environment.
type FileStore struct {
	path    string
	secrets map[string]string
}

// OpenFileStore parses the dotenv file at path.
func OpenFileStore(path string) (*FileStore, error) {
	secrets, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	return &FileStore{path: path, secrets: secrets}, nil
}

// Path returns the file the store was read from.
func (f *FileStore) Path() string {
	return f.path
}

// Lookup implements SecretStore. Empty values count as absent.
func (f *FileStore) Lookup(key string) (string, bool) {
	v, ok := f.secrets[key]
	return v, ok && v != ""
}
