package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNotFound is returned when a store has no secret with the requested name.
var ErrNotFound = errors.New("secret not found")

// Store resolves a secret by name.
type Store interface {
	Resolve(ctx context.Context, name string) (Secret, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid secret name %q", name)
	}
	return nil
}

// EnvStore reads secrets from environment variables, optionally prefixed.
// Empty variables count as missing.
type EnvStore struct {
	Prefix string
}

// NewEnvStore creates an EnvStore.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix}
}

func (s *EnvStore) Resolve(_ context.Context, name string) (Secret, error) {
	if err := checkName(name); err != nil {
		return Secret{}, err
	}
	v, ok := os.LookupEnv(s.Prefix + name)
	if !ok || v == "" {
		return Secret{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return New(v), nil
}

// FileStore reads one secret per file from a directory, the layout used by
// mounted Kubernetes and Docker secrets. Surrounding whitespace is trimmed.
type FileStore struct {
	Dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Resolve(_ context.Context, name string) (Secret, error) {
	if err := checkName(name); err != nil {
		return Secret{}, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return Secret{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Secret{}, fmt.Errorf("read secret %s: %w", name, err)
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return Secret{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return New(v), nil
}

// StaticStore serves secrets from a fixed map.
type StaticStore map[string]string

func (s StaticStore) Resolve(_ context.Context, name string) (Secret, error) {
	v, ok := s[name]
	if !ok || v == "" {
		return Secret{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return New(v), nil
}

// ChainStore asks each store in order and returns the first hit. Errors other
// than ErrNotFound stop the chain.
type ChainStore []Store

func (c ChainStore) Resolve(ctx context.Context, name string) (Secret, error) {
	for _, s := range c {
		secret, err := s.Resolve(ctx, name)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Secret{}, err
		}
	}
	return Secret{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}
