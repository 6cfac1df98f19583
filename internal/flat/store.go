// Package flat implements the fallback key-value backend: a directory holding one
// file per key, capped by a total byte quota.
package flat

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/chronicler/internal/errors"
)

// DefaultQuota is the classic 5 MiB local-storage limit.
const DefaultQuota int64 = 5 * 1024 * 1024

const fileExt = ".json"

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Store is a flat key-value store rooted at a directory. Safe for concurrent use.
type Store struct {
	dir   string
	quota int64
	mu    sync.Mutex
}

// Open creates dir if needed and returns a store limited to quota bytes.
// A quota <= 0 uses DefaultQuota.
func Open(dir string, quota int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory: %w", err)
	}
	_ = os.Chmod(dir, 0700)
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Store{dir: dir, quota: quota}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Quota returns the byte limit.
func (s *Store) Quota() int64 { return s.quota }

func (s *Store) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid key %q", key))
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

// Get returns the value stored under key. ok is false when the key is absent.
func (s *Store) Get(key string) (value []byte, ok bool, err error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := ReadFileNoFollow(p)
	if err != nil {
		if errors.Is(err, errors.ErrFileNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key, replacing any previous value. It fails with
// QUOTA_EXCEEDED when the store would grow past its quota; the previous value
// is kept in that case.
func (s *Store) Set(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	used, err := s.sizeLocked()
	if err != nil {
		return err
	}
	if info, err := os.Lstat(p); err == nil {
		used -= info.Size()
	}
	if used+int64(len(value)) > s.quota {
		return errors.NewQuotaExceeded([]string{key})
	}

	return WriteFileAtomic(p, value, 0600)
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.NewInternal(err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasSuffix(name, fileExt) {
			key := strings.TrimSuffix(name, fileExt)
			if validKey.MatchString(key) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the total bytes held by stored keys.
func (s *Store) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLocked()
}

func (s *Store) sizeLocked() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed concurrently
			continue
		}
		total += info.Size()
	}
	return total, nil
}
