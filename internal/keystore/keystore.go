// Package keystore persists the fleet's keypairs and turns stored entries
// into signing accounts.
//
// The on-disk shape is a JSON array of {"publicKey", "secretKey"} objects,
// optionally tagged with "encoding". Entries are append-only; the store never
// rewrites or removes an existing key.
package keystore

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	xerrors "WalletFleet/internal/errors"
)

// Entry is one stored keypair.
type Entry struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
	// Encoding names the secret's text encoding (base58, base64 or json).
	// Empty means unknown; the decoder then tries every supported form.
	Encoding string `json:"encoding,omitempty"`
}

// Store lists and appends keypair entries.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, entries ...Entry) error
}

// FileStore keeps entries in a single JSON file. Writes go to a temporary
// file in the same directory that is renamed over the original, so a crash
// never leaves a truncated key file behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first Append.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "key file path is empty")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// List returns every stored entry in file order.
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Append adds entries to the end of the file.
func (s *FileStore) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	merged, err := appendUnique(current, entries)
	if err != nil {
		return err
	}
	return s.write(merged)
}

func (s *FileStore) read() ([]Entry, error) {
	content, err := os.ReadFile(s.path)
	if stdErrors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read key file")
	}
	if len(content) == 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "parse key file "+s.path)
	}
	return entries, nil
}

func (s *FileStore) write(entries []Entry) error {
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode key file")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "create key directory")
	}
	tmp, err := os.CreateTemp(dir, ".wallets-*.json")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "create temporary key file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		cleanup()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write temporary key file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "sync temporary key file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "close temporary key file")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "restrict key file permissions")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "replace key file")
	}
	return nil
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore returns a store seeded with entries.
func NewMemoryStore(entries ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), entries...)}
}

// List returns a copy of the stored entries.
func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...), nil
}

// Append adds entries in order.
func (s *MemoryStore) Append(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := appendUnique(s.entries, entries)
	if err != nil {
		return err
	}
	s.entries = merged
	return nil
}

func appendUnique(current, added []Entry) ([]Entry, error) {
	seen := make(map[string]struct{}, len(current)+len(added))
	for _, entry := range current {
		seen[entry.PublicKey] = struct{}{}
	}
	merged := append(make([]Entry, 0, len(current)+len(added)), current...)
	for _, entry := range added {
		if entry.PublicKey == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "entry has no public key")
		}
		if _, ok := seen[entry.PublicKey]; ok {
			return nil, xerrors.New(xerrors.CodeConflict, fmt.Sprintf("public key %s already stored", entry.PublicKey))
		}
		seen[entry.PublicKey] = struct{}{}
		merged = append(merged, entry)
	}
	return merged, nil
}
