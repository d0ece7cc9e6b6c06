// Package blobstore stores document content by key. Metadata lives with the
// owning record; a store only knows keys, bytes and their digest.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the maximum allowed blob size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// AllowedContentTypes lists the MIME types accepted for clinic documents.
var AllowedContentTypes = map[string]bool{
	"image/png":          true,
	"image/jpeg":         true,
	"application/pdf":    true,
	"application/dicom":  true,
	"text/plain":         true,
	"text/csv":           true,
	"application/msword": true,
}

// CheckContentType normalizes ct and rejects types outside
// AllowedContentTypes.
func CheckContentType(ct string) (string, error) {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	if !AllowedContentTypes[ct] {
		return "", ErrInvalidContentType
	}
	return ct, nil
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Object describes stored content.
type Object struct {
	Key    string
	Size   int64
	SHA256 string
}

type Store interface {
	// Put writes content under key, replacing any previous content.
	Put(ctx context.Context, key string, content io.Reader) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// readLimited reads content up to MaxFileSize and returns it with its digest.
func readLimited(content io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, "", ErrFileTooLarge
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader) (*Object, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, sum, err := readLimited(content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return &Object{Key: key, Size: int64(len(data)), SHA256: sum}, nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// ---------------------------------------------------------------------------
// Directory implementation
// ---------------------------------------------------------------------------

// DirStore keeps each blob as a file under a root directory. Writes go to a
// temporary file first and are renamed into place.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *DirStore) Put(_ context.Context, key string, content io.Reader) (*Object, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, sum, err := readLimited(content)
	if err != nil {
		return nil, err
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("blobstore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("blobstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("blobstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("blobstore: rename: %w", err)
	}
	return &Object{Key: key, Size: int64(len(data)), SHA256: sum}, nil
}

func (s *DirStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *DirStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}
