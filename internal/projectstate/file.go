package projectstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileStore keeps every record in one JSON document object keyed by record key.
// Writes replace the whole document via a temp file and rename. Concurrent
// processes writing the same file still race with last-write-wins.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	// Now is injected for testability.
	Now func() time.Time
}

// NewFileStore creates a JSON document store at path.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		logger: logger,
		Now:    nowOrDefault(nil),
	}, nil
}

// Load returns the stored record for key.
func (s *FileStore) Load(_ context.Context, key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowOrDefault(s.Now)()
	document := s.readDocument()
	body, ok := document[key]
	if !ok {
		return Default(now), false
	}
	record, err := decodeRecord(body, now)
	if err != nil {
		s.logger.Warn("project record unreadable; using defaults", zap.String("key", key), zap.Error(err))
		return Default(now), false
	}
	return record, true
}

// Save merges record into the document under key.
func (s *FileStore) Save(_ context.Context, key string, record Record) error {
	if key == "" {
		return fmt.Errorf("record key is required")
	}
	body, err := encodeRecord(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	document := s.readDocument()
	document[key] = body
	return s.writeDocument(document)
}

// Delete removes key from the document. Missing keys are a no-op.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	document := s.readDocument()
	if _, ok := document[key]; !ok {
		return nil
	}
	delete(document, key)
	return s.writeDocument(document)
}

// Keys lists stored record keys in sorted order.
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	document := s.readDocument()
	keys := make([]string, 0, len(document))
	for key := range document {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readDocument() map[string]json.RawMessage {
	document := map[string]json.RawMessage{}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state file unreadable; treating as empty", zap.String("path", s.path), zap.Error(err))
		}
		return document
	}
	if len(raw) == 0 {
		return document
	}
	if err := json.Unmarshal(raw, &document); err != nil {
		s.logger.Warn("state file corrupt; treating as empty", zap.String("path", s.path), zap.Error(err))
		return map[string]json.RawMessage{}
	}
	if document == nil {
		document = map[string]json.RawMessage{}
	}
	return document
}

func (s *FileStore) writeDocument(document map[string]json.RawMessage) error {
	payload, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".branchscope-state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
