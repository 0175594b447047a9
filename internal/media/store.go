package media

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kaushalkrishnax/inflow-backend/internal/domain"
)

const manifestExt = ".manifest.json"

// Entry describes one temporary uploaded file. An entry is exclusively
// owned by the job that references it and is deleted when that job
// reaches a terminal state.
type Entry struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

// Store manages temporary media files on local disk. Each file gets a
// sidecar manifest so the index survives restarts; recovered jobs can
// still resolve their media after a crash. The upload-receiving layer
// creates entries before job creation; the scheduler engine removes
// them on terminal transitions.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewStore creates a media store rooted at dir, creating it if needed
// and reloading any entries whose manifests are already present.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		logger:  logger,
		entries: make(map[string]*Entry),
	}

	if err := s.loadManifests(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadManifests rebuilds the index from sidecar manifests. A manifest
// whose media file is gone is stale and gets cleaned up.
func (s *Store) loadManifests() error {
	names, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read media dir: %w", err)
	}

	for _, name := range names {
		if name.IsDir() || !strings.HasSuffix(name.Name(), manifestExt) {
			continue
		}

		manifestPath := filepath.Join(s.dir, name.Name())
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			s.logger.Error("Failed to read media manifest",
				slog.String("path", manifestPath),
				slog.Any("error", err),
			)
			continue
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Error("Failed to decode media manifest",
				slog.String("path", manifestPath),
				slog.Any("error", err),
			)
			continue
		}

		if _, err := os.Stat(entry.Path); err != nil {
			os.Remove(manifestPath)
			continue
		}

		s.entries[entry.ID] = &entry
	}

	if len(s.entries) > 0 {
		s.logger.Info("Media entries recovered from disk",
			slog.Int("count", len(s.entries)),
		)
	}

	return nil
}

// Save writes the uploaded content to a new file and registers an entry.
func (s *Store) Save(originalName, mimeType string, r io.Reader) (*Entry, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id+filepath.Ext(originalName))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write media file: %w", err)
	}

	entry := &Entry{
		ID:           id,
		Path:         path,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         size,
	}

	if err := s.writeManifest(entry); err != nil {
		os.Remove(path)
		return nil, err
	}

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	s.logger.Debug("Media entry saved",
		slog.String("media_id", id),
		slog.String("original_name", originalName),
		slog.String("mime_type", mimeType),
		slog.Int64("size", size),
	)

	return entry, nil
}

func (s *Store) writeManifest(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode media manifest: %w", err)
	}

	if err := os.WriteFile(s.manifestPath(entry.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write media manifest: %w", err)
	}

	return nil
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.dir, id+manifestExt)
}

// Get returns the entry for id.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrMediaNotFound
	}
	return entry, nil
}

// Remove deletes the entry's file and manifest and forgets it. Deletion
// is best-effort: a filesystem failure is logged and the entry is still
// dropped from the index, never retried.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := os.Remove(s.manifestPath(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete media manifest",
			slog.String("media_id", id),
			slog.Any("error", err),
		)
	}

	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete media file",
			slog.String("media_id", id),
			slog.String("path", entry.Path),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("Media entry removed",
		slog.String("media_id", id),
	)
}

// Count returns the number of live entries. Diagnostic.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
