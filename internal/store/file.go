package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

const (
	incidentsDir = "incidents"
	patternsDir  = "patterns"
	fileExt      = ".json"
)

// FileStore keeps one JSON document per record under a root directory:
//
//	<root>/incidents/<id>.json
//	<root>/patterns/<id>.json
type FileStore struct {
	root   string
	logger *zap.Logger

	// mu serializes writes from this process.
	mu sync.Mutex
}

// NewFileStore creates the directory layout under root if needed.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("file store root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{incidentsDir, patternsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}
	return &FileStore{root: root, logger: logger}, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string { return s.root }

// IncidentsDir returns the directory holding incident documents.
func (s *FileStore) IncidentsDir() string { return filepath.Join(s.root, incidentsDir) }

// IncidentIDFromPath returns the incident id encoded in a document path, or
// false if the path does not name a valid incident document.
func IncidentIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	id := strings.TrimSuffix(base, fileExt)
	if incident.ValidateIncidentID(id) != nil {
		return "", false
	}
	return id, true
}

// LoadAllIncidents reads every incident document. Unreadable or malformed
// documents are logged and skipped.
func (s *FileStore) LoadAllIncidents(ctx context.Context) ([]*incident.Incident, error) {
	out := []*incident.Incident{}
	err := s.readDir(ctx, incidentsDir, func(path string, data []byte) {
		var inc incident.Incident
		if err := json.Unmarshal(data, &inc); err != nil || inc.ID == "" {
			s.logger.Warn("skipping malformed incident", zap.String("path", path), zap.Error(err))
			return
		}
		out = append(out, &inc)
	})
	if err != nil {
		return nil, err
	}
	sortIncidents(out)
	return out, nil
}

// LoadAllPatterns reads every pattern document.
func (s *FileStore) LoadAllPatterns(ctx context.Context) ([]*incident.Pattern, error) {
	out := []*incident.Pattern{}
	err := s.readDir(ctx, patternsDir, func(path string, data []byte) {
		var p incident.Pattern
		if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
			s.logger.Warn("skipping malformed pattern", zap.String("path", path), zap.Error(err))
			return
		}
		out = append(out, &p)
	})
	if err != nil {
		return nil, err
	}
	sortPatterns(out)
	return out, nil
}

func (s *FileStore) readDir(ctx context.Context, dir string, fn func(path string, data []byte)) error {
	full := filepath.Join(s.root, dir)
	entries, err := os.ReadDir(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		path := filepath.Join(full, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable document", zap.String("path", path), zap.Error(err))
			continue
		}
		fn(path, data)
	}
	return nil
}

// GetIncident loads one incident by id.
func (s *FileStore) GetIncident(_ context.Context, id string) (*incident.Incident, error) {
	if err := incident.ValidateIncidentID(id); err != nil {
		return nil, err
	}
	var inc incident.Incident
	if err := s.readJSON(filepath.Join(incidentsDir, id+fileExt), &inc); err != nil {
		return nil, fmt.Errorf("loading incident %s: %w", id, err)
	}
	return &inc, nil
}

// GetPattern loads one pattern by id.
func (s *FileStore) GetPattern(_ context.Context, id string) (*incident.Pattern, error) {
	if err := incident.ValidatePatternID(id); err != nil {
		return nil, err
	}
	var p incident.Pattern
	if err := s.readJSON(filepath.Join(patternsDir, id+fileExt), &p); err != nil {
		return nil, fmt.Errorf("loading pattern %s: %w", id, err)
	}
	return &p, nil
}

func (s *FileStore) readJSON(rel string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PersistIncident writes the incident document atomically.
func (s *FileStore) PersistIncident(_ context.Context, inc *incident.Incident) error {
	if err := incident.ValidateIncidentID(inc.ID); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(incidentsDir, inc.ID+fileExt), persistable(inc))
}

// PersistPattern writes the pattern document atomically.
func (s *FileStore) PersistPattern(_ context.Context, p *incident.Pattern) error {
	if err := incident.ValidatePatternID(p.ID); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(patternsDir, p.ID+fileExt), p)
}

func (s *FileStore) writeJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.root, rel)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", rel, err)
	}
	return nil
}

// DeleteIncident removes an incident document.
func (s *FileStore) DeleteIncident(_ context.Context, id string) error {
	if err := incident.ValidateIncidentID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.root, incidentsDir, id+fileExt))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
