// Package store persists incidents and patterns.
//
// The engine treats storage as a provider of the full incident and pattern
// collections plus single-record upserts. Three backends are available: a
// directory of JSON files, an in-process map, and PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

// ErrNotFound is returned when a single-record lookup misses.
var ErrNotFound = errors.New("record not found")

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store is the storage collaborator used by the search and extraction engine.
type Store interface {
	// LoadAllIncidents returns every stored incident. An empty store yields an
	// empty slice, not an error.
	LoadAllIncidents(ctx context.Context) ([]*incident.Incident, error)

	// LoadAllPatterns returns every stored pattern.
	LoadAllPatterns(ctx context.Context) ([]*incident.Pattern, error)

	// GetIncident loads one incident. The id is validated first.
	GetIncident(ctx context.Context, id string) (*incident.Incident, error)

	// GetPattern loads one pattern. The id is validated first.
	GetPattern(ctx context.Context, id string) (*incident.Pattern, error)

	// PersistIncident upserts an incident keyed by its id.
	PersistIncident(ctx context.Context, inc *incident.Incident) error

	// PersistPattern writes a pattern, overwriting any record with the same id.
	PersistPattern(ctx context.Context, p *incident.Pattern) error

	// DeleteIncident removes an incident. Missing ids return ErrNotFound.
	DeleteIncident(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is one of BackendFile, BackendMemory or BackendPostgres.
	Backend string

	// Path is the root directory of the file backend.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open constructs the backend named in opts.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.DSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// persistable returns a copy of inc without retrieval-only fields.
func persistable(inc *incident.Incident) *incident.Incident {
	c := inc.Clone()
	c.SimilarityScore = 0
	return c
}

func sortIncidents(incs []*incident.Incident) {
	sort.SliceStable(incs, func(i, j int) bool { return incs[i].ID < incs[j].ID })
}

func sortPatterns(ps []*incident.Pattern) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
