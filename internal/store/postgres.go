package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS debugmem_incidents (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	patternized BOOLEAN NOT NULL DEFAULT false,
	recorded_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_debugmem_incidents_category ON debugmem_incidents(category);

CREATE TABLE IF NOT EXISTS debugmem_patterns (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
);
`

// PostgresStore keeps records as JSONB documents in PostgreSQL. Category and
// patternized state are mirrored into columns for ad-hoc inspection.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// rebind converts ? placeholders to $1, $2, ...
func rebind(query string) string {
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// NewPostgresStore connects to dsn and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) LoadAllIncidents(ctx context.Context) ([]*incident.Incident, error) {
	out := []*incident.Incident{}
	err := s.queryDocs(ctx, "SELECT id, data FROM debugmem_incidents ORDER BY id", func(id string, data []byte) {
		var inc incident.Incident
		if err := json.Unmarshal(data, &inc); err != nil {
			s.logger.Warn("skipping malformed incident", zap.String("id", id), zap.Error(err))
			return
		}
		out = append(out, &inc)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) LoadAllPatterns(ctx context.Context) ([]*incident.Pattern, error) {
	out := []*incident.Pattern{}
	err := s.queryDocs(ctx, "SELECT id, data FROM debugmem_patterns ORDER BY id", func(id string, data []byte) {
		var p incident.Pattern
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("skipping malformed pattern", zap.String("id", id), zap.Error(err))
			return
		}
		out = append(out, &p)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) queryDocs(ctx context.Context, query string, fn func(id string, data []byte)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		fn(id, data)
	}
	return rows.Err()
}

func (s *PostgresStore) GetIncident(ctx context.Context, id string) (*incident.Incident, error) {
	if err := incident.ValidateIncidentID(id); err != nil {
		return nil, err
	}
	var inc incident.Incident
	if err := s.getDoc(ctx, "SELECT data FROM debugmem_incidents WHERE id = ?", id, &inc); err != nil {
		return nil, fmt.Errorf("loading incident %s: %w", id, err)
	}
	return &inc, nil
}

func (s *PostgresStore) GetPattern(ctx context.Context, id string) (*incident.Pattern, error) {
	if err := incident.ValidatePatternID(id); err != nil {
		return nil, err
	}
	var p incident.Pattern
	if err := s.getDoc(ctx, "SELECT data FROM debugmem_patterns WHERE id = ?", id, &p); err != nil {
		return nil, fmt.Errorf("loading pattern %s: %w", id, err)
	}
	return &p, nil
}

func (s *PostgresStore) getDoc(ctx context.Context, query, id string, v any) error {
	var data []byte
	err := s.db.QueryRowContext(ctx, rebind(query), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *PostgresStore) PersistIncident(ctx context.Context, inc *incident.Incident) error {
	if err := incident.ValidateIncidentID(inc.ID); err != nil {
		return err
	}
	data, err := json.Marshal(persistable(inc))
	if err != nil {
		return fmt.Errorf("encoding incident %s: %w", inc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, rebind(`
		INSERT INTO debugmem_incidents (id, category, patternized, recorded_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			patternized = EXCLUDED.patternized,
			data = EXCLUDED.data`),
		inc.ID, inc.RootCause.Category, inc.Patternized, inc.Timestamp.UTC(), data)
	if err != nil {
		return fmt.Errorf("failed to upsert incident %s: %w", inc.ID, err)
	}
	return nil
}

func (s *PostgresStore) PersistPattern(ctx context.Context, p *incident.Pattern) error {
	if err := incident.ValidatePatternID(p.ID); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding pattern %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, rebind(`
		INSERT INTO debugmem_patterns (id, category, created_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			data = EXCLUDED.data`),
		p.ID, p.Category, p.CreatedAt.UTC(), data)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteIncident(ctx context.Context, id string) error {
	if err := incident.ValidateIncidentID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, rebind("DELETE FROM debugmem_incidents WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete incident %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
