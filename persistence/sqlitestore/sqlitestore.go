// Package sqlitestore provides SQLite-based persistence for the service catalog.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bpowers/ktme/persistence"
)

// SQLiteStore implements persistence.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ persistence.Store = (*SQLiteStore)(nil)

// New creates a new SQLite-based store at the given path, creating parent
// directories as needed. Use ":memory:" for an in-memory database.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// every connection to ":memory:" is a distinct database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS services (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    path        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS document_mappings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    service_id INTEGER NOT NULL REFERENCES services(id),
    doc_type   TEXT NOT NULL,
    location   TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    section    TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mappings_service ON document_mappings(service_id);

CREATE TABLE IF NOT EXISTS features (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    service_id  INTEGER NOT NULL REFERENCES services(id),
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    keywords    TEXT NOT NULL DEFAULT '[]',
    relevance   REAL NOT NULL DEFAULT 1.0
);

CREATE INDEX IF NOT EXISTS idx_features_service ON features(service_id);

CREATE TABLE IF NOT EXISTS generations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    service_name TEXT NOT NULL,
    source       TEXT NOT NULL DEFAULT '',
    format       TEXT NOT NULL DEFAULT '',
    provider     TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generations_service ON generations(service_name, created_at);
`
	_, err := s.db.Exec(schema)
	return err
}

func notFound(name string) error {
	return fmt.Errorf("service %q: %w", name, persistence.ErrNotFound)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

// serviceID resolves a service name to its row id.
func (s *SQLiteStore) serviceID(q queryer, name string) (int64, error) {
	var id int64
	err := q.QueryRow(`SELECT id FROM services WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(name)
	}
	if err != nil {
		return 0, fmt.Errorf("query service id: %w", err)
	}
	return id, nil
}

// CreateService implements persistence.Store.
func (s *SQLiteStore) CreateService(svc persistence.Service) (persistence.Service, error) {
	if strings.TrimSpace(svc.Name) == "" {
		return persistence.Service{}, fmt.Errorf("service name is required")
	}

	if _, err := s.serviceID(s.db, svc.Name); err == nil {
		return persistence.Service{}, fmt.Errorf("service %q: %w", svc.Name, persistence.ErrExists)
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.Service{}, err
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO services (name, path, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		svc.Name, svc.Path, svc.Description, now, now,
	)
	if err != nil {
		return persistence.Service{}, fmt.Errorf("insert service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistence.Service{}, fmt.Errorf("get insert id: %w", err)
	}

	svc.ID = id
	svc.CreatedAt = now
	svc.UpdatedAt = now
	return svc, nil
}

// GetService implements persistence.Store.
func (s *SQLiteStore) GetService(name string) (persistence.Service, error) {
	var svc persistence.Service
	err := s.db.QueryRow(
		`SELECT id, name, path, description, created_at, updated_at FROM services WHERE name = ?`,
		name,
	).Scan(&svc.ID, &svc.Name, &svc.Path, &svc.Description, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Service{}, notFound(name)
	}
	if err != nil {
		return persistence.Service{}, fmt.Errorf("query service: %w", err)
	}
	return svc, nil
}

// ListServices implements persistence.Store.
func (s *SQLiteStore) ListServices() ([]persistence.Service, error) {
	return s.queryServices(`SELECT id, name, path, description, created_at, updated_at FROM services ORDER BY name`)
}

func (s *SQLiteStore) queryServices(query string, args ...any) ([]persistence.Service, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var services []persistence.Service
	for rows.Next() {
		var svc persistence.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Path, &svc.Description, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// DeleteService implements persistence.Store.
func (s *SQLiteStore) DeleteService(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.serviceID(tx, name)
	if err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM document_mappings WHERE service_id = ?`,
		`DELETE FROM features WHERE service_id = ?`,
		`DELETE FROM services WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("delete service: %w", err)
		}
	}

	return tx.Commit()
}

// AddMapping implements persistence.Store.
func (s *SQLiteStore) AddMapping(service string, m persistence.DocumentMapping) (persistence.DocumentMapping, error) {
	id, err := s.serviceID(s.db, service)
	if err != nil {
		return persistence.DocumentMapping{}, err
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO document_mappings (service_id, doc_type, location, title, section, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, m.DocType, m.Location, m.Title, m.Section, now,
	)
	if err != nil {
		return persistence.DocumentMapping{}, fmt.Errorf("insert mapping: %w", err)
	}

	m.ID, err = result.LastInsertId()
	if err != nil {
		return persistence.DocumentMapping{}, fmt.Errorf("get insert id: %w", err)
	}
	m.ServiceID = id
	m.CreatedAt = now
	return m, nil
}

// GetMapping implements persistence.Store.
func (s *SQLiteStore) GetMapping(service string) (persistence.ServiceMapping, error) {
	svc, err := s.GetService(service)
	if err != nil {
		return persistence.ServiceMapping{}, err
	}
	docs, err := s.documentsFor([]int64{svc.ID})
	if err != nil {
		return persistence.ServiceMapping{}, err
	}
	return persistence.NewServiceMapping(svc, docs[svc.ID]), nil
}

// Documents implements persistence.Store.
func (s *SQLiteStore) Documents(service string) ([]persistence.DocumentMapping, error) {
	id, err := s.serviceID(s.db, service)
	if err != nil {
		return nil, err
	}
	docs, err := s.documentsFor([]int64{id})
	if err != nil {
		return nil, err
	}
	return docs[id], nil
}

// AddFeature implements persistence.Store.
func (s *SQLiteStore) AddFeature(service string, f persistence.Feature) (persistence.Feature, error) {
	id, err := s.serviceID(s.db, service)
	if err != nil {
		return persistence.Feature{}, err
	}

	keywords, err := json.Marshal(f.Keywords)
	if err != nil {
		return persistence.Feature{}, fmt.Errorf("encode keywords: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO features (service_id, name, description, keywords, relevance) VALUES (?, ?, ?, ?, ?)`,
		id, f.Name, f.Description, string(keywords), f.Relevance,
	)
	if err != nil {
		return persistence.Feature{}, fmt.Errorf("insert feature: %w", err)
	}

	f.ID, err = result.LastInsertId()
	if err != nil {
		return persistence.Feature{}, fmt.Errorf("get insert id: %w", err)
	}
	f.ServiceID = id
	return f, nil
}

// SearchServices implements persistence.Store.
func (s *SQLiteStore) SearchServices(query string) ([]persistence.SearchResult, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return nil, nil
	}
	entries, err := s.candidates([]string{term}, true)
	if err != nil {
		return nil, err
	}
	return persistence.RankQuery(entries, term), nil
}

// SearchByFeature implements persistence.Store.
func (s *SQLiteStore) SearchByFeature(feature string) ([]persistence.SearchResult, error) {
	term := strings.TrimSpace(feature)
	if term == "" {
		return nil, nil
	}
	entries, err := s.candidates([]string{term}, false)
	if err != nil {
		return nil, err
	}
	return persistence.RankFeature(entries, term), nil
}

// SearchByKeyword implements persistence.Store.
func (s *SQLiteStore) SearchByKeyword(keyword string) ([]persistence.SearchResult, error) {
	tokens := persistence.Tokenize(keyword)
	if len(tokens) == 0 {
		return nil, nil
	}
	entries, err := s.candidates(tokens, true)
	if err != nil {
		return nil, err
	}
	return persistence.RankKeyword(entries, keyword), nil
}

// candidates narrows the catalog with LIKE before scoring in Go. With
// serviceFields false only features are consulted.
func (s *SQLiteStore) candidates(terms []string, serviceFields bool) ([]persistence.Entry, error) {
	var clauses []string
	var args []any
	for _, t := range terms {
		pattern := "%" + escapeLike(t) + "%"
		if serviceFields {
			clauses = append(clauses,
				`SELECT id FROM services WHERE name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\'`,
				`SELECT service_id FROM document_mappings WHERE location LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\'`,
			)
			args = append(args, pattern, pattern, pattern, pattern, pattern)
		}
		clauses = append(clauses,
			`SELECT service_id FROM features WHERE name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR keywords LIKE ? ESCAPE '\'`,
		)
		args = append(args, pattern, pattern, pattern)
	}

	services, err := s.queryServices(
		`SELECT id, name, path, description, created_at, updated_at FROM services WHERE id IN (`+
			strings.Join(clauses, " UNION ")+`) ORDER BY name`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(services))
	for i, svc := range services {
		ids[i] = svc.ID
	}
	docs, err := s.documentsFor(ids)
	if err != nil {
		return nil, err
	}
	features, err := s.featuresFor(ids)
	if err != nil {
		return nil, err
	}

	entries := make([]persistence.Entry, len(services))
	for i, svc := range services {
		entries[i] = persistence.Entry{
			Service:  svc,
			Docs:     docs[svc.ID],
			Features: features[svc.ID],
		}
	}
	return entries, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

func (s *SQLiteStore) documentsFor(ids []int64) (map[int64][]persistence.DocumentMapping, error) {
	in, args := inClause(ids)
	rows, err := s.db.Query(
		`SELECT id, service_id, doc_type, location, title, section, created_at FROM document_mappings WHERE service_id IN `+in+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	docs := make(map[int64][]persistence.DocumentMapping)
	for rows.Next() {
		var d persistence.DocumentMapping
		if err := rows.Scan(&d.ID, &d.ServiceID, &d.DocType, &d.Location, &d.Title, &d.Section, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		docs[d.ServiceID] = append(docs[d.ServiceID], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) featuresFor(ids []int64) (map[int64][]persistence.Feature, error) {
	in, args := inClause(ids)
	rows, err := s.db.Query(
		`SELECT id, service_id, name, description, keywords, relevance FROM features WHERE service_id IN `+in+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	features := make(map[int64][]persistence.Feature)
	for rows.Next() {
		var f persistence.Feature
		var keywords string
		if err := rows.Scan(&f.ID, &f.ServiceID, &f.Name, &f.Description, &keywords, &f.Relevance); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &f.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
		features[f.ServiceID] = append(features[f.ServiceID], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	return features, nil
}

// RecordGeneration implements persistence.Store.
func (s *SQLiteStore) RecordGeneration(g persistence.Generation) (persistence.Generation, error) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(
		`INSERT INTO generations (service_name, source, format, provider, location, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		g.ServiceName, g.Source, g.Format, g.Provider, g.Location, g.CreatedAt,
	)
	if err != nil {
		return persistence.Generation{}, fmt.Errorf("insert generation: %w", err)
	}
	g.ID, err = result.LastInsertId()
	if err != nil {
		return persistence.Generation{}, fmt.Errorf("get insert id: %w", err)
	}
	return g, nil
}

// Generations implements persistence.Store.
func (s *SQLiteStore) Generations(service string) ([]persistence.Generation, error) {
	rows, err := s.db.Query(
		`SELECT id, service_name, source, format, provider, location, created_at FROM generations WHERE service_name = ? ORDER BY id DESC`,
		service,
	)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var gens []persistence.Generation
	for rows.Next() {
		var g persistence.Generation
		if err := rows.Scan(&g.ID, &g.ServiceName, &g.Source, &g.Format, &g.Provider, &g.Location, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return gens, nil
}

// Close implements persistence.Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
