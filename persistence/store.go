// Package persistence provides storage interfaces for the service catalog:
// services, where their documentation lives, the features they own, and a
// history of documentation generated for them.
package persistence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a named service does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a service whose name is taken.
	ErrExists = errors.New("already exists")
)

// Service is a unit of code whose documentation ktme tracks.
type Service struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentMapping records one place a service is documented.
type DocumentMapping struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	DocType   string    `json:"doc_type"` // "markdown", "confluence", ...
	Location  string    `json:"location"`
	Title     string    `json:"title,omitempty"`
	Section   string    `json:"section,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Feature is a named capability owned by a service.
type Feature struct {
	ID          int64    `json:"id"`
	ServiceID   int64    `json:"service_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	// Relevance weights the feature when it matches a search.
	Relevance float64 `json:"relevance"`
}

// Generation records one documentation write.
type Generation struct {
	ID          int64     `json:"id"`
	ServiceName string    `json:"service_name"`
	Source      string    `json:"source"` // where the changes came from
	Format      string    `json:"format"`
	Provider    string    `json:"provider"` // "basic" when no model was used
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentLocation is the public view of a DocumentMapping.
type DocumentLocation struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

// ServiceMapping describes a service and where its documentation lives.
type ServiceMapping struct {
	Name string             `json:"name"`
	Path string             `json:"path,omitempty"`
	Docs []DocumentLocation `json:"docs"`
}

// Store defines the interface for persisting the service catalog.
type Store interface {
	// CreateService inserts a new service, failing with ErrExists on a
	// duplicate name.
	CreateService(svc Service) (Service, error)

	// GetService returns the named service or ErrNotFound.
	GetService(name string) (Service, error)

	// ListServices returns all services ordered by name.
	ListServices() ([]Service, error)

	// DeleteService removes a service with its mappings and features.
	DeleteService(name string) error

	// AddMapping attaches a document location to the named service.
	AddMapping(service string, m DocumentMapping) (DocumentMapping, error)

	// GetMapping returns the service with all of its document locations.
	GetMapping(service string) (ServiceMapping, error)

	// Documents returns the named service's document mappings in insertion order.
	Documents(service string) ([]DocumentMapping, error)

	// AddFeature attaches a feature to the named service.
	AddFeature(service string, f Feature) (Feature, error)

	// SearchServices ranks services against a free-text query.
	SearchServices(query string) ([]SearchResult, error)

	// SearchByFeature ranks services by the features they own.
	SearchByFeature(feature string) ([]SearchResult, error)

	// SearchByKeyword splits keyword into tokens and ranks services by the
	// sum of per-token scores.
	SearchByKeyword(keyword string) ([]SearchResult, error)

	// RecordGeneration appends an entry to the generation history.
	RecordGeneration(g Generation) (Generation, error)

	// Generations returns the history for a service, newest first.
	Generations(service string) ([]Generation, error)

	// Close closes the store and releases resources.
	Close() error
}

// MemoryStore provides an in-memory implementation of Store.
type MemoryStore struct {
	mu          sync.Mutex
	services    map[string]*Entry
	generations []Generation
	nextID      int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services: make(map[string]*Entry),
		nextID:   1,
	}
}

func (m *MemoryStore) idLocked() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *MemoryStore) entryLocked(name string) (*Entry, error) {
	e, ok := m.services[name]
	if !ok {
		return nil, fmt.Errorf("service %q: %w", name, ErrNotFound)
	}
	return e, nil
}

// CreateService implements Store.
func (m *MemoryStore) CreateService(svc Service) (Service, error) {
	if strings.TrimSpace(svc.Name) == "" {
		return Service{}, fmt.Errorf("service name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[svc.Name]; ok {
		return Service{}, fmt.Errorf("service %q: %w", svc.Name, ErrExists)
	}
	now := time.Now().UTC()
	svc.ID = m.idLocked()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	m.services[svc.Name] = &Entry{Service: svc}
	return svc, nil
}

// GetService implements Store.
func (m *MemoryStore) GetService(name string) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entryLocked(name)
	if err != nil {
		return Service{}, err
	}
	return e.Service, nil
}

// ListServices implements Store.
func (m *MemoryStore) ListServices() ([]Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	services := make([]Service, 0, len(m.services))
	for _, e := range m.services {
		services = append(services, e.Service)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// DeleteService implements Store.
func (m *MemoryStore) DeleteService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.entryLocked(name); err != nil {
		return err
	}
	delete(m.services, name)
	return nil
}

// AddMapping implements Store.
func (m *MemoryStore) AddMapping(service string, dm DocumentMapping) (DocumentMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entryLocked(service)
	if err != nil {
		return DocumentMapping{}, err
	}
	dm.ID = m.idLocked()
	dm.ServiceID = e.Service.ID
	dm.CreatedAt = time.Now().UTC()
	e.Docs = append(e.Docs, dm)
	return dm, nil
}

// GetMapping implements Store.
func (m *MemoryStore) GetMapping(service string) (ServiceMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entryLocked(service)
	if err != nil {
		return ServiceMapping{}, err
	}
	return NewServiceMapping(e.Service, e.Docs), nil
}

// Documents implements Store.
func (m *MemoryStore) Documents(service string) ([]DocumentMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entryLocked(service)
	if err != nil {
		return nil, err
	}
	return append([]DocumentMapping(nil), e.Docs...), nil
}

// AddFeature implements Store.
func (m *MemoryStore) AddFeature(service string, f Feature) (Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entryLocked(service)
	if err != nil {
		return Feature{}, err
	}
	f.ID = m.idLocked()
	f.ServiceID = e.Service.ID
	e.Features = append(e.Features, f)
	return f, nil
}

func (m *MemoryStore) snapshotLocked() []Entry {
	entries := make([]Entry, 0, len(m.services))
	for _, e := range m.services {
		entries = append(entries, *e)
	}
	return entries
}

// SearchServices implements Store.
func (m *MemoryStore) SearchServices(query string) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RankQuery(m.snapshotLocked(), query), nil
}

// SearchByFeature implements Store.
func (m *MemoryStore) SearchByFeature(feature string) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RankFeature(m.snapshotLocked(), feature), nil
}

// SearchByKeyword implements Store.
func (m *MemoryStore) SearchByKeyword(keyword string) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RankKeyword(m.snapshotLocked(), keyword), nil
}

// RecordGeneration implements Store.
func (m *MemoryStore) RecordGeneration(g Generation) (Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g.ID = m.idLocked()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	m.generations = append(m.generations, g)
	return g, nil
}

// Generations implements Store.
func (m *MemoryStore) Generations(service string) ([]Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Generation
	for i := len(m.generations) - 1; i >= 0; i-- {
		if m.generations[i].ServiceName == service {
			out = append(out, m.generations[i])
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}

// NewServiceMapping builds the public mapping view of svc.
func NewServiceMapping(svc Service, docs []DocumentMapping) ServiceMapping {
	sm := ServiceMapping{
		Name: svc.Name,
		Path: svc.Path,
		Docs: make([]DocumentLocation, 0, len(docs)),
	}
	for _, d := range docs {
		sm.Docs = append(sm.Docs, DocumentLocation{Type: d.DocType, Location: d.Location})
	}
	return sm
}
