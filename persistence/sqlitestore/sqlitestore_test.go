package sqlitestore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/ktme/persistence"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// Use in-memory database for testing
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seed(t *testing.T, s persistence.Store) {
	t.Helper()

	_, err := s.CreateService(persistence.Service{Name: "billing", Path: "services/billing", Description: "Invoices and payment capture"})
	require.NoError(t, err)
	_, err = s.CreateService(persistence.Service{Name: "auth-gateway", Path: "services/auth", Description: "Login and token issuance"})
	require.NoError(t, err)
	_, err = s.CreateService(persistence.Service{Name: "billing-reports", Description: "Monthly statements"})
	require.NoError(t, err)

	_, err = s.AddMapping("billing", persistence.DocumentMapping{DocType: "markdown", Location: "docs/billing.md"})
	require.NoError(t, err)
	_, err = s.AddFeature("auth-gateway", persistence.Feature{
		Name:        "oauth",
		Description: "OAuth2 login",
		Keywords:    []string{"sso", "token"},
		Relevance:   1.5,
	})
	require.NoError(t, err)
}

func TestSQLiteStoreServices(t *testing.T) {
	store := newStore(t)
	seed(t, store)

	svc, err := store.GetService("billing")
	require.NoError(t, err)
	assert.Greater(t, svc.ID, int64(0))
	assert.Equal(t, "services/billing", svc.Path)
	assert.False(t, svc.CreatedAt.IsZero())

	services, err := store.ListServices()
	require.NoError(t, err)
	require.Len(t, services, 3)
	assert.Equal(t, []string{"auth-gateway", "billing", "billing-reports"},
		[]string{services[0].Name, services[1].Name, services[2].Name})

	_, err = store.CreateService(persistence.Service{Name: "billing"})
	assert.True(t, errors.Is(err, persistence.ErrExists))

	_, err = store.GetService("missing")
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
	assert.Contains(t, err.Error(), `service "missing"`)
}

func TestSQLiteStoreMappings(t *testing.T) {
	store := newStore(t)
	seed(t, store)

	_, err := store.AddMapping("billing", persistence.DocumentMapping{DocType: "confluence", Location: "https://wiki/billing"})
	require.NoError(t, err)

	m, err := store.GetMapping("billing")
	require.NoError(t, err)
	assert.Equal(t, "billing", m.Name)
	assert.Equal(t, []persistence.DocumentLocation{
		{Type: "markdown", Location: "docs/billing.md"},
		{Type: "confluence", Location: "https://wiki/billing"},
	}, m.Docs)

	docs, err := store.Documents("billing")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "markdown", docs[0].DocType)

	m, err = store.GetMapping("billing-reports")
	require.NoError(t, err)
	assert.Empty(t, m.Docs)

	_, err = store.GetMapping("missing")
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestSQLiteStoreDeleteService(t *testing.T) {
	store := newStore(t)
	seed(t, store)

	require.NoError(t, store.DeleteService("billing"))

	_, err := store.GetService("billing")
	assert.True(t, errors.Is(err, persistence.ErrNotFound))

	results, err := store.SearchServices("docs/billing")
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.True(t, errors.Is(store.DeleteService("billing"), persistence.ErrNotFound))
}

func TestSQLiteStoreSearchMatchesMemoryStore(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	mem := persistence.NewMemoryStore()
	seed(t, mem)

	queries := []struct {
		name   string
		search func(persistence.Store) ([]persistence.SearchResult, error)
	}{
		{"services", func(s persistence.Store) ([]persistence.SearchResult, error) { return s.SearchServices("billing") }},
		{"feature", func(s persistence.Store) ([]persistence.SearchResult, error) { return s.SearchByFeature("sso") }},
		{"keyword", func(s persistence.Store) ([]persistence.SearchResult, error) { return s.SearchByKeyword("login payment") }},
		{"no match", func(s persistence.Store) ([]persistence.SearchResult, error) { return s.SearchServices("zebra") }},
		{"like wildcard", func(s persistence.Store) ([]persistence.SearchResult, error) { return s.SearchServices("%") }},
	}

	for _, q := range queries {
		t.Run(q.name, func(t *testing.T) {
			got, err := q.search(store)
			require.NoError(t, err)
			want, err := q.search(mem)
			require.NoError(t, err)

			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Service.Name, got[i].Service.Name)
				assert.Equal(t, want[i].Score, got[i].Score)
				assert.Equal(t, want[i].MatchedFeatures, got[i].MatchedFeatures)
				assert.Len(t, got[i].Documents, len(want[i].Documents))
			}
		})
	}
}

func TestSQLiteStoreGenerations(t *testing.T) {
	store := newStore(t)

	_, err := store.RecordGeneration(persistence.Generation{ServiceName: "billing", Source: "HEAD", Format: "markdown", Provider: "basic"})
	require.NoError(t, err)
	_, err = store.RecordGeneration(persistence.Generation{ServiceName: "billing", Source: "staged", Format: "json", Provider: "claude", Location: "docs/billing.md"})
	require.NoError(t, err)

	gens, err := store.Generations("billing")
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, "staged", gens[0].Source)
	assert.Equal(t, "docs/billing.md", gens[0].Location)
	assert.Equal(t, "HEAD", gens[1].Source)

	gens, err = store.Generations("auth")
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestSQLiteStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ktme.db")

	store, err := New(path)
	require.NoError(t, err)
	seed(t, store)
	require.NoError(t, store.Close())

	store, err = New(path)
	require.NoError(t, err)
	defer store.Close()

	services, err := store.ListServices()
	require.NoError(t, err)
	assert.Len(t, services, 3)

	results, err := store.SearchByFeature("token")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "auth-gateway", results[0].Service.Name)
	assert.Equal(t, []string{"oauth"}, results[0].MatchedFeatures)
}
