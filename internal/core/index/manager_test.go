package index

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/embedding"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "index.db"), 8)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSession(t *testing.T, store *db.DB, id string, contents ...string) {
	t.Helper()
	if err := store.CreateSession(models.NewSession(id, "Session "+id, "/work")); err != nil {
		t.Fatal(err)
	}
	for _, c := range contents {
		if err := store.AddMessage(models.NewMessage(id, models.RoleUser, c)); err != nil {
			t.Fatal(err)
		}
	}
}

func defaultManager(store *db.DB, provider embedding.Provider) *Manager {
	m := NewManager(store, provider, config.Default().Index, config.PrivacyConfig{})
	m.retryDelay = time.Millisecond
	return m
}

// flakyProvider fails transiently a set number of times before succeeding.
type flakyProvider struct {
	*embedding.Mock
	failures int32
}

func (f *flakyProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, embedding.ErrUnavailable
	}
	return f.Mock.Embed(ctx, text)
}

func TestNeedsIndex(t *testing.T) {
	m := defaultManager(nil, nil)
	now := time.Now()

	fresh := &models.Session{UpdatedAt: now.Unix(), IndexedMessageCount: 0}
	if m.NeedsIndex(fresh, 0, now) {
		t.Error("empty session should never need indexing")
	}
	if m.NeedsIndex(fresh, 3, now) {
		t.Error("3 new messages is under the threshold of 5")
	}
	if !m.NeedsIndex(fresh, 5, now) {
		t.Error("5 new messages should trigger indexing")
	}

	idle := &models.Session{UpdatedAt: now.Add(-11 * time.Minute).Unix(), IndexedMessageCount: 2}
	if !m.NeedsIndex(idle, 3, now) {
		t.Error("one unindexed message past the idle window should trigger")
	}

	caughtUp := &models.Session{UpdatedAt: now.Add(-time.Hour).Unix(), IndexedMessageCount: 3}
	if m.NeedsIndex(caughtUp, 3, now) {
		t.Error("fully indexed session should not retrigger however idle")
	}
}

func TestIndexSessionPipeline(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "s1",
		"My kubernetes deployment keeps crashlooping after the helm upgrade",
		"The kubernetes pod logs show an OOMKilled status every restart",
	)
	m := defaultManager(store, embedding.NewMock(8))

	if err := m.IndexSession(context.Background(), "s1"); err != nil {
		t.Fatalf("IndexSession failed: %v", err)
	}

	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary == "" {
		t.Error("summary not derived")
	}
	if got.IndexedMessageCount != 2 {
		t.Errorf("indexed_message_count = %d, want 2", got.IndexedMessageCount)
	}
	if got.IndexedAt == 0 {
		t.Error("indexed_at not set")
	}
	hasKubernetes := false
	for _, kw := range got.Keywords {
		if kw == "kubernetes" {
			hasKubernetes = true
		}
	}
	if !hasKubernetes {
		t.Errorf("repeated term missing from keywords: %v", got.Keywords)
	}
	if !store.HasEmbedding("s1") {
		t.Error("embedding not stored")
	}
}

func TestIndexSessionIdempotent(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "s1", "talk about caching strategies")
	m := defaultManager(store, embedding.NewMock(8))

	ctx := context.Background()
	if err := m.IndexSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	first, err := store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.IndexSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	second, err := store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Keywords, second.Keywords) || first.Summary != second.Summary {
		t.Errorf("reindex changed derived fields: %v vs %v", first, second)
	}
	if store.VectorCount() != 1 {
		t.Errorf("reindex duplicated the vector row: count=%d", store.VectorCount())
	}
}

func TestIndexSessionPartialSuccess(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "s1", "postgres connection pooling questions")

	// Provider that never recovers.
	m := defaultManager(store, &flakyProvider{Mock: embedding.NewMock(8), failures: 100})

	err := m.IndexSession(context.Background(), "s1")
	if !errors.Is(err, embedding.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// Lexical projection must have landed despite the failed embed.
	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Keywords) == 0 || got.IndexedMessageCount != 1 {
		t.Errorf("lexical projection missing after embed failure: %+v", got)
	}
	if store.HasEmbedding("s1") {
		t.Error("no vector should be stored after embed failure")
	}

	hits, err := store.SearchByKeywords("postgres", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Error("session not keyword-searchable after partial success")
	}
}

func TestEmbedRetryRecovers(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "s1", "transient failures should heal")

	// Two transient failures, then success: within the 3-attempt budget.
	m := defaultManager(store, &flakyProvider{Mock: embedding.NewMock(8), failures: 2})

	if err := m.IndexSession(context.Background(), "s1"); err != nil {
		t.Fatalf("expected recovery within retry budget, got %v", err)
	}
	if !store.HasEmbedding("s1") {
		t.Error("embedding missing after recovered retries")
	}
}

func TestPrivacyExclusion(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "s1",
		"general chat about deployment pipelines",
		"my apikey is swordfish-12345 please remember it",
	)
	m := NewManager(store, embedding.NewMock(8), config.Default().Index, config.PrivacyConfig{
		ExcludeKeywords: []string{"apikey"},
	})
	m.retryDelay = time.Millisecond

	if err := m.IndexSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	for _, kw := range got.Keywords {
		if kw == "swordfish-12345" || kw == "apikey" {
			t.Errorf("excluded content leaked into keywords: %v", got.Keywords)
		}
	}
	if strings.Contains(strings.ToLower(got.Summary), "swordfish") {
		t.Errorf("excluded content leaked into summary: %q", got.Summary)
	}
	// Both messages still count toward the index bookkeeping.
	if got.IndexedMessageCount != 2 {
		t.Errorf("indexed_message_count = %d, want 2", got.IndexedMessageCount)
	}
}

func TestBatchIndex(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "stale", "needs an index pass")
	seedSession(t, store, "empty")
	m := defaultManager(store, embedding.NewMock(8))

	ctx := context.Background()
	n, err := m.BatchIndex(ctx)
	if err != nil {
		t.Fatalf("BatchIndex failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 session indexed, got %d", n)
	}

	// Second run finds nothing stale.
	n, err = m.BatchIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second batch should be a no-op, indexed %d", n)
	}
}
