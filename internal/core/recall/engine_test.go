package recall

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/db"
	"github.com/mnemo-cli/mnemo/internal/core/embedding"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "recall.db"), 8)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testConfig() config.RecallConfig {
	cfg := config.Default().Recall
	cfg.MinScore = 0.1
	cfg.DecayRate = 0
	return cfg
}

// downProvider simulates an unreachable embedding backend.
type downProvider struct{}

func (downProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrUnavailable
}
func (downProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrUnavailable
}
func (downProvider) Dimensions() int   { return 8 }
func (downProvider) ModelName() string { return "down" }

func candidate(id string, updatedAt int64, vec, kw float64) models.Candidate {
	return models.Candidate{
		Session:      &models.Session{ID: id, UpdatedAt: updatedAt},
		VectorScore:  vec,
		KeywordScore: kw,
	}
}

func TestWeightedMerge(t *testing.T) {
	e := NewEngine(nil, nil, testConfig())

	// 0.6*0.9 + 0.4*0.1 = 0.58 beats 0.6*0.2 + 0.4*0.9 = 0.48: strong
	// semantic similarity outranks strong keyword overlap at default
	// weights.
	results := e.rank([]models.Candidate{
		candidate("keyword-heavy", 1000, 0.2, 0.9),
		candidate("vector-heavy", 1000, 0.9, 0.1),
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Session.ID != "vector-heavy" {
		t.Errorf("wrong winner: %s", results[0].Session.ID)
	}
	if math.Abs(results[0].CombinedScore-0.58) > 1e-9 {
		t.Errorf("combined = %f, want 0.58", results[0].CombinedScore)
	}
	if math.Abs(results[1].CombinedScore-0.48) > 1e-9 {
		t.Errorf("combined = %f, want 0.48", results[1].CombinedScore)
	}
}

func TestMinScoreFloor(t *testing.T) {
	cfg := testConfig()
	cfg.MinScore = 0.5
	e := NewEngine(nil, nil, cfg)

	results := e.rank([]models.Candidate{
		candidate("strong", 0, 0.9, 0.9), // 0.9
		candidate("weak", 0, 0.3, 0.3),   // 0.3, below floor
	})
	if len(results) != 1 || results[0].Session.ID != "strong" {
		t.Errorf("floor not applied: %v", results)
	}

	// Nothing above the floor is a valid, empty answer.
	none := e.rank([]models.Candidate{candidate("weak", 0, 0.1, 0.1)})
	if len(none) != 0 {
		t.Errorf("expected empty result below floor, got %v", none)
	}
}

func TestRecencyDecay(t *testing.T) {
	cfg := testConfig()
	cfg.DecayRate = 0.01
	e := NewEngine(nil, nil, cfg)

	now := time.Unix(1700000000, 0)
	e.now = func() time.Time { return now }

	fresh := candidate("fresh", now.Unix(), 0.8, 0.8)
	stale := candidate("stale", now.Add(-100*24*time.Hour).Unix(), 0.8, 0.8)

	results := e.rank([]models.Candidate{stale, fresh})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Session.ID != "fresh" {
		t.Errorf("decay should favor the recent session, got %s first", results[0].Session.ID)
	}
	wantStale := 0.8 * math.Exp(-0.01*100)
	if math.Abs(results[1].CombinedScore-wantStale) > 1e-6 {
		t.Errorf("stale score = %f, want %f", results[1].CombinedScore, wantStale)
	}
}

func TestDeterministicOrder(t *testing.T) {
	e := NewEngine(nil, nil, testConfig())

	// Identical combined scores: newer first, then id ascending.
	results := e.rank([]models.Candidate{
		candidate("bbb", 1000, 0.5, 0.5),
		candidate("aaa", 1000, 0.5, 0.5),
		candidate("old", 500, 0.5, 0.5),
	})
	got := []string{results[0].Session.ID, results[1].Session.ID, results[2].Session.ID}
	want := []string{"aaa", "bbb", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRecallEndToEnd(t *testing.T) {
	store := newTestStore(t)
	provider := embedding.NewMock(8)
	ctx := context.Background()

	// Two indexed past sessions and the active one.
	for _, tc := range []struct {
		id, title, content string
	}{
		{"past1", "Migrating to pgx", "we migrated the billing service to pgx connection pools"},
		{"past2", "Frontend build", "vite build output was missing sourcemaps"},
		{"active", "Current work", "more pgx pool questions"},
	} {
		if err := store.CreateSession(models.NewSession(tc.id, tc.title, "/w")); err != nil {
			t.Fatal(err)
		}
		if err := store.AddMessage(models.NewMessage(tc.id, models.RoleUser, tc.content)); err != nil {
			t.Fatal(err)
		}
		if err := store.MarkIndexed(tc.id, tc.content, []string{"placeholder"}, 10, 1, 1000); err != nil {
			t.Fatal(err)
		}
		vec, err := provider.Embed(ctx, tc.content)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.UpdateEmbedding(tc.id, vec, provider.ModelName()); err != nil {
			t.Fatal(err)
		}
	}

	e := NewEngine(store, provider, testConfig())
	results, err := e.Recall(ctx, Request{
		Query:     "we migrated the billing service to pgx connection pools",
		SessionID: "active",
	})
	if err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Session.ID != "past1" {
		t.Errorf("best match should be past1, got %s", results[0].Session.ID)
	}
	for _, r := range results {
		if r.Session.ID == "active" {
			t.Error("active session leaked into results")
		}
		if len(r.ContextMessages) == 0 {
			t.Errorf("result %s missing context messages", r.Session.ID)
		}
	}
}

func TestRecallLexicalOnlyWhenProviderDown(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateSession(models.NewSession("s1", "Grafana dashboards", "/w")); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkIndexed("s1", "building grafana dashboards for latency", []string{"grafana", "latency"}, 0, 1, 1000); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(store, downProvider{}, testConfig())
	results, err := e.Recall(context.Background(), Request{Query: "grafana"})
	if err != nil {
		t.Fatalf("Recall should degrade to lexical, got %v", err)
	}
	if len(results) != 1 || results[0].KeywordScore <= 0 {
		t.Errorf("lexical degradation failed: %v", results)
	}
	if results[0].VectorScore != 0 {
		t.Errorf("no vector score expected with provider down: %v", results[0])
	}
}

func TestRecallQueryFromActiveContext(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"active", "past"} {
		if err := store.CreateSession(models.NewSession(id, "Session "+id, "/w")); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AddMessage(models.NewMessage("active", models.RoleUser, "how did we fix the terraform drift last month")); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkIndexed("past", "terraform drift fixed by importing state", []string{"terraform", "drift"}, 0, 1, 1000); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(store, nil, testConfig())
	results, err := e.Recall(context.Background(), Request{SessionID: "active"})
	if err != nil {
		t.Fatalf("Recall from context failed: %v", err)
	}
	if len(results) != 1 || results[0].Session.ID != "past" {
		t.Errorf("derived-query recall wrong: %v", results)
	}
}

func TestRecallUnavailable(t *testing.T) {
	store := newTestStore(t)
	e := NewEngine(store, nil, testConfig())

	if _, err := e.Recall(context.Background(), Request{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable with no query and no session, got %v", err)
	}
}

func TestRecallLimit(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateSession(models.NewSession(id, "Caching "+id, "/w")); err != nil {
			t.Fatal(err)
		}
		if err := store.MarkIndexed(id, "caching strategies", []string{"caching"}, 0, 1, 1000); err != nil {
			t.Fatal(err)
		}
	}

	e := NewEngine(store, nil, testConfig())
	results, err := e.Recall(context.Background(), Request{Query: "caching", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("limit not applied: got %d results", len(results))
	}
}
