package db

import (
	"errors"
	"testing"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

func testBundle(id string, version int64, contents ...string) *models.SessionBundle {
	s := models.NewSession(id, "Session "+id, "/tmp/work")
	s.SyncVersion = version
	b := &models.SessionBundle{Session: s}
	for _, c := range contents {
		b.Messages = append(b.Messages, models.NewMessage(id, models.RoleUser, c))
	}
	return b
}

func TestExportBundle(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "s1", "Exported")
	for _, text := range []string{"first", "second"} {
		if err := database.AddMessage(models.NewMessage("s1", models.RoleUser, text)); err != nil {
			t.Fatal(err)
		}
	}

	bundle, err := database.ExportBundle("s1")
	if err != nil {
		t.Fatalf("ExportBundle failed: %v", err)
	}
	if bundle.Session.ID != "s1" || len(bundle.Messages) != 2 {
		t.Errorf("bundle incomplete: session=%v messages=%d", bundle.Session.ID, len(bundle.Messages))
	}
	if err := bundle.Validate(); err != nil {
		t.Errorf("exported bundle invalid: %v", err)
	}
}

func TestApplyBundlesInsertsAndMarks(t *testing.T) {
	database := newTestDB(t)

	if err := database.ApplyBundles([]*models.SessionBundle{testBundle("remote1", 7, "hello from the other machine")}); err != nil {
		t.Fatalf("ApplyBundles failed: %v", err)
	}

	got, err := database.GetSession("remote1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.SyncStatus != models.SyncSynced {
		t.Errorf("applied session should be synced, got %s", got.SyncStatus)
	}
	if got.SyncVersion != 7 {
		t.Errorf("applied session should carry the remote version 7, got %d", got.SyncVersion)
	}
	if got.IndexedAt != 0 || got.IndexedMessageCount != 0 {
		t.Errorf("applied session should be flagged for reindex: %+v", got)
	}
	count, err := database.MessageCount("remote1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("MessageCount = %d, want 1", count)
	}
}

func TestApplyBundlesReplacesMessages(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "s1", "Local copy")
	if err := database.AddMessage(models.NewMessage("s1", models.RoleUser, "stale local message")); err != nil {
		t.Fatal(err)
	}

	if err := database.ApplyBundles([]*models.SessionBundle{testBundle("s1", 3, "remote one", "remote two")}); err != nil {
		t.Fatalf("ApplyBundles failed: %v", err)
	}

	msgs, err := database.GetMessages("s1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected message history replaced with 2 rows, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Content == "stale local message" {
			t.Error("stale local message survived the download")
		}
	}
}

func TestApplyBundlesRollsBackMidBatch(t *testing.T) {
	database := newTestDB(t)

	bad := testBundle("bad", 1)
	bad.Messages = append(bad.Messages, models.NewMessage("someone-else", models.RoleUser, "wrong session"))

	batch := []*models.SessionBundle{
		testBundle("ok1", 1, "fine"),
		bad,
		testBundle("ok2", 1, "also fine"),
	}

	err := database.ApplyBundles(batch)
	if !errors.Is(err, models.ErrBundleMixedSessions) {
		t.Fatalf("expected ErrBundleMixedSessions, got %v", err)
	}

	// All-or-nothing: the valid bundle before the bad one must not land.
	for _, id := range []string{"ok1", "bad", "ok2"} {
		if _, err := database.GetSession(id); !errors.Is(err, ErrUnknownSession) {
			t.Errorf("session %s persisted despite mid-batch failure", id)
		}
	}
}

func TestApplyBundlesEmptyBatch(t *testing.T) {
	database := newTestDB(t)
	if err := database.ApplyBundles(nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}
