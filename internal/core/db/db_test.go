package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"), 4, opts...)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func mustCreate(t *testing.T, database *DB, id, title string) *models.Session {
	t.Helper()
	s := models.NewSession(id, title, "/home/dev/project")
	if err := database.CreateSession(s); err != nil {
		t.Fatalf("creating session %s: %v", id, err)
	}
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	database := newTestDB(t)
	s := mustCreate(t, database, "s1", "Debugging the parser")

	got, err := database.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != s.Title || got.WorkDir != s.WorkDir {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.SyncStatus != models.SyncLocal {
		t.Errorf("new session should be local, got %s", got.SyncStatus)
	}
	if got.SyncVersion != 1 {
		t.Errorf("new session should have version 1, got %d", got.SyncVersion)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "dup", "First")

	err := database.CreateSession(models.NewSession("dup", "Second", ""))
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	// The original must be untouched.
	got, err := database.GetSession("dup")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "First" {
		t.Errorf("original session was overwritten: %q", got.Title)
	}
}

func TestGetUnknownSession(t *testing.T) {
	database := newTestDB(t)
	if _, err := database.GetSession("ghost"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestUpdateSessionBumpsVersion(t *testing.T) {
	database := newTestDB(t)
	s := mustCreate(t, database, "s1", "Original")
	if err := database.SetSyncState("s1", models.SyncSynced, 0); err != nil {
		t.Fatalf("SetSyncState failed: %v", err)
	}

	s.Title = "Renamed"
	if err := database.UpdateSession(s); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := database.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "Renamed" {
		t.Errorf("title not updated: %q", got.Title)
	}
	if got.SyncVersion != 2 {
		t.Errorf("content write should bump sync_version to 2, got %d", got.SyncVersion)
	}
	if got.SyncStatus != models.SyncLocal {
		t.Errorf("content write should reset status to local, got %s", got.SyncStatus)
	}
}

func TestAddMessageUpdatesSessionAtomically(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "s1", "Chat")

	m1 := models.NewMessage("s1", models.RoleUser, "how do I profile a goroutine leak?")
	m2 := models.NewMessage("s1", models.RoleAssistant, "Start with the pprof goroutine endpoint.")
	m2.Timestamp = m1.Timestamp + 5
	for _, m := range []*models.Message{m1, m2} {
		if err := database.AddMessage(m); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	got, err := database.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	wantTokens := m1.TokenCount + m2.TokenCount
	if got.TokenCount != wantTokens {
		t.Errorf("token_count = %d, want %d", got.TokenCount, wantTokens)
	}
	if got.UpdatedAt != m2.Timestamp {
		t.Errorf("updated_at = %d, want message timestamp %d", got.UpdatedAt, m2.Timestamp)
	}
	if got.SyncVersion != 3 {
		t.Errorf("two message writes should leave version 3, got %d", got.SyncVersion)
	}

	count, err := database.MessageCount("s1")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("MessageCount = %d, want 2", count)
	}
}

func TestAddMessageUnknownSession(t *testing.T) {
	database := newTestDB(t)
	m := models.NewMessage("nope", models.RoleUser, "hello?")
	if err := database.AddMessage(m); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
	// The failed write must not leave a dangling row.
	count, err := database.MessageCount("nope")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("orphan message persisted after rejected write")
	}
}

func TestRecentMessagesOrder(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "s1", "Chat")

	base := int64(1700000000)
	for i := 0; i < 5; i++ {
		m := models.NewMessage("s1", models.RoleUser, "message body")
		m.Timestamp = base + int64(i)
		if err := database.AddMessage(m); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	recent, err := database.RecentMessages("s1", 3)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(recent))
	}
	// Last three, in chronological order.
	for i, m := range recent {
		want := base + int64(2+i)
		if m.Timestamp != want {
			t.Errorf("recent[%d].Timestamp = %d, want %d", i, m.Timestamp, want)
		}
	}
}

func TestDeleteSessionLeavesNoOrphans(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "s1", "Doomed")
	if err := database.AddMessage(models.NewMessage("s1", models.RoleUser, "text")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := database.UpdateEmbedding("s1", []float32{1, 0, 0, 0}, "mock"); err != nil {
		t.Fatalf("UpdateEmbedding failed: %v", err)
	}

	if err := database.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, err := database.GetSession("s1"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("session still present after delete")
	}
	count, err := database.MessageCount("s1")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("%d orphan messages after delete", count)
	}
	if database.HasEmbedding("s1") {
		t.Error("orphan vector after delete")
	}
	// The FTS projection must drop the row too.
	hits, err := database.SearchByKeywords("Doomed", 10)
	if err != nil {
		t.Fatalf("SearchByKeywords failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted session still matches lexical search")
	}
	if err := database.DeleteSession("s1"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("double delete should report unknown session, got %v", err)
	}
}

func TestMarkIndexedPreservesRecency(t *testing.T) {
	database := newTestDB(t)
	s := mustCreate(t, database, "s1", "Chat")
	before, err := database.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	err = database.MarkIndexed("s1", "A summary.", []string{"goroutine", "leak"}, s.TokenCount, 4, before.UpdatedAt+3600)
	if err != nil {
		t.Fatalf("MarkIndexed failed: %v", err)
	}

	got, err := database.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Summary != "A summary." {
		t.Errorf("summary not stored: %q", got.Summary)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "goroutine" {
		t.Errorf("keywords not stored: %v", got.Keywords)
	}
	if got.IndexedMessageCount != 4 {
		t.Errorf("indexed_message_count = %d, want 4", got.IndexedMessageCount)
	}
	if got.UpdatedAt != before.UpdatedAt {
		t.Errorf("indexing must not change updated_at: %d != %d", got.UpdatedAt, before.UpdatedAt)
	}
	if got.SyncVersion != before.SyncVersion+1 {
		t.Errorf("indexing should bump sync_version: %d", got.SyncVersion)
	}
}

func TestListSessionsFilters(t *testing.T) {
	database := newTestDB(t)
	a := mustCreate(t, database, "a", "Alpha")
	b := mustCreate(t, database, "b", "Beta")
	mustCreate(t, database, "c", "Gamma")

	a.UpdatedAt = 1000
	b.UpdatedAt = 2000
	if err := database.UpdateSession(a); err != nil {
		t.Fatal(err)
	}
	if err := database.UpdateSession(b); err != nil {
		t.Fatal(err)
	}
	if err := database.SetArchived("c", true); err != nil {
		t.Fatal(err)
	}

	archived := false
	active, err := database.ListSessions(ListOptions{Archived: &archived})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}
	if active[0].ID != "b" || active[1].ID != "a" {
		t.Errorf("expected reverse chronological order, got %s, %s", active[0].ID, active[1].ID)
	}

	since, err := database.ListSessions(ListOptions{UpdatedSince: 1500, Archived: &archived})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(since) != 1 || since[0].ID != "b" {
		t.Errorf("UpdatedSince filter wrong: %v", since)
	}
}

func TestPendingSyncSessions(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "local", "Local")
	mustCreate(t, database, "done", "Done")
	mustCreate(t, database, "failed", "Failed")
	if err := database.SetSyncState("done", models.SyncSynced, 0); err != nil {
		t.Fatal(err)
	}
	if err := database.SetSyncState("failed", models.SyncError, 0); err != nil {
		t.Fatal(err)
	}

	pending, err := database.PendingSyncSessions(10)
	if err != nil {
		t.Fatalf("PendingSyncSessions failed: %v", err)
	}
	ids := map[string]bool{}
	for _, s := range pending {
		ids[s.ID] = true
	}
	if len(pending) != 2 || !ids["local"] || !ids["failed"] {
		t.Errorf("expected local+failed pending, got %v", ids)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	database := newTestDB(t)
	if v, err := database.GetMeta("missing"); err != nil || v != "" {
		t.Errorf("missing key should be empty, got %q, %v", v, err)
	}
	if err := database.SetMeta("last_sync", "12345"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := database.SetMeta("last_sync", "67890"); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}
	if v, _ := database.GetMeta("last_sync"); v != "67890" {
		t.Errorf("GetMeta = %q, want 67890", v)
	}
}

func TestGetStats(t *testing.T) {
	database := newTestDB(t)
	mustCreate(t, database, "s1", "One")
	mustCreate(t, database, "s2", "Two")
	if err := database.SetArchived("s2", true); err != nil {
		t.Fatal(err)
	}
	if err := database.AddMessage(models.NewMessage("s1", models.RoleUser, "some content here")); err != nil {
		t.Fatal(err)
	}
	if err := database.UpdateEmbedding("s1", []float32{1, 0, 0, 0}, "mock"); err != nil {
		t.Fatal(err)
	}

	stats, err := database.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalSessions != 2 || stats.ArchivedSessions != 1 {
		t.Errorf("session counts wrong: %+v", stats)
	}
	if stats.TotalMessages != 1 {
		t.Errorf("TotalMessages = %d, want 1", stats.TotalMessages)
	}
	if stats.IndexedVectors != 1 {
		t.Errorf("IndexedVectors = %d, want 1", stats.IndexedVectors)
	}
	if stats.StorageBytes <= 0 {
		t.Errorf("StorageBytes = %d, want > 0", stats.StorageBytes)
	}
}

func TestSyncLog(t *testing.T) {
	database := newTestDB(t)
	entries := []*models.SyncLogEntry{
		{Type: models.SyncLogUpload, SessionID: "s1", Status: "success", Timestamp: 100},
		{Type: models.SyncLogUpload, SessionID: "s2", Status: "failed", Error: "timeout", Timestamp: 200},
		{Type: models.SyncLogDownload, SessionID: "s3", Status: "success", Timestamp: 300},
	}
	for _, e := range entries {
		if err := database.AppendSyncLog(e); err != nil {
			t.Fatalf("AppendSyncLog failed: %v", err)
		}
	}

	uploads, err := database.SyncLog(models.SyncLogUpload, 10)
	if err != nil {
		t.Fatalf("SyncLog failed: %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 upload entries, got %d", len(uploads))
	}
	if uploads[0].SessionID != "s2" {
		t.Errorf("expected newest first, got %s", uploads[0].SessionID)
	}
	if uploads[0].Error != "timeout" {
		t.Errorf("error text not stored: %q", uploads[0].Error)
	}
}
