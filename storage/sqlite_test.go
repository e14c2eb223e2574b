package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"immojagd/models"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCursorRoundTrip(t *testing.T) {
	store := testSQLiteStore(t)

	got, err := store.GetCursor("cursor:willhaben:wohnung-kauf-wien", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "" {
		t.Fatalf("missing cursor returned %q", got)
	}

	if err := store.SetCursor("cursor:willhaben:wohnung-kauf-wien", "123456789"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetCursor("cursor:willhaben:wohnung-kauf-wien", "987654321"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err = store.GetCursor("cursor:willhaben:wohnung-kauf-wien", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "987654321" {
		t.Fatalf("cursor = %q, want 987654321", got)
	}
}

func TestNextCycleNumberIsMonotonic(t *testing.T) {
	store := testSQLiteStore(t)

	for want := 1; want <= 3; want++ {
		n, err := store.NextCycleNumber()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if n != want {
			t.Fatalf("cycle number = %d, want %d", n, want)
		}
	}
}

func TestCycleLifecycle(t *testing.T) {
	store := testSQLiteStore(t)

	cycle := &models.ScrapeCycle{
		Number:    1,
		Kind:      models.CycleFullScrape,
		StartedAt: time.Now(),
		Status:    models.CycleStatusRunning,
	}
	id, err := store.CreateCycle(cycle)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cycle.ID = id

	now := time.Now()
	cycle.FinishedAt = &now
	cycle.Status = models.CycleStatusCompleted
	cycle.ListingsSeen = 42
	cycle.ListingsNew = 7
	cycle.ListingsChanged = 3
	cycle.GeoBlocked = 5
	cycle.Rejected = 11
	if err := store.UpdateCycle(cycle); err != nil {
		t.Fatalf("update: %v", err)
	}

	cycles, err := store.GetRecentCycles(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	got := cycles[0]
	if got.Status != models.CycleStatusCompleted || got.ListingsSeen != 42 || got.ListingsNew != 7 ||
		got.GeoBlocked != 5 || got.Rejected != 11 {
		t.Fatalf("cycle = %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatalf("finished_at not persisted")
	}
}

func TestCommandQueue(t *testing.T) {
	store := testSQLiteStore(t)

	params, _ := json.Marshal(models.CommandParams{Platform: "willhaben", MaxPages: 3})
	if err := store.EnqueueCommand(models.CmdScrapePlatform, params); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.EnqueueCommand(models.CmdPause, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 pending commands, got %d", len(cmds))
	}
	if cmds[0].Command != models.CmdScrapePlatform {
		t.Fatalf("first command = %s", cmds[0].Command)
	}

	var p models.CommandParams
	if err := json.Unmarshal(cmds[0].Params, &p); err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.Platform != "willhaben" || p.MaxPages != 3 {
		t.Fatalf("params = %+v", p)
	}

	if err := store.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	cmds, err = store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != models.CmdPause {
		t.Fatalf("pending after mark = %v", cmds)
	}
}

func TestScrapeLogRows(t *testing.T) {
	store := testSQLiteStore(t)

	cycleID := int64(1)
	if err := store.Log(&cycleID, models.LogLevelInfo, "Cycle 1 started", "willhaben"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := store.Log(nil, models.LogLevelWarn, "rate limited", "bazar"); err != nil {
		t.Fatalf("log without cycle: %v", err)
	}
}
