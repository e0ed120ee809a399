package history

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "kathak-history-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	return New(filepath.Join(tmpDir, "history.json"))
}

func TestStore_RecordAndGet(t *testing.T) {
	s := tempStore(t)

	err := s.Record(Usage{
		Type:       KindApp,
		Name:       "Firefox",
		SearchTerm: "fire",
		EntryPoint: "/usr/bin/firefox",
		Icon:       "firefox",
	})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	item, err := s.Get(KindApp, "Firefox")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if item.Count != 1 {
		t.Errorf("Count = %v, want 1", item.Count)
	}
	if item.LastUsed.IsZero() {
		t.Error("LastUsed not set")
	}
	if !reflect.DeepEqual(item.RecentSearchTerms, []string{"fire"}) {
		t.Errorf("RecentSearchTerms = %v, want [fire]", item.RecentSearchTerms)
	}
	if item.EntryPoint != "/usr/bin/firefox" {
		t.Errorf("EntryPoint = %q, want /usr/bin/firefox", item.EntryPoint)
	}
}

func TestStore_RecordIncrements(t *testing.T) {
	s := tempStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Record(Usage{Type: KindApp, Name: "Terminal"}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	item, err := s.Get(KindApp, "Terminal")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item.Count != 3 {
		t.Errorf("Count = %v, want 3", item.Count)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := tempStore(t)

	if _, err := s.Get(KindApp, "Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_SearchTermRing(t *testing.T) {
	s := tempStore(t)

	for _, term := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := s.Record(Usage{Type: KindApp, Name: "Files", SearchTerm: term}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	item, _ := s.Get(KindApp, "Files")
	want := []string{"f", "e", "d", "c", "b"}
	if !reflect.DeepEqual(item.RecentSearchTerms, want) {
		t.Errorf("RecentSearchTerms = %v, want %v", item.RecentSearchTerms, want)
	}

	// A repeated term moves to the front without duplicating, even when the
	// case differs.
	if err := s.Record(Usage{Type: KindApp, Name: "Files", SearchTerm: "D"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	item, _ = s.Get(KindApp, "Files")
	want = []string{"D", "f", "e", "c", "b"}
	if !reflect.DeepEqual(item.RecentSearchTerms, want) {
		t.Errorf("RecentSearchTerms = %v, want %v", item.RecentSearchTerms, want)
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "kathak-history-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	path := filepath.Join(tmpDir, "history.json")

	s := New(path)
	if err := s.Record(Usage{Type: KindApp, Name: "Firefox", SearchTerm: "fox"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := s.Record(Usage{Type: KindWebSearch, Name: "rust lifetimes"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	reloaded := New(path)
	item, err := reloaded.Get(KindApp, "Firefox")
	if err != nil {
		t.Fatalf("Get() after reload failed: %v", err)
	}
	if item.Count != 1 || len(item.RecentSearchTerms) != 1 {
		t.Errorf("reloaded item = %+v, want count 1 with one term", item)
	}
	if got := len(reloaded.List()); got != 2 {
		t.Errorf("List() after reload = %d items, want 2", got)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := New(filepath.Join(os.TempDir(), "kathak-does-not-exist", "history.json"))
	if got := len(s.List()); got != 0 {
		t.Errorf("List() = %d items, want 0 for missing file", got)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "kathak-history-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "history.json")
	if err := os.WriteFile(path, []byte("{{{{"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	s := New(path)
	if got := len(s.List()); got != 0 {
		t.Errorf("List() = %d items, want 0 for corrupt file", got)
	}

	// The store must recover: a record overwrites the corrupt file.
	if err := s.Record(Usage{Type: KindApp, Name: "Fresh"}); err != nil {
		t.Fatalf("Record() after corrupt load failed: %v", err)
	}
	if got := len(New(path).List()); got != 1 {
		t.Errorf("List() after recovery = %d items, want 1", got)
	}
}

func TestStore_Remove(t *testing.T) {
	s := tempStore(t)

	if err := s.Record(Usage{Type: KindApp, Name: "Gimp"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := s.Remove(KindApp, "Gimp"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, err := s.Get(KindApp, "Gimp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}

	if err := s.Remove(KindApp, "Gimp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() of absent item error = %v, want ErrNotFound", err)
	}
}

func TestStore_Rename(t *testing.T) {
	s := tempStore(t)

	if err := s.Record(Usage{Type: KindApp, Name: "Code - OSS"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := s.Rename(KindApp, "Code - OSS", "VS Code"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	if _, err := s.Get(KindApp, "Code - OSS"); !errors.Is(err, ErrNotFound) {
		t.Error("old name still resolves after Rename()")
	}
	item, err := s.Get(KindApp, "VS Code")
	if err != nil {
		t.Fatalf("Get() of renamed item failed: %v", err)
	}
	if item.Count != 1 {
		t.Errorf("Count = %v, want 1", item.Count)
	}

	if err := s.Rename(KindApp, "Missing", "Whatever"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename() of absent item error = %v, want ErrNotFound", err)
	}
}

func TestStore_RenameMergesCollision(t *testing.T) {
	s := tempStore(t)

	if err := s.Record(Usage{Type: KindApp, Name: "firefox-esr"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := s.Record(Usage{Type: KindApp, Name: "Firefox"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := s.Record(Usage{Type: KindApp, Name: "Firefox"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	if err := s.Rename(KindApp, "firefox-esr", "Firefox"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	item, err := s.Get(KindApp, "Firefox")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item.Count != 3 {
		t.Errorf("merged Count = %v, want 3", item.Count)
	}
	if _, err := s.Get(KindApp, "firefox-esr"); !errors.Is(err, ErrNotFound) {
		t.Error("source item survived the merge")
	}
}

func TestStore_CompositeKey(t *testing.T) {
	s := tempStore(t)

	err := s.Record(Usage{
		Type:     KindWorkflowExecution,
		Name:     "Dim lights",
		Key:      "home-assistant/dim-lights",
		PluginID: "home-assistant",
	})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	item, err := s.Get(KindWorkflowExecution, "home-assistant/dim-lights")
	if err != nil {
		t.Fatalf("Get() by composite key failed: %v", err)
	}
	if item.Name != "Dim lights" || item.PluginID != "home-assistant" {
		t.Errorf("item = %+v, want workflow execution payload", item)
	}
}

func TestStore_ContextCounters(t *testing.T) {
	s := tempStore(t)
	s.now = func() time.Time {
		return time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC) // a Wednesday
	}

	err := s.Record(Usage{
		Type: KindApp,
		Name: "Slack",
		Context: &Context{
			Workspace:    "2",
			Monitor:      "DP-1",
			PreviousApp:  "Firefox",
			RunningApps:  []string{"Firefox", "Terminal"},
			SessionStart: true,
		},
	})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	item, _ := s.Get(KindApp, "Slack")
	if item.HourCounts["14"] != 1 {
		t.Errorf("HourCounts[14] = %v, want 1", item.HourCounts["14"])
	}
	if item.WeekdayCounts["3"] != 1 {
		t.Errorf("WeekdayCounts[3] = %v, want 1", item.WeekdayCounts["3"])
	}
	if item.WorkspaceCounts["2"] != 1 {
		t.Errorf("WorkspaceCounts[2] = %v, want 1", item.WorkspaceCounts["2"])
	}
	if item.MonitorCounts["DP-1"] != 1 {
		t.Errorf("MonitorCounts[DP-1] = %v, want 1", item.MonitorCounts["DP-1"])
	}
	if item.AfterAppCounts["Firefox"] != 1 {
		t.Errorf("AfterAppCounts[Firefox] = %v, want 1", item.AfterAppCounts["Firefox"])
	}
	if item.CoRunningCounts["Terminal"] != 1 {
		t.Errorf("CoRunningCounts[Terminal] = %v, want 1", item.CoRunningCounts["Terminal"])
	}
	if item.SessionStartCount != 1 {
		t.Errorf("SessionStartCount = %v, want 1", item.SessionStartCount)
	}
	if item.StreakDays != 1 {
		t.Errorf("StreakDays = %d, want 1", item.StreakDays)
	}
}

func TestStore_StreakProgression(t *testing.T) {
	s := tempStore(t)

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day }

	record := func() {
		t.Helper()
		if err := s.Record(Usage{Type: KindApp, Name: "Mail"}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	record()
	record() // same day, streak stays
	item, _ := s.Get(KindApp, "Mail")
	if item.StreakDays != 1 {
		t.Errorf("StreakDays = %d, want 1 on first day", item.StreakDays)
	}

	day = day.AddDate(0, 0, 1)
	record()
	item, _ = s.Get(KindApp, "Mail")
	if item.StreakDays != 2 {
		t.Errorf("StreakDays = %d, want 2 after consecutive day", item.StreakDays)
	}

	day = day.AddDate(0, 0, 3)
	record()
	item, _ = s.Get(KindApp, "Mail")
	if item.StreakDays != 1 {
		t.Errorf("StreakDays = %d, want reset to 1 after a gap", item.StreakDays)
	}
}

func TestStore_PruneDropsDecayedStaleItems(t *testing.T) {
	s := tempStore(t)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// A decayed item far past the age limit, seeded directly.
	s.items["app/Forgotten"] = &Item{
		Type:     KindApp,
		Name:     "Forgotten",
		Count:    0.4,
		LastUsed: now.Add(-120 * 24 * time.Hour),
	}
	// Decayed but recent: stays.
	s.items["app/Recent"] = &Item{
		Type:     KindApp,
		Name:     "Recent",
		Count:    0.4,
		LastUsed: now.Add(-time.Hour),
	}
	// Old but still counted: stays.
	s.items["app/OldFavorite"] = &Item{
		Type:     KindApp,
		Name:     "OldFavorite",
		Count:    12,
		LastUsed: now.Add(-120 * 24 * time.Hour),
	}

	if err := s.Record(Usage{Type: KindApp, Name: "Trigger"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	if _, err := s.Get(KindApp, "Forgotten"); !errors.Is(err, ErrNotFound) {
		t.Error("expected decayed stale item to be pruned")
	}
	if _, err := s.Get(KindApp, "Recent"); err != nil {
		t.Error("recent item was pruned")
	}
	if _, err := s.Get(KindApp, "OldFavorite"); err != nil {
		t.Error("high-count item was pruned")
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := tempStore(t)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	if err := s.Record(Usage{Type: KindApp, Name: "First"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	now = now.Add(time.Minute)
	if err := s.Record(Usage{Type: KindApp, Name: "Second"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List() = %d items, want 2", len(list))
	}
	if list[0].Name != "Second" || list[1].Name != "First" {
		t.Errorf("List() order = [%s %s], want newest first", list[0].Name, list[1].Name)
	}
}
