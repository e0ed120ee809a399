package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayusman/kathak/internal/plugin"
	"github.com/ayusman/kathak/internal/protocol"
)

type fakeCatalog struct {
	order   []string
	plugins map[string]*plugin.Plugin
}

func newFakeCatalog(ids ...string) *fakeCatalog {
	c := &fakeCatalog{plugins: make(map[string]*plugin.Plugin)}
	for _, id := range ids {
		c.order = append(c.order, id)
		c.plugins[id] = &plugin.Plugin{
			ID:       id,
			Manifest: plugin.Manifest{Name: id, Index: &plugin.IndexConfig{Enabled: true}},
		}
	}
	return c
}

func (c *fakeCatalog) Get(id string) (*plugin.Plugin, error) {
	p, ok := c.plugins[id]
	if !ok {
		return nil, plugin.ErrPluginNotFound
	}
	return p, nil
}

func (c *fakeCatalog) List() []*plugin.Plugin {
	out := make([]*plugin.Plugin, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plugins[id])
	}
	return out
}

type indexCall struct {
	pluginID string
	req      protocol.Request
}

type fakeRunner struct {
	mu        sync.Mutex
	calls     []indexCall
	responses map[string]*protocol.Response
	errs      map[string]error

	inflight atomic.Int32
	maxSeen  atomic.Int32
	gate     chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]*protocol.Response),
		errs:      make(map[string]error),
	}
}

func (r *fakeRunner) Execute(ctx context.Context, p *plugin.Plugin, req *protocol.Request) (*protocol.Response, error) {
	cur := r.inflight.Add(1)
	for {
		seen := r.maxSeen.Load()
		if cur <= seen || r.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	defer r.inflight.Add(-1)

	if r.gate != nil {
		<-r.gate
	}

	r.mu.Lock()
	r.calls = append(r.calls, indexCall{pluginID: p.ID, req: *req})
	resp := r.responses[p.ID]
	err := r.errs[p.ID]
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &protocol.Response{Type: "index", Mode: req.Mode}
	}
	return resp, nil
}

func (r *fakeRunner) callList() []indexCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]indexCall(nil), r.calls...)
}

func indexResponse(mode string, remove []string, items ...protocol.IndexEntry) *protocol.Response {
	return &protocol.Response{Type: "index", Mode: mode, Items: items, Remove: remove}
}

func entry(id, name string) protocol.IndexEntry {
	return protocol.IndexEntry{ID: id, Name: name}
}

// testManager builds a Manager with an unthrottled limiter so tests that do
// not exercise pacing stay fast.
func testManager(t *testing.T, catalog Catalog, runner Runner) *Manager {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "kathak-index-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	m := NewManager(catalog, runner, filepath.Join(tmpDir, "index-cache.json"))
	m.limiter = rate.NewLimiter(rate.Inf, 1)
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.After(timeout)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestManager_RequestIndexDeduplicates(t *testing.T) {
	catalog := newFakeCatalog("files", "notes")
	runner := newFakeRunner()
	runner.gate = make(chan struct{})

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	if !m.RequestIndex("files", protocol.IndexModeFull) {
		t.Fatal("first request rejected")
	}
	if m.RequestIndex("files", protocol.IndexModeFull) {
		t.Error("duplicate request while queued/running was accepted")
	}
	if !m.RequestIndex("notes", protocol.IndexModeFull) {
		t.Error("request for a different plugin was rejected")
	}

	close(runner.gate)
	waitFor(t, 2*time.Second, func() bool { return len(runner.callList()) == 2 })

	// Once finished, a new request for the same plugin is accepted again.
	waitFor(t, 2*time.Second, func() bool { return m.RequestIndex("files", protocol.IndexModeFull) })
}

func TestManager_RequestIndexRejectsInvalid(t *testing.T) {
	catalog := newFakeCatalog("files")
	catalog.plugins["plain"] = &plugin.Plugin{ID: "plain", Manifest: plugin.Manifest{Name: "plain"}}
	m := testManager(t, catalog, newFakeRunner())

	if m.RequestIndex("missing", protocol.IndexModeFull) {
		t.Error("accepted unknown plugin")
	}
	if m.RequestIndex("plain", protocol.IndexModeFull) {
		t.Error("accepted non-indexable plugin")
	}
	if m.RequestIndex("files", "weekly") {
		t.Error("accepted invalid mode")
	}
}

func TestManager_SerializesInvocationsFIFO(t *testing.T) {
	catalog := newFakeCatalog("a", "b", "c")
	runner := newFakeRunner()

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	for _, id := range []string{"a", "b", "c"} {
		if !m.RequestIndex(id, protocol.IndexModeFull) {
			t.Fatalf("request for %s rejected", id)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(runner.callList()) == 3 })

	calls := runner.callList()
	var order []string
	for _, c := range calls {
		order = append(order, c.pluginID)
	}
	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("execution order = %v, want [a b c]", order)
	}
	if max := runner.maxSeen.Load(); max != 1 {
		t.Errorf("max concurrent invocations = %d, want 1", max)
	}
}

func TestManager_FullReplacesSnapshot(t *testing.T) {
	catalog := newFakeCatalog("files")
	runner := newFakeRunner()
	runner.responses["files"] = indexResponse(protocol.IndexModeFull, nil,
		entry("a", "Alpha"), entry("b", "Beta"))

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("files", protocol.IndexModeFull)
	waitFor(t, 2*time.Second, func() bool { return len(m.Items("files")) == 2 })

	runner.mu.Lock()
	runner.responses["files"] = indexResponse(protocol.IndexModeFull, nil, entry("z", "Zeta"))
	runner.mu.Unlock()

	m.RequestIndex("files", protocol.IndexModeFull)
	waitFor(t, 2*time.Second, func() bool {
		items := m.Items("files")
		return len(items) == 1 && items[0].ID == "z"
	})
}

func TestManager_IncrementalMerge(t *testing.T) {
	catalog := newFakeCatalog("files")
	runner := newFakeRunner()
	runner.responses["files"] = indexResponse(protocol.IndexModeFull, nil,
		entry("a", "Alpha"), entry("b", "Beta"), entry("c", "Gamma"))

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("files", protocol.IndexModeFull)
	waitFor(t, 2*time.Second, func() bool { return len(m.Items("files")) == 3 })

	// Update b in place, drop a, add d.
	runner.mu.Lock()
	runner.responses["files"] = indexResponse(protocol.IndexModeIncremental,
		[]string{"a"}, entry("b", "Beta v2"), entry("d", "Delta"))
	runner.mu.Unlock()

	m.RequestIndex("files", protocol.IndexModeIncremental)
	waitFor(t, 2*time.Second, func() bool { return len(m.Items("files")) == 3 && m.Items("files")[0].ID == "b" })

	items := m.Items("files")
	if items[0].ID != "b" || items[0].Name != "Beta v2" {
		t.Errorf("items[0] = %+v, want updated b in place", items[0])
	}
	if items[1].ID != "c" {
		t.Errorf("items[1] = %+v, want surviving c", items[1])
	}
	if items[2].ID != "d" || items[2].Name != "Delta" {
		t.Errorf("items[2] = %+v, want appended d", items[2])
	}
}

func TestManager_IncrementalSendsSince(t *testing.T) {
	catalog := newFakeCatalog("files")
	runner := newFakeRunner()
	runner.responses["files"] = indexResponse(protocol.IndexModeFull, nil, entry("a", "Alpha"))

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("files", protocol.IndexModeFull)
	waitFor(t, 2*time.Second, func() bool { return m.LastIndexed("files") > 0 })
	lastIndexed := m.LastIndexed("files")

	m.RequestIndex("files", protocol.IndexModeIncremental)
	waitFor(t, 2*time.Second, func() bool { return len(runner.callList()) == 2 })

	calls := runner.callList()
	if calls[0].req.Since != 0 {
		t.Errorf("full request Since = %d, want 0", calls[0].req.Since)
	}
	if calls[1].req.Since != lastIndexed {
		t.Errorf("incremental request Since = %d, want %d", calls[1].req.Since, lastIndexed)
	}
	if calls[1].req.Step != protocol.StepIndex {
		t.Errorf("request step = %q, want index", calls[1].req.Step)
	}
}

func TestManager_FailureAdvancesQueue(t *testing.T) {
	catalog := newFakeCatalog("broken", "healthy")
	runner := newFakeRunner()
	runner.errs["broken"] = errors.New("handler exploded")
	runner.responses["healthy"] = indexResponse(protocol.IndexModeFull, nil, entry("x", "X"))

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("broken", protocol.IndexModeFull)
	m.RequestIndex("healthy", protocol.IndexModeFull)

	waitFor(t, 2*time.Second, func() bool { return len(m.Items("healthy")) == 1 })

	if got := len(m.Items("broken")); got != 0 {
		t.Errorf("broken plugin items = %d, want 0", got)
	}
	// The failed plugin can be requested again.
	waitFor(t, 2*time.Second, func() bool { return m.RequestIndex("broken", protocol.IndexModeFull) })
}

func TestManager_NotifiesSubscribers(t *testing.T) {
	catalog := newFakeCatalog("a", "b")
	runner := newFakeRunner()
	runner.responses["a"] = indexResponse(protocol.IndexModeFull, nil, entry("1", "One"))
	runner.responses["b"] = indexResponse(protocol.IndexModeFull, nil, entry("2", "Two"))

	m := testManager(t, catalog, runner)

	notifications := make(chan []string, 4)
	m.Subscribe(func(changed []string) { notifications <- changed })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("a", protocol.IndexModeFull)
	m.RequestIndex("b", protocol.IndexModeFull)

	// Both merges land within the notify window on any sane scheduler, so
	// this usually arrives as one batch, but only the union is asserted.
	got := make(map[string]bool)
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case changed := <-notifications:
			for _, id := range changed {
				got[id] = true
			}
		case <-deadline:
			t.Fatalf("notified plugins = %v, want a and b", got)
		}
	}
}

func TestManager_PersistAndReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "kathak-index-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	cachePath := filepath.Join(tmpDir, "index-cache.json")

	catalog := newFakeCatalog("files")
	runner := newFakeRunner()
	runner.responses["files"] = indexResponse(protocol.IndexModeFull, nil,
		entry("a", "Alpha"), entry("b", "Beta"))

	m := NewManager(catalog, runner, cachePath)
	m.limiter = rate.NewLimiter(rate.Inf, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("files", protocol.IndexModeFull)
	waitFor(t, 2*time.Second, func() bool { return len(m.Items("files")) == 2 })
	m.persist()
	m.Close()

	reloaded := NewManager(catalog, newFakeRunner(), cachePath)
	if got := len(reloaded.Items("files")); got != 2 {
		t.Errorf("reloaded items = %d, want 2", got)
	}
	if reloaded.LastIndexed("files") == 0 {
		t.Error("reloaded LastIndexed = 0, want persisted timestamp")
	}
}

func TestManager_BootstrapModes(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "kathak-index-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	cachePath := filepath.Join(tmpDir, "index-cache.json")

	// Seed a cache holding items for "cached" only.
	if err := saveCache(cachePath, map[string]PluginIndex{
		"cached": {Items: []protocol.IndexEntry{entry("a", "Alpha")}, LastIndexed: 42},
	}); err != nil {
		t.Fatalf("saveCache() failed: %v", err)
	}

	catalog := newFakeCatalog("cached", "fresh")
	runner := newFakeRunner()

	m := NewManager(catalog, runner, cachePath)
	m.limiter = rate.NewLimiter(rate.Inf, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.Bootstrap()
	waitFor(t, 2*time.Second, func() bool { return len(runner.callList()) == 2 })

	modes := make(map[string]string)
	for _, c := range runner.callList() {
		modes[c.pluginID] = c.req.Mode
	}
	if modes["cached"] != protocol.IndexModeIncremental {
		t.Errorf("cached plugin mode = %q, want incremental", modes["cached"])
	}
	if modes["fresh"] != protocol.IndexModeFull {
		t.Errorf("fresh plugin mode = %q, want full", modes["fresh"])
	}
}

func TestManager_SetPaused(t *testing.T) {
	catalog := newFakeCatalog("files")
	runner := newFakeRunner()

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.SetPaused(true)
	m.RequestIndex("files", protocol.IndexModeFull)

	time.Sleep(200 * time.Millisecond)
	if got := len(runner.callList()); got != 0 {
		t.Fatalf("paused manager ran %d invocations, want 0", got)
	}

	m.SetPaused(false)
	waitFor(t, 2*time.Second, func() bool { return len(runner.callList()) == 1 })
}

func TestManager_ItemsReturnsCopy(t *testing.T) {
	catalog := newFakeCatalog("files")
	runner := newFakeRunner()
	runner.responses["files"] = indexResponse(protocol.IndexModeFull, nil, entry("a", "Alpha"))

	m := testManager(t, catalog, runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	m.RequestIndex("files", protocol.IndexModeFull)
	waitFor(t, 2*time.Second, func() bool { return len(m.Items("files")) == 1 })

	items := m.Items("files")
	items[0].Name = "Mutated"

	if got := m.Items("files")[0].Name; got != "Alpha" {
		t.Errorf("snapshot mutated through returned slice: %q", got)
	}

	if m.Items("unknown") != nil {
		t.Error("Items() for unknown plugin should be nil")
	}
}

func TestMergeUpsertKeepsOrder(t *testing.T) {
	// Merge applied twice for the same id keeps one entry.
	catalog := newFakeCatalog("files")
	runner := newFakeRunner()
	m := testManager(t, catalog, runner)
	defer m.Close()

	m.merge("files", protocol.IndexModeFull, indexResponse(protocol.IndexModeFull, nil,
		entry("a", "Alpha"), entry("b", "Beta")))
	m.merge("files", protocol.IndexModeIncremental, indexResponse(protocol.IndexModeIncremental, nil,
		entry("a", "Alpha v2"), entry("a", "Alpha v3")))

	items := m.Items("files")
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Name != "Alpha v3" {
		t.Errorf("items[0].Name = %q, want last upsert to win", items[0].Name)
	}

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	if fmt.Sprint(ids) != "[a b]" {
		t.Errorf("ids = %v, want [a b]", ids)
	}
}
