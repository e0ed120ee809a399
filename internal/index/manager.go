package index

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayusman/kathak/internal/debounce"
	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/metrics"
	"github.com/ayusman/kathak/internal/plugin"
	"github.com/ayusman/kathak/internal/protocol"
)

const (
	// cacheSaveDelay coalesces cache rewrites after a burst of merges.
	cacheSaveDelay = time.Second
	// notifyDelay coalesces corpus-changed notifications.
	notifyDelay = 100 * time.Millisecond
)

// Runner executes plugin handler invocations.
type Runner interface {
	Execute(ctx context.Context, p *plugin.Plugin, req *protocol.Request) (*protocol.Response, error)
}

// Catalog resolves plugin descriptors.
type Catalog interface {
	Get(id string) (*plugin.Plugin, error)
	List() []*plugin.Plugin
}

type request struct {
	pluginID string
	mode     string
}

// Manager serializes all plugins' index invocations through one FIFO queue,
// at most one in flight system-wide. Requests for a plugin already queued or
// indexing are rejected as no-ops. Successful merges persist the whole
// cross-plugin cache (debounced) and notify subscribers with the changed
// plugin ids (debounced).
type Manager struct {
	catalog   Catalog
	runner    Runner
	cachePath string

	mu      sync.Mutex
	indexes map[string]PluginIndex
	queue   []request
	pending map[string]bool
	paused  bool
	subs    []func(changed []string)

	wake     chan struct{}
	limiter  *rate.Limiter
	saver    *debounce.Debouncer
	notifier *debounce.Batcher
}

// NewManager creates a Manager and loads whatever the cache file holds.
func NewManager(catalog Catalog, runner Runner, cachePath string) *Manager {
	m := &Manager{
		catalog:   catalog,
		runner:    runner,
		cachePath: cachePath,
		indexes:   loadCache(cachePath),
		pending:   make(map[string]bool),
		wake:      make(chan struct{}, 1),
		// Paces subprocess fan-out: at most two index invocations per second.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		saver:   debounce.New(cacheSaveDelay),
	}
	m.notifier = debounce.NewBatcher(notifyDelay, m.broadcast)
	return m
}

// Start launches the queue worker. It runs until ctx is canceled.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

// Close flushes any pending cache write.
func (m *Manager) Close() {
	m.saver.Flush()
	m.notifier.Cancel()
}

// Subscribe registers a callback for corpus changes. Callbacks receive the
// ids of plugins whose items changed, coalesced over the notify window, and
// are invoked outside the manager's lock.
func (m *Manager) Subscribe(fn func(changed []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// RequestIndex queues an indexing run for a plugin. It reports whether the
// request was accepted: duplicates for a plugin already queued or indexing
// are rejected, as are unknown and non-indexable plugins.
func (m *Manager) RequestIndex(pluginID, mode string) bool {
	p, err := m.catalog.Get(pluginID)
	if err != nil || !p.Indexable() {
		return false
	}
	if mode != protocol.IndexModeFull && mode != protocol.IndexModeIncremental {
		return false
	}

	m.mu.Lock()
	if m.pending[pluginID] {
		m.mu.Unlock()
		return false
	}
	m.pending[pluginID] = true
	m.queue = append(m.queue, request{pluginID: pluginID, mode: mode})
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// Bootstrap queues a catch-up run for every indexable plugin: incremental
// when cached items exist, full otherwise.
func (m *Manager) Bootstrap() {
	for _, p := range m.catalog.List() {
		if !p.Indexable() {
			continue
		}

		mode := protocol.IndexModeFull
		m.mu.Lock()
		if cached, ok := m.indexes[p.ID]; ok && len(cached.Items) > 0 {
			mode = protocol.IndexModeIncremental
		}
		m.mu.Unlock()

		m.RequestIndex(p.ID, mode)
	}
}

// SetPaused stops or resumes queue draining. Queued requests are kept.
func (m *Manager) SetPaused(paused bool) {
	m.mu.Lock()
	m.paused = paused
	m.mu.Unlock()

	if !paused {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// Items returns a copy of a plugin's current snapshot.
func (m *Manager) Items(pluginID string) []protocol.IndexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.indexes[pluginID]
	if !ok {
		return nil
	}
	return append([]protocol.IndexEntry(nil), cur.Items...)
}

// All returns a copy of every plugin's current snapshot.
func (m *Manager) All() map[string][]protocol.IndexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]protocol.IndexEntry, len(m.indexes))
	for id, cur := range m.indexes {
		out[id] = append([]protocol.IndexEntry(nil), cur.Items...)
	}
	return out
}

// LastIndexed returns when a plugin's snapshot was last refreshed, in unix
// milliseconds, or zero if it never was.
func (m *Manager) LastIndexed(pluginID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexes[pluginID].LastIndexed
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}

		for {
			req, ok := m.dequeue()
			if !ok {
				break
			}
			if err := m.limiter.Wait(ctx); err != nil {
				m.finish(req.pluginID)
				return
			}
			m.index(ctx, req)
		}
	}
}

func (m *Manager) dequeue() (request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused || len(m.queue) == 0 {
		return request{}, false
	}

	req := m.queue[0]
	m.queue = m.queue[1:]
	return req, true
}

// index runs one queue entry end to end. Failures are logged and dropped;
// the queue always advances so one broken plugin cannot stall the others.
func (m *Manager) index(ctx context.Context, req request) {
	defer m.finish(req.pluginID)

	p, err := m.catalog.Get(req.pluginID)
	if err != nil {
		logx.Log.Warn().Str("plugin", req.pluginID).Msg("index request for vanished plugin")
		return
	}

	preq := &protocol.Request{Step: protocol.StepIndex, Mode: req.mode}
	if req.mode == protocol.IndexModeIncremental {
		preq.Since = m.LastIndexed(req.pluginID)
	}

	resp, err := m.runner.Execute(ctx, p, preq)
	if err != nil {
		logx.Log.Warn().Err(err).Str("plugin", req.pluginID).Str("mode", req.mode).Msg("index run failed")
		return
	}
	if resp.Kind() != protocol.KindIndex {
		logx.Log.Warn().Str("plugin", req.pluginID).Str("kind", string(resp.Kind())).Msg("index run returned wrong payload")
		return
	}

	m.merge(req.pluginID, req.mode, resp)
	metrics.IndexRun(req.mode)

	logx.Log.Debug().Str("plugin", req.pluginID).Str("mode", req.mode).Int("items", len(resp.Items)).Msg("indexed")
}

func (m *Manager) finish(pluginID string) {
	m.mu.Lock()
	delete(m.pending, pluginID)
	m.mu.Unlock()
}

// merge folds an index response into the plugin's snapshot. Full mode
// replaces it wholesale. Incremental mode drops removed ids, updates
// existing ids in place, and appends new ids in response order.
func (m *Manager) merge(pluginID, mode string, resp *protocol.Response) {
	m.mu.Lock()

	var items []protocol.IndexEntry
	if mode == protocol.IndexModeFull {
		items = append(items, resp.Items...)
	} else {
		removed := make(map[string]bool, len(resp.Remove))
		for _, id := range resp.Remove {
			removed[id] = true
		}

		position := make(map[string]int)
		for _, it := range m.indexes[pluginID].Items {
			if removed[it.ID] {
				continue
			}
			position[it.ID] = len(items)
			items = append(items, it)
		}

		for _, it := range resp.Items {
			if pos, ok := position[it.ID]; ok {
				items[pos] = it
			} else {
				position[it.ID] = len(items)
				items = append(items, it)
			}
		}
	}

	m.indexes[pluginID] = PluginIndex{
		Items:       items,
		LastIndexed: time.Now().UnixMilli(),
	}
	m.mu.Unlock()

	m.saver.Trigger(m.persist)
	m.notifier.Add(pluginID)
}

// persist writes the whole cross-plugin cache.
func (m *Manager) persist() {
	m.mu.Lock()
	snapshot := make(map[string]PluginIndex, len(m.indexes))
	for id, cur := range m.indexes {
		snapshot[id] = PluginIndex{
			Items:       append([]protocol.IndexEntry(nil), cur.Items...),
			LastIndexed: cur.LastIndexed,
		}
	}
	m.mu.Unlock()

	if err := saveCache(m.cachePath, snapshot); err != nil {
		logx.Log.Warn().Err(err).Msg("index cache write failed")
	}
}

func (m *Manager) broadcast(changed []string) {
	m.mu.Lock()
	subs := append(([]func([]string))(nil), m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(changed)
	}
}
