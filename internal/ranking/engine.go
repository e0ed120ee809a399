// Package ranking turns queries into ordered result lists by matching the
// indexed corpus, plugins, and usage history under one deterministic
// comparator.
package ranking

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/ayusman/kathak/internal/history"
	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/metrics"
	"github.com/ayusman/kathak/internal/plugin"
	"github.com/ayusman/kathak/internal/protocol"
	"github.com/ayusman/kathak/internal/suggest"
)

// MatchType classifies how a candidate matched the query.
type MatchType int

const (
	// MatchNone means the candidate did not match at all.
	MatchNone MatchType = iota
	// MatchFuzzy is a scored subsequence match.
	MatchFuzzy
	// MatchPrefix is a case-insensitive prefix match.
	MatchPrefix
	// MatchExact is a case-insensitive full match, or a match against a
	// search term that previously found the item.
	MatchExact
)

// String returns a string representation of the match type.
func (t MatchType) String() string {
	switch t {
	case MatchFuzzy:
		return "fuzzy"
	case MatchPrefix:
		return "prefix"
	case MatchExact:
		return "exact"
	default:
		return "none"
	}
}

// Source identifies the pool a result came from.
type Source string

const (
	// SourceIndexed is an item from a plugin's index snapshot.
	SourceIndexed Source = "indexed"
	// SourcePlugin is a plugin offered as an openable entry.
	SourcePlugin Source = "plugin"
	// SourceHistory is a recently used item on the zero-query view.
	SourceHistory Source = "history"
	// SourceSuggestion is a smart suggestion on the zero-query view.
	SourceSuggestion Source = "suggestion"
	// SourceIntent is a promoted non-search interpretation of the query.
	SourceIntent Source = "intent"
	// SourceWeb is the catch-all web search row.
	SourceWeb Source = "web"
)

const (
	maxIndexedResults = 8
	maxPluginResults  = 4
	maxHistoryResults = 10

	// minFuzzyScore rejects subsequence matches whose accumulated penalties
	// outweigh their bonuses.
	minFuzzyScore = 0
	// frecencyEpsilon is the band within which two exact matches count as
	// frecency ties.
	frecencyEpsilon = 0.01
)

// Result is one ranked row handed to the renderer.
type Result struct {
	Source      Source  `json:"source"`
	ID          string  `json:"id"`
	PluginID    string  `json:"pluginId,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	IconType    string  `json:"iconType,omitempty"`
	Verb        string  `json:"verb,omitempty"`
	Query       string  `json:"query,omitempty"`
	Value       string  `json:"value,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`

	Actions []protocol.ResultAction `json:"actions,omitempty"`

	Match      MatchType `json:"-"`
	FuzzyScore int       `json:"-"`
	Frecency   float64   `json:"-"`
}

// Catalog lists discovered plugins.
type Catalog interface {
	List() []*plugin.Plugin
	Ready() bool
}

// Corpus exposes every plugin's current index snapshot.
type Corpus interface {
	All() map[string][]protocol.IndexEntry
}

// candidate is one searchable corpus entry.
type candidate struct {
	source      Source
	id          string
	pluginID    string
	name        string
	description string
	icon        string
	iconType    string
	verb        string
	keywords    []string
	actions     []protocol.ResultAction

	histKind history.Kind
	histName string
}

// patternTarget is a plugin admitted as a query target through one of its
// manifest match patterns.
type patternTarget struct {
	re       *regexp.Regexp
	priority int
	plug     *plugin.Plugin
}

// Engine ranks candidates from the index corpus, the plugin catalog, and
// usage history. The searchable candidate list is rebuilt lazily after an
// Invalidate, not on every corpus event.
type Engine struct {
	catalog   Catalog
	corpus    Corpus
	store     *history.Store
	suggester *suggest.Engine

	mu         sync.Mutex
	candidates []candidate
	patterns   []patternTarget
	dirty      bool

	now func() time.Time
}

// NewEngine creates a ranking engine over the given sources.
func NewEngine(catalog Catalog, corpus Corpus, store *history.Store, suggester *suggest.Engine) *Engine {
	return &Engine{
		catalog:   catalog,
		corpus:    corpus,
		store:     store,
		suggester: suggester,
		dirty:     true,
		now:       time.Now,
	}
}

// Invalidate marks the searchable corpus stale. The next Search rebuilds it.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
}

// Search returns the ordered result list for a query. An empty query yields
// the zero-query view: smart suggestions followed by recent history, both
// reconstituted against the live corpus.
func (e *Engine) Search(query string, ctx history.Context) []Result {
	metrics.Search()

	query = strings.TrimSpace(query)
	if query == "" {
		return e.zeroQuery(ctx)
	}

	now := e.now()
	cands, patterns := e.snapshot()

	// One fuzzy pass over all candidate names.
	scores := make(map[int]int, len(cands))
	for _, m := range fuzzy.FindFrom(query, candidateSource(cands)) {
		scores[m.Index] = m.Score
	}

	q := strings.ToLower(query)
	pools := make(map[Source][]Result)
	for i := range cands {
		c := &cands[i]
		item := e.lookupHistory(c)

		score, hit := scores[i]
		mt := classify(q, c, item, score, hit)
		if mt == MatchNone {
			continue
		}

		r := c.result()
		r.Match = mt
		r.FuzzyScore = score
		if item != nil {
			r.Frecency = item.Frecency(now)
		}
		pools[c.source] = append(pools[c.source], r)
	}

	// Manifest match patterns admit their plugin as a query target.
	for _, pt := range patterns {
		if !pt.re.MatchString(query) {
			continue
		}
		r := Result{
			Source:      SourcePlugin,
			ID:          pt.plug.ID,
			PluginID:    pt.plug.ID,
			Name:        pt.plug.Manifest.Name,
			Description: pt.plug.Manifest.Description,
			Icon:        pt.plug.Manifest.Icon,
			Verb:        "Open with query",
			Query:       query,
			Match:       MatchExact,
			FuzzyScore:  pt.priority,
		}
		if item := e.lookupWorkflow(pt.plug.ID); item != nil {
			r.Frecency = item.Frecency(now)
		}
		pools[SourcePlugin] = append(pools[SourcePlugin], r)
	}

	merged := make([]Result, 0, len(pools[SourceIndexed])+len(pools[SourcePlugin]))
	merged = append(merged, capPool(pools[SourceIndexed], maxIndexedResults)...)
	merged = append(merged, capPool(pools[SourcePlugin], maxPluginResults)...)
	sort.SliceStable(merged, func(i, j int) bool { return better(&merged[i], &merged[j]) })

	out := make([]Result, 0, len(merged)+2)
	if intent := detectIntent(query); intent != nil {
		out = append(out, *intent)
	}
	out = append(out, merged...)
	out = append(out, Result{
		Source: SourceWeb,
		ID:     query,
		Name:   fmt.Sprintf("Search the web for %q", query),
		Verb:   "Search",
		Query:  query,
	})

	return dedupe(out)
}

// zeroQuery builds the idle view: suggestions first, then history by
// recency, both resolved against the live corpus so uninstalled items
// vanish silently. Until discovery completes the view stays empty.
func (e *Engine) zeroQuery(ctx history.Context) []Result {
	if !e.catalog.Ready() {
		return nil
	}

	cands, _ := e.snapshot()
	byKey := make(map[string]*candidate, len(cands))
	for i := range cands {
		c := &cands[i]
		byKey[string(c.histKind)+"/"+c.histName] = c
	}

	seen := make(map[string]bool)
	var out []Result

	for _, s := range e.suggester.Suggest(ctx) {
		c := byKey[string(s.Item.Type)+"/"+keyOrName(&s.Item)]
		if c == nil {
			continue
		}
		dk := dedupeKey(string(c.source), c.pluginID, c.id)
		if seen[dk] {
			continue
		}
		seen[dk] = true

		r := c.result()
		r.Source = SourceSuggestion
		r.Confidence = s.Confidence
		out = append(out, r)
	}

	count := 0
	for _, it := range e.store.List() {
		if count >= maxHistoryResults {
			break
		}
		c := byKey[string(it.Type)+"/"+keyOrName(&it)]
		if c == nil {
			continue
		}
		dk := dedupeKey(string(c.source), c.pluginID, c.id)
		if seen[dk] {
			continue
		}
		seen[dk] = true

		r := c.result()
		r.Source = SourceHistory
		out = append(out, r)
		count++
	}

	return out
}

// snapshot returns the current candidate list, rebuilding it if stale.
func (e *Engine) snapshot() ([]candidate, []patternTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dirty {
		e.candidates, e.patterns = e.build()
		e.dirty = false
	}
	return e.candidates, e.patterns
}

func (e *Engine) build() ([]candidate, []patternTarget) {
	var cands []candidate
	var patterns []patternTarget

	for _, p := range e.catalog.List() {
		cands = append(cands, candidate{
			source:      SourcePlugin,
			id:          p.ID,
			pluginID:    p.ID,
			name:        p.Manifest.Name,
			description: p.Manifest.Description,
			icon:        p.Manifest.Icon,
			verb:        "Open",
			keywords:    []string{p.ID},
			histKind:    history.KindWorkflow,
			histName:    p.ID,
		})

		if p.Manifest.Match == nil {
			continue
		}
		for _, raw := range p.Manifest.Match.Patterns {
			re, err := regexp.Compile(raw)
			if err != nil {
				logx.Log.Warn().Err(err).Str("plugin", p.ID).Str("pattern", raw).Msg("bad match pattern")
				continue
			}
			patterns = append(patterns, patternTarget{re: re, priority: p.Manifest.Match.Priority, plug: p})
		}
	}

	all := e.corpus.All()
	pluginIDs := make([]string, 0, len(all))
	for id := range all {
		pluginIDs = append(pluginIDs, id)
	}
	sort.Strings(pluginIDs)

	for _, pluginID := range pluginIDs {
		for _, it := range all[pluginID] {
			cands = append(cands, candidate{
				source:      SourceIndexed,
				id:          it.ID,
				pluginID:    pluginID,
				name:        it.Name,
				description: it.Description,
				icon:        it.Icon,
				iconType:    it.IconType,
				verb:        "Open",
				keywords:    it.Keywords,
				actions:     it.Actions,
				histKind:    history.KindApp,
				histName:    it.Name,
			})
		}
	}

	return cands, patterns
}

func (e *Engine) lookupHistory(c *candidate) *history.Item {
	it, err := e.store.Get(c.histKind, c.histName)
	if err != nil {
		return nil
	}
	return &it
}

func (e *Engine) lookupWorkflow(pluginID string) *history.Item {
	it, err := e.store.Get(history.KindWorkflow, pluginID)
	if err != nil {
		return nil
	}
	return &it
}

// classify computes the match type for one candidate: exact on the full
// name, a recorded search term, or a keyword; then prefix on name or
// keyword; then the fuzzy score if it clears the floor.
func classify(q string, c *candidate, item *history.Item, score int, fuzzyHit bool) MatchType {
	name := strings.ToLower(c.name)
	if name == q {
		return MatchExact
	}
	if item != nil {
		for _, term := range item.RecentSearchTerms {
			if strings.EqualFold(term, q) {
				return MatchExact
			}
		}
	}
	for _, k := range c.keywords {
		if strings.ToLower(k) == q {
			return MatchExact
		}
	}

	if strings.HasPrefix(name, q) {
		return MatchPrefix
	}
	for _, k := range c.keywords {
		if strings.HasPrefix(strings.ToLower(k), q) {
			return MatchPrefix
		}
	}

	if fuzzyHit && score >= minFuzzyScore {
		return MatchFuzzy
	}
	return MatchNone
}

// better is the global comparator: exact matches first, ordered by frecency
// with fuzzy score breaking near-ties; everything else by fuzzy score with
// frecency as the final tiebreaker. Remaining ties settle on names and ids
// so output order is stable across runs.
func better(a, b *Result) bool {
	ae, be := a.Match == MatchExact, b.Match == MatchExact
	if ae != be {
		return ae
	}
	if ae {
		if diff := a.Frecency - b.Frecency; math.Abs(diff) > frecencyEpsilon {
			return diff > 0
		}
		if a.FuzzyScore != b.FuzzyScore {
			return a.FuzzyScore > b.FuzzyScore
		}
	} else {
		if a.FuzzyScore != b.FuzzyScore {
			return a.FuzzyScore > b.FuzzyScore
		}
		if a.Frecency != b.Frecency {
			return a.Frecency > b.Frecency
		}
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.PluginID != b.PluginID {
		return a.PluginID < b.PluginID
	}
	return a.ID < b.ID
}

// capPool sorts one category and keeps its best entries.
func capPool(pool []Result, limit int) []Result {
	sort.SliceStable(pool, func(i, j int) bool { return better(&pool[i], &pool[j]) })
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}

// dedupe drops later occurrences of the same (source, plugin, id). The list
// is already ordered best-first, so the kept occurrence is the higher one.
func dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		k := dedupeKey(string(r.Source), r.PluginID, r.ID)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func dedupeKey(source, pluginID, id string) string {
	return source + "\x00" + pluginID + "\x00" + id
}

func keyOrName(it *history.Item) string {
	if it.Key != "" {
		return it.Key
	}
	return it.Name
}

func (c *candidate) result() Result {
	return Result{
		Source:      c.source,
		ID:          c.id,
		PluginID:    c.pluginID,
		Name:        c.name,
		Description: c.description,
		Icon:        c.icon,
		IconType:    c.iconType,
		Verb:        c.verb,
		Actions:     c.actions,
	}
}

// candidateSource adapts the candidate list to the fuzzy matcher.
type candidateSource []candidate

func (s candidateSource) String(i int) string { return s[i].name }
func (s candidateSource) Len() int            { return len(s) }
