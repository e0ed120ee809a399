package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/metrics"
)

// ErrNotFound is returned when a requested history item does not exist.
var ErrNotFound = errors.New("not found")

const (
	// countCeiling caps the total count across all items; exceeding it
	// triggers aging, which rescales every count toward agingTarget of
	// the ceiling.
	countCeiling = 1000.0
	agingTarget  = 0.9

	// maxItemAge is how long an item whose count has decayed below 1 may
	// go unused before pruning drops it.
	maxItemAge = 90 * 24 * time.Hour

	// maxSearchTerms bounds the per-item ring of recent search terms.
	maxSearchTerms = 5
)

// document is the on-disk shape of the history file.
type document struct {
	History []*Item `json:"history"`
}

// Store holds all history items in memory and rewrites the whole JSON
// document on every mutation. A missing or unreadable file seeds an empty
// store; persistence problems never break the launcher.
type Store struct {
	path string

	mu    sync.RWMutex
	items map[string]*Item

	now func() time.Time
}

// New creates a Store backed by the JSON file at path and loads whatever is
// already there.
func New(path string) *Store {
	s := &Store{
		path:  path,
		items: make(map[string]*Item),
		now:   time.Now,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		logx.Log.Warn().Err(err).Str("path", s.path).Msg("history unreadable, starting empty")
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logx.Log.Warn().Err(err).Str("path", s.path).Msg("history corrupt, starting empty")
		return
	}

	for _, item := range doc.History {
		if item == nil || (item.Name == "" && item.Key == "") {
			continue
		}
		s.items[item.mapKey()] = item
	}
}

// save rewrites the entire document. Items are sorted by key so the file
// stays diffable across runs.
func (s *Store) save() error {
	doc := document{History: make([]*Item, 0, len(s.items))}
	for _, item := range s.items {
		doc.History = append(doc.History, item)
	}
	sort.Slice(doc.History, func(i, j int) bool {
		return doc.History[i].mapKey() < doc.History[j].mapKey()
	})

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	return nil
}

// Record registers one use of an item: find-or-create it, bump its count,
// push the search term onto the ring, fold the context into the suggestion
// counters, then age, prune, and persist.
func (s *Store) Record(u Usage) error {
	if u.Name == "" && u.Key == "" {
		return errors.New("usage needs a name or key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	probe := Item{Type: u.Type, Name: u.Name, Key: u.Key}
	key := probe.mapKey()

	item, ok := s.items[key]
	if !ok {
		item = &Item{Type: u.Type, Name: u.Name, Key: u.Key}
		s.items[key] = item
	}

	item.Count++
	item.LastUsed = now
	if u.Name != "" {
		item.Name = u.Name
	}

	if term := strings.TrimSpace(u.SearchTerm); term != "" {
		item.RecentSearchTerms = pushTerm(item.RecentSearchTerms, term)
	}

	// Launch payload follows the latest sighting.
	if u.Command != "" {
		item.Command = u.Command
	}
	if u.EntryPoint != "" {
		item.EntryPoint = u.EntryPoint
	}
	if u.Icon != "" {
		item.Icon = u.Icon
	}
	if u.IconType != "" {
		item.IconType = u.IconType
	}
	if u.Thumbnail != "" {
		item.Thumbnail = u.Thumbnail
	}
	if u.PluginID != "" {
		item.PluginID = u.PluginID
	}

	item.HourCounts = bump(item.HourCounts, strconv.Itoa(now.Hour()))
	item.WeekdayCounts = bump(item.WeekdayCounts, strconv.Itoa(int(now.Weekday())))
	touchStreak(item, now)

	if ctx := u.Context; ctx != nil {
		if ctx.Workspace != "" {
			item.WorkspaceCounts = bump(item.WorkspaceCounts, ctx.Workspace)
		}
		if ctx.Monitor != "" {
			item.MonitorCounts = bump(item.MonitorCounts, ctx.Monitor)
		}
		if ctx.PreviousApp != "" {
			item.AfterAppCounts = bump(item.AfterAppCounts, ctx.PreviousApp)
		}
		for _, app := range ctx.RunningApps {
			if app != "" {
				item.CoRunningCounts = bump(item.CoRunningCounts, app)
			}
		}
		if ctx.SessionStart {
			item.SessionStartCount++
		}
	}

	metrics.HistoryRecord()

	s.age()
	s.prune(now)

	return s.save()
}

// Rename moves an item to a new display name, merging into an existing item
// if the new identity is already tracked.
func (s *Store) Rename(kind Kind, id, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey := string(kind) + "/" + id
	item, ok := s.items[oldKey]
	if !ok {
		return ErrNotFound
	}

	delete(s.items, oldKey)
	item.Name = newName

	newKey := item.mapKey()
	if existing, ok := s.items[newKey]; ok {
		merge(existing, item)
	} else {
		s.items[newKey] = item
	}

	return s.save()
}

// Remove deletes an item by its name or composite key.
func (s *Store) Remove(kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(kind) + "/" + id
	if _, ok := s.items[key]; !ok {
		return ErrNotFound
	}

	delete(s.items, key)
	return s.save()
}

// Get returns a copy of the item stored under (kind, id).
// Returns ErrNotFound if the item does not exist.
func (s *Store) Get(kind Kind, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[string(kind)+"/"+id]
	if !ok {
		return Item{}, ErrNotFound
	}

	return item.clone(), nil
}

// List returns copies of all items, most recently used first.
func (s *Store) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item.clone())
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].LastUsed.After(items[j].LastUsed)
	})

	return items
}

// TotalCount sums the counts of all items.
func (s *Store) TotalCount() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, item := range s.items {
		total += item.Count
	}
	return total
}

// age rescales every count, and every nested counter, by the same factor
// whenever the total exceeds the ceiling, so the total lands at agingTarget
// of the ceiling. Relative frequencies between items are preserved.
func (s *Store) age() {
	total := 0.0
	for _, item := range s.items {
		total += item.Count
	}
	if total <= countCeiling {
		return
	}

	factor := countCeiling * agingTarget / total
	for _, item := range s.items {
		item.Count *= factor
		item.SessionStartCount *= factor
		scaleMap(item.HourCounts, factor)
		scaleMap(item.WeekdayCounts, factor)
		scaleMap(item.WorkspaceCounts, factor)
		scaleMap(item.MonitorCounts, factor)
		scaleMap(item.AfterAppCounts, factor)
		scaleMap(item.CoRunningCounts, factor)
	}
}

// prune drops items that have both decayed below a count of 1 and gone
// unused past the maximum age.
func (s *Store) prune(now time.Time) {
	for key, item := range s.items {
		if item.Count < 1 && now.Sub(item.LastUsed) > maxItemAge {
			delete(s.items, key)
		}
	}
}

// pushTerm puts term at the front of the ring, dropping case-insensitive
// duplicates and clipping to maxSearchTerms.
func pushTerm(terms []string, term string) []string {
	out := make([]string, 0, maxSearchTerms)
	out = append(out, term)
	for _, t := range terms {
		if strings.EqualFold(t, term) {
			continue
		}
		out = append(out, t)
		if len(out) == maxSearchTerms {
			break
		}
	}
	return out
}

// touchStreak advances the consecutive-day streak: same day is a no-op, the
// day after extends it, anything else restarts it.
func touchStreak(item *Item, now time.Time) {
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	switch item.StreakDate {
	case today:
	case yesterday:
		item.StreakDays++
		item.StreakDate = today
	default:
		item.StreakDays = 1
		item.StreakDate = today
	}
}

// merge folds src into dst when a rename collides with an existing item.
func merge(dst, src *Item) {
	dst.Count += src.Count
	if src.LastUsed.After(dst.LastUsed) {
		dst.LastUsed = src.LastUsed
	}
	for i := len(src.RecentSearchTerms) - 1; i >= 0; i-- {
		dst.RecentSearchTerms = pushTerm(dst.RecentSearchTerms, src.RecentSearchTerms[i])
	}
	dst.SessionStartCount += src.SessionStartCount
	dst.HourCounts = addMaps(dst.HourCounts, src.HourCounts)
	dst.WeekdayCounts = addMaps(dst.WeekdayCounts, src.WeekdayCounts)
	dst.WorkspaceCounts = addMaps(dst.WorkspaceCounts, src.WorkspaceCounts)
	dst.MonitorCounts = addMaps(dst.MonitorCounts, src.MonitorCounts)
	dst.AfterAppCounts = addMaps(dst.AfterAppCounts, src.AfterAppCounts)
	dst.CoRunningCounts = addMaps(dst.CoRunningCounts, src.CoRunningCounts)
	if src.StreakDays > dst.StreakDays {
		dst.StreakDays = src.StreakDays
		dst.StreakDate = src.StreakDate
	}
}

func bump(m map[string]float64, key string) map[string]float64 {
	if m == nil {
		m = make(map[string]float64)
	}
	m[key]++
	return m
}

func scaleMap(m map[string]float64, factor float64) {
	for k := range m {
		m[k] *= factor
	}
}

func addMaps(dst, src map[string]float64) map[string]float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]float64, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (i *Item) clone() Item {
	out := *i
	out.RecentSearchTerms = append([]string(nil), i.RecentSearchTerms...)
	out.HourCounts = cloneMap(i.HourCounts)
	out.WeekdayCounts = cloneMap(i.WeekdayCounts)
	out.WorkspaceCounts = cloneMap(i.WorkspaceCounts)
	out.MonitorCounts = cloneMap(i.MonitorCounts)
	out.AfterAppCounts = cloneMap(i.AfterAppCounts)
	out.CoRunningCounts = cloneMap(i.CoRunningCounts)
	return out
}
