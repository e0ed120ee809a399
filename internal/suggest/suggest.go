// Package suggest produces zero-query launch suggestions from usage history.
// Each history item is scored against the current desktop context through a
// set of independent signals (time of day, day of week, workspace, monitor,
// app sequence, session start, co-running apps, usage streak), combined with
// fixed weights and boosted by frecency.
package suggest

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/kathak/internal/history"
)

const (
	maxSuggestions = 2
	minConfidence  = 0.3

	// minSamples is the per-signal sample floor: with fewer observations a
	// signal contributes nothing, so sparse data cannot fake confidence.
	minSamples = 3
	wilsonZ    = 1.96

	frecencyBoostCap = 0.4
)

// Signal weights, summing to 1.
const (
	weightHour         = 0.25
	weightWeekday      = 0.15
	weightWorkspace    = 0.15
	weightMonitor      = 0.05
	weightAfterApp     = 0.15
	weightSessionStart = 0.05
	weightCoRunning    = 0.10
	weightStreak       = 0.10
)

// streakHorizon is the streak length treated as a full signal.
const streakHorizon = 7

// Suggestion is one zero-query candidate with its composite confidence.
type Suggestion struct {
	Item       history.Item
	Confidence float64
}

// Engine scores history items against the current context.
type Engine struct {
	store *history.Store
	now   func() time.Time
}

// New creates an Engine over the given history store.
func New(store *history.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Suggest returns up to two suggestions above the confidence threshold,
// strongest first, deduplicated by item name.
func (e *Engine) Suggest(ctx history.Context) []Suggestion {
	items := e.store.List()
	if len(items) == 0 {
		return nil
	}

	now := e.now()

	maxFrecency := 0.0
	for i := range items {
		if f := items[i].Frecency(now); f > maxFrecency {
			maxFrecency = f
		}
	}

	best := make(map[string]Suggestion)
	for i := range items {
		item := items[i]

		conf := e.confidence(&item, ctx, now)
		if conf <= 0 {
			continue
		}

		// Frecency boosts but never creates confidence.
		if maxFrecency > 0 {
			normalized := math.Min(item.Frecency(now)/maxFrecency, 1)
			conf *= 1 + normalized*frecencyBoostCap
		}
		if conf > 1 {
			conf = 1
		}
		if conf < minConfidence {
			continue
		}

		key := strings.ToLower(item.Name)
		if prev, ok := best[key]; !ok || conf > prev.Confidence {
			best[key] = Suggestion{Item: item, Confidence: conf}
		}
	}

	suggestions := make([]Suggestion, 0, len(best))
	for _, s := range best {
		suggestions = append(suggestions, s)
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].Item.Name < suggestions[j].Item.Name
	})

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

// confidence combines the per-signal lower confidence bounds with fixed
// weights. Signals whose context is unknown contribute nothing.
func (e *Engine) confidence(item *history.Item, ctx history.Context, now time.Time) float64 {
	total := item.Count
	if total < 1 {
		return 0
	}

	score := 0.0
	score += weightHour * wilson(item.HourCounts[strconv.Itoa(now.Hour())], total)
	score += weightWeekday * wilson(item.WeekdayCounts[strconv.Itoa(int(now.Weekday()))], total)

	if ctx.Workspace != "" {
		score += weightWorkspace * wilson(item.WorkspaceCounts[ctx.Workspace], total)
	}
	if ctx.Monitor != "" {
		score += weightMonitor * wilson(item.MonitorCounts[ctx.Monitor], total)
	}
	if ctx.PreviousApp != "" {
		score += weightAfterApp * wilson(item.AfterAppCounts[ctx.PreviousApp], total)
	}
	if ctx.SessionStart {
		score += weightSessionStart * wilson(item.SessionStartCount, total)
	}

	if len(ctx.RunningApps) > 0 {
		strongest := 0.0
		for _, app := range ctx.RunningApps {
			if w := wilson(item.CoRunningCounts[app], total); w > strongest {
				strongest = w
			}
		}
		score += weightCoRunning * strongest
	}

	if item.StreakDays > 0 {
		k := float64(item.StreakDays)
		if k > streakHorizon {
			k = streakHorizon
		}
		score += weightStreak * wilson(k, streakHorizon)
	}

	return score
}

// wilson returns the lower bound of the Wilson score interval for k
// successes in n trials. Unlike a raw ratio it shrinks toward zero for
// small n, and below the sample floor it is zero outright.
func wilson(k, n float64) float64 {
	if n < minSamples || k <= 0 {
		return 0
	}
	if k > n {
		k = n
	}

	p := k / n
	z2 := wilsonZ * wilsonZ
	center := p + z2/(2*n)
	margin := wilsonZ * math.Sqrt(p*(1-p)/n+z2/(4*n*n))

	lb := (center - margin) / (1 + z2/n)
	if lb < 0 {
		return 0
	}
	return lb
}
