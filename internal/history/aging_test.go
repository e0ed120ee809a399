package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAgingCapsTotalCount(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := tempStore(t)
		now := time.Now()

		numItems := rapid.IntRange(1, 40).Draw(rt, "numItems")
		for i := 0; i < numItems; i++ {
			count := rapid.Float64Range(0.5, 80).Draw(rt, fmt.Sprintf("count%d", i))
			name := fmt.Sprintf("app-%d", i)
			s.items["app/"+name] = &Item{Type: KindApp, Name: name, Count: count, LastUsed: now}
		}
		// One heavy item guarantees the ceiling is exceeded.
		s.items["app/heavy"] = &Item{Type: KindApp, Name: "heavy", Count: countCeiling, LastUsed: now}

		require.NoError(rt, s.Record(Usage{Type: KindApp, Name: "trigger"}))

		total := s.TotalCount()
		assert.LessOrEqual(rt, total, countCeiling)
		assert.InDelta(rt, countCeiling*agingTarget, total, 0.001)
	})
}

func TestAgingPreservesProportions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := tempStore(t)
		now := time.Now()

		a := rapid.Float64Range(10, 500).Draw(rt, "a")
		b := rapid.Float64Range(10, 500).Draw(rt, "b")

		s.items["app/A"] = &Item{
			Type: KindApp, Name: "A", Count: a, LastUsed: now,
			HourCounts: map[string]float64{"9": a / 3},
		}
		s.items["app/B"] = &Item{Type: KindApp, Name: "B", Count: b, LastUsed: now}
		s.items["app/heavy"] = &Item{Type: KindApp, Name: "heavy", Count: countCeiling, LastUsed: now}

		require.NoError(rt, s.Record(Usage{Type: KindApp, Name: "trigger"}))

		itemA, err := s.Get(KindApp, "A")
		require.NoError(rt, err)
		itemB, err := s.Get(KindApp, "B")
		require.NoError(rt, err)

		// Relative frequency between items survives aging.
		assert.InEpsilon(rt, a/b, itemA.Count/itemB.Count, 1e-9)
		// Nested counters scale by the same factor as the count.
		assert.InEpsilon(rt, 3.0, itemA.Count/itemA.HourCounts["9"], 1e-9)
	})
}

func TestAgingScalesNestedCounters(t *testing.T) {
	s := tempStore(t)
	now := time.Now()

	s.items["app/big"] = &Item{
		Type:              KindApp,
		Name:              "big",
		Count:             2000,
		LastUsed:          now,
		HourCounts:        map[string]float64{"10": 500},
		WeekdayCounts:     map[string]float64{"2": 300},
		CoRunningCounts:   map[string]float64{"Terminal": 120},
		SessionStartCount: 100,
	}

	require.NoError(t, s.Record(Usage{Type: KindApp, Name: "trigger"}))

	factor := countCeiling * agingTarget / 2001
	item, err := s.Get(KindApp, "big")
	require.NoError(t, err)

	assert.InEpsilon(t, 2000*factor, item.Count, 1e-9)
	assert.InEpsilon(t, 500*factor, item.HourCounts["10"], 1e-9)
	assert.InEpsilon(t, 300*factor, item.WeekdayCounts["2"], 1e-9)
	assert.InEpsilon(t, 120*factor, item.CoRunningCounts["Terminal"], 1e-9)
	assert.InEpsilon(t, 100*factor, item.SessionStartCount, 1e-9)
}

func TestAgingNotTriggeredBelowCeiling(t *testing.T) {
	s := tempStore(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Record(Usage{Type: KindApp, Name: fmt.Sprintf("app-%d", i)}))
	}

	assert.Equal(t, 10.0, s.TotalCount())
}

func TestPruneBoundary(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := tempStore(t)
		now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return now }

		count := rapid.Float64Range(0, 3).Draw(rt, "count")
		ageDays := rapid.IntRange(0, 400).Draw(rt, "ageDays")

		s.items["app/probe"] = &Item{
			Type:     KindApp,
			Name:     "probe",
			Count:    count,
			LastUsed: now.AddDate(0, 0, -ageDays),
		}

		require.NoError(rt, s.Record(Usage{Type: KindApp, Name: "trigger"}))

		_, err := s.Get(KindApp, "probe")
		if count < 1 && ageDays > 90 {
			assert.ErrorIs(rt, err, ErrNotFound, "decayed stale item must be pruned")
		} else {
			assert.NoError(rt, err, "count=%v ageDays=%d must survive", count, ageDays)
		}
	})
}
