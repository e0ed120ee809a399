package history

import "time"

// Recency multipliers. An item used within the hour counts four times its
// raw count; one untouched for over a week counts half.
const (
	multiplierHour = 4.0
	multiplierDay  = 2.0
	multiplierWeek = 1.0
	multiplierOld  = 0.5
)

// Frecency combines how often an item was used with how recently:
// count times a bracket multiplier on the age of the last use.
func Frecency(count float64, lastUsed, now time.Time) float64 {
	age := now.Sub(lastUsed)
	switch {
	case age <= time.Hour:
		return count * multiplierHour
	case age <= 24*time.Hour:
		return count * multiplierDay
	case age <= 7*24*time.Hour:
		return count * multiplierWeek
	default:
		return count * multiplierOld
	}
}

// Frecency returns the item's frecency score at the given time.
func (i *Item) Frecency(now time.Time) float64 {
	return Frecency(i.Count, i.LastUsed, now)
}
