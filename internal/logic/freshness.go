package logic

import "time"

// Freshness records when each reservoir last reported and decides whether
// the pump may rely on those reports.
type Freshness struct {
	maxAge   time.Duration
	required []Reservoir
	last     map[Reservoir]time.Time
}

// NewFreshness creates a tracker requiring a report from every listed
// reservoir within maxAge. A maxAge of zero disables the check.
func NewFreshness(maxAge time.Duration, required ...Reservoir) *Freshness {
	return &Freshness{
		maxAge:   maxAge,
		required: required,
		last:     make(map[Reservoir]time.Time),
	}
}

// Touch records a processed report for r at t.
func (f *Freshness) Touch(r Reservoir, t time.Time) {
	f.last[r] = t
}

// LastUpdate returns the last report time for r, or the zero time.
func (f *Freshness) LastUpdate(r Reservoir) time.Time {
	return f.last[r]
}

// Fresh reports whether every required reservoir was updated within maxAge
// of now.
func (f *Freshness) Fresh(now time.Time) bool {
	if f.maxAge <= 0 {
		return true
	}
	for _, r := range f.required {
		t, ok := f.last[r]
		if !ok || now.Sub(t) > f.maxAge {
			return false
		}
	}
	return true
}
