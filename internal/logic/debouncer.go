package logic

// DefaultConfirmThreshold is the mismatch count that must be exceeded before
// a new level is accepted (5 consecutive differing samples).
const DefaultConfirmThreshold = 4

// Debouncer turns noisy raw switch levels into a stable level.
// Not safe for concurrent use; it is owned by the control loop.
type Debouncer struct {
	threshold  int
	stable     Level
	mismatches int
}

// NewDebouncer creates a Debouncer with the given confirmation threshold.
// A non-positive threshold falls back to DefaultConfirmThreshold.
func NewDebouncer(threshold int) *Debouncer {
	if threshold <= 0 {
		threshold = DefaultConfirmThreshold
	}
	return &Debouncer{threshold: threshold}
}

// Observe feeds one raw sample and returns the stable level.
// The first sample after construction is accepted immediately.
func (d *Debouncer) Observe(raw int) Level {
	if d.stable.IsSet() && raw == d.stable.Value() {
		d.mismatches = 0
		return d.stable
	}

	d.mismatches++
	if d.mismatches > d.threshold || !d.stable.IsSet() {
		d.stable = LevelOf(raw)
		d.mismatches = 0
	}
	return d.stable
}

// Stable returns the current stable level without observing a sample.
func (d *Debouncer) Stable() Level {
	return d.stable
}

// Mismatches returns the number of consecutive samples that differed from
// the stable level.
func (d *Debouncer) Mismatches() int {
	return d.mismatches
}
