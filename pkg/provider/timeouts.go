package provider

import (
	"strings"
	"time"
)

// Timeouts are the per-call budgets, tiered by model class. Fast covers
// small models ("flash", "mini", "haiku"...), Pro covers the large
// tiers, and Local covers the local daemon backend, which may spend most
// of its budget loading weights.
type Timeouts struct {
	Fast  time.Duration
	Pro   time.Duration
	Local time.Duration
}

// DefaultTimeouts returns the standard tier budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Fast:  30 * time.Second,
		Pro:   2 * time.Minute,
		Local: 5 * time.Minute,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Fast <= 0 {
		t.Fast = d.Fast
	}
	if t.Pro <= 0 {
		t.Pro = d.Pro
	}
	if t.Local <= 0 {
		t.Local = d.Local
	}
	return t
}

var fastModelMarkers = []string{"flash", "mini", "haiku", "nano", "lite", "small", "tiny"}

// ForModel returns the budget for a cloud model. Unrecognized models get
// the generous tier rather than risking mid-response timeouts.
func (t Timeouts) ForModel(model string) time.Duration {
	t = t.withDefaults()
	lower := strings.ToLower(model)
	for _, marker := range fastModelMarkers {
		if strings.Contains(lower, marker) {
			return t.Fast
		}
	}
	return t.Pro
}

// ForLocal returns the local daemon budget regardless of model.
func (t Timeouts) ForLocal() time.Duration {
	return t.withDefaults().Local
}
