package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mattsolo1/grove-script/pkg/provider"
)

func TestTimeoutTiers(t *testing.T) {
	timeouts := provider.DefaultTimeouts()

	tests := []struct {
		model string
		want  time.Duration
	}{
		{"gemini-1.5-flash", timeouts.Fast},
		{"gpt-4o-mini", timeouts.Fast},
		{"claude-haiku", timeouts.Fast},
		{"gemini-1.5-pro", timeouts.Pro},
		{"gpt-4o", timeouts.Pro},
		{"claude-opus", timeouts.Pro},
		{"completely-unknown-model", timeouts.Pro},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, timeouts.ForModel(tt.model))
		})
	}

	assert.Equal(t, timeouts.Local, timeouts.ForLocal())
	assert.Greater(t, timeouts.Local, timeouts.Pro)
	assert.Greater(t, timeouts.Pro, timeouts.Fast)
}

func TestTimeoutZeroValuesTakeDefaults(t *testing.T) {
	var timeouts provider.Timeouts
	defaults := provider.DefaultTimeouts()
	assert.Equal(t, defaults.Pro, timeouts.ForModel("big-model"))
	assert.Equal(t, defaults.Fast, timeouts.ForModel("small-mini"))
	assert.Equal(t, defaults.Local, timeouts.ForLocal())
}
