package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryKey(t *testing.T) {
	// Identical queries collide.
	assert.Equal(t,
		SummaryKey("app-1", "click", "2026-01-01", "2026-01-31"),
		SummaryKey("app-1", "click", "2026-01-01", "2026-01-31"))

	// Unbounded sides use a sentinel instead of vanishing.
	assert.Equal(t, "event-summary:app-1:click:all:all", SummaryKey("app-1", "click", "", ""))

	// Any differing parameter produces a distinct key.
	base := SummaryKey("app-1", "click", "2026-01-01", "")
	assert.NotEqual(t, base, SummaryKey("app-2", "click", "2026-01-01", ""))
	assert.NotEqual(t, base, SummaryKey("app-1", "view", "2026-01-01", ""))
	assert.NotEqual(t, base, SummaryKey("app-1", "click", "", ""))
	assert.NotEqual(t, base, SummaryKey("app-1", "click", "2026-01-01", "2026-01-02"))
}

func TestUserStatsKey(t *testing.T) {
	assert.Equal(t, "user-stats:app-1:u1", UserStatsKey("app-1", "u1"))
	assert.NotEqual(t, UserStatsKey("app-1", "u1"), UserStatsKey("app-1", "u2"))
	assert.NotEqual(t, UserStatsKey("app-1", "u1"), UserStatsKey("app-2", "u1"))
}
