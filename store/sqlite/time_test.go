package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime_RoundTrip(t *testing.T) {
	at := time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC)

	got, err := parseTime(at.Format(time.RFC3339))
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}

func TestParseTime_Malformed(t *testing.T) {
	// A corrupted timestamp must surface as an error, not as the zero time.

	for _, raw := range []string{"", "not-a-timestamp", "2026-13-99T99:99:99Z"} {
		_, err := parseTime(raw)
		assert.Error(t, err, "input %q", raw)
		assert.Contains(t, err.Error(), "failed to parse timestamp")
	}
}
