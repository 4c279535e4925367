package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOrderDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"site card format", "Aug 10, 2026", date(2026, time.August, 10), true},
		{"site card format padded day", "Nov 05, 2025", date(2025, time.November, 5), true},
		{"slash format", "08/10/2026", date(2026, time.August, 10), true},
		{"iso format", "2026-08-10", date(2026, time.August, 10), true},
		{"surrounding whitespace", "  Aug 10, 2026 ", date(2026, time.August, 10), true},
		{"yearless label", "Nov 05", time.Time{}, false},
		{"garbage", "order placed recently", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOrderDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			}
		})
	}
}

func TestDateWindowContains(t *testing.T) {
	w := DateWindow{
		Start: date(2026, time.June, 1),
		End:   date(2026, time.June, 30),
	}

	assert.True(t, w.Contains(date(2026, time.June, 1)), "start day is inclusive")
	assert.True(t, w.Contains(date(2026, time.June, 30)), "end day is inclusive")
	assert.True(t, w.Contains(date(2026, time.June, 15)))
	assert.False(t, w.Contains(date(2026, time.May, 31)))
	assert.False(t, w.Contains(date(2026, time.July, 1)))
}

func TestDateWindowIgnoresTimeOfDay(t *testing.T) {
	w := DateWindow{
		Start: date(2026, time.June, 1),
		End:   date(2026, time.June, 30),
	}
	lateOnLastDay := time.Date(2026, time.June, 30, 23, 59, 59, 0, time.UTC)
	assert.True(t, w.Contains(lateOnLastDay))
}
