package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Ana Ruiz", 20, "Ana Ruiz"},
		{"Ofrenda Especial", 8, "Ofrenda…"},
		{"Diácono", 4, "Diá…"},
		{"abc", 1, "…"},
		{"abc", 0, "abc"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), tt.in)
	}
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", OrDash(""))
	assert.Equal(t, "-", OrDash("  "))
	assert.Equal(t, "7777-0000", OrDash("7777-0000"))
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "never", FormatAgo(time.Time{}, now))
	assert.Equal(t, "just now", FormatAgo(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", FormatAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", FormatAgo(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", FormatAgo(now.Add(-49*time.Hour), now))
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name                     string
		total, size, page        int
		start, end, current, all int
	}{
		{"first page", 45, 20, 1, 0, 20, 1, 3},
		{"last partial page", 45, 20, 3, 40, 45, 3, 3},
		{"past the end clamps", 45, 20, 9, 40, 45, 3, 3},
		{"below one clamps", 45, 20, -2, 0, 20, 1, 3},
		{"empty", 0, 20, 1, 0, 0, 1, 1},
		{"no paging", 7, 0, 4, 0, 7, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, current, pages := PageBounds(tt.total, tt.size, tt.page)
			assert.Equal(t, []int{tt.start, tt.end, tt.current, tt.all}, []int{start, end, current, pages})
		})
	}
}

func TestWrapText(t *testing.T) {
	msg := "members insert m-3: remote rejected: duplicate key value violates unique constraint"

	wrapped := WrapText(msg, 30, 2)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.True(t, strings.HasPrefix(line, "  "), "line %q is indented", line)
		assert.LessOrEqual(t, len(line), 32)
	}
	assert.Equal(t, msg, strings.Join(strings.Fields(wrapped), " "))
}
