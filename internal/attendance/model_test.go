package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09:05", "09:05", false},
		{"14:30:59", "14:30", false},
		{" 7:00", "07:00", false},
		{"25:00", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDateRangeContains(t *testing.T) {
	from, to := mustDate(t, "2024-01-10"), mustDate(t, "2024-01-20")
	r := DateRange{From: &from, To: &to}
	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to))
	assert.False(t, r.Contains(mustDate(t, "2024-01-21")))
	assert.True(t, DateRange{}.Contains(mustDate(t, "1999-12-31")))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Excused", StatusExcused.Label())
	assert.True(t, StatusLate.Valid())
	assert.False(t, Status("Present").Valid())
}
