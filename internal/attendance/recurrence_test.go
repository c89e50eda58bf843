package attendance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		tmpl  Template
		dates []string
	}{
		{
			name:  "weekly on mondays",
			tmpl:  Template{StartDate: mustDate(t, "2024-01-01"), EndDate: mustDate(t, "2024-01-31"), Frequency: Weekly, DayOfWeek: 0},
			dates: []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"},
		},
		{
			name:  "weekly starting mid week",
			tmpl:  Template{StartDate: mustDate(t, "2024-01-03"), EndDate: mustDate(t, "2024-01-20"), Frequency: Weekly, DayOfWeek: 4},
			dates: []string{"2024-01-05", "2024-01-12", "2024-01-19"},
		},
		{
			name:  "biweekly from the first matching day",
			tmpl:  Template{StartDate: mustDate(t, "2024-01-01"), EndDate: mustDate(t, "2024-01-31"), Frequency: Biweekly, DayOfWeek: 0},
			dates: []string{"2024-01-01", "2024-01-15", "2024-01-29"},
		},
		{
			name:  "biweekly searching forward",
			tmpl:  Template{StartDate: mustDate(t, "2024-01-03"), EndDate: mustDate(t, "2024-01-31"), Frequency: Biweekly, DayOfWeek: 0},
			dates: []string{"2024-01-08", "2024-01-22"},
		},
		{
			name:  "daily includes both ends",
			tmpl:  Template{StartDate: mustDate(t, "2024-02-28"), EndDate: mustDate(t, "2024-03-01"), Frequency: Daily},
			dates: []string{"2024-02-28", "2024-02-29", "2024-03-01"},
		},
		{
			name:  "daily single day",
			tmpl:  Template{StartDate: mustDate(t, "2024-05-05"), EndDate: mustDate(t, "2024-05-05"), Frequency: Daily},
			dates: []string{"2024-05-05"},
		},
		{
			name:  "monthly on the 31st skips short months",
			tmpl:  Template{StartDate: mustDate(t, "2024-01-31"), EndDate: mustDate(t, "2024-06-30"), Frequency: Monthly},
			dates: []string{"2024-01-31", "2024-03-31", "2024-05-31"},
		},
		{
			name:  "monthly on the 15th",
			tmpl:  Template{StartDate: mustDate(t, "2024-01-15"), EndDate: mustDate(t, "2024-04-14"), Frequency: Monthly},
			dates: []string{"2024-01-15", "2024-02-15", "2024-03-15"},
		},
		{
			name: "start after end",
			tmpl: Template{StartDate: mustDate(t, "2024-02-01"), EndDate: mustDate(t, "2024-01-01"), Frequency: Daily},
		},
		{
			name: "unknown frequency",
			tmpl: Template{StartDate: mustDate(t, "2024-01-01"), EndDate: mustDate(t, "2024-01-31"), Frequency: "yearly"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, d := range Expand(tt.tmpl) {
				got = append(got, d.Format("2006-01-02"))
			}
			assert.Equal(t, tt.dates, got)
		})
	}
}

func TestExpandGaps(t *testing.T) {
	tmpl := Template{StartDate: mustDate(t, "2024-01-01"), EndDate: mustDate(t, "2024-12-31"), DayOfWeek: 2}

	tmpl.Frequency = Weekly
	dates := Expand(tmpl)
	require.NotEmpty(t, dates)
	for i := 1; i < len(dates); i++ {
		assert.Equal(t, 7, int(dates[i].Sub(dates[i-1]).Hours()/24))
		assert.Equal(t, 2, Weekday(dates[i]))
	}

	tmpl.Frequency = Biweekly
	dates = Expand(tmpl)
	require.NotEmpty(t, dates)
	for i := 1; i < len(dates); i++ {
		assert.Equal(t, 14, int(dates[i].Sub(dates[i-1]).Hours()/24))
	}
}

func TestTemplateValidate(t *testing.T) {
	valid := Template{
		StartDate: mustDate(t, "2024-01-01"),
		EndDate:   mustDate(t, "2024-01-31"),
		StartTime: TimeOfDay{Hour: 9},
		EndTime:   TimeOfDay{Hour: 10, Minute: 30},
		Frequency: Weekly,
		DayOfWeek: 3,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Template)
		field  string
	}{
		{"missing frequency", func(t *Template) { t.Frequency = "" }, "frequency"},
		{"bad frequency", func(t *Template) { t.Frequency = "hourly" }, "frequency"},
		{"day of week too large", func(t *Template) { t.DayOfWeek = 7 }, "day_of_week"},
		{"negative day of week", func(t *Template) { t.DayOfWeek = -1 }, "day_of_week"},
		{"end before start", func(t *Template) { t.EndDate = t.StartDate.AddDate(0, 0, -1) }, "end_date"},
		{"end time not after start", func(t *Template) { t.EndTime = t.StartTime }, "end_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := valid
			tt.mutate(&tmpl)
			err := tmpl.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			var fields []string
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestWeekday(t *testing.T) {
	assert.Equal(t, 0, Weekday(mustDate(t, "2024-01-01")))
	assert.Equal(t, 6, Weekday(mustDate(t, "2024-01-07")))
}
