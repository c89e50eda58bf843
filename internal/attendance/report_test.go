package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleGeneral(t *testing.T) {
	st := Student{StudentID: "S1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@uni.edu"}
	records := []Record{{
		Student:    &st,
		Status:     StatusLate,
		Remarks:    "bus",
		RecordedAt: time.Date(2024, 1, 8, 9, 12, 30, 0, time.UTC),
	}}

	tbl := AssembleGeneral(records)
	assert.Equal(t, KindGeneral, tbl.Kind)
	assert.Equal(t, []string{"Student ID", "Name", "Email", "Status", "Remarks", "Recorded At"}, tbl.Header)
	assert.Equal(t, [][]string{{"S1", "Ada Lovelace", "ada@uni.edu", "Late", "bus", "2024-01-08 09:12:30"}}, tbl.Rows)
	assert.Empty(t, tbl.Sections)
}

func TestAssembleStudent(t *testing.T) {
	rep := StudentReportData{
		Student: Student{StudentID: "S1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@uni.edu"},
		Courses: []CourseTally{{
			Course:         Course{Code: "CS101"},
			TotalSessions:  10,
			Present:        7,
			Absent:         2,
			Late:           1,
			AttendanceRate: 80,
		}},
		TotalSessions: 10, TotalPresent: 7, TotalAbsent: 2, TotalLate: 1,
	}

	tbl := AssembleStudent(rep)
	assert.Equal(t, []string{"Attendance Report for:", "Ada Lovelace"}, tbl.Preamble[0])
	assert.Equal(t, [][]string{{"CS101", "10", "7", "2", "1", "0", "80.0%"}}, tbl.Rows)
	require.Len(t, tbl.Sections, 1)
	assert.Equal(t, "Summary", tbl.Sections[0].Title)
	assert.Contains(t, tbl.Sections[0].Rows, []string{"Total Sessions", "10"})
	assert.Contains(t, tbl.Sections[0].Rows, []string{"Total Excused", "0"})
}

func TestAssembleCourse(t *testing.T) {
	from := mustDate(t, "2024-01-01")
	rep := CourseReportData{
		Course: Course{Code: "CS101", Name: "Intro"},
		Range:  DateRange{From: &from},
		Sessions: []SessionBlock{{
			Session:        Session{Date: mustDate(t, "2024-01-03"), StartTime: tod(9, 0), EndTime: tod(10, 30)},
			Tally:          Tally{Total: 3, Present: 2, Absent: 1},
			AttendanceRate: 66.7,
		}},
		Students: []StudentSummary{{
			Student:        Student{StudentID: "S1", FirstName: "Ada", LastName: "Lovelace"},
			Tally:          Tally{Total: 1, Present: 1},
			AttendanceRate: 100,
		}},
	}

	tbl := AssembleCourse(rep)
	require.Len(t, tbl.Preamble, 2)
	assert.Equal(t, []string{"Date Range:", "2024-01-01", "to", ""}, tbl.Preamble[1])
	assert.Equal(t, [][]string{{"2024-01-03", "09:00 - 10:30", "3", "2", "1", "0", "0", "66.7%"}}, tbl.Rows)
	require.Len(t, tbl.Sections, 1)
	assert.Equal(t, "Student Summary", tbl.Sections[0].Title)
	assert.Equal(t, [][]string{{"Ada Lovelace", "S1", "1", "1", "0", "0", "0", "100.0%"}}, tbl.Sections[0].Rows)
}

func TestAssembleDispatch(t *testing.T) {
	tbl, err := Assemble(KindGeneral, []Record{})
	require.NoError(t, err)
	assert.Equal(t, KindGeneral, tbl.Kind)

	_, err = Assemble(KindCourse, []Record{})
	assert.Error(t, err)

	_, err = Assemble("weekly", nil)
	assert.Error(t, err)
}

func TestParseReportKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ReportKind
		wantErr bool
	}{
		{"", KindGeneral, false},
		{"general", KindGeneral, false},
		{"student", KindStudent, false},
		{"course", KindCourse, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReportKind(tt.in)
			if tt.wantErr {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "type", verr.Fields[0].Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
