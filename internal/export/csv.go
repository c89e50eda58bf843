package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"uniattend/internal/attendance"
)

// ContentType is the media type written by WriteCSV.
const ContentType = "text/csv; charset=utf-8"

// WriteCSV serialises t: preamble lines, a blank line, the header, the rows,
// then each section after a blank line and its title.
func WriteCSV(w io.Writer, t attendance.Table) error {
	cw := csv.NewWriter(w)
	if len(t.Preamble) > 0 {
		if err := cw.WriteAll(t.Preamble); err != nil {
			return err
		}
		if err := cw.Write([]string{}); err != nil {
			return err
		}
	}
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	for _, s := range t.Sections {
		if err := cw.Write([]string{}); err != nil {
			return err
		}
		if err := cw.Write([]string{s.Title}); err != nil {
			return err
		}
		if len(s.Header) > 0 {
			if err := cw.Write(s.Header); err != nil {
				return err
			}
		}
		if err := cw.WriteAll(s.Rows); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds a download name such as "course_CS101_20240131.csv".
func Filename(kind attendance.ReportKind, subject string, at time.Time) string {
	subject = strings.Trim(unsafeName.ReplaceAllString(subject, "_"), "_")
	if subject == "" {
		return fmt.Sprintf("%s_%s.csv", kind, at.Format("20060102"))
	}
	return fmt.Sprintf("%s_%s_%s.csv", kind, subject, at.Format("20060102"))
}
