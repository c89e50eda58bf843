package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ImportRow is one student line of a bulk import file.
type ImportRow struct {
	Line       int    `json:"-"`
	Problem    string `json:"-"` // set when the line could not be parsed
	StudentID  string `json:"student_id" validate:"required"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Major      string `json:"major"`
}

func (r ImportRow) missingRequired() bool {
	return r.StudentID == "" || r.FirstName == "" || r.LastName == "" || r.Email == ""
}

// RowError is a failure tied to one import row. Rows are numbered from 1.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) Error() string { return fmt.Sprintf("Row %d: %s", e.Row, e.Message) }

// ImportResult is returned to the caller; row errors are never dropped.
type ImportResult struct {
	Successful int        `json:"successful"`
	Errors     []RowError `json:"errors"`
	Log        *ImportLog `json:"log,omitempty"`
}

// ParseImportCSV reads a header line followed by student rows. Column names
// are matched case-insensitively; unknown columns are ignored. A malformed
// line becomes a row with Problem set and reading continues.
func ParseImportCSV(r io.Reader) ([]ImportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, NewValidationError(errors.New("import file is empty"))
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols["student_id"]; !ok {
		return nil, NewValidationError(errors.New("import file has no student_id column"),
			FieldError{Field: "student_id", Error: "column missing"})
	}

	var rows []ImportRow
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			rows = append(rows, ImportRow{Line: line, Problem: "Malformed line: " + perr.Err.Error()})
			continue
		}
		if err != nil {
			return rows, fmt.Errorf("read row %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		rows = append(rows, ImportRow{
			Line:       line,
			StudentID:  get("student_id"),
			FirstName:  get("first_name"),
			LastName:   get("last_name"),
			Email:      get("email"),
			Phone:      get("phone"),
			Department: get("department"),
			Major:      get("major"),
		})
	}
	return rows, nil
}

// rowProblem describes why a row cannot be imported, or returns "".
func rowProblem(r ImportRow) string {
	if r.Problem != "" {
		return r.Problem
	}
	if r.missingRequired() {
		return "Missing required fields"
	}
	if err := checkStruct(r); err != nil {
		return err.Error()
	}
	return ""
}
