// Package importer bulk-loads students from CSV files.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/isdelr/student-records-be/internal/models"
	"github.com/rs/zerolog/log"
)

// Column aliases, English and the headers of the legacy export.
var headerAliases = map[string]string{
	"last_name":  "last_name",
	"фамилия":    "last_name",
	"first_name": "first_name",
	"имя":        "first_name",
	"faculty":    "faculty",
	"факультет":  "faculty",
	"course":     "course",
	"курс":       "course",
	"grade":      "grade",
	"оценка":     "grade",
}

var requiredColumns = []string{"last_name", "first_name", "faculty", "course", "grade"}

// StudentCreator is the subset of the student store used by the importer.
type StudentCreator interface {
	CreateStudent(ctx context.Context, in models.StudentInput) (models.Student, error)
}

// Row is a parsed CSV record with its 1-based line number.
type Row struct {
	Line  int
	Input models.StudentInput
}

// RowError describes a record that could not be parsed or inserted.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Result summarizes an import run.
type Result struct {
	Inserted int
	Failed   []RowError
}

// Parse reads the header and every record of r. Malformed records are
// reported as RowErrors; only an unusable header or a read failure
// returns an error.
func Parse(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv is empty")
		}
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	index, err := mapHeader(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows    []Row
		rowErrs []RowError
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, RowError{Line: perr.Line, Err: perr.Err})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		// FieldPos is only valid once the record parsed cleanly.
		line, _ := reader.FieldPos(0)

		in, err := toInput(record, index)
		if err == nil {
			err = in.Validate()
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, Row{Line: line, Input: in})
	}
	return rows, rowErrs, nil
}

// Insert creates every row through store. A failing row is logged and
// skipped; rows already inserted stay inserted.
func Insert(ctx context.Context, store StudentCreator, rows []Row) Result {
	var res Result
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, RowError{Line: row.Line, Err: err})
			continue
		}
		if _, err := store.CreateStudent(ctx, row.Input); err != nil {
			log.Error().Err(err).Int("line", row.Line).Msg("Failed to import student")
			res.Failed = append(res.Failed, RowError{Line: row.Line, Err: err})
			continue
		}
		res.Inserted++
	}
	return res
}

// ImportFile parses the CSV file at path and inserts its valid rows.
func ImportFile(ctx context.Context, store StudentCreator, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, rowErrs, err := Parse(f)
	if err != nil {
		return Result{}, err
	}
	for _, re := range rowErrs {
		log.Warn().Err(re.Err).Int("line", re.Line).Str("path", path).Msg("Skipping invalid csv row")
	}

	res := Insert(ctx, store, rows)
	res.Failed = append(rowErrs, res.Failed...)
	return res, nil
}

func mapHeader(header []string) (map[string]int, error) {
	index := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if col, ok := headerAliases[key]; ok {
			index[col] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv header is missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func toInput(record []string, index map[string]int) (models.StudentInput, error) {
	field := func(col string) (string, error) {
		i := index[col]
		if i >= len(record) {
			return "", fmt.Errorf("missing %s", col)
		}
		return strings.TrimSpace(record[i]), nil
	}

	var in models.StudentInput
	var err error
	if in.LastName, err = field("last_name"); err != nil {
		return in, err
	}
	if in.FirstName, err = field("first_name"); err != nil {
		return in, err
	}
	if in.Faculty, err = field("faculty"); err != nil {
		return in, err
	}
	if in.Course, err = field("course"); err != nil {
		return in, err
	}
	gradeStr, err := field("grade")
	if err != nil {
		return in, err
	}
	// The legacy export writes decimals with a comma.
	in.Grade, err = strconv.ParseFloat(strings.Replace(gradeStr, ",", ".", 1), 64)
	if err != nil {
		return in, fmt.Errorf("invalid grade %q", gradeStr)
	}
	return in, nil
}
