package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eleven-am/fwmatch/internal/domain"
)

const recordFields = 4

// ReadCSV reads direction,protocol,port_range,ip_range rows. Blank lines and
// lines starting with '#' are skipped. Each record's Source is name:line.
func ReadCSV(r io.Reader, name string) ([]domain.RuleRecord, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records []domain.RuleRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			src := name
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				src = fmt.Sprintf("%s:%d", name, parseErr.Line)
			}
			return nil, &domain.MalformedRuleError{Source: src, Field: "row", Reason: "unreadable row", Err: err}
		}
		line, _ := reader.FieldPos(0)
		src := fmt.Sprintf("%s:%d", name, line)
		if len(row) != recordFields {
			return nil, &domain.MalformedRuleError{
				Source: src,
				Field:  "row",
				Value:  strings.Join(row, ","),
				Reason: fmt.Sprintf("expected %d fields, got %d", recordFields, len(row)),
			}
		}
		records = append(records, domain.RuleRecord{
			Direction: strings.TrimSpace(row[0]),
			Protocol:  strings.TrimSpace(row[1]),
			PortRange: strings.TrimSpace(row[2]),
			IPRange:   strings.TrimSpace(row[3]),
			Source:    src,
		})
	}
}

// CSVFile returns a loader that re-reads path on every call.
func CSVFile(path string) func(ctx context.Context) ([]domain.RuleRecord, error) {
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open rules file %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f, path)
	}
}

func Static(records []domain.RuleRecord) func(ctx context.Context) ([]domain.RuleRecord, error) {
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		out := make([]domain.RuleRecord, len(records))
		copy(out, records)
		return out, nil
	}
}
