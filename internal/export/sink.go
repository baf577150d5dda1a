package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

func NewSink(format string, w io.Writer) (Sink, error) {
	switch format {
	case FormatXLSX, "":
		return NewXLSXSink(w)
	case FormatCSV:
		return NewCSVSink(w), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// CSVSink writes rows as CSV and pushes every chunk to the client.
type CSVSink struct {
	out io.Writer
	w   *csv.Writer
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{out: w, w: csv.NewWriter(w)}
}

func (s *CSVSink) WriteHeader(columns []string) error {
	return s.w.Write(columns)
}

func (s *CSVSink) WriteRows(columns []string, rows []map[string]any) error {
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = cellString(row[col])
		}
		if err := s.w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVSink) Flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if f, ok := s.out.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *CSVSink) Close() error { return s.Flush() }

// Abort leaves the rows written so far as a truncated file.
func (s *CSVSink) Abort() error { return s.Flush() }

func (s *CSVSink) ContentType() string { return "text/csv" }

func (s *CSVSink) Extension() string { return FormatCSV }

// XLSXSink builds a single-sheet workbook with an excelize stream writer.
// Nothing reaches the underlying writer before Close, so an aborted export writes no bytes.
type XLSXSink struct {
	out  io.Writer
	file *excelize.File
	sw   *excelize.StreamWriter
	row  int
}

const sheetName = "Sheet1"

func NewXLSXSink(w io.Writer) (*XLSXSink, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create stream writer: %w", err)
	}
	return &XLSXSink{out: w, file: f, sw: sw, row: 1}, nil
}

func (s *XLSXSink) setRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.sw.SetRow(cell, values); err != nil {
		return err
	}
	s.row++
	return nil
}

func (s *XLSXSink) WriteHeader(columns []string) error {
	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	return s.setRow(values)
}

func (s *XLSXSink) WriteRows(columns []string, rows []map[string]any) error {
	for _, row := range rows {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = cellValue(row[col])
		}
		if err := s.setRow(values); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op: the stream writer spills rows to a temporary file on its own.
func (s *XLSXSink) Flush() error { return nil }

func (s *XLSXSink) Close() error {
	defer s.file.Close()

	if err := s.sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush workbook: %w", err)
	}
	if err := s.file.Write(s.out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Abort discards the workbook and its temporary files.
func (s *XLSXSink) Abort() error {
	return s.file.Close()
}

func (s *XLSXSink) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (s *XLSXSink) Extension() string { return FormatXLSX }

func cellValue(v any) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, int, int32, int64, uint64, float32, float64, time.Time:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
