package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/refql/internal/domain"
	"github.com/rpattn/refql/internal/query"
	"github.com/rpattn/refql/internal/schema"
	"github.com/rpattn/refql/internal/store"
)

// Format selects the serialization of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for formats the service cannot write.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Service exports the documents matching a condition tree to a tabular
// file. Filters run through the query rewriter first, so exports can
// select across reference fields like any other query.
type Service struct {
	registry *schema.Registry
	store    store.Store
	maxDepth int
	now      func() time.Time
}

// Option configures the export service.
type Option func(*Service)

// WithMaxDepth bounds reference resolution in export filters.
func WithMaxDepth(limit int) Option {
	return func(s *Service) {
		s.maxDepth = limit
	}
}

// NewService creates a new export service.
func NewService(registry *schema.Registry, st store.Store, opts ...Option) *Service {
	service := &Service{
		registry: registry,
		store:    st,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request describes an export.
type Request struct {
	Collection string
	Filter     domain.Condition
	Format     Format
}

// Result returns export level metrics.
type Result struct {
	Collection string `json:"collection"`
	Rows       int    `json:"rows"`
	FileName   string `json:"fileName"`
}

// Export writes the matching documents of a collection to w. Columns are
// the identity field followed by the schema's declared fields in order;
// embedded values serialize as JSON.
func (s *Service) Export(ctx context.Context, req Request, w io.Writer) (Result, error) {
	target, ok := s.registry.Lookup(req.Collection)
	if !ok {
		return Result{}, fmt.Errorf("collection %s is not registered", req.Collection)
	}

	rewriter, err := query.NewRewriter(s.registry, s.store, req.Collection, query.WithMaxDepth(s.maxDepth))
	if err != nil {
		return Result{}, err
	}
	filter, err := rewriter.Rewrite(ctx, req.Filter)
	if err != nil {
		return Result{}, err
	}

	docs, err := s.store.Find(ctx, req.Collection, filter, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load documents for export: %w", err)
	}

	headers := make([]string, 0, len(target.Fields)+1)
	headers = append(headers, target.IDField)
	for _, field := range target.Fields {
		headers = append(headers, field.Name)
	}

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		row := make([]string, len(headers))
		row[0] = doc.ID.String()
		for i, field := range target.Fields {
			row[i+1] = renderCell(doc.Properties[field.Name])
		}
		rows = append(rows, row)
	}

	result := Result{
		Collection: req.Collection,
		Rows:       len(rows),
		FileName:   fmt.Sprintf("%s_%s.%s", strings.ToLower(req.Collection), s.now().Format("20060102_150405"), req.Format),
	}

	switch req.Format {
	case FormatCSV:
		if err := writeCSV(w, headers, rows); err != nil {
			return Result{}, err
		}
	case FormatXLSX:
		if err := writeXLSX(w, req.Collection, headers, rows); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	return result, nil
}

// renderCell serializes a property value for a spreadsheet cell.
func renderCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, sheet string, headers []string, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	writeRow := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(sheet, cell, &cells)
	}

	if err := writeRow(1, headers); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return fmt.Errorf("failed to write xlsx row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return nil
}
