package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/refql/internal/domain"
	"github.com/rpattn/refql/internal/schema"
	"github.com/rpattn/refql/internal/store"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
	}
)

// Service ingests tabular data into registered collections. Column headers
// map to schema field paths; dotted headers populate embedded objects.
type Service struct {
	registry *schema.Registry
	store    store.Store
}

// NewService creates a new ingestion service.
func NewService(registry *schema.Registry, st store.Store) *Service {
	return &Service{registry: registry, store: st}
}

// Request describes the ingestion input.
type Request struct {
	Collection     string
	FileName       string
	HeaderRowIndex *int
	Data           io.Reader
}

// RowError reports why a single row was rejected.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary returns ingestion level metrics.
type Summary struct {
	TotalRows      int        `json:"totalRows"`
	ValidRows      int        `json:"validRows"`
	InvalidRows    int        `json:"invalidRows"`
	SkippedColumns []string   `json:"skippedColumns"`
	Errors         []RowError `json:"errors,omitempty"`
}

type tableData struct {
	headers        []string
	rawHeaders     []string
	rows           [][]string
	headerRowIndex int
}

// Ingest reads the uploaded file and persists one document per valid row.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{SkippedColumns: []string{}, Errors: []RowError{}}

	if strings.TrimSpace(req.Collection) == "" {
		return summary, errors.New("collection is required")
	}
	target, ok := s.registry.Lookup(req.Collection)
	if !ok {
		return summary, fmt.Errorf("collection %s is not registered", req.Collection)
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	if len(table.headers) == 0 {
		return summary, errors.New("no header row detected")
	}

	// Columns that do not resolve on the schema are skipped rather than
	// failing the whole upload.
	columns := make([]domain.FieldDefinition, len(table.headers))
	mapped := make([]bool, len(table.headers))
	for idx, header := range table.headers {
		field, ok := target.Path(header)
		if !ok {
			summary.SkippedColumns = append(summary.SkippedColumns, header)
			continue
		}
		columns[idx] = field
		mapped[idx] = true
	}

	summary.TotalRows = len(table.rows)

	for rowIdx, row := range table.rows {
		rowNumber := table.headerRowIndex + rowIdx + 2 // include header row (1-based)
		properties := make(map[string]any)
		rowValid := true

		for colIdx, header := range table.headers {
			if colIdx >= len(row) || !mapped[colIdx] {
				continue
			}

			raw := strings.TrimSpace(row[colIdx])
			if raw == "" {
				continue
			}

			value, coerceErr := coerceValue(columns[colIdx], raw)
			if coerceErr != nil {
				rowValid = false
				summary.Errors = append(summary.Errors, RowError{
					RowNumber: rowNumber,
					Message:   fmt.Sprintf("field %s: %v", header, coerceErr),
				})
				break
			}
			assignPath(properties, header, value)
		}

		if !rowValid {
			summary.InvalidRows++
			continue
		}

		if missing := missingRequired(target, properties); missing != "" {
			summary.Errors = append(summary.Errors, RowError{
				RowNumber: rowNumber,
				Message:   fmt.Sprintf("required field %s is missing", missing),
			})
			summary.InvalidRows++
			continue
		}

		doc := domain.NewDocument(req.Collection, properties)
		if _, err := s.store.Insert(ctx, doc); err != nil {
			summary.Errors = append(summary.Errors, RowError{
				RowNumber: rowNumber,
				Message:   fmt.Sprintf("failed to insert document: %v", err),
			})
			summary.InvalidRows++
			continue
		}

		summary.ValidRows++
	}

	return summary, nil
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return normalizeTable(rows, headerRowIndex)
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	headerIndex := -1

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		selected := cleanRow(records[*headerRowIndex])
		if len(selected) == 0 {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		headerIndex = *headerRowIndex
		for idx := *headerRowIndex + 1; idx < len(records); idx++ {
			row := records[idx]
			if len(cleanRow(row)) == 0 {
				continue
			}
			dataRows = append(dataRows, row)
		}
	} else {
		for idx, row := range records {
			if len(cleanRow(row)) == 0 {
				continue
			}
			if headerRow == nil {
				headerRow = row
				headerIndex = idx
				continue
			}
			dataRows = append(dataRows, row)
		}
	}

	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	rawHeaders := make([]string, len(headerRow))
	for i, value := range headerRow {
		rawHeaders[i] = strings.TrimSpace(value)
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	dataRows = filterEmptyRows(dataRows)

	return tableData{
		headers:        headers,
		rawHeaders:     rawHeaders,
		rows:           dataRows,
		headerRowIndex: headerIndex,
	}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

// sanitizeHeaders normalizes column labels to field paths. Dots are kept
// so headers can address embedded object fields.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	for i := len(row); i < length; i++ {
		padded[i] = ""
	}
	return padded
}

func filterEmptyRows(rows [][]string) [][]string {
	var filtered [][]string
	for _, row := range rows {
		keep := false
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				keep = true
				break
			}
		}
		if keep {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// coerceValue converts a cell to the representation its field expects.
// Reference cells must be identifiers; scalars take the tightest type the
// text parses as.
func coerceValue(field domain.FieldDefinition, raw string) (any, error) {
	switch field.Category {
	case domain.CategoryReference:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to a document identifier: %w", raw, err)
		}
		return id.String(), nil
	case domain.CategoryEmbeddedObject, domain.CategoryEmbeddedArray:
		return nil, fmt.Errorf("column maps to an embedded field; address its sub-fields with dotted headers")
	default:
		return coerceScalar(raw), nil
	}
}

func coerceScalar(raw string) any {
	lowered := strings.ToLower(raw)
	if lowered == "true" || lowered == "false" {
		return lowered == "true"
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) {
		return f
	}
	if ts, err := parseTimestamp(raw); err == nil {
		return ts.Format(time.RFC3339)
	}
	return raw
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// assignPath writes a value into nested maps following a dotted path.
func assignPath(properties map[string]any, path string, value any) {
	segments := strings.Split(path, domain.PathSeparator)
	cur := properties
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		child, ok := cur[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			cur[seg] = child
		}
		cur = child
	}
}

// missingRequired returns the name of the first required top-level field
// absent from the row, or "".
func missingRequired(s *domain.Schema, properties map[string]any) string {
	for _, field := range s.Fields {
		if !field.Required {
			continue
		}
		if _, ok := properties[field.Name]; !ok {
			return field.Name
		}
	}
	return ""
}
