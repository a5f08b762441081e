package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format classifies an uploaded pricelist file.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatExcel   Format = "excel"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Sheet is one worksheet tab as a raw 2-D grid. Row 0 holds headers when
// the sheet has any.
type Sheet struct {
	Name string
	Rows [][]string
}

// RawWorkbook is the parsed form every input format converges to.
// It is never mutated after parsing.
type RawWorkbook struct {
	Sheets []Sheet
}

func (wb *RawWorkbook) SheetNames() []string {
	names := make([]string, 0, len(wb.Sheets))
	for _, s := range wb.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// SheetByName finds a sheet whose normalized name contains the normalized
// target, so "Decksaver price list" matches "price list".
func (wb *RawWorkbook) SheetByName(nameLike string) *Sheet {
	target := normCell(nameLike)
	if target == "" {
		return nil
	}
	for i := range wb.Sheets {
		if strings.Contains(normCell(wb.Sheets[i].Name), target) {
			return &wb.Sheets[i]
		}
	}
	return nil
}

// normCell lowercases and strips every non-alphanumeric rune. Used for
// sheet-name and header matching.
func normCell(v string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(v)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClassifyFormat decides the file format from extension and declared MIME
// type. Content sniffing happens during parsing.
func ClassifyFormat(filename string, mimeType string) Format {
	ext := strings.ToLower(filename)
	if i := strings.LastIndex(ext, "."); i >= 0 {
		ext = ext[i+1:]
	} else {
		ext = ""
	}
	mime := strings.ToLower(mimeType)

	switch {
	case ext == "csv" || strings.Contains(mime, "csv") || strings.Contains(mime, "text"):
		return FormatCSV
	case ext == "xlsx" || ext == "xls" || strings.Contains(mime, "spreadsheet") || strings.Contains(mime, "excel"):
		return FormatExcel
	case ext == "json" || strings.Contains(mime, "json"):
		return FormatJSON
	}
	return FormatUnknown
}

// InferDelimiter picks the CSV delimiter yielding the most columns on the
// first line. Ties favor comma.
func InferDelimiter(firstLine string) rune {
	candidates := []rune{',', ';', '\t', '|'}
	best := ','
	maxColumns := 0
	for _, d := range candidates {
		columns := len(strings.Split(firstLine, string(d)))
		if columns > maxColumns {
			maxColumns = columns
			best = d
		}
	}
	return best
}

// ParseWorkbook parses raw bytes into a RawWorkbook. CSV and JSON inputs
// become single-sheet workbooks. The returned delimiter is only meaningful
// for CSV input.
func ParseWorkbook(data []byte, filename string, mimeType string) (*RawWorkbook, Format, rune, error) {
	format := ClassifyFormat(filename, mimeType)
	switch format {
	case FormatCSV:
		wb, delim, err := parseCSVWorkbook(data)
		return wb, format, delim, err
	case FormatExcel:
		wb, err := parseExcelWorkbook(data)
		return wb, format, 0, err
	case FormatJSON:
		wb, err := parseJSONWorkbook(data)
		return wb, format, 0, err
	}
	return nil, FormatUnknown, 0, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filename, mimeType)
}

func parseCSVWorkbook(data []byte) (*RawWorkbook, rune, error) {
	content := string(data)
	firstLine := content
	if i := strings.IndexAny(content, "\r\n"); i >= 0 {
		firstLine = content[:i]
	}
	delim := InferDelimiter(firstLine)

	r := csv.NewReader(strings.NewReader(content))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, delim, fmt.Errorf("csv parsing failed: %v", err)
	}

	var rows [][]string
	for _, rec := range records {
		empty := true
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if rec[i] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, rec)
		}
	}
	if len(rows) == 0 {
		return nil, delim, errors.New("no data found in csv file")
	}

	return &RawWorkbook{Sheets: []Sheet{{Name: "Sheet1", Rows: rows}}}, delim, nil
}

func parseExcelWorkbook(data []byte) (*RawWorkbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("excel parsing failed: %v", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, errors.New("no sheets found in excel file")
	}

	wb := &RawWorkbook{}
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("excel parsing failed for sheet %q: %v", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

func parseJSONWorkbook(data []byte) (*RawWorkbook, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("json parsing failed: %v", err)
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		inner, ok := v["data"].([]any)
		if !ok {
			return nil, errors.New("json must contain an array of objects")
		}
		items = inner
	default:
		return nil, errors.New("json must contain an array of objects")
	}
	if len(items) == 0 {
		return nil, errors.New("no data found in json file")
	}

	first, ok := items[0].(map[string]any)
	if !ok {
		return nil, errors.New("json must contain an array of objects")
	}

	// encoding/json does not preserve key order; sort headers so the
	// resulting grid is deterministic.
	headers := make([]string, 0, len(first))
	for k := range first {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	rows := [][]string{headers}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = jsonCellString(obj[h])
		}
		rows = append(rows, row)
	}

	return &RawWorkbook{Sheets: []Sheet{{Name: "Sheet1", Rows: rows}}}, nil
}

func jsonCellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
