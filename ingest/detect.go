package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DetectedColumn describes one column of the first sheet, with an inferred
// type and a suggested canonical target field.
type DetectedColumn struct {
	Index          int      `json:"index"`
	Name           string   `json:"name"`
	InferredType   string   `json:"inferred_type"`
	SampleValues   []string `json:"sample_values"`
	NullCount      int      `json:"null_count"`
	UniqueCount    int      `json:"unique_count"`
	SuggestedField string   `json:"suggested_field,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// FormatDetectionResult is produced once per upload and read-only after.
type FormatDetectionResult struct {
	Format          Format              `json:"format"`
	Delimiter       string              `json:"delimiter,omitempty"`
	HasHeaders      bool                `json:"has_headers"`
	TotalRows       int                 `json:"total_rows"`
	TotalColumns    int                 `json:"total_columns"`
	SheetNames      []string            `json:"sheet_names,omitempty"`
	SampleRows      []map[string]string `json:"sample_rows"`
	DetectedColumns []DetectedColumn    `json:"detected_columns"`
}

const sampleRowLimit = 20

// DetectFormat parses the file and analyzes the structure of its first
// sheet. Pure over input bytes and the static mapping tables.
func DetectFormat(data []byte, filename string, mimeType string) (*FormatDetectionResult, *RawWorkbook, error) {
	wb, format, delim, err := ParseWorkbook(data, filename, mimeType)
	if err != nil {
		return nil, nil, err
	}

	sheet := wb.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil, fmt.Errorf("no data found in %s file", format)
	}

	sample := sheet.Rows
	if len(sample) > sampleRowLimit {
		sample = sample[:sampleRowLimit]
	}

	// JSON grids always carry object keys in row 0.
	hasHeaders := format == FormatJSON || DetectHeaders(sample)

	var headers []string
	var dataRows [][]string
	if hasHeaders {
		headers = sheet.Rows[0]
		dataRows = sheet.Rows[1:]
	} else {
		headers = GenerateColumnHeaders(len(sheet.Rows[0]))
		dataRows = sheet.Rows
	}

	sampleRows := make([]map[string]string, 0, 10)
	for i := 0; i < len(dataRows) && i < 10; i++ {
		obj := make(map[string]string, len(headers))
		for j, h := range headers {
			obj[h] = cellAt(dataRows[i], j)
		}
		sampleRows = append(sampleRows, obj)
	}

	result := &FormatDetectionResult{
		Format:          format,
		HasHeaders:      hasHeaders,
		TotalRows:       len(dataRows),
		TotalColumns:    len(headers),
		SampleRows:      sampleRows,
		DetectedColumns: AnalyzeColumns(headers, dataRows),
	}
	if format == FormatCSV {
		result.Delimiter = string(delim)
	}
	if format == FormatExcel {
		result.SheetNames = wb.SheetNames()
	}
	return result, wb, nil
}

// DetectHeaders decides whether row 0 is a header row by scoring it against
// row 1 column-wise. Non-empty non-numeric cells score up, numeric cells
// score down, a string-over-number column and in-row uniqueness score up.
func DetectHeaders(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	first := rows[0]
	second := rows[1]
	if len(first) == 0 {
		return false
	}

	var score float64
	for i := 0; i < len(first) && i < len(second); i++ {
		cell := strings.TrimSpace(first[i])
		if cell == "" {
			continue
		}
		if isNumericCell(cell) {
			score -= 1
			continue
		}
		score += 1
		if isNumericCell(strings.TrimSpace(second[i])) {
			score += 1
		}
		duplicates := 0
		for _, other := range first {
			if other == first[i] {
				duplicates++
			}
		}
		if duplicates == 1 {
			score += 0.5
		}
	}

	return score/float64(len(first)) > 0.6
}

// GenerateColumnHeaders produces synthetic headers Column 1..N.
func GenerateColumnHeaders(count int) []string {
	headers := make([]string, count)
	for i := range headers {
		headers[i] = fmt.Sprintf("Column %d", i+1)
	}
	return headers
}

// AnalyzeColumns infers a type and suggests a target-field mapping for
// every column.
func AnalyzeColumns(headers []string, dataRows [][]string) []DetectedColumn {
	columns := make([]DetectedColumn, 0, len(headers))
	for index, header := range headers {
		var values []string
		for _, row := range dataRows {
			if v := strings.TrimSpace(cellAt(row, index)); v != "" {
				values = append(values, v)
			}
		}

		unique := make(map[string]struct{}, len(values))
		for _, v := range values {
			unique[v] = struct{}{}
		}

		samples := values
		if len(samples) > 5 {
			samples = samples[:5]
		}

		field, confidence := SuggestFieldMapping(header, values)

		columns = append(columns, DetectedColumn{
			Index:          index,
			Name:           header,
			InferredType:   InferColumnType(values),
			SampleValues:   samples,
			NullCount:      len(dataRows) - len(values),
			UniqueCount:    len(unique),
			SuggestedField: field,
			Confidence:     confidence,
		})
	}
	return columns
}

var currencyLikeRe = regexp.MustCompile(`^[\d,]+\.?\d*$`)
var nonNumericRunesRe = regexp.MustCompile(`[^\d.,]`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// InferColumnType classifies sampled values and picks the majority type.
// A majority under 80% yields "mixed".
func InferColumnType(values []string) string {
	if len(values) == 0 {
		return "string"
	}

	counts := make(map[string]int)
	for _, v := range values {
		counts[classifyValue(v)]++
	}

	dominant := ""
	for t, n := range counts {
		if dominant == "" || n > counts[dominant] {
			dominant = t
		}
	}
	if float64(counts[dominant])/float64(len(values)) < 0.8 {
		return "mixed"
	}
	return dominant
}

func classifyValue(v string) string {
	if isNumericCell(v) {
		return "number"
	}
	lower := strings.ToLower(v)
	if lower == "true" || lower == "false" {
		return "boolean"
	}
	// Date first: stripping non-numeric runes would turn "2024-01-02" into
	// something currency-like.
	if len(v) > 5 && isDateCell(v) {
		return "date"
	}
	stripped := nonNumericRunesRe.ReplaceAllString(v, "")
	if stripped != "" && currencyLikeRe.MatchString(stripped) {
		return "currency"
	}
	return "string"
}

func isNumericCell(v string) bool {
	if v == "" {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

func isDateCell(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

type fieldMapping struct {
	field      string
	patterns   []string
	confidence float64
}

// Ordered: first pattern match wins.
var fieldMappings = []fieldMapping{
	{field: "sku", patterns: []string{"sku", "itemcode", "productcode", "partno", "partnumber"}, confidence: 0.9},
	{field: "productName", patterns: []string{"name", "title", "product", "description", "item"}, confidence: 0.8},
	{field: "unitPrice", patterns: []string{"price", "cost", "unitprice", "unitcost", "amount"}, confidence: 0.9},
	{field: "currency", patterns: []string{"currency", "curr"}, confidence: 0.95},
	{field: "category", patterns: []string{"category", "cat", "group"}, confidence: 0.8},
	{field: "brand", patterns: []string{"brand", "manufacturer", "make"}, confidence: 0.8},
	{field: "unit", patterns: []string{"unit", "uom", "measure"}, confidence: 0.8},
	{field: "barcode", patterns: []string{"barcode", "upc", "ean", "gtin"}, confidence: 0.9},
	{field: "weight", patterns: []string{"weight", "mass"}, confidence: 0.8},
	{field: "availability", patterns: []string{"availability", "stock", "available"}, confidence: 0.7},
}

// SuggestFieldMapping matches header text against the static mapping table.
// With no header match, a column of mostly positive numbers is suggested as
// unitPrice at low confidence.
func SuggestFieldMapping(header string, values []string) (string, float64) {
	headerNorm := normCell(header)

	for _, m := range fieldMappings {
		for _, pattern := range m.patterns {
			if strings.Contains(headerNorm, pattern) {
				return m.field, m.confidence
			}
		}
	}

	if len(values) > 0 {
		positives := 0
		anyAboveCent := false
		for _, v := range values {
			n, err := strconv.ParseFloat(v, 64)
			if err == nil && n > 0 {
				positives++
				if n > 0.01 {
					anyAboveCent = true
				}
			}
		}
		if float64(positives)/float64(len(values)) > 0.8 && anyAboveCent {
			return "unitPrice", 0.6
		}
	}

	return "", 0
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
