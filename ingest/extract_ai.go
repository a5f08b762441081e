package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nxtleveltech1/MantisNXT-sub023/config"
)

// aiSheetSummary is the per-sheet digest sent to the extraction service
// instead of the full file.
type aiSheetSummary struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers"`
	Samples [][]string `json:"samples"`
}

type aiExtractRequest struct {
	Filename string           `json:"filename"`
	Sheets   []aiSheetSummary `json:"sheets"`
}

// AIExtractRows asks the external extraction service for a best-effort row
// set. Used only when a supplier has no transformation rules or rule
// execution fails. Any failure degrades to an empty row set, never an
// error.
func AIExtractRows(ctx context.Context, wb *RawWorkbook, filename string) []PricelistRow {
	logger := config.GetLogger()

	url := strings.TrimSpace(os.Getenv("AI_EXTRACT_URL"))
	if url == "" || wb == nil {
		return nil
	}

	req := aiExtractRequest{Filename: filename}
	for i, sheet := range wb.Sheets {
		if i >= 12 {
			break
		}
		summary := aiSheetSummary{Name: sheet.Name}
		if len(sheet.Rows) > 0 {
			summary.Headers = truncateCells(sheet.Rows[0], 20)
		}
		for j := 1; j < len(sheet.Rows) && j <= 5; j++ {
			summary.Samples = append(summary.Samples, truncateCells(sheet.Rows[j], 20))
		}
		req.Sheets = append(req.Sheets, summary)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		config.LogError(logger, "ingest", "AIExtractRows", "extraction request failed", filename, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var extracted []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&extracted); err != nil {
		config.LogError(logger, "ingest", "AIExtractRows", "could not decode extraction response", filename, err)
		return nil
	}

	rows := make([]Row, 0, len(extracted))
	for i, obj := range extracted {
		fields := make(map[string]string, len(obj))
		for k, v := range obj {
			fields[k] = jsonCellString(v)
		}
		rows = append(rows, Row{Fields: fields, Num: i + 2})
	}
	for _, row := range rows {
		normalizeRowKeys(row.Fields, nil)
	}
	return ToPricelistRows(rows)
}

func truncateCells(row []string, max int) []string {
	if len(row) > max {
		return row[:max]
	}
	return row
}
