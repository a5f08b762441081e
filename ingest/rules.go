package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// RuleType discriminates the tagged ruleConfig union.
type RuleType string

const (
	RuleTypeJoinSheets  RuleType = "join_sheets"
	RuleTypeSheetLoop   RuleType = "sheet_loop"
	RuleTypeVatPolicy   RuleType = "vat_policy"
	RuleTypeHeaderAlias RuleType = "header_alias"
	RuleTypeValidation  RuleType = "validation"
)

// RuleConfig is the closed union of per-type rule configurations. Configs
// are validated when rules are loaded, not at point of use.
type RuleConfig interface {
	ruleConfig()
}

// JoinSheetsConfig left-joins two sheets on a key column, projecting the
// configured right columns onto each left row.
type JoinSheetsConfig struct {
	LeftSheet    string   `json:"left_sheet" validate:"required"`
	RightSheet   string   `json:"right_sheet" validate:"required"`
	LeftKey      string   `json:"left_key" validate:"required"`
	RightKey     string   `json:"right_key" validate:"required"`
	RightColumns []string `json:"right_columns" validate:"required,min=1"`
}

// SheetLoopConfig processes every sheet matching a glob pattern with a
// shared column mapping, optionally deriving the brand from the sheet name.
type SheetLoopConfig struct {
	SheetPattern       string            `json:"sheet_pattern" validate:"required"`
	DropRight          int               `json:"drop_right" validate:"gte=0"`
	BrandFromSheetName bool              `json:"brand_from_sheet_name"`
	Mappings           map[string]string `json:"mappings" validate:"required,min=1"`
}

// VatPolicyConfig derives the missing one of ex/incl VAT prices from the
// other at the configured rate.
type VatPolicyConfig struct {
	Rate decimal.Decimal `json:"rate"`
	Mode string          `json:"mode" validate:"required,oneof=detect"`
}

// HeaderAliasConfig adds supplier-specific header aliases on top of the
// static table.
type HeaderAliasConfig struct {
	Aliases map[string]string `json:"aliases" validate:"required,min=1"`
}

// ValidationConfig enforces a single required field during transformation.
type ValidationConfig struct {
	Field          string `json:"field" validate:"required"`
	Required       bool   `json:"required"`
	WarningMessage string `json:"warning_message"`
}

func (*JoinSheetsConfig) ruleConfig()  {}
func (*SheetLoopConfig) ruleConfig()   {}
func (*VatPolicyConfig) ruleConfig()   {}
func (*HeaderAliasConfig) ruleConfig() {}
func (*ValidationConfig) ruleConfig()  {}

var ruleConfigValidate = validator.New()

// ParseRuleConfig unmarshals and validates the config payload for the given
// rule type.
func ParseRuleConfig(ruleType RuleType, raw json.RawMessage) (RuleConfig, error) {
	var cfg RuleConfig
	switch ruleType {
	case RuleTypeJoinSheets:
		cfg = &JoinSheetsConfig{}
	case RuleTypeSheetLoop:
		cfg = &SheetLoopConfig{}
	case RuleTypeVatPolicy:
		cfg = &VatPolicyConfig{}
	case RuleTypeHeaderAlias:
		cfg = &HeaderAliasConfig{}
	case RuleTypeValidation:
		cfg = &ValidationConfig{}
	default:
		return nil, fmt.Errorf("unknown rule type: %s", ruleType)
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %v", ruleType, err)
	}
	if err := ruleConfigValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %v", ruleType, err)
	}
	if vat, ok := cfg.(*VatPolicyConfig); ok && vat.Rate.Sign() <= 0 {
		return nil, errors.New("invalid vat_policy config: rate must be positive")
	}
	return cfg, nil
}

// Rule is one supplier-declared transformation rule, ordered by
// ExecutionOrder within its supplier.
type Rule struct {
	ID             int
	SupplierID     string
	RuleName       string
	RuleType       RuleType
	ExecutionOrder int
	IsBlocking     bool
	Config         RuleConfig
}

// RuleExecutionRecord is the append-only audit entry for one rule
// invocation.
type RuleExecutionRecord struct {
	RuleID          int      `json:"rule_id"`
	RuleName        string   `json:"rule_name"`
	RuleType        RuleType `json:"rule_type"`
	Passed          bool     `json:"passed"`
	Blocked         bool     `json:"blocked"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	RowsAffected    int      `json:"rows_affected"`
}

// Row is an intermediate record during transformation. Fields start out
// keyed by raw header names and are normalized to canonical field names
// before validation-stage rules run. Num is the 1-based row number within
// the source sheet, counting the header as row 1.
type Row struct {
	Fields map[string]string
	Sheet  string
	Num    int
}

// RowError marks a row excluded from merge.
type RowError struct {
	RowNum int    `json:"row_num"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// RowWarning annotates a kept row.
type RowWarning struct {
	RowNum  int    `json:"row_num"`
	Message string `json:"message"`
}

// EngineResult accumulates the flat row set and the audit trail of one
// rule-engine pass.
type EngineResult struct {
	Rows     []Row
	Log      []RuleExecutionRecord
	Errors   []RowError
	Warnings []RowWarning
	Blocked  bool
}

var brandTokenRe = regexp.MustCompile(`^([A-Za-z]+(?:-[A-Za-z]+)?)`)

var genericSheetNames = map[string]bool{
	"sheet":     true,
	"data":      true,
	"pricelist": true,
	"prices":    true,
	"products":  true,
	"summary":   true,
	"notes":     true,
}

// ExtractBrandFromSheetName pulls a leading brand token from a sheet name:
// "DECKSAVER_2024" yields "DECKSAVER", "Brand-Name-Products" yields
// "Brand-Name". Generic names like "Sheet1" or "Data" yield "".
func ExtractBrandFromSheetName(name string) string {
	m := brandTokenRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return ""
	}
	brand := m[1]
	if genericSheetNames[strings.ToLower(brand)] {
		return ""
	}
	return brand
}

// ApplyJoinSheets left-joins the configured sheets. Unmatched left rows are
// kept with the right columns empty. A missing right sheet degrades to the
// left sheet alone with an error; a missing left sheet is fatal for the rule.
func ApplyJoinSheets(wb *RawWorkbook, cfg *JoinSheetsConfig) ([]Row, error) {
	left := wb.SheetByName(cfg.LeftSheet)
	if left == nil || len(left.Rows) == 0 {
		return nil, fmt.Errorf("left sheet %q not found", cfg.LeftSheet)
	}

	leftRows := sheetToRows(left)

	right := wb.SheetByName(cfg.RightSheet)
	if right == nil || len(right.Rows) == 0 {
		return leftRows, fmt.Errorf("right sheet %q not found", cfg.RightSheet)
	}

	leftKeyIdx := headerIndex(left.Rows[0], cfg.LeftKey)
	if leftKeyIdx < 0 {
		return leftRows, fmt.Errorf("left key %q not found in sheet %q", cfg.LeftKey, left.Name)
	}
	rightHeaders := right.Rows[0]
	rightKeyIdx := headerIndex(rightHeaders, cfg.RightKey)
	if rightKeyIdx < 0 {
		return leftRows, fmt.Errorf("right key %q not found in sheet %q", cfg.RightKey, right.Name)
	}

	// First match wins for duplicate right keys.
	rightByKey := make(map[string][]string)
	for _, row := range right.Rows[1:] {
		key := normCell(cellAt(row, rightKeyIdx))
		if key == "" {
			continue
		}
		if _, seen := rightByKey[key]; !seen {
			rightByKey[key] = row
		}
	}

	columnIdx := make([]int, len(cfg.RightColumns))
	for i, col := range cfg.RightColumns {
		columnIdx[i] = headerIndex(rightHeaders, col)
	}

	out := make([]Row, 0, len(leftRows))
	rowIdx := 0
	for _, grid := range left.Rows[1:] {
		if rowEmpty(grid) {
			continue
		}
		lr := leftRows[rowIdx]
		rowIdx++
		rrow, matched := rightByKey[normCell(cellAt(grid, leftKeyIdx))]
		for j, col := range cfg.RightColumns {
			if matched && columnIdx[j] >= 0 {
				lr.Fields[col] = cellAt(rrow, columnIdx[j])
			} else {
				lr.Fields[col] = ""
			}
		}
		out = append(out, lr)
	}

	return out, nil
}

// ApplySheetLoop processes every sheet matching the pattern, in workbook
// order, dropping the trailing DropRight matches.
func ApplySheetLoop(wb *RawWorkbook, cfg *SheetLoopConfig) []Row {
	var matched []*Sheet
	for i := range wb.Sheets {
		if ok, _ := path.Match(cfg.SheetPattern, wb.Sheets[i].Name); ok {
			matched = append(matched, &wb.Sheets[i])
		}
	}
	if cfg.DropRight > 0 {
		if cfg.DropRight >= len(matched) {
			matched = nil
		} else {
			matched = matched[:len(matched)-cfg.DropRight]
		}
	}

	var out []Row
	for _, sheet := range matched {
		if len(sheet.Rows) < 2 {
			continue
		}
		headers := sheet.Rows[0]

		sourceIdx := make(map[string]int, len(cfg.Mappings))
		for source := range cfg.Mappings {
			sourceIdx[source] = headerIndex(headers, source)
		}

		brand := ""
		if cfg.BrandFromSheetName {
			brand = ExtractBrandFromSheetName(sheet.Name)
		}

		for i, row := range sheet.Rows[1:] {
			if rowEmpty(row) {
				continue
			}
			fields := make(map[string]string, len(cfg.Mappings)+1)
			for source, target := range cfg.Mappings {
				if idx := sourceIdx[source]; idx >= 0 {
					fields[target] = cellAt(row, idx)
				}
			}
			if brand != "" {
				fields[FieldBrand] = brand
			}
			out = append(out, Row{Fields: fields, Sheet: sheet.Name, Num: i + 2})
		}
	}
	return out
}

// ApplyVatPolicy derives the missing price side at the configured rate and
// stamps vat_rate on every derived row. Rows with neither price get a
// warning and keep both sides absent.
func ApplyVatPolicy(rows []Row, cfg *VatPolicyConfig) []RowWarning {
	factor := decimal.NewFromInt(1).Add(cfg.Rate)
	var warnings []RowWarning

	for _, row := range rows {
		ex := NormalizePrice(row.Fields[FieldCostPriceExVat])
		incl := NormalizePrice(row.Fields[FieldPriceInclVat])

		switch {
		case ex.Sign() > 0:
			row.Fields[FieldPriceInclVat] = ex.Mul(factor).String()
			row.Fields[FieldVatRate] = cfg.Rate.String()
		case incl.Sign() > 0:
			row.Fields[FieldCostPriceExVat] = incl.Div(factor).String()
			row.Fields[FieldVatRate] = cfg.Rate.String()
		default:
			warnings = append(warnings, RowWarning{
				RowNum:  row.Num,
				Message: fmt.Sprintf("row %d: no price found to derive VAT", row.Num),
			})
		}
	}
	return warnings
}

// engineState threads the working row set through the ordered rule list.
type engineState struct {
	wb           *RawWorkbook
	rows         []Row
	produced     bool
	materialized bool
	extraAliases map[string]string
}

// ExecuteRules runs the supplier's ordered rule list against the workbook.
// Every rule invocation appends exactly one execution record. A failing
// blocking rule stops execution; unknown rule types are recorded and
// skipped.
func ExecuteRules(wb *RawWorkbook, rules []Rule) *EngineResult {
	result := &EngineResult{}
	state := &engineState{wb: wb, extraAliases: map[string]string{}}

	for _, rule := range rules {
		record := executeRule(state, rule, result)
		result.Log = append(result.Log, record)
		if record.Blocked {
			result.Blocked = true
			break
		}
	}

	state.materialize()
	result.Rows = state.rows
	return result
}

func executeRule(state *engineState, rule Rule, result *EngineResult) RuleExecutionRecord {
	start := time.Now()
	record := RuleExecutionRecord{
		RuleID:   rule.ID,
		RuleName: rule.RuleName,
		RuleType: rule.RuleType,
	}

	switch cfg := rule.Config.(type) {
	case *JoinSheetsConfig:
		rows, err := ApplyJoinSheets(state.wb, cfg)
		state.rows = rows
		state.produced = len(rows) > 0
		state.materialized = false
		if err != nil {
			record.ErrorMessage = err.Error()
			record.Blocked = rule.IsBlocking
		} else {
			record.Passed = true
		}
		record.RowsAffected = len(rows)

	case *SheetLoopConfig:
		rows := ApplySheetLoop(state.wb, cfg)
		state.rows = append(state.rows, rows...)
		state.produced = state.produced || len(rows) > 0
		record.Passed = true
		record.RowsAffected = len(rows)

	case *VatPolicyConfig:
		state.materialize()
		warnings := ApplyVatPolicy(state.rows, cfg)
		result.Warnings = append(result.Warnings, warnings...)
		record.Passed = true
		record.RowsAffected = len(state.rows) - len(warnings)

	case *HeaderAliasConfig:
		for pattern, field := range cfg.Aliases {
			state.extraAliases[pattern] = field
		}
		record.Passed = true

	case *ValidationConfig:
		state.materialize()
		record = applyValidationRule(state, rule, cfg, result, record)

	default:
		record.ErrorMessage = fmt.Sprintf("unknown rule type: %s", rule.RuleType)
	}

	record.ExecutionTimeMs = time.Since(start).Milliseconds()
	return record
}

func applyValidationRule(state *engineState, rule Rule, cfg *ValidationConfig, result *EngineResult, record RuleExecutionRecord) RuleExecutionRecord {
	if !cfg.Required {
		record.Passed = true
		return record
	}

	message := cfg.WarningMessage
	if message == "" {
		message = fmt.Sprintf("%s is required", cfg.Field)
	}

	var kept []Row
	failing := 0
	for _, row := range state.rows {
		if strings.TrimSpace(row.Fields[cfg.Field]) != "" {
			kept = append(kept, row)
			continue
		}
		failing++
		if rule.IsBlocking {
			result.Errors = append(result.Errors, RowError{RowNum: row.Num, Field: cfg.Field, Reason: message})
		} else {
			result.Warnings = append(result.Warnings, RowWarning{RowNum: row.Num, Message: message})
			kept = append(kept, row)
		}
	}
	state.rows = kept

	record.RowsAffected = failing
	if failing == 0 {
		record.Passed = true
	} else {
		record.ErrorMessage = message
		record.Blocked = rule.IsBlocking
	}
	return record
}

// materialize guarantees the row set exists and carries canonical field
// keys. When no rule produced rows, the first sheet is extracted with the
// alias table.
func (s *engineState) materialize() {
	if s.materialized {
		return
	}
	if !s.produced && len(s.rows) == 0 && len(s.wb.Sheets) > 0 {
		s.rows = sheetToRows(&s.wb.Sheets[0])
		s.produced = true
	}
	for _, row := range s.rows {
		normalizeRowKeys(row.Fields, s.extraAliases)
	}
	s.materialized = true
}

func normalizeRowKeys(fields map[string]string, extra map[string]string) {
	rawKeys := make([]string, 0, len(fields))
	for key := range fields {
		if !IsCanonicalField(key) {
			rawKeys = append(rawKeys, key)
		}
	}
	// Two raw headers can alias to the same canonical field; sort so the
	// winner does not depend on map iteration order.
	sort.Strings(rawKeys)
	for _, key := range rawKeys {
		field, ok := matchHeader(key, extra)
		if !ok {
			// Unmapped columns survive under their raw name and end up in
			// the row's attrs.
			continue
		}
		value := fields[key]
		delete(fields, key)
		if existing, present := fields[field]; !present || existing == "" {
			fields[field] = value
		}
	}
}

// sheetToRows converts a sheet with a header row into raw-keyed rows.
func sheetToRows(sheet *Sheet) []Row {
	if len(sheet.Rows) == 0 {
		return nil
	}
	headers := sheet.Rows[0]
	var out []Row
	for i, row := range sheet.Rows[1:] {
		if rowEmpty(row) {
			continue
		}
		fields := make(map[string]string, len(headers))
		for j, h := range headers {
			if strings.TrimSpace(h) == "" {
				continue
			}
			fields[h] = cellAt(row, j)
		}
		out = append(out, Row{Fields: fields, Sheet: sheet.Name, Num: i + 2})
	}
	return out
}

func headerIndex(headers []string, name string) int {
	target := normCell(name)
	for i, h := range headers {
		if normCell(h) == target {
			return i
		}
	}
	return -1
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
