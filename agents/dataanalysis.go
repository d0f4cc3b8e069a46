package agents

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentflow/agentflow/agent"
)

// DataAnalysisAgent runs statistical analyses over tabular data supplied
// in input_data.data_source: a CSV string, a list of row maps, or a map
// of column name to value list. Supported analysis_type values are
// basic_stats, correlation, distribution, missing_values, and summary.
type DataAnalysisAgent struct {
	maxDataSize int
}

var analysisTypes = map[string]bool{
	"basic_stats":    true,
	"correlation":    true,
	"distribution":   true,
	"missing_values": true,
	"summary":        true,
}

// NewDataAnalysisFactory builds a DataAnalysisAgent from agent_config:
// "max_data_size" (bytes, default 10MB).
func NewDataAnalysisFactory() agent.Factory {
	return func(config map[string]any) (agent.Agent, error) {
		maxSize := 10 * 1024 * 1024
		if ms, ok := config["max_data_size"].(float64); ok && ms > 0 {
			maxSize = int(ms)
		}
		return &DataAnalysisAgent{maxDataSize: maxSize}, nil
	}
}

func (a *DataAnalysisAgent) ValidateInput(input map[string]any) bool {
	if _, ok := input["data_source"]; !ok || input["data_source"] == nil {
		return false
	}
	if at, present := input["analysis_type"]; present {
		s, ok := at.(string)
		if !ok || !analysisTypes[s] {
			return false
		}
	}
	return true
}

func (a *DataAnalysisAgent) EstimateCost(input map[string]any) agent.Cost {
	dataSize := len(fmt.Sprintf("%v", input["data_source"]))

	cost := 0.005
	if dataSize > 100_000 {
		cost *= 2.0
	} else if dataSize > 10_000 {
		cost *= 1.5
	}

	analysisType, _ := input["analysis_type"].(string)
	if analysisType == "correlation" || analysisType == "distribution" {
		cost *= 1.3
	}
	return agent.NewCostFromUnits(cost)
}

func (a *DataAnalysisAgent) Run(ctx context.Context, input map[string]any, execCtx map[string]any) agent.Result {
	start := time.Now()
	dataSource := input["data_source"]
	analysisType, _ := input["analysis_type"].(string)
	if analysisType == "" {
		analysisType = "basic_stats"
	}
	columns := stringListOf(input["columns"])

	frame, err := loadFrame(dataSource, a.maxDataSize)
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: "data analysis failed: " + err.Error()}
	}

	analysis, err := frame.analyze(analysisType, columns)
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: "data analysis failed: " + err.Error()}
	}

	return agent.Result{
		Success: true,
		Data: map[string]any{
			"analysis_type":   analysisType,
			"data_shape":      []any{len(frame.rows), len(frame.columns)},
			"columns":         frame.columns,
			"analysis_result": analysis,
		},
		Metadata: map[string]any{
			"data_size":    len(fmt.Sprintf("%v", dataSource)),
			"row_count":    len(frame.rows),
			"column_count": len(frame.columns),
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		CostEstimate:    a.EstimateCost(input),
	}
}

// frame is a minimal column-ordered table. Cell values are nil (missing),
// float64 (numeric), or their original value.
type frame struct {
	columns []string
	rows    []map[string]any
}

// loadFrame accepts the three data_source shapes: a CSV string, a []any of
// row maps, or a map of column name to []any of values.
func loadFrame(source any, maxSize int) (*frame, error) {
	switch src := source.(type) {
	case string:
		if len(src) > maxSize {
			return nil, fmt.Errorf("data exceeds maximum size of %d bytes", maxSize)
		}
		return frameFromCSV(src)
	case []any:
		return frameFromRows(src)
	case map[string]any:
		return frameFromColumns(src)
	default:
		return nil, fmt.Errorf("unsupported data source format %T", source)
	}
}

func frameFromCSV(data string) (*frame, error) {
	records, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv data: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv data is empty")
	}
	header := records[0]
	f := &frame{columns: header}
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(record) || record[i] == "" {
				row[col] = nil
				continue
			}
			if n, err := strconv.ParseFloat(record[i], 64); err == nil {
				row[col] = n
			} else {
				row[col] = record[i]
			}
		}
		f.rows = append(f.rows, row)
	}
	return f, nil
}

func frameFromRows(rows []any) (*frame, error) {
	f := &frame{}
	seen := make(map[string]bool)
	for _, raw := range rows {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("list data source must contain objects, got %T", raw)
		}
		row := make(map[string]any, len(m))
		for key, value := range m {
			if !seen[key] {
				seen[key] = true
				f.columns = append(f.columns, key)
			}
			row[key] = normalizeCell(value)
		}
		f.rows = append(f.rows, row)
	}
	sort.Strings(f.columns)
	return f, nil
}

func frameFromColumns(cols map[string]any) (*frame, error) {
	f := &frame{}
	length := -1
	for name := range cols {
		f.columns = append(f.columns, name)
	}
	sort.Strings(f.columns)
	for _, name := range f.columns {
		values, ok := cols[name].([]any)
		if !ok {
			return nil, fmt.Errorf("column %q must be a list of values", name)
		}
		if length == -1 {
			length = len(values)
		} else if len(values) != length {
			return nil, fmt.Errorf("column %q has %d values, want %d", name, len(values), length)
		}
	}
	for i := 0; i < length; i++ {
		row := make(map[string]any, len(f.columns))
		for _, name := range f.columns {
			row[name] = normalizeCell(cols[name].([]any)[i])
		}
		f.rows = append(f.rows, row)
	}
	return f, nil
}

func normalizeCell(v any) any {
	if n, ok := asNumber(v); ok {
		return n
	}
	return v
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (f *frame) analyze(analysisType string, columns []string) (map[string]any, error) {
	switch analysisType {
	case "basic_stats":
		return f.basicStatistics(columns), nil
	case "correlation":
		return f.correlationAnalysis(columns)
	case "distribution":
		return f.distributionAnalysis(columns), nil
	case "missing_values":
		return f.missingValuesAnalysis(), nil
	case "summary":
		return f.dataSummary(), nil
	default:
		return nil, fmt.Errorf("unsupported analysis type: %s", analysisType)
	}
}

// numericColumns returns the requested columns, or every column whose
// non-missing values are all numeric when none are requested.
func (f *frame) numericColumns(requested []string) []string {
	if len(requested) > 0 {
		var out []string
		for _, col := range requested {
			if f.hasColumn(col) {
				out = append(out, col)
			}
		}
		return out
	}
	var out []string
	for _, col := range f.columns {
		if f.isNumeric(col) {
			out = append(out, col)
		}
	}
	return out
}

func (f *frame) hasColumn(name string) bool {
	for _, col := range f.columns {
		if col == name {
			return true
		}
	}
	return false
}

func (f *frame) isNumeric(name string) bool {
	found := false
	for _, row := range f.rows {
		v := row[name]
		if v == nil {
			continue
		}
		if _, ok := v.(float64); !ok {
			return false
		}
		found = true
	}
	return found
}

func (f *frame) columnValues(name string) []float64 {
	var out []float64
	for _, row := range f.rows {
		if n, ok := row[name].(float64); ok {
			out = append(out, n)
		}
	}
	return out
}

func (f *frame) basicStatistics(columns []string) map[string]any {
	cols := f.numericColumns(columns)
	stats := make(map[string]any, len(cols))
	for _, col := range cols {
		values := f.columnValues(col)
		stats[col] = map[string]any{
			"count":  len(values),
			"mean":   mean(values),
			"std":    stddev(values),
			"min":    minOf(values),
			"median": median(values),
			"max":    maxOf(values),
		}
	}
	return map[string]any{
		"statistics":      stats,
		"numeric_columns": cols,
	}
}

func (f *frame) correlationAnalysis(columns []string) (map[string]any, error) {
	cols := f.numericColumns(columns)
	if len(cols) < 2 {
		return nil, fmt.Errorf("need at least 2 numeric columns for correlation analysis")
	}
	matrix := make(map[string]any, len(cols))
	for _, a := range cols {
		row := make(map[string]any, len(cols))
		for _, b := range cols {
			row[b] = pearson(f.columnValues(a), f.columnValues(b))
		}
		matrix[a] = row
	}
	return map[string]any{
		"correlation_matrix": matrix,
		"analyzed_columns":   cols,
	}, nil
}

func (f *frame) distributionAnalysis(columns []string) map[string]any {
	cols := columns
	if len(cols) == 0 {
		cols = f.numericColumns(nil)
	}
	distributions := make(map[string]any)
	var analyzed []string
	for _, col := range cols {
		if !f.hasColumn(col) {
			continue
		}
		analyzed = append(analyzed, col)
		if f.isNumeric(col) {
			values := f.columnValues(col)
			distributions[col] = map[string]any{
				"mean":         mean(values),
				"median":       median(values),
				"std":          stddev(values),
				"min":          minOf(values),
				"max":          maxOf(values),
				"unique_count": f.uniqueCount(col),
			}
			continue
		}
		distributions[col] = map[string]any{
			"mean":         nil,
			"median":       nil,
			"std":          nil,
			"min":          fmt.Sprintf("%v", f.lexMin(col)),
			"max":          fmt.Sprintf("%v", f.lexMax(col)),
			"unique_count": f.uniqueCount(col),
		}
	}
	return map[string]any{
		"distributions":    distributions,
		"analyzed_columns": analyzed,
	}
}

func (f *frame) missingValuesAnalysis() map[string]any {
	counts := make(map[string]any, len(f.columns))
	percentages := make(map[string]any, len(f.columns))
	for _, col := range f.columns {
		missing := 0
		for _, row := range f.rows {
			if v, ok := row[col]; !ok || v == nil {
				missing++
			}
		}
		counts[col] = missing
		if len(f.rows) > 0 {
			percentages[col] = float64(missing) / float64(len(f.rows)) * 100
		} else {
			percentages[col] = 0.0
		}
	}
	return map[string]any{
		"missing_counts":      counts,
		"missing_percentages": percentages,
		"total_rows":          len(f.rows),
	}
}

func (f *frame) dataSummary() map[string]any {
	dtypes := make(map[string]any, len(f.columns))
	totalMissing := 0
	for _, col := range f.columns {
		if f.isNumeric(col) {
			dtypes[col] = "number"
		} else {
			dtypes[col] = "string"
		}
		for _, row := range f.rows {
			if v, ok := row[col]; !ok || v == nil {
				totalMissing++
			}
		}
	}
	return map[string]any{
		"shape":          []any{len(f.rows), len(f.columns)},
		"columns":        f.columns,
		"dtypes":         dtypes,
		"missing_values": totalMissing,
	}
}

func (f *frame) uniqueCount(name string) int {
	seen := make(map[string]bool)
	for _, row := range f.rows {
		if v := row[name]; v != nil {
			seen[fmt.Sprintf("%v", v)] = true
		}
	}
	return len(seen)
}

func (f *frame) lexMin(name string) any {
	var best string
	found := false
	for _, row := range f.rows {
		if v := row[name]; v != nil {
			s := fmt.Sprintf("%v", v)
			if !found || s < best {
				best = s
				found = true
			}
		}
	}
	return best
}

func (f *frame) lexMax(name string) any {
	var best string
	for _, row := range f.rows {
		if v := row[name]; v != nil {
			s := fmt.Sprintf("%v", v)
			if s > best {
				best = s
			}
		}
	}
	return best
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

// pearson computes the correlation coefficient between two equal-length
// series; 0 when either side has no variance.
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

func stringListOf(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
