package agents

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentflow/agentflow/agent"
)

// FileProcessorAgent reads a CSV or JSON file's raw content from
// input_data.file_data, parses it, and returns row counts plus a
// structured preview.
type FileProcessorAgent struct {
	supportedFormats map[string]bool
	maxFileSize       int
}

// NewFileProcessorFactory builds a FileProcessorAgent from agent_config:
// "supported_formats" (default ["csv","json"]), "max_file_size" (bytes,
// default 10MB).
func NewFileProcessorFactory() agent.Factory {
	return func(config map[string]any) (agent.Agent, error) {
		formats := map[string]bool{"csv": true, "json": true}
		if raw, ok := config["supported_formats"].([]any); ok && len(raw) > 0 {
			formats = make(map[string]bool, len(raw))
			for _, f := range raw {
				if s, ok := f.(string); ok {
					formats[s] = true
				}
			}
		}
		maxSize := 10 * 1024 * 1024
		if mf, ok := config["max_file_size"].(float64); ok && mf > 0 {
			maxSize = int(mf)
		}
		return &FileProcessorAgent{supportedFormats: formats, maxFileSize: maxSize}, nil
	}
}

func (a *FileProcessorAgent) ValidateInput(input map[string]any) bool {
	format, _ := input["file_format"].(string)
	if format == "" {
		format = "csv"
	}
	if !a.supportedFormats[format] {
		return false
	}
	data, ok := input["file_data"].(string)
	if !ok || data == "" {
		return false
	}
	if len(data) > a.maxFileSize {
		return false
	}
	return true
}

func (a *FileProcessorAgent) EstimateCost(input map[string]any) agent.Cost {
	data, _ := input["file_data"].(string)
	cost := 0.002
	switch len(data) {
	case 0:
	default:
		if len(data) > 1024*1024 {
			cost *= 2.0
		} else if len(data) > 100*1024 {
			cost *= 1.5
		}
	}
	return agent.NewCostFromUnits(cost)
}

func (a *FileProcessorAgent) Run(ctx context.Context, input map[string]any, execCtx map[string]any) agent.Result {
	start := time.Now()
	format, _ := input["file_format"].(string)
	if format == "" {
		format = "csv"
	}
	data, _ := input["file_data"].(string)

	var result map[string]any
	var err error
	switch format {
	case "csv":
		result, err = readCSV(data)
	case "json":
		result, err = readJSON(data)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: err.Error()}
	}

	return agent.Result{
		Success:         true,
		Data:            map[string]any{"operation": "read", "file_format": format, "result": result},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		CostEstimate:    a.EstimateCost(input),
	}
}

func readCSV(data string) (map[string]any, error) {
	reader := csv.NewReader(strings.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return map[string]any{"content": []map[string]string{}, "row_count": 0, "columns": []string{}}, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, row := range records[1:] {
		m := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		rows = append(rows, m)
	}

	return map[string]any{
		"content":   rows,
		"row_count": len(rows),
		"columns":   header,
	}, nil
}

func readJSON(data string) (map[string]any, error) {
	var decoded any
	if err := json.NewDecoder(bytes.NewReader([]byte(data))).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return map[string]any{
		"content":   decoded,
		"data_type": fmt.Sprintf("%T", decoded),
	}, nil
}
