package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agentflow/agentflow/agent"
)

// WebSearchAgent issues an HTTP GET against a configurable search endpoint
// and shapes the response into {"query", "results", "total_results"}.
type WebSearchAgent struct {
	endpoint   string
	maxResults int
	timeout    time.Duration
	client     *http.Client
}

// NewWebSearchFactory builds a WebSearchAgent from agent_config: "endpoint"
// (string, required), "max_results" (int, default 10), "timeout_seconds"
// (int, default 10).
func NewWebSearchFactory() agent.Factory {
	return func(config map[string]any) (agent.Agent, error) {
		endpoint, _ := config["endpoint"].(string)
		if endpoint == "" {
			return nil, fmt.Errorf("agents: web_search requires agent_config.endpoint")
		}
		maxResults := 10
		if mr, ok := config["max_results"].(float64); ok && mr > 0 {
			maxResults = int(mr)
		}
		timeoutSeconds := 10
		if ts, ok := config["timeout_seconds"].(float64); ok && ts > 0 {
			timeoutSeconds = int(ts)
		}
		return &WebSearchAgent{
			endpoint:   endpoint,
			maxResults: maxResults,
			timeout:    time.Duration(timeoutSeconds) * time.Second,
			client:     &http.Client{},
		}, nil
	}
}

func (a *WebSearchAgent) ValidateInput(input map[string]any) bool {
	query, ok := input["query"].(string)
	if !ok || query == "" {
		return false
	}
	if mr, present := input["max_results"]; present {
		n, ok := mr.(float64)
		if !ok || n <= 0 {
			return false
		}
	}
	return true
}

func (a *WebSearchAgent) EstimateCost(input map[string]any) agent.Cost {
	n := a.maxResults
	if mr, ok := input["max_results"].(float64); ok && mr > 0 {
		n = int(mr)
	}
	return agent.NewCostFromUnits(0.0005 * float64(n))
}

func (a *WebSearchAgent) Run(ctx context.Context, input map[string]any, execCtx map[string]any) agent.Result {
	start := time.Now()
	query, _ := input["query"].(string)

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	requestURL := a.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: "build request: " + err.Error()}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: "search request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return agent.Result{Success: false, ErrorMessage: "read response: " + err.Error()}
	}

	var results []map[string]any
	if resp.StatusCode == http.StatusOK {
		_ = json.Unmarshal(body, &results)
	}
	if len(results) > a.maxResults {
		results = results[:a.maxResults]
	}

	return agent.Result{
		Success: true,
		Data: map[string]any{
			"query":          query,
			"results":        results,
			"total_results":  len(results),
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		CostEstimate:    a.EstimateCost(input),
	}
}
