package agents

import "github.com/agentflow/agentflow/agent"

// DefaultFactories returns the agent_type->Factory map wiring every
// concrete agent in this package, for use with agent.NewRegistry.
func DefaultFactories() map[string]agent.Factory {
	return map[string]agent.Factory{
		"echo":            NewEchoFactory(),
		"web_search":      NewWebSearchFactory(),
		"text_generation": NewTextGenFactory(),
		"email_sender":    NewEmailSenderFactory(),
		"file_processor":  NewFileProcessorFactory(),
		"data_analysis":   NewDataAnalysisFactory(),
	}
}

// DefaultInfos describes the agents in DefaultFactories for
// ListAvailableAgents.
func DefaultInfos() map[string]agent.Info {
	return map[string]agent.Info{
		"echo": {
			Description:  "Returns its input verbatim; useful for wiring and tests",
			Capabilities: []string{"testing"},
		},
		"web_search": {
			Description:  "Queries a search endpoint and returns structured results",
			Capabilities: []string{"search", "http"},
		},
		"text_generation": {
			Description:  "Generates text with an LLM backend (openai, anthropic, google)",
			Capabilities: []string{"text", "llm"},
		},
		"email_sender": {
			Description:  "Sends email over SMTP",
			Capabilities: []string{"communication", "smtp"},
		},
		"file_processor": {
			Description:  "Reads and summarizes CSV or JSON files",
			Capabilities: []string{"file", "csv", "json"},
		},
		"data_analysis": {
			Description:  "Runs statistical analyses over CSV, list, or columnar data",
			Capabilities: []string{"data_analysis", "statistics"},
		},
	}
}
