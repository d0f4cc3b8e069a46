// agentflow is the command-line front end for the workflow engine: it
// validates and runs DAG definitions, queries execution status from the
// journal, and lists the registered agents.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/agentflow/agentflow/agent"
	"github.com/agentflow/agentflow/agents"
	"github.com/agentflow/agentflow/emit"
	"github.com/agentflow/agentflow/engine"
	"github.com/agentflow/agentflow/journal"
)

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "Run agent workflow DAGs and inspect their executions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; absence is not an error.
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	viper.SetDefault("store.path", "./agentflow.db")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("engine.max_concurrent_nodes", 0)
	viper.SetDefault("otel.enabled", false)

	rootCmd.PersistentFlags().String("store-path", "./agentflow.db", "path to the SQLite journal database")
	rootCmd.PersistentFlags().String("log-format", "text", `event log format, "text" or "json"`)
	rootCmd.PersistentFlags().Int("max-concurrent-nodes", 0, "cap on concurrently running nodes per level (0 = unbounded)")
	rootCmd.PersistentFlags().Bool("otel", false, "emit OpenTelemetry spans instead of log lines")

	for key, flag := range map[string]string{
		"store.path":                  "store-path",
		"log.format":                  "log-format",
		"engine.max_concurrent_nodes": "max-concurrent-nodes",
		"otel.enabled":                "otel",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("AGENTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd, statusCmd, agentsCmd)
}

// buildEngine wires the registry, journal store, and emitter from the
// resolved configuration. The returned cleanup closes the store.
func buildEngine() (*engine.Engine, func(), error) {
	store, err := journal.NewSQLiteStore(viper.GetString("store.path"))
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}

	var emitter emit.Emitter
	switch {
	case viper.GetBool("otel.enabled"):
		emitter = emit.NewOTelEmitter(otel.Tracer("agentflow"))
	case viper.GetString("log.format") == "json":
		emitter = emit.NewLogEmitter(os.Stderr, true)
	default:
		emitter = emit.NewLogEmitter(os.Stderr, false)
	}

	e := engine.New(
		agent.NewRegistry(agents.DefaultFactories()),
		store,
		engine.WithEmitter(emitter),
		engine.WithMaxConcurrentNodes(viper.GetInt("engine.max_concurrent_nodes")),
		engine.WithAgentInfos(agents.DefaultInfos()),
	)
	return e, func() { _ = store.Close() }, nil
}

var runInputs []string

var runCmd = &cobra.Command{
	Use:   "run <dag.json>",
	Short: "Validate and execute a workflow DAG, blocking until it terminates.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		definition, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read dag definition: %w", err)
		}

		input := make(map[string]any, len(runInputs))
		for _, pair := range runInputs {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return fmt.Errorf("bad --input %q, want key=value", pair)
			}
			input[key] = value
		}

		e, cleanup, err := buildEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		executionID, err := e.ExecuteWorkflow(ctx, args[0], definition, input, "")
		if err != nil {
			return err
		}
		if !e.Wait(ctx, executionID) {
			return fmt.Errorf("execution %s did not terminate", executionID)
		}

		exec, err := e.GetExecutionStatus(ctx, executionID)
		if err != nil {
			return err
		}
		if err := printJSON(exec); err != nil {
			return err
		}
		if exec.Status != journal.WorkflowCompleted {
			return fmt.Errorf("workflow %s: %s", exec.Status, exec.ErrorMessage)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <execution-id>",
	Short: "Print a workflow execution's journal record and its tasks.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cleanup, err := buildEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		exec, err := e.GetExecutionStatus(ctx, args[0])
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("execution %s not found", args[0])
		}
		if err != nil {
			return err
		}
		tasks, err := e.ListTasks(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"execution": exec, "tasks": tasks})
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the registered agent types.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cleanup, err := buildEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		return printJSON(e.ListAvailableAgents())
	},
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "initial context entry, key=value (repeatable)")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
