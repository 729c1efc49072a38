package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/owulveryck/taskmesh/examples/agents"
	"github.com/owulveryck/taskmesh/internal/agent"
	"github.com/owulveryck/taskmesh/internal/comms"
	"github.com/owulveryck/taskmesh/internal/config"
	"github.com/owulveryck/taskmesh/internal/orchestrator"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskmesh",
	Short: "Taskmesh - multi-agent task decomposition and orchestration core",
	Long: `Taskmesh decomposes a task into a dependency graph of subtasks,
routes each subtask to the best-matched registered agent, executes
independent subtasks in parallel, and aggregates the results.

This binary wires the core against a handful of demo agents so the
orchestration behavior can be exercised without a real agent fleet.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a taskmesh.toml configuration file")
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(delegateCmd)
}

func loadAppConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// demoAgentIDs lists the IDs registerDemoAgents assigns, in registration
// order, for commands that need to look agents back up afterward.
var demoAgentIDs = []string{"text-1", "code-1", "data-1", "research-1"}

// registerDemoAgents wires the example agents that cover every built-in
// decomposition strategy's task types.
func registerDemoAgents(ctx context.Context, rt *orchestrator.Runtime) error {
	for _, a := range []*agent.Agent{
		agents.TextAnalyzer("text-1"),
		agents.CodeAnalyzer("code-1"),
		agents.DataWorker("data-1"),
		agents.Researcher("research-1"),
	} {
		if err := rt.RegisterAgent(ctx, a); err != nil {
			return fmt.Errorf("register agent %s: %w", a.ID(), err)
		}
	}
	return nil
}

var submitCmd = &cobra.Command{
	Use:   "submit TASK_TYPE",
	Short: "Submit a task to an in-process orchestrator and print the aggregated result",
	Long: `Submit builds a fresh Runtime, registers the demo agents, decomposes
and executes TASK_TYPE, and prints the JSON result. Built-in strategies
are data_pipeline, code_review, compression_analysis, research_synthesis,
and multi_step; any other task type (text_analysis or sentiment_analysis,
for example) is routed directly to a single matching agent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskType := args[0]
		inputJSON, _ := cmd.Flags().GetString("input")

		appConfig, err := loadAppConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		rt, err := orchestrator.NewRuntime("taskmesh-cli", appConfig)
		if err != nil {
			return fmt.Errorf("initialize runtime: %w", err)
		}
		defer rt.Shutdown(context.Background())

		ctx := context.Background()
		if err := registerDemoAgents(ctx, rt); err != nil {
			return err
		}

		parameters := map[string]interface{}{}
		if inputJSON != "" {
			if err := json.Unmarshal([]byte(inputJSON), &parameters); err != nil {
				return fmt.Errorf("parse --input: %w", err)
			}
		}

		result := rt.Orchestrator.ExecuteTask(ctx, map[string]interface{}{
			"task_id":    "cli-submit",
			"task_type":  taskType,
			"parameters": parameters,
		})

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	submitCmd.Flags().String("input", "{}", "JSON object passed as the task's parameters")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the health/metrics HTTP server with the demo agents registered",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := loadAppConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		rt, err := orchestrator.NewRuntime("taskmesh", appConfig)
		if err != nil {
			return fmt.Errorf("initialize runtime: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := registerDemoAgents(ctx, rt); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() {
			errCh <- rt.Start(ctx)
		}()

		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-errCh:
			if err != nil {
				fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return rt.Shutdown(shutdownCtx)
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the demo agents a submit/serve run would register",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := loadAppConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		rt, err := orchestrator.NewRuntime("taskmesh-cli", appConfig)
		if err != nil {
			return fmt.Errorf("initialize runtime: %w", err)
		}
		defer rt.Shutdown(context.Background())

		ctx := context.Background()
		if err := registerDemoAgents(ctx, rt); err != nil {
			return err
		}

		fmt.Printf("%-12s %-16s %-10s\n", "ID", "TYPE", "STATUS")
		for _, id := range demoAgentIDs {
			a, ok := rt.Registry.Get(id)
			if !ok {
				continue
			}
			fmt.Printf("%-12s %-16s %-10s\n", a.ID(), a.AgentType(), a.CurrentStatus())
		}
		return nil
	},
}

var delegateCmd = &cobra.Command{
	Use:   "delegate AGENT_ID TASK_TYPE",
	Short: "Delegate one task directly to a demo agent over the Message Bus",
	Long: `Delegate exercises the Communication Layer's delegate_task path
(spec.md §4.4) end to end: it publishes the task on the target agent's
inbound bus topic and waits for the correlated response on its own
result topic, rather than routing through the Orchestrator.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, taskType := args[0], args[1]
		inputJSON, _ := cmd.Flags().GetString("input")

		appConfig, err := loadAppConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		rt, err := orchestrator.NewRuntime("taskmesh-cli", appConfig)
		if err != nil {
			return fmt.Errorf("initialize runtime: %w", err)
		}
		defer rt.Shutdown(context.Background())

		ctx := context.Background()
		if err := registerDemoAgents(ctx, rt); err != nil {
			return err
		}

		if _, ok := rt.Comms(target); !ok {
			return fmt.Errorf("no agent registered with id %q (is it one of %v?)", target, demoAgentIDs)
		}

		parameters := map[string]interface{}{}
		if inputJSON != "" {
			if err := json.Unmarshal([]byte(inputJSON), &parameters); err != nil {
				return fmt.Errorf("parse --input: %w", err)
			}
		}

		// A dedicated Communication Layer for the CLI's own identity: the
		// target's Layer owns the target's inbound subscription, not a
		// caller's, so delegating through it would have the agent delegate
		// to itself.
		caller := comms.New("cli-delegator", rt.Bus, nil)

		timeout := time.Duration(appConfig.DelegationTimeoutSecs * float64(time.Second))
		result := caller.DelegateTask(ctx, target, taskType, parameters, 0, timeout)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	delegateCmd.Flags().String("input", "{}", "JSON object passed as the task's parameters")
}
