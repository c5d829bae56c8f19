package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"thoth/internal/orchestrator"
	"thoth/internal/server"
	"thoth/internal/task"
)

var version = "0.3.0"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "thoth",
		Short:         "Capability-routing task orchestrator with checkpoint rollback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newRunCmd(&configPath),
		newExecCmd(&configPath),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "thoth %s\n", version)
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event-stream server until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			srv := server.New(rt.cfg.Server, rt.bus, rt.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				rt.logger.Info("received %s, shutting down", sig)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow file and print each step's result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := task.LoadWorkflow(args[0])
			if err != nil {
				return err
			}

			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			results, err := rt.orch.RunWorkflow(cmd.Context(), wf)
			for i, result := range results {
				fmt.Fprintln(cmd.OutOrStdout(), renderResult(i+1, result))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(wf.Name, results))
			return nil
		},
	}
}

func newExecCmd(configPath *string) *cobra.Command {
	var (
		agent   string
		timeout time.Duration
		params  []string
	)

	cmd := &cobra.Command{
		Use:   "exec <task-type>",
		Short: "Execute a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskParams, err := parseParams(params)
			if err != nil {
				return err
			}

			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			var opts []orchestrator.ExecOption
			if agent != "" {
				opts = append(opts, orchestrator.WithAgent(agent))
			}
			if timeout > 0 {
				opts = append(opts, orchestrator.WithTimeout(timeout))
			}

			result, err := rt.orch.ExecuteTask(cmd.Context(), task.New(args[0], taskParams), opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderResult(1, result))
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "route to a named adapter instead of by capability")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-task deadline override")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "task parameter as key=value, repeatable")
	return cmd
}

func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
