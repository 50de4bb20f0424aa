// Package main is the entry point for the planwalk binary. It provides a
// CLI for validating graph libraries and for stepping traversals
// interactively, feeding each round of execution output back into the
// engine.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/planwalk/planwalk/pkg/config"
	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/engine"
	"github.com/planwalk/planwalk/pkg/engine/runtime"
	"github.com/planwalk/planwalk/pkg/library"
	"github.com/planwalk/planwalk/pkg/logging"
	"github.com/planwalk/planwalk/pkg/policy"
	"github.com/planwalk/planwalk/pkg/storage"
	"github.com/planwalk/planwalk/pkg/telemetry"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "planwalk",
		Short: "Graph workflow traversal engine",
		Long: `planwalk loads workflow graph libraries, validates them, and steps
traversals against execution evidence. Each step either awaits output for
the current node, verifies the output it was given, or transitions the
traversal along the matching edge.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newMatchCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the planwalk version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "planwalk %s\n", version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a graph library",
		Long: `Loads every graph and linear plan from the library and reports
validation errors. A library that validates here is guaranteed to load at
runtime.`,
		RunE: runValidate,
	}
	cmd.Flags().String("library", "", "Path to the library file or directory")
	_ = cmd.MarkFlagRequired("library")
	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("library")
	registry := library.NewRegistry(logger)
	if _, err := library.NewFileProvider(path, registry, logger); err != nil {
		return fmt.Errorf("library invalid: %w", err)
	}

	for _, g := range registry.List() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d edges, staleness %d\n",
			g.ID, len(g.Nodes), len(g.Edges), g.StalenessTurns)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d graphs\n", registry.Len())
	_ = cfg
	return nil
}

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Show which graph a request would activate",
		RunE:  runMatch,
	}
	cmd.Flags().String("library", "", "Path to the library file or directory")
	cmd.Flags().String("message", "", "Request text to match against graph triggers")
	cmd.Flags().String("domain", "", "Request domain")
	_ = cmd.MarkFlagRequired("library")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("library")
	message, _ := cmd.Flags().GetString("message")
	reqDomain, _ := cmd.Flags().GetString("domain")

	registry := library.NewRegistry(logger)
	if _, err := library.NewFileProvider(path, registry, logger); err != nil {
		return err
	}

	g, ok := registry.Match(library.MatchRequest{Message: message, Domain: reqDomain})
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no match")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "matched: %s (%s)\n", g.ID, g.Name)
	return nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step a traversal interactively",
		Long: `Activates a traversal of the named graph and steps it against lines
read from stdin. Each line is treated as the execution output of the
current node; an empty line steps without evidence (advancing only the
staleness clock). Type "quit" to abort the traversal.`,
		RunE: runTraversal,
	}
	cmd.Flags().String("library", "", "Path to the library file or directory")
	cmd.Flags().String("graph", "", "Graph ID to traverse")
	cmd.Flags().String("policies", "", "Directory of Rego modules for decision nodes")
	cmd.Flags().String("snapshot-dir", "", "Directory for traversal snapshots (empty keeps state in memory)")
	cmd.Flags().String("metrics-addr", "", "Address for the Prometheus scrape endpoint (empty disables it)")
	cmd.Flags().Bool("watch", false, "Reload the library when its files change")
	_ = cmd.MarkFlagRequired("library")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

func runTraversal(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "planwalk",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdown(shutdownCtx)
	}()

	libraryPath, _ := cmd.Flags().GetString("library")
	registry := library.NewRegistry(logger)
	provider, err := library.NewFileProvider(libraryPath, registry, logger)
	if err != nil {
		return err
	}
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		if err := provider.Watch(); err != nil {
			return err
		}
		defer provider.Close()
	}

	graphID, _ := cmd.Flags().GetString("graph")
	g, ok := registry.Get(graphID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrGraphNotFound, graphID)
	}

	decisionPolicy, err := loadPolicies(cmd)
	if err != nil {
		return err
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	promMetrics := telemetry.NewPromMetrics()
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		go serveMetrics(ctx, logger, addr, promMetrics)
	}

	eng := engine.New(engine.Config{
		Logger:        logger,
		Verifier:      &engine.Verifier{FailureMarkers: cfg.Engine.FailureMarkers},
		Policy:        decisionPolicy,
		Sink:          consoleSink{out: cmd.OutOrStdout()},
		MaxRouteDepth: cfg.Engine.MaxRouteDepth,
	})

	state, report, err := eng.Activate(ctx, g)
	if err != nil {
		return err
	}
	promMetrics.TraversalStarted()
	if err := store.Save(ctx, state); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Rendered)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for !state.Terminal() && ctx.Err() == nil {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "quit" {
			state.Abort()
			if err := store.Save(ctx, state); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			break
		}

		evidence := runtime.NoEvidence()
		if strings.TrimSpace(line) != "" {
			evidence = runtime.TextEvidence(line)
		}

		report, err = eng.Step(ctx, g, state, evidence)
		if err != nil {
			return err
		}
		recordStep(ctx, promMetrics, g, state, report)
		if err := store.Save(ctx, state); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Rendered)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	promMetrics.TraversalFinished(state.Status)
	logger.Info("traversal finished",
		slog.String("traversal_id", state.ID),
		slog.String("status", string(state.Status)),
		slog.Int("turns", state.Turn),
	)
	return nil
}

func recordStep(ctx context.Context, prom *telemetry.PromMetrics, g *domain.GraphDefinition, state *domain.TraversalState, report runtime.Report) {
	retried := false
	for _, ev := range report.Events {
		if ev.Type == domain.EventRetryTriggered {
			retried = true
		}
	}
	metrics := telemetry.StepMetrics{
		GraphID:      g.ID,
		NodeID:       report.CurrentNodeID,
		Status:       report.Status,
		Transitioned: report.Transitioned,
		Stalled:      report.Stalled,
		Retried:      retried,
	}
	if node, ok := g.Node(report.CurrentNodeID); ok {
		metrics.NodeKind = node.Kind
	}
	telemetry.RecordStep(ctx, metrics, state.Turn)
	prom.RecordStep(g.ID, metrics)
}

// loadPolicies builds a Rego decision policy from a directory of .rego
// modules. Without a directory, decision nodes fail closed.
func loadPolicies(cmd *cobra.Command) (runtime.DecisionPolicy, error) {
	dir, _ := cmd.Flags().GetString("policies")
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policies dir: %w", err)
	}
	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(data)
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("no .rego modules in %s", dir)
	}
	return policy.NewRegoPolicy(policy.RegoOptions{Modules: modules})
}

func openStore(cmd *cobra.Command) (storage.TraversalStore, error) {
	dir, _ := cmd.Flags().GetString("snapshot-dir")
	if dir == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewFileStore(dir)
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, metrics *telemetry.PromMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics endpoint failed", slog.Any("error", err))
	}
}

// consoleSink prints escalations to the interactive session.
type consoleSink struct {
	out interface{ Write([]byte) (int, error) }
}

func (s consoleSink) Escalated(_ context.Context, severity domain.Severity, reason string) {
	fmt.Fprintf(s.out, "!! escalation (%s): %s\n", severity, reason)
}

// setup loads configuration and builds the logger shared by all commands.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
