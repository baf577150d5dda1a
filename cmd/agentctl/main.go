package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentdb/internal/config"
	"agentdb/internal/logger"
	"agentdb/internal/server"
)

var (
	agentFlag string
	verbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate the external database integration of an agent",
		Long:          "Test connections, introspect and sync schemas, and export query results for one agent.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&agentFlag, "agent", "", "agent id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	_ = rootCmd.MarkPersistentFlagRequired("agent")

	rootCmd.AddCommand(
		testConnectionCmd(),
		introspectCmd(),
		syncCmd(),
		importCmd(),
		exportCmd(),
		diagramCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp parses the agent flag, boots the shared dependencies and closes them after fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *server.App, agentID uuid.UUID) error) error {
	agentID, err := uuid.Parse(agentFlag)
	if err != nil {
		return fmt.Errorf("invalid --agent: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if verbose {
		log = logger.NewLogger(cfg.LogJSON)
	}
	defer func() { _ = log.Sync() }()

	bootCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	app, err := server.NewApp(bootCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(cmd.Context(), app, agentID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
