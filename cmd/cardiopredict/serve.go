package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/history"
	"github.com/a3tai/cardiopredict/internal/mcp"
	"github.com/a3tai/cardiopredict/internal/reconcile"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio or HTTP, see --mode)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	var hist *history.Store
	if store, err := a.openHistory(); err != nil {
		a.logger.WarnContext(ctx, "history unavailable", "error", err)
	} else {
		hist = store
		defer hist.Close()
	}

	server, err := mcp.NewServer(a.cfg, mcp.Dependencies{
		Schema:    a.schema,
		Loader:    a.newLoader(),
		Extractor: a.newExtractor(),
		Sessions:  a.sessions,
		History:   hist,
		NewSubmitter: func(session *auth.Context) (reconcile.Submitter, error) {
			return a.newPredictClient(session)
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	if a.cfg.IsDebug() && a.cfg.IsServerMode() {
		a.logger.DebugContext(ctx, "starting with configuration", "config", a.cfg.String())
	}

	// In stdio mode the parent process controls our lifecycle; in server mode
	// Run returns once ctx is canceled by a signal.
	if err := server.Run(ctx); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "server stopped")
	return nil
}
