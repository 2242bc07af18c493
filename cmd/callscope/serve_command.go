package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"callscope/internal/api"
	"callscope/internal/daemon"
	"callscope/internal/ingest"
	"callscope/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), ctx)
		},
	}
}

func runServer(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := ctx.log()

	st, err := ctx.openStore()
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	reports, model, err := ctx.newReports(st)
	if err != nil {
		return err
	}
	syncer, err := ctx.newSyncer(st, ingest.WithChangeHook(reports.InvalidateAnalyses))
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, syncer, reports, logger, api.WithPinger(st), api.WithModelName(model))
	d, err := daemon.New(cfg, syncer, reports, server, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("callscope server shutting down")
	return nil
}
