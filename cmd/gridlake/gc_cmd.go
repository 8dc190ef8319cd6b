package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridlake-io/gridlake/internal/catalog"
	"github.com/gridlake-io/gridlake/internal/gc"
	"github.com/gridlake-io/gridlake/internal/metrics"
)

func newGCCmd(g *globalOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete objects left behind by failed conversions",
		Long: `Sweep orphan markers recorded when a conversion failed after writing
objects. Objects are deleted once their marker is older than the configured
TTL. Without --once the sweeper runs until interrupted and serves metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			gcc := a.cfg.GC
			sweeper := gc.NewOrphanSweeper(a.meta, a.store, catalog.New(a.meta), gc.OrphanSweeperConfig{
				ScanIntervalMs: gcc.ScanIntervalMs,
				OrphanTTLMs:    gcc.OrphanTTLMs,
			})
			a.gcMetrics = metrics.NewGCMetrics()
			sweeper.SetRecorder(a.gcMetrics)

			if once {
				n, err := sweeper.ScanOnce(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(g.out, "swept %d orphan markers\n", n)
				return err
			}

			if !gcc.Enabled {
				a.logger.Warn("gc disabled by configuration; nothing to do")
				return nil
			}

			srv := metrics.NewServer(a.cfg.Observability.MetricsAddr)
			srv.SetHealthCheck(sweeper.Health)
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			defer srv.Close()
			a.logger.Infof("metrics server started", map[string]any{"addr": srv.Addr()})

			backlog := metrics.NewGCBacklogScanner(a.gcMetrics, sweeper, time.Duration(gcc.ScanIntervalMs)*time.Millisecond)
			backlog.Start()
			defer backlog.Stop()

			sweeper.Start()
			defer sweeper.Stop()

			<-ctx.Done()
			a.logger.Info("received shutdown signal")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and exit")
	return cmd
}
