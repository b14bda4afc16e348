package main

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/regchan/internal/logging"
	"github.com/signalsfoundry/regchan/internal/observability"
	"github.com/signalsfoundry/regchan/internal/regstate"
	"github.com/signalsfoundry/regchan/model"
	"github.com/signalsfoundry/regchan/timectrl"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the radios running, expose /metrics and expire AFC grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, prometheus.NewRegistry())
		},
	}
	cmd.Flags().String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics; empty disables it")
	a.bind(cmd.Flags().Lookup("metrics-addr"), "metrics_addr")
	return cmd
}

// logSender stands in for the firmware transport and records every
// southbound message in the log.
type logSender struct {
	log logging.Logger
}

func (s logSender) Deliver(ctx context.Context, msg regstate.SouthMessage) error {
	fields := []logging.Field{
		logging.Phy(msg.PhyID),
		logging.String("kind", msg.Kind.String()),
		logging.Uint("generation", msg.Generation),
	}
	switch msg.Kind {
	case regstate.SouthCTL:
		fields = append(fields, logging.String("ctl", hex.EncodeToString(msg.CTL)))
	case regstate.SouthChannelList:
		fields = append(fields, logging.Int("channels", len(msg.Channels)))
	}
	s.log.Info(ctx, "southbound message", fields...)
	return nil
}

func (a *app) serve(ctx context.Context, reg *prometheus.Registry) error {
	shutdownTracing, err := observability.InitTracing(ctx, a.cfg.Tracing, a.log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, a.log)

	collector, err := observability.NewRegCollector(reg)
	if err != nil {
		return err
	}
	queues, err := observability.NewNotifierCollector(reg)
	if err != nil {
		return err
	}

	r, err := a.buildRadio(ctx,
		regstate.WithMetricsRecorder(collector),
		regstate.WithQueueMetrics(queues),
		regstate.WithSouthbound(logSender{log: a.log}),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	_, unsubscribe, err := r.Subscribe(func(ev regstate.ListChanged) {
		counts := ev.Current.CountByState()
		a.log.Info(context.Background(), "channel list changed",
			logging.Phy(ev.PhyID),
			logging.Uint("generation", ev.Generation),
			logging.String("trigger", string(ev.Trigger)),
			logging.String("trigger_id", ev.TriggerID),
			logging.Int("enabled", counts[model.StateEnable]),
			logging.Int("dfs", counts[model.StateDFS]),
		)
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	var srv *http.Server
	if addr := a.cfg.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn(context.Background(), "metrics server exited", logging.Err(err))
			}
		}()
		a.log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	}

	tickerDone := a.startAFCExpiry(ctx, r, timectrl.SystemClock{}, a.cfg.Engine.AFCCheckInterval)

	<-ctx.Done()
	a.log.Info(context.Background(), "shutting down")
	// The radio closes on return; no tick may reach it afterwards.
	<-tickerDone
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

// startAFCExpiry checks for expired AFC grants every interval until ctx is
// done. The returned channel closes once the last check has finished.
func (a *app) startAFCExpiry(ctx context.Context, r *regstate.RadioConfig, clock timectrl.Clock, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	ticker := timectrl.NewTicker(clock, interval)
	ticker.AddListener(func(now time.Time) {
		for _, phy := range r.CheckAFCExpiry(ctx, now) {
			a.log.Info(ctx, "AFC grant expired", logging.Phy(phy))
		}
	})
	go func() {
		defer close(done)
		_ = ticker.Run(ctx)
	}()
	return done
}
