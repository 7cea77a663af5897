package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-dashboard/internal/api"
	"storefront-dashboard/internal/backend"
	"storefront-dashboard/internal/dashboard"
	"storefront-dashboard/internal/metrics"
	"storefront-dashboard/internal/model"
	"storefront-dashboard/internal/notify"
	"storefront-dashboard/internal/report"
	"storefront-dashboard/internal/service"
)

func newDashboardCmd(a *app) *cobra.Command {
	var (
		simulate     bool
		simInterval  time.Duration
		exportOnExit bool
		days         int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Follow live sales and keep the dashboard aggregates in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				b      backend.Backend
				dialer api.Dialer
				creds  dashboard.CredentialSource = a.store
			)
			if simulate {
				sim := a.simulator()
				b, dialer = sim, sim
				creds = tokenFunc(func() (string, error) { return sim.Token(), nil })
				go runSimulation(ctx, sim, simInterval, a.logger)
			} else {
				b, dialer = a.client(), a.connector()
			}

			notifiers, err := notify.FromConfig(a.cfg.Notify, a.logger)
			if err != nil {
				return err
			}

			if days <= 0 {
				days = a.cfg.Dashboard.DefaultRangeDays
			}

			c := dashboard.NewController(dialer,
				func(ctx context.Context, token string, rng model.DateRange) (model.RawReport, error) {
					return backend.FetchDashboard(ctx, b, token, rng)
				},
				creds,
				dashboard.WithLogger(a.logger),
				dashboard.WithReconnectDelay(a.cfg.Dashboard.ReconnectDelay),
				dashboard.WithDiscardStale(a.cfg.Dashboard.DiscardStaleResponses),
				dashboard.WithReportEngine(model.NewReportEngine(a.cfg.Dashboard.TrendSMAPeriod)),
				dashboard.WithRange(model.LastDays(time.Now(), days)),
				dashboard.WithNotifiers(notifiers...),
			)

			shutdownMetrics := serveMetrics(a.cfg.Metrics.ListenAddr, a.logger)
			defer shutdownMetrics()

			loginRequired := make(chan struct{})
			var printer viewPrinter
			unsubscribe := c.Subscribe(func(v dashboard.View) {
				printer.print(cmd.OutOrStdout(), v)
				if v.LoginRequired && v.State == dashboard.StateTerminated {
					select {
					case <-loginRequired:
					default:
						close(loginRequired)
					}
				}
			})
			defer unsubscribe()

			if err := c.Start(ctx); err != nil {
				return err
			}

			var runErr error
			select {
			case <-ctx.Done():
			case <-loginRequired:
				runErr = fmt.Errorf("login required: run `storefront login` first")
			}
			c.Stop()

			if exportOnExit {
				if err := exportView(cmd.OutOrStdout(), a.cfg.Report, c.View()); err != nil {
					return errors.Join(runErr, err)
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&simulate, "simulate", false, "run against an in-memory backend that generates sales")
	cmd.Flags().DurationVar(&simInterval, "sim-interval", 3*time.Second, "time between simulated sales")
	cmd.Flags().BoolVar(&exportOnExit, "export-on-exit", false, "write the last view as an xlsx report on exit")
	cmd.Flags().IntVar(&days, "days", 0, "date range length in days (default dashboard.default_range_days)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		days   int
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch the dashboard once and write it as an xlsx report",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = a.cfg.Dashboard.DefaultRangeDays
			}
			if outDir != "" {
				a.cfg.Report.OutputDir = outDir
			}

			now := time.Now()
			rng := model.LastDays(now, days)
			raw, err := backend.FetchDashboard(cmd.Context(), a.client(), token, rng)
			if err != nil {
				return fmt.Errorf("fetch dashboard: %w", err)
			}

			snap := model.NewReportEngine(a.cfg.Dashboard.TrendSMAPeriod).Build(raw, rng, now)
			return exportView(cmd.OutOrStdout(), a.cfg.Report, dashboard.View{HasSnapshot: true, Snapshot: snap})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "date range length in days (default dashboard.default_range_days)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default report.output_dir)")
	return cmd
}

// exportView writes the view's current snapshot; it never calls the backend.
func exportView(out io.Writer, cfg service.ReportConfig, v dashboard.View) error {
	if !v.HasSnapshot {
		return fmt.Errorf("nothing to export: the dashboard has not loaded yet")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	path, err := report.Save(cfg.OutputDir, v.Snapshot, report.Options{
		DateLayout: cfg.DateLayout,
		TimeLayout: cfg.TimeLayout,
		Location:   loc,
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Report written to %s\n", path)
	return nil
}

func runSimulation(ctx context.Context, sim *backend.Simulator, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sim.SellRandom(ctx, r); err != nil {
				logger.Info("Simulation finished", zap.Error(err))
				return
			}
		}
	}
}

// serveMetrics exposes /metrics when addr is set and returns a shutdown func.
func serveMetrics(addr string, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// viewPrinter prints a status line whenever something visible changes. It is only
// called from the controller goroutine.
type viewPrinter struct {
	lastKey string
}

func (p *viewPrinter) print(out io.Writer, v dashboard.View) {
	latest := ""
	if len(v.Notifications) > 0 {
		latest = v.Notifications[0].ID
	}
	key := fmt.Sprintf("%s|%s|%s|%s|%t", v.Status, v.State, formatClock(v.LastRefresh), latest, v.LoginRequired)
	if key == p.lastKey {
		return
	}
	p.lastKey = key

	fmt.Fprintf(out, "[%s] %s | revenue R$ %s | units %d | refreshed %s\n",
		v.Status, v.Range, service.FormatMoney(v.Snapshot.TotalRevenue), v.Snapshot.TotalUnits, formatClock(v.LastRefresh))

	if latest != "" {
		fmt.Fprintf(out, "  %s\n", v.Notifications[0].Message)
	}
	for _, c := range v.Snapshot.Categories {
		fmt.Fprintf(out, "  %-14s R$ %s\n", c.Name, service.FormatMoney(c.Revenue))
	}
	if v.LoginRequired {
		fmt.Fprintln(out, "  login required")
	}
}
