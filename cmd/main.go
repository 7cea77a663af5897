package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-dashboard/internal/api"
	"storefront-dashboard/internal/auth"
	"storefront-dashboard/internal/backend"
	"storefront-dashboard/internal/service"
)

// Credentials the --simulate backend accepts.
const (
	simUsername = "admin"
	simPassword = "admin"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *service.Config
	logger *zap.Logger
	store  *auth.Store
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Live sales dashboard and catalog client for the storefront backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = service.Logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config/config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newDashboardCmd(a),
		newExportCmd(a),
		newProductsCmd(a),
		newPurchaseCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := service.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	service.InitLogger(level)

	a.cfg = cfg
	a.logger = service.Logger
	a.store = auth.NewStore(cfg.Auth, a.logger)
	return nil
}

func (a *app) client() *backend.Client {
	return backend.NewClient(backend.ClientConfig{
		BaseURL: a.cfg.Backend.BaseURL,
		Timeout: a.cfg.Backend.Timeout,
		Breaker: a.cfg.Backend.Breaker,
	}, a.logger)
}

func (a *app) connector() *api.Connector {
	return api.NewConnector(a.cfg.Backend.WSURL, a.logger)
}

func (a *app) simulator() *backend.Simulator {
	return backend.NewSimulator(backend.SimulatorConfig{
		Username: simUsername,
		Password: simPassword,
		Rate:     a.cfg.ExchangeRate.Fallback,
	}, a.logger)
}

// token returns the stored credential, or a login hint.
func (a *app) token() (string, error) {
	token, err := a.store.Token()
	if err != nil {
		return "", fmt.Errorf("%w: run `storefront login` first", err)
	}
	return token, nil
}

// rejected drops both stored credentials when the backend refused them, so the next
// command asks for a fresh login.
func (a *app) rejected(err error) error {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	if clearErr := a.store.Clear(); clearErr != nil {
		a.logger.Warn("Failed to clear stored credential", zap.Error(clearErr))
	}
	return fmt.Errorf("%w: session expired, run `storefront login` again", err)
}

// tokenFunc adapts a function to dashboard.CredentialSource.
type tokenFunc func() (string, error)

func (f tokenFunc) Token() (string, error) { return f() }

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.TimeOnly)
}
