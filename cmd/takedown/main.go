package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmerrifield20/takedown/internal/config"
	"github.com/jmerrifield20/takedown/internal/guard"
	"github.com/jmerrifield20/takedown/internal/metrics"
	"github.com/jmerrifield20/takedown/internal/session"
	"github.com/jmerrifield20/takedown/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile     string
	apiURL      string
	showMetrics bool
)

// app holds the collaborators built once per invocation.
var app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	api     *client.Client
	store   *session.Store
}

func main() {
	err := rootCmd.Execute()
	finish(os.Stderr)
	if app.logger != nil {
		_ = app.logger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

// finish prints the forced-logout notice and, with --metrics, the metrics.
// It runs whether or not the command failed.
func finish(w io.Writer) {
	if app.store != nil {
		if msg := app.store.TakeAuthError(); msg != "" {
			fmt.Fprintln(w, msg)
		}
	}
	if showMetrics && app.metrics != nil {
		if err := app.metrics.WriteText(w); err != nil {
			fmt.Fprintf(w, "write metrics: %v\n", err)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "takedown",
	Short: "Moderation client for web-novel copyright reports",
	Long: `takedown lists, files and moderates copyright-violation reports against
works and author profiles.

Anyone can browse approved reports. Signed-in moderators can edit, approve
and change the status of reports; admins can also delete reports and manage
accounts and webhooks.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.takedown/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default http://localhost:3001)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print request metrics to stderr on exit")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(webhooksCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup resolves configuration and wires the client to the session store.
func setup(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if apiURL != "" {
		v.Set("api_url", apiURL)
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	app.cfg = cfg

	lvl, _ := cfg.Level()
	logger, err := newLogger(lvl)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	app.logger = logger
	app.metrics = metrics.New()

	var store *session.Store
	api, err := client.New(cfg.APIURL,
		client.WithTimeout(cfg.Timeout),
		client.WithRetries(cfg.Retries),
		client.WithRateLimit(cfg.RateLimitRPS, 1),
		client.WithLogger(logger.Named("client")),
		client.WithObserver(app.metrics),
		client.WithSessionExpiredHook(func(err error) { store.ForceLogout(err) }),
	)
	if err != nil {
		return err
	}
	store = session.NewStore(api, cfg.SessionFile, logger.Named("session"))
	if _, err := store.Restore(); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	app.api, app.store = api, store
	logger.Debug("configured",
		zap.String("api_url", cfg.APIURL),
		zap.String("config_file", cfg.File),
		zap.String("user", store.Current().Username()),
	)
	return nil
}

func newLogger(lvl zapcore.Level) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}

// require refuses to run a command the current session may not reach.
func require(req guard.Requirement) error {
	err := guard.Require(app.store, req)
	var re *guard.RedirectError
	if errors.As(err, &re) && re.To == guard.Login {
		return fmt.Errorf("%w: run `takedown login`", err)
	}
	return err
}

// record counts a moderation action and passes err through.
func record(action string, err error) error {
	app.metrics.RecordAction(action, err)
	if err != nil {
		app.logger.Debug("action failed", zap.String("action", action), zap.Error(err))
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the takedown version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("takedown %s\n", version)
	},
}
