// Package cli implements the stack-updater command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nholik/stack-updater/internal/catalog"
	"github.com/nholik/stack-updater/internal/config"
	"github.com/nholik/stack-updater/internal/logging"
	"github.com/nholik/stack-updater/internal/metrics"
	"github.com/nholik/stack-updater/internal/notify"
	"github.com/nholik/stack-updater/internal/stack"
	"github.com/nholik/stack-updater/internal/syncer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// CLI represents the stack-updater command line interface.
type CLI struct {
	rootCmd  *cobra.Command
	flags    config.Flags
	logOut   io.Writer
	exitCode int
}

// New creates the root command.
func New() *CLI {
	c := &CLI{}
	rootCmd := &cobra.Command{
		Use:   "stack-updater",
		Short: "Update stack member version locators to the latest consumable catalog versions",
		Long: "stack-updater reads a stack definition, asks the IBM Cloud catalog for the newest\n" +
			"consumable version of every member and writes the new version locators back.",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&c.flags.StackPath, "stack", "s", "", "Path to the stack definition JSON file")
	flags.StringVarP(&c.flags.APIKey, "api-key", "k", "", "IBM Cloud API key (defaults to $IBM_CLOUD_API_KEY)")
	flags.BoolVar(&c.flags.Debug, "debug", false, "Enable debug logging (overrides --log-level)")
	flags.StringVar(&c.flags.LogLevel, "log-level", "", fmt.Sprintf("Log level: %s (default %s)", strings.Join(logging.Levels, ", "), config.DefaultLogLevel))
	flags.BoolVarP(&c.flags.DryRun, "dry-run", "d", false, "Resolve updates without writing the stack file")
	flags.StringVarP(&c.flags.ConfigPath, "config", "c", "", "Path to a YAML settings file")
	flags.DurationVar(&c.flags.Timeout, "timeout", 0, fmt.Sprintf("Timeout for each catalog request (default %s)", config.DefaultTimeout))
	flags.IntVar(&c.flags.Concurrency, "concurrency", 0, fmt.Sprintf("Members resolved in parallel (default %d)", config.DefaultConcurrency))
	flags.StringVar(&c.flags.MetricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format to this path")
	_ = rootCmd.MarkFlagRequired("stack")
	_ = rootCmd.MarkFlagFilename("stack", "json")
	_ = rootCmd.MarkFlagFilename("config", "yaml", "yml")

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context. A nil error with a
// non-zero ExitCode means the run finished but some members failed.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// ExitCode reports the process exit code for the last successful Execute.
func (c *CLI) ExitCode() int {
	return c.exitCode
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetLogOutput sends structured logs to w instead of a console writer on stderr.
func (c *CLI) SetLogOutput(w io.Writer) {
	c.logOut = w
}

func (c *CLI) run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.flags)
	if err != nil {
		return err
	}

	logger := c.newLogger(cfg)
	stackName := stackNameFromPath(cfg.StackPath)
	logger = logger.With().Str("component", "stack-updater").Logger()

	opts := []catalog.Option{
		catalog.WithTimeout(cfg.Timeout),
		catalog.WithRetryWindow(cfg.RetryWindow),
	}
	if cfg.IAMClientID != "" {
		opts = append(opts, catalog.WithClientCredentials(cfg.IAMClientID, cfg.IAMClientSecret))
	}
	tokens, err := catalog.NewTokenSource(logger, cfg.IAMURL, cfg.APIKey, opts...)
	if err != nil {
		return &config.ConfigError{Err: err}
	}
	client, err := catalog.NewHTTPClient(logger, cfg.CatalogURL, tokens, opts...)
	if err != nil {
		return &config.ConfigError{Err: err}
	}

	notifier, err := newNotifier(logger, cfg)
	if err != nil {
		return &config.ConfigError{Err: err}
	}

	m := metrics.New()
	synchronizer := syncer.New(logger, stack.NewFileStore(cfg.StackPath, logger), client,
		syncer.WithStackName(stackName),
		syncer.WithDryRun(cfg.DryRun),
		syncer.WithConcurrency(cfg.Concurrency),
		syncer.WithMetrics(m),
		syncer.WithNotifier(notifier),
	)

	result, runErr := synchronizer.Run(cmd.Context())
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("failed to write metrics textfile")
		}
	}
	if runErr != nil {
		return runErr
	}

	c.exitCode = result.ExitCode()
	if c.exitCode == 0 {
		logger.Info().Bool("written", result.Written).Msg("update run complete")
	}
	return nil
}

func (c *CLI) newLogger(cfg config.Config) zerolog.Logger {
	level := logging.LevelFor(cfg.Debug, cfg.LogLevel)
	if c.logOut != nil {
		return logging.NewWithWriter(c.logOut, level)
	}
	return logging.NewWithLevel(level)
}

func newNotifier(logger zerolog.Logger, cfg config.Config) (notify.Notifier, error) {
	slackNotifier, err := notify.NewSlackNotifier(logger, cfg.SlackWebhookURL)
	if err != nil {
		return nil, err
	}
	notifiers := []notify.Notifier{slackNotifier}

	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier, nil
}

func stackNameFromPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." || name == string(os.PathSeparator) {
		return "default"
	}
	return name
}
