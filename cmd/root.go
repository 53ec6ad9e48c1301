// Package cmd defines and implements the CLI commands for the lawcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/app"
	"github.com/JakeFAU/law-notes-crawler/internal/config"
	"github.com/JakeFAU/law-notes-crawler/internal/crawler"
	"github.com/JakeFAU/law-notes-crawler/internal/egov"
	"github.com/JakeFAU/law-notes-crawler/internal/logging"
	"github.com/JakeFAU/law-notes-crawler/internal/registry"
	pkgconfig "github.com/JakeFAU/law-notes-crawler/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Crawl(ctx context.Context, rootID, titleHint string) (crawler.Summary, error)
	API() *egov.Client
	Registry() registry.Store
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// session carries the App built for one invocation so it can be closed
// even when the subcommand fails.
type session struct {
	app App
}

// newRootCmd creates and configures the root command.
func newRootCmd(s *session) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "lawcrawler",
		Short: "Crawls e-Gov laws into linked Markdown notes.",
		Long: `lawcrawler fetches a Japanese law from e-Gov, renders it as a Markdown
note with wiki links to the laws it cites, and follows those citations
breadth-first up to a configurable depth.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			used, err := pkgconfig.InitConfig(cfgFile)
			if err != nil {
				return err
			}
			cfg, err := config.FromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			if used != "" {
				logger.Debug("loaded config file", zap.String("path", used))
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			s.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("output-dir", "", "directory notes are written to")
	flags.String("data-dir", "", "directory for the registry and unresolved log")
	bindFlag(cmd, "logging.level", "log-level")
	bindFlag(cmd, "paths.output_dir", "output-dir")
	bindFlag(cmd, "paths.data_dir", "data-dir")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRegistryCmd())

	return cmd
}

// bindFlag binds a persistent or local flag to a viper key.
func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes the CLI with args and closes the App afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := &session{}
	cmd := newRootCmd(s)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if s.app != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if closeErr := s.app.Close(closeCtx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown: %w", closeErr))
		}
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lawcrawler:", err)
		os.Exit(1)
	}
}
