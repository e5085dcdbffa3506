package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/cadseq/pkg/client"
	"github.com/Sternrassler/cadseq/pkg/config"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/Sternrassler/cadseq/pkg/onshape"
	"github.com/Sternrassler/cadseq/pkg/store/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logPretty  bool

	// cfg is loaded before every command runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cadseq",
	Short: "Harvest and convert parametric design histories",
	Long: `cadseq searches the document service for part studios, keeps those built
only from sketches and extrudes, stores their design history as JSON
records and converts the records into exchange-format artifacts.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human-readable console logs")
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if logPretty {
		loaded.Log.Pretty = true
	}

	lc := loaded.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	logging.Setup(lc)

	cfg = loaded
	return nil
}

// session bundles the transport shared by the commands of one process.
type session struct {
	transport *client.Client
	api       *onshape.API
	redis     *redis.Client
}

// newSession connects the transport. Redis is optional: when it is
// configured but unreachable the session continues without it.
func newSession(ctx context.Context) (*session, error) {
	s := &session{}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	if opts != nil {
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unreachable - continuing without cache")
			rdb.Close()
		} else {
			s.redis = rdb
		}
	}

	transport, err := client.New(cfg.ClientConfig(s.redis))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.transport = transport
	s.api = onshape.New(transport, cfg.API.URL)
	return s, nil
}

func (s *session) Close() {
	if s.transport != nil {
		s.transport.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// openLedger opens the run ledger; nil when no store path is configured.
func openLedger(ctx context.Context) (*sqlite.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	store, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	return store, nil
}
