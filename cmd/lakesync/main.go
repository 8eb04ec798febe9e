// Command lakesync loads data-lake exports into the relational store and
// keeps the search indices in sync with it.
//
// Usage:
//
//	lakesync migrate
//	lakesync ingest organizations gs://lake-exports/organizations.json.gz
//	lakesync ingest kev
//	lakesync index sync --index all
//	lakesync serve --config lakesync.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exploopio/lakesync/pkg/config"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/search"
	"github.com/exploopio/lakesync/pkg/store"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	rootCmd = &cobra.Command{
		Use:           "lakesync",
		Short:         "Synchronize data-lake exports into the store and search indices",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&logFormat, "log-format", "", "log format: console or json (overrides config)")

	rootCmd.AddCommand(migrateCmd, ingestCmd, indexCmd, serveCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg     *config.Config
	logger  *logging.ZapLogger
	metrics metrics.Collector
}

// newApp loads the configuration and builds the logger. collector may be
// nil.
func newApp(collector metrics.Collector) (*app, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.NewZapLogger(cfg.LoggingOptions())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, metrics: metrics.OrNop(collector)}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// openStore opens the store and applies pending migrations.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.Database, &store.Options{Logger: a.logger.Named("store"), Metrics: a.metrics})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func (a *app) newBackend() (*search.Elastic, error) {
	return search.NewElastic(a.cfg.ElasticConfig(a.logger.Named("search")))
}

// jobs builds the index sync jobs named by which: organizations, domains
// or all.
func (a *app) jobs(b search.Backend, src search.Source, which ...string) ([]*search.Job, error) {
	jobCfg := func(index string) *search.JobConfig {
		return &search.JobConfig{
			Index:   index,
			Chunk:   a.cfg.ChunkConfig(),
			Logger:  a.logger.Named("index"),
			Metrics: a.metrics,
		}
	}

	var jobs []*search.Job
	seen := make(map[string]bool)
	for _, name := range which {
		names := []string{name}
		if name == "all" {
			names = []string{config.JobOrganizations, config.JobDomains}
		}
		for _, n := range names {
			if seen[n] {
				continue
			}
			seen[n] = true
			switch n {
			case config.JobOrganizations:
				jobs = append(jobs, search.NewOrganizationJob(b, src, jobCfg(a.cfg.Search.OrganizationsIndex)))
			case config.JobDomains:
				jobs = append(jobs, search.NewDomainJob(b, src, jobCfg(a.cfg.Search.DomainsIndex)))
			default:
				return nil, fmt.Errorf("unknown index %q (want organizations, domains or all)", n)
			}
		}
	}
	return jobs, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
