package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdfactory "github.com/elijahthis/crawl-accessory/internal/cmdFactory"
	"github.com/elijahthis/crawl-accessory/internal/shared"
	"github.com/rs/zerolog/log"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

type crawlerOptions struct {
	configPath  string
	seeds       []string
	workers     int
	metricsPort int
	logLevel    string
	crossDomain bool
	depth       int
	queue       string
}

func newCmdRootCrawler(opts *crawlerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler [flags]",
		Short: "Crawl Accessory CLI",
		Long:  `Crawl websites through rotating proxies and export items to redis or object storage.`,
		Example: heredoc.Doc(`
			$ crawler --seed "https://example.com,https://example.org"
			$ PROXY_ENABLED=true PROXY_HOST=10.0.0.5:8080 crawler --seed https://example.com
			$ PROXY_CACHE=redis://localhost:6379/0 FEED_URI="obs://bucket/items-%(time)s.jl" crawler --config crawler.yaml
			$ REDIS_CONNECTION_URL=redis://localhost:6379/0 crawler --seed https://example.com --queue example-items
		`),
		Annotations: map[string]string{
			"versionInfo": "1.0",
		},
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c, opts)
			if err != nil {
				return err
			}

			shared.InitLogger("crawler", shared.LogOptions{Level: cfg.LogLevel, File: cfg.LogFile})
			return runCrawler(c.Context(), &cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML settings file")
	cmd.Flags().StringSliceVar(&opts.seeds, "seed", []string{}, "Comma-separated list of start URLs")
	cmd.Flags().IntVar(&opts.workers, "workers", 10, "Number of crawler workers")
	cmd.Flags().IntVar(&opts.metricsPort, "metrics-port", 9190, "Port for Metrics server (0 disables it)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.crossDomain, "cross-domain", false, "Allow Crawler to crawl links across different domains")
	cmd.Flags().IntVar(&opts.depth, "depth", 0, "Maximum link depth (0 means unlimited)")
	cmd.Flags().StringVar(&opts.queue, "queue", "", "Redis list for this run's items (overrides REDIS_DEFAULT_QUEUE)")

	cmd.PersistentFlags().Bool("help", false, "Show help for crawler command")
	return cmd
}

// loadConfig layers flags that were set explicitly over file and environment.
func loadConfig(c *cobra.Command, opts *crawlerOptions) (cmdfactory.Config, error) {
	cfg, err := cmdfactory.LoadConfig(opts.configPath)
	if err != nil {
		return cfg, err
	}

	flags := c.Flags()
	if flags.Changed("seed") {
		cfg.SeedURLs = opts.seeds
	}
	if flags.Changed("workers") {
		cfg.WorkerCount = opts.workers
	}
	if flags.Changed("metrics-port") {
		cfg.MetricsPort = opts.metricsPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("cross-domain") {
		cfg.CrawlCrossDomain = opts.crossDomain
	}
	if flags.Changed("depth") {
		cfg.DepthLimit = opts.depth
	}
	if flags.Changed("queue") && opts.queue != "" {
		cfg.RedisDefaultQueue = opts.queue
	}
	return cfg, nil
}

func runCrawler(ctx context.Context, cfg *cmdfactory.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := cmdfactory.CrawlerNew(ctx, cfg)
	if err != nil {
		return err
	}
	f.StartMetrics(ctx, cfg)

	if len(cfg.SeedURLs) > 0 {
		log.Info().Strs("seeds", cfg.SeedURLs).Msg("Seeding Frontier")
		if err := f.Frontier.Push(ctx, cfg.SeedURLs, 0); err != nil {
			log.Error().Err(err).Msg("Frontier Push Error")
		}
	}

	f.Coordinator.Run(ctx)

	// The run context may already be cancelled; the feed upload still needs time.
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := f.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close item pipelines")
		return err
	}
	return nil
}

var cmdCrawler = newCmdRootCrawler(&crawlerOptions{})

func ExecuteCrawler() {
	if err := cmdCrawler.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Error while executing crawler")
	}
}
