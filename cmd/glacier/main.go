package main

import (
	"fmt"
	"os"

	"github.com/newthinker/glacier/internal/config"
	"github.com/newthinker/glacier/internal/logger"
	"github.com/newthinker/glacier/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	debug       bool
	region      string
	topic       string
	queue       string
	output      string
	concurrency int
	metricsFile string
)

// Set up by loadRuntime before any action runs.
var (
	cfg *config.Config
	log *zap.Logger
	reg *metrics.Registry
)

var rootCmd = &cobra.Command{
	Use:   "glacier",
	Short: "Glacier vault archive manager",
	Long: `glacier uploads, downloads, deletes and inventories archives in an
Amazon Glacier vault. Downloads and inventories run as retrieval jobs that
can take hours; completion is awaited through a temporary SNS topic and SQS
queue, with job status polling as a fallback.`,
	PersistentPreRunE: loadRuntime,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path")
	pf.BoolVarP(&debug, "debug", "d", false, "enable debug mode")
	pf.StringVar(&region, "region", "", "AWS region of the vault")
	pf.StringVar(&topic, "topic", "", "prefix of the notification topic name")
	pf.StringVar(&queue, "queue", "", "prefix of the notification queue name")
	pf.IntVar(&concurrency, "concurrency", 0, "actions run at once in a batch")
	pf.StringVar(&metricsFile, "metrics-file", "", "write metrics in text format to this file on exit")
}

// loadRuntime loads and validates configuration, then builds the logger and
// metrics registry. Argument validation has already passed at this point, so
// later errors are not usage errors.
func loadRuntime(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	log, err = logger.New(logger.Options{Debug: cfg.Log.Debug, Encoding: cfg.Log.Encoding})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	reg = metrics.NewRegistry()

	if cfgFile == "" {
		log.Debug("no config file specified, using defaults and environment")
	}
	return nil
}

// applyFlags overrides configuration with flags given on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("debug") {
		c.Log.Debug = debug
	}
	if flags.Changed("region") {
		c.AWS.Region = region
	}
	if flags.Changed("topic") {
		c.Notification.TopicPrefix = topic
	}
	if flags.Changed("queue") {
		c.Notification.QueuePrefix = queue
	}
	if flags.Changed("concurrency") {
		c.Upload.Concurrency = concurrency
	}
	if flags.Changed("metrics-file") {
		c.Metrics.TextfilePath = metricsFile
	}
}

// flush writes the metrics textfile, if one is configured.
func flush() {
	if log != nil {
		defer log.Sync()
	}
	if cfg == nil || reg == nil || cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := reg.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
}

func main() {
	err := rootCmd.Execute()
	flush()
	if err != nil {
		os.Exit(1)
	}
}
