package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/glacier/internal/action"
	"github.com/newthinker/glacier/internal/notifier"
	"github.com/newthinker/glacier/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <vault> <file>...",
	Short: "Upload files as archives",
	Long: `Upload each file as a separate archive. Files at or above the multipart
threshold are sent in parts. The archive ID of every upload is printed; keep
it, Glacier offers no other way to address an archive.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runActions(cmd, args[0], args[1:])
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <vault> <archiveId>...",
	Short: "Delete archives",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runActions(cmd, args[0], args[1:])
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <vault> <archiveId> [output]",
	Short: "Retrieve an archive",
	Long: `Start an archive retrieval job, wait for it and write the archive to
output, --output, or <first 16 characters of the ID>.archive. An s3://bucket/key
output uploads the result to S3. Retrieval jobs usually take hours.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rest := args[1:]
		if len(rest) == 1 && output != "" {
			rest = append(rest, output)
		}
		return runActions(cmd, args[0], rest)
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&output, "output", "o", "", "destination path or s3://bucket/key")
	rootCmd.AddCommand(uploadCmd, deleteCmd, downloadCmd)
}

// runActions runs the actions named by the command on vault and prints a
// report. Any failed item makes the command fail.
func runActions(cmd *cobra.Command, vault string, args []string) error {
	_, err := execute(cmd, vault, args)
	return err
}

func execute(cmd *cobra.Command, vault string, args []string) (*action.Report, error) {
	verb, err := action.ParseVerb(cmd.Name())
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(ctx, cfg, vault, session.WithLogger(log), session.WithMetrics(reg))
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	acts, err := action.New(verb, sess, vault, args)
	if err != nil {
		return nil, err
	}

	log.Debug("running actions",
		zap.String("verb", string(verb)),
		zap.Stringer("vault", sess.Vault()),
		zap.Int("count", len(acts)),
	)
	if verb.Retrieval() {
		log.Info("waiting for retrieval jobs, this usually takes hours",
			zap.Duration("timeout", cfg.Retrieval.HardTimeout))
	}
	runner := &action.Runner{Concurrency: cfg.Upload.Concurrency, Logger: log, Metrics: reg}
	report := runner.Run(ctx, acts)

	if cfg.Report.WebhookURL != "" {
		hook := notifier.New(cfg.Report.WebhookURL, cfg.Report.Headers)
		if err := hook.Send(context.WithoutCancel(ctx), vault, report); err != nil {
			log.Warn("posting report failed", zap.String("notifier", hook.Name()), zap.Error(err))
		}
	}

	if err := report.Write(cmd.OutOrStdout()); err != nil {
		return report, err
	}
	if !report.OK() {
		return report, fmt.Errorf("%d of %d %s actions failed", len(report.Failed()), len(report.Items), verb)
	}
	return report, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
