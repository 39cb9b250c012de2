package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quanyeomans/content-tamer/organize"
)

var version = "dev"

func main() {
	// Local .env is a convenience for API keys; absence is normal.
	godotenv.Load() //nolint:errcheck

	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "content-tamer",
		Short: "Rename scanned documents from their content",
		Long: `content-tamer reads PDFs and images from an input directory, extracts
their content, asks an AI provider for a descriptive filename, and moves
each file into the destination directory under that name. Progress is
journaled so an interrupted run resumes where it left off.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromViper(v)

			organize.InitLogger(cfg.LogDir)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := organize.NewSession(cfg)
			if err != nil {
				return err
			}

			result := session.Run(ctx)
			printSummary(cmd, result)
			os.Exit(result.ExitCode())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "directory of documents to process (required)")
	flags.String("dest", "", "directory renamed files are moved into (required)")
	flags.String("quarantine", "", "directory for unprocessable files (default <dest>/quarantine)")
	flags.String("provider", "openai", "AI provider: openai|anthropic|google|deepseek|local")
	flags.String("model", "", "model name (provider default when empty)")
	flags.String("api-key", "", "API key (falls back to <PROVIDER>_API_KEY env)")
	flags.String("base-url", "", "override the provider endpoint")
	flags.String("ocr-lang", "eng", "tesseract language for OCR")
	flags.Bool("detect-orientation", false, "detect and correct page rotation before OCR")
	flags.Bool("reset-progress", false, "discard the progress journal and start over")
	flags.Int("max-attempts", 3, "retry attempts per recoverable failure")
	flags.Int("workers", 1, "concurrent file workers")
	flags.Bool("watch", false, "keep running and process files as they arrive")
	flags.Int("token-budget", 15000, "max tokens of document text sent per request")
	flags.Duration("timeout", 90*time.Second, "per-request provider timeout")
	flags.String("log-dir", "", "write level-split log files here")
	flags.Bool("no-cache", false, "disable the proposal cache")

	cmd.MarkFlagRequired("input") //nolint:errcheck
	cmd.MarkFlagRequired("dest")  //nolint:errcheck

	v.BindPFlags(flags) //nolint:errcheck
	v.SetEnvPrefix("CONTENT_TAMER")
	v.AutomaticEnv()

	return cmd
}

func configFromViper(v *viper.Viper) organize.Config {
	return organize.Config{
		InputDir:          v.GetString("input"),
		DestinationDir:    v.GetString("dest"),
		QuarantineDir:     v.GetString("quarantine"),
		Provider:          v.GetString("provider"),
		Model:             v.GetString("model"),
		APIKey:            v.GetString("api-key"),
		BaseURL:           v.GetString("base-url"),
		OCRLanguage:       v.GetString("ocr-lang"),
		DetectOrientation: v.GetBool("detect-orientation"),
		ResetProgress:     v.GetBool("reset-progress"),
		MaxAttempts:       v.GetInt("max-attempts"),
		WorkerCount:       v.GetInt("workers"),
		Watch:             v.GetBool("watch"),
		TokenBudget:       v.GetInt("token-budget"),
		RequestTimeout:    v.GetDuration("timeout"),
		LogDir:            v.GetString("log-dir"),
		NoCache:           v.GetBool("no-cache"),
	}
}

func printSummary(cmd *cobra.Command, result *organize.Result) {
	out := cmd.OutOrStdout()
	s := result.Stats

	fmt.Fprintf(out, "\nProcessed %d file(s): %d renamed, %d failed, %d warning(s)\n",
		s.Total, s.Succeeded, s.Failed, s.Warnings)
	if s.RecoverableRetryEvents > 0 {
		fmt.Fprintf(out, "Recoverable issues: %d event(s) across %d file(s), %d retry success(es)\n",
			s.RecoverableRetryEvents, s.UniqueFilesWithRecoverableIssues, s.SuccessfulRetries)
	}
	for _, f := range result.Failures {
		if f.Name == "" {
			fmt.Fprintf(out, "  run error: %s\n", f.Message)
			continue
		}
		fmt.Fprintf(out, "  failed: %s (%s)\n", f.Name, f.Message)
	}
	if result.Outcome == organize.OutcomeInterrupted {
		fmt.Fprintln(out, "Interrupted; progress saved, re-run to resume.")
	}
}
