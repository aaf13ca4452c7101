package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"finbench/internal/eval"
	"finbench/internal/logging"
	"finbench/internal/transport"
)

func newEvalCmd() *cobra.Command {
	var (
		datasetPath string
		agentURL    string
		concurrency int
		caseTimeout time.Duration
		retries     int
		outputPath  string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the evaluation harness against a running agent",
		Long: `eval loads a dataset (.csv or .yaml), sends each question to the agent,
grades the answers, and writes a report. The command exits zero whenever the
harness completes, regardless of how many cases passed; it exits non-zero
only when the dataset is unreadable or the agent never becomes ready.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if retries > 0 {
				cfg.Resilience.MaxRetries = retries
			}
			logger := logging.NewComponentLogger("eval")

			cases, err := eval.LoadDataset(datasetPath)
			if err != nil {
				return err
			}
			fmt.Println(color.CyanString("loaded %d cases from %s", len(cases), datasetPath))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := transport.NewClient(agentURL, cfg.Resilience, logger)
			readyCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
			defer cancel()
			if err := client.WaitReady(readyCtx); err != nil {
				return fmt.Errorf("agent at %s is not ready: %w", agentURL, err)
			}

			harness := eval.NewHarness(client, eval.NewDefaultScorer(), logger,
				eval.WithConcurrency(concurrency),
				eval.WithCaseTimeout(caseTimeout))

			report, err := harness.Run(ctx, cases)
			if err != nil {
				return err
			}

			printSummary(report)
			if outputPath != "" {
				if err := writeReport(report, outputPath); err != nil {
					return err
				}
				fmt.Println(color.CyanString("report written to %s", outputPath))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "path to the dataset (.csv, .yaml)")
	cmd.Flags().StringVar(&agentURL, "agent-url", "http://127.0.0.1:8080", "base URL of the agent server")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum cases in flight")
	cmd.Flags().DurationVar(&caseTimeout, "case-timeout", 5*time.Minute, "per-case deadline")
	cmd.Flags().IntVar(&retries, "retries", 0, "override transport retry attempts")
	cmd.Flags().StringVar(&outputPath, "output", "", "report file (.json or .md)")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func printSummary(report *eval.Report) {
	fmt.Println()
	fmt.Println(color.New(color.Bold).Sprint("Evaluation complete"))
	fmt.Printf("  %s %d/%d (%.1f%%)\n", color.GreenString("passed:"), report.Passed, report.Total, report.PassRate*100)
	if report.Failed > 0 {
		fmt.Printf("  %s %d\n", color.YellowString("failed:"), report.Failed)
	}
	if report.Errored > 0 {
		fmt.Printf("  %s %d (%.1f%%)\n", color.RedString("errored:"), report.Errored, report.ErrorRate*100)
		for kind, n := range report.CountsByFailureKind {
			fmt.Printf("    %s: %d\n", kind, n)
		}
	}
	fmt.Printf("  duration: %s\n", report.Duration.Round(time.Millisecond))
}

func writeReport(report *eval.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return report.WriteJSON(f)
	}
	return report.WriteMarkdown(f)
}
