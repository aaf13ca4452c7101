package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"finbench/internal/agent/ports"
	"finbench/internal/logging"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Run one question through an embedded agent loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger("ask")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			question := strings.Join(args, " ")
			answer, err := newAskerFactory(cfg, logger)().Ask(ctx, ports.Question{Text: question})
			if err != nil {
				return err
			}

			fmt.Println(color.New(color.Bold).Sprint(answer.Text))
			if answer.Degraded() {
				fmt.Println(color.YellowString("note: answer built from partial evidence"))
			}
			if len(answer.Sources) > 0 {
				fmt.Println()
				fmt.Println(color.CyanString("Sources:"))
				for _, src := range answer.Sources {
					fmt.Printf("  - %s (%s)\n", src.Name, src.URL)
				}
			}
			return nil
		},
	}
	return cmd
}
