// Command text2sql is the CLI entrypoint for the planning pipeline: it
// loads configuration, builds the engine, and runs a single question
// end to end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lhxgrid/text2sql/internal/config"
	"github.com/lhxgrid/text2sql/internal/engine"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "text2sql",
		Short: "Grounded natural-language to SQL planning pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file merged over env/defaults")

	root.AddCommand(newQueryCmd(&configPath))
	return root
}

func newQueryCmd(configPath *string) *cobra.Command {
	var (
		question string
		start    string
		end      string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Plan, compile, and execute one natural-language question",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if mode != "" {
				settings.LLMMode = mode
			}

			log := logrus.New()
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

			eng, err := engine.Build(settings, log)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}

			var timeRange *plandsl.TimeRange
			if start != "" && end != "" {
				timeRange = &plandsl.TimeRange{Start: start, End: end}
			}

			resp, err := eng.RunQuery(context.Background(), question, timeRange)
			if err != nil {
				return err
			}

			fmt.Println("SQL:")
			fmt.Println(resp.SQL)
			fmt.Println()
			fmt.Println("Answer:")
			fmt.Println(resp.Answer)
			for _, w := range resp.QualityWarnings {
				fmt.Printf("Warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&question, "question", "", "the natural-language question to plan and answer")
	cmd.Flags().StringVar(&start, "start", "", "time range start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "time range end (RFC3339)")
	cmd.Flags().StringVar(&mode, "mode", "", "override llm_mode: mock, no_llm, or real")
	cmd.MarkFlagRequired("question")

	return cmd
}
