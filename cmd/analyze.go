package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/social-listener/internal/task"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the unanalyzed backlog and promote qualifying leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Tracker.Start(task.TypeAnalyze, 0, "cli analysis"); err != nil {
			return err
		}
		summary, err := env.Analyzer.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(summary.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
