package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/social-listener/internal/model"
	"github.com/sells-group/social-listener/internal/task"
)

var collectSources []string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a one-shot collection across configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		platforms := make([]model.Platform, len(collectSources))
		for i, src := range collectSources {
			platforms[i] = model.Platform(src)
		}

		if err := env.Tracker.Start(task.TypeCollect, 0, "cli collection"); err != nil {
			return err
		}
		summary, err := env.Collector.Run(cmd.Context(), platforms...)
		if err != nil {
			return err
		}
		fmt.Println(summary.String())
		return nil
	},
}

func init() {
	collectCmd.Flags().StringSliceVar(&collectSources, "sources", nil,
		"platforms to collect from (default: all)")
	rootCmd.AddCommand(collectCmd)
}
