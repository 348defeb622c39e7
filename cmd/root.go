package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/social-listener/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "social-listener",
	Short: "Frustration-lead pipeline for social platforms",
	Long:  "Collects posts from Reddit, Hacker News, Mastodon and Dev.to, classifies frustrated authors via Claude, promotes qualifying posts to leads and drafts outreach.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
