package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/social-listener/internal/model"
)

var draftChannel string

var draftCmd = &cobra.Command{
	Use:   "draft <lead-id>",
	Short: "Draft and save an outreach message for a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		raw, err := env.Store.GetSettings(cmd.Context())
		if err != nil {
			return err
		}
		set, err := model.ParseSettings(raw)
		if err != nil {
			return err
		}

		lead, err := env.Store.GetLead(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if lead == nil {
			return eris.Errorf("lead not found: %s", args[0])
		}

		draft, err := env.Drafter.Draft(cmd.Context(), *lead, model.OutreachChannel(draftChannel), set)
		if err != nil {
			return err
		}
		saved, err := env.Drafter.Commit(cmd.Context(), draft)
		if err != nil {
			return err
		}

		fmt.Printf("Subject: %s\n\n%s\n\n(saved as %s, status %s)\n",
			saved.Subject, saved.Message, saved.ID, saved.Status)
		return nil
	},
}

func init() {
	draftCmd.Flags().StringVar(&draftChannel, "channel", string(model.ChannelEmail), "outreach channel (email or dm)")
	rootCmd.AddCommand(draftCmd)
}
