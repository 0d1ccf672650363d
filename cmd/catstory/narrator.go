package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/catstoryflow/internal/app"
	"github.com/Lllllllleong/catstoryflow/internal/narrator"
)

var narratorCmd = &cobra.Command{
	Use:   "narrator",
	Short: "Inspect the narrator backend",
}

var narratorValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check the narrator backend answers, optionally estimating a text file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.Load(v)
		if err != nil {
			return err
		}
		client, closeClient, err := app.NewChatClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeClient()

		n := narrator.New(client, cfg.NarratorConfig(logger))
		if !n.ValidateReadiness(cmd.Context()) {
			return errors.New("narrator backend " + client.Name() + " is not ready")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Narrator backend %s is ready\n", client.Name())

		if len(args) == 1 {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Estimated processing time: %s\n", n.EstimateProcessingTime(string(text)))
		}
		return nil
	},
}

func init() {
	narratorCmd.AddCommand(narratorValidateCmd)
}
