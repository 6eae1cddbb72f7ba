package main

import (
	"context"

	"github.com/spf13/cobra"
)

var rootConfigPath string

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hiredeskctl",
		Short: "Operate the hiring decision engine directly against its storage",
		Long:  "hiredeskctl drives the hiring decision engine's core operations directly against its repositories, without going through an HTTP surface.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(context.Background(), rootConfigPath)
			if err != nil {
				return err
			}
			globalApp = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			globalApp.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Config file path")

	cmd.AddCommand(newAttachCommand())
	cmd.AddCommand(newExecuteActionCommand())
	cmd.AddCommand(newMoveStageCommand())
	cmd.AddCommand(newUpdateStatusCommand())
	cmd.AddCommand(newSetSignalCommand())
	cmd.AddCommand(newEvaluationCommand())
	cmd.AddCommand(newLogCommand())
	cmd.AddCommand(newRejectionReasonCommand())

	return cmd
}
