package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/decision"
)

func newMoveStageCommand() *cobra.Command {
	var tenantID, userID, applicationID, toStageID, reason string

	cmd := &cobra.Command{
		Use:   "move-stage",
		Short: "Move an application directly to a stage (moveStage)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := decision.MoveStageInput{
				TenantID:      uuid.MustParse(tenantID),
				CallerUserID:  uuid.MustParse(userID),
				ApplicationID: uuid.MustParse(applicationID),
				ToStageID:     uuid.MustParse(toStageID),
				Reason:        reason,
			}

			state, err := globalApp.Decision.MoveStage(context.Background(), in)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Stage moved"))
			cmd.Println(renderState(state))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&toStageID, "to-stage", "", "Target stage ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the move")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("application")
	cmd.MarkFlagRequired("to-stage")

	return cmd
}
