package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/decision"
)

func newUpdateStatusCommand() *cobra.Command {
	var tenantID, userID, applicationID, statusCode, reason string

	cmd := &cobra.Command{
		Use:   "update-status",
		Short: "Change an application's status directly (updateStatus)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := decision.UpdateStatusInput{
				TenantID:      uuid.MustParse(tenantID),
				CallerUserID:  uuid.MustParse(userID),
				ApplicationID: uuid.MustParse(applicationID),
				StatusCode:    statusCode,
				Reason:        reason,
			}

			state, err := globalApp.Decision.UpdateStatus(context.Background(), in)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Status updated"))
			cmd.Println(renderState(state))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&statusCode, "status", "", "Target status code (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the change")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("application")
	cmd.MarkFlagRequired("status")

	return cmd
}
