package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/decision"
)

func newExecuteActionCommand() *cobra.Command {
	var tenantID, userID, applicationID, actionCode, notes, overrideReason, reviewedBy, approvedBy string

	cmd := &cobra.Command{
		Use:   "execute-action",
		Short: "Execute a configured stage action (executeAction)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := decision.ExecuteActionInput{
				CallerTenantID: uuid.MustParse(tenantID),
				CallerUserID:   uuid.MustParse(userID),
				ApplicationID:  uuid.MustParse(applicationID),
				ActionCode:     actionCode,
				Notes:          notes,
				OverrideReason: overrideReason,
			}
			if reviewedBy != "" {
				u := uuid.MustParse(reviewedBy)
				in.ReviewedBy = &u
			}
			if approvedBy != "" {
				u := uuid.MustParse(approvedBy)
				in.ApprovedBy = &u
			}

			state, err := globalApp.Decision.ExecuteAction(context.Background(), in)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Action executed"))
			cmd.Println(renderState(state))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&actionCode, "action", "", "Action code (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Decision note")
	cmd.Flags().StringVar(&overrideReason, "override-reason", "", "Override reason for a bypassed signal gate")
	cmd.Flags().StringVar(&reviewedBy, "reviewed-by", "", "Reviewer user ID")
	cmd.Flags().StringVar(&approvedBy, "approved-by", "", "Approver user ID")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("application")
	cmd.MarkFlagRequired("action")

	return cmd
}
