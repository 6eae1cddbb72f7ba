package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/auditlog"
)

func newRejectionReasonCommand() *cobra.Command {
	var tenantID, applicationID string

	cmd := &cobra.Command{
		Use:   "rejection-reason",
		Short: "Show the most recent terminal rejection, if any (getRejectionReason)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, err := auditlog.GetRejectionReason(
				context.Background(),
				globalApp.Audit,
				uuid.MustParse(tenantID),
				uuid.MustParse(applicationID),
			)
			if err != nil {
				return err
			}
			if entry == nil {
				cmd.Println("no terminal rejection on record")
				return nil
			}

			cmd.Println(renderDecisionLogEntry(*entry))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("application")

	return cmd
}
