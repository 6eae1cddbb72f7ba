package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/decision"
)

func newAttachCommand() *cobra.Command {
	var tenantID, applicationID, jobID, pipelineID, firstStageID, userID string

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach an application to a pipeline (attachApplicationToPipeline)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := decision.AttachApplicationToPipelineInput{
				TenantID:      uuid.MustParse(tenantID),
				ApplicationID: uuid.MustParse(applicationID),
				JobID:         uuid.MustParse(jobID),
				PipelineID:    uuid.MustParse(pipelineID),
				FirstStageID:  uuid.MustParse(firstStageID),
			}
			if userID != "" {
				u := uuid.MustParse(userID)
				in.UserID = &u
			}

			state, err := globalApp.Decision.AttachApplicationToPipeline(context.Background(), in)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Application attached"))
			cmd.Println(renderState(state))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&jobID, "job", "", "Job ID (required)")
	cmd.Flags().StringVar(&pipelineID, "pipeline", "", "Pipeline ID (required)")
	cmd.Flags().StringVar(&firstStageID, "first-stage", "", "First stage ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("application")
	cmd.MarkFlagRequired("job")
	cmd.MarkFlagRequired("pipeline")
	cmd.MarkFlagRequired("first-stage")

	return cmd
}
