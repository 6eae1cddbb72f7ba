package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/signal"
)

// responseField is the JSON shape accepted by --data for submit-response:
// {"question_key": {"type": "boolean", "value": "true"}, ...}
type responseField struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func newEvaluationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluation",
		Short: "Evaluation operations (submitResponse, completeEvaluation)",
	}
	cmd.AddCommand(newSubmitResponseCommand())
	cmd.AddCommand(newCompleteEvaluationCommand())
	return cmd
}

func newSubmitResponseCommand() *cobra.Command {
	var tenantID, userID, instanceID, data string

	cmd := &cobra.Command{
		Use:   "submit-response",
		Short: "Submit a participant's response to an evaluation instance (submitResponse)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fields map[string]responseField
			if err := json.Unmarshal([]byte(data), &fields); err != nil {
				return fmt.Errorf("parse --data: %w", err)
			}

			values := make(map[string]signal.Value, len(fields))
			for key, f := range fields {
				v, err := parseSignalValue(signal.Type(f.Type), f.Value)
				if err != nil {
					return fmt.Errorf("field %s: %w", key, err)
				}
				values[key] = v
			}

			err := globalApp.Evaluation.SubmitResponse(
				context.Background(),
				uuid.MustParse(tenantID),
				uuid.MustParse(instanceID),
				uuid.MustParse(userID),
				values,
			)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Response submitted"))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Participant user ID (required)")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Evaluation instance ID (required)")
	cmd.Flags().StringVar(&data, "data", "", `Response data as JSON: {"key": {"type": "boolean", "value": "true"}} (required)`)
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("instance")
	cmd.MarkFlagRequired("data")

	return cmd
}

func newCompleteEvaluationCommand() *cobra.Command {
	var tenantID, userID, instanceID, forceNote string
	var force bool

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete an evaluation instance (completeEvaluation)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var notePtr *string
			if forceNote != "" {
				notePtr = &forceNote
			}

			err := globalApp.Evaluation.CompleteEvaluation(
				context.Background(),
				uuid.MustParse(tenantID),
				uuid.MustParse(instanceID),
				uuid.MustParse(userID),
				force,
				notePtr,
			)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Evaluation completed"))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID (required)")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Evaluation instance ID (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Force completion despite outstanding participants")
	cmd.Flags().StringVar(&forceNote, "force-note", "", "Note explaining a forced completion (required with --force)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("instance")

	return cmd
}
