package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/auditlog"
	"github.com/hiredesk/hiredesk/internal/catalog"
)

func newLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Read the execution log (listDecisionLog, getDecisionLogEntry)",
	}
	cmd.AddCommand(newLogListCommand())
	cmd.AddCommand(newLogGetCommand())
	return cmd
}

func newLogListCommand() *cobra.Command {
	var tenantID, applicationID, actionCode, outcomeType string
	var isTerminal bool
	var isTerminalSet bool
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List execution log entries for an application (listDecisionLog)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := auditlog.Filters{Limit: limit, Offset: offset}
			if actionCode != "" {
				f.ActionCode = &actionCode
			}
			if outcomeType != "" {
				o := catalog.OutcomeType(outcomeType)
				f.OutcomeType = &o
			}
			if isTerminalSet {
				f.IsTerminal = &isTerminal
			}

			entries, err := globalApp.Audit.List(context.Background(), uuid.MustParse(tenantID), uuid.MustParse(applicationID), f)
			if err != nil {
				return err
			}

			cmd.Println(renderDecisionLog(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&actionCode, "action", "", "Filter by action code")
	cmd.Flags().StringVar(&outcomeType, "outcome", "", "Filter by outcome type")
	cmd.Flags().BoolVar(&isTerminal, "terminal", false, "Filter by terminal flag (use with --terminal-set)")
	cmd.Flags().BoolVar(&isTerminalSet, "terminal-set", false, "Apply the --terminal filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the result set")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("application")

	return cmd
}

func newLogGetCommand() *cobra.Command {
	var tenantID, applicationID, entryID string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a single execution log entry (getDecisionLogEntry)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, err := globalApp.Audit.Get(context.Background(), uuid.MustParse(tenantID), uuid.MustParse(applicationID), uuid.MustParse(entryID))
			if err != nil {
				return err
			}

			cmd.Println(renderDecisionLogEntry(*entry))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&entryID, "entry", "", "Execution log entry ID (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("application")
	cmd.MarkFlagRequired("entry")

	return cmd
}
