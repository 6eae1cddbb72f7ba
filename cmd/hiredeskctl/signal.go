package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hiredesk/hiredesk/internal/decision"
	"github.com/hiredesk/hiredesk/internal/signal"
)

func newSetSignalCommand() *cobra.Command {
	var tenantID, userID, applicationID, key, signalType, value, note string

	cmd := &cobra.Command{
		Use:   "set-signal",
		Short: "Set a manual signal value (setManualSignal); requires MANAGE_SETTINGS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ := signal.Type(signalType)
			v, err := parseSignalValue(typ, value)
			if err != nil {
				return err
			}

			in := decision.SetManualSignalInput{
				TenantID:      uuid.MustParse(tenantID),
				CallerUserID:  uuid.MustParse(userID),
				ApplicationID: uuid.MustParse(applicationID),
				SignalKey:     key,
				SignalType:    typ,
				Value:         v,
				Note:          note,
			}

			row, err := globalApp.Decision.SetManualSignal(context.Background(), in)
			if err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Signal set"))
			cmd.Printf("%s %s = %s\n", labelStyle.Render(row.SignalKey+":"), string(row.SignalType), row.Value.AsString())
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Caller user ID (required)")
	cmd.Flags().StringVar(&applicationID, "application", "", "Application ID (required)")
	cmd.Flags().StringVar(&key, "key", "", "Signal key (required)")
	cmd.Flags().StringVar(&signalType, "type", "", "Signal type: boolean|integer|float|text (required)")
	cmd.Flags().StringVar(&value, "value", "", "Signal value, parsed according to --type (required)")
	cmd.Flags().StringVar(&note, "note", "", "Note explaining the manual override")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("application")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("value")

	return cmd
}

func parseSignalValue(typ signal.Type, raw string) (signal.Value, error) {
	switch typ {
	case signal.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return signal.Value{}, fmt.Errorf("invalid boolean value %q: %w", raw, err)
		}
		return signal.Value{Boolean: &b}, nil
	case signal.TypeInteger, signal.TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return signal.Value{}, fmt.Errorf("invalid numeric value %q: %w", raw, err)
		}
		return signal.Value{Numeric: &f}, nil
	case signal.TypeText:
		return signal.Value{Text: &raw}, nil
	default:
		return signal.Value{}, fmt.Errorf("unknown signal type %q (want boolean|integer|float|text)", typ)
	}
}
