// Package signal implements the append-only signal store: a
// per-application, per-key versioned fact history used to gate actions
// in the decision engine. Signals are written here by the evaluation
// engine on completion and by the manual-signal operation
// (decision.Engine.SetManualSignal); ExecuteAction only reads them: the
// signal store is the message bus for decision-relevant facts.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of signal value types.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
	TypeText    Type = "text"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeBoolean, TypeInteger, TypeFloat, TypeText:
		return true
	default:
		return false
	}
}

// SourceType identifies which collaborator produced a signal version.
type SourceType string

const (
	SourceEvaluation SourceType = "EVALUATION"
	SourceManual     SourceType = "MANUAL"
	SourceSystem     SourceType = "SYSTEM"
	SourceInterview  SourceType = "INTERVIEW"
)

// Operator is the closed set of condition operators a signal gate may
// evaluate.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreaterThan  Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLessThan     Operator = "<"
	OpLessEqual    Operator = "<="
)

// Value holds a typed signal value; exactly one of the three fields is
// populated, mirroring the value_boolean | value_numeric | value_text
// columns.
type Value struct {
	Boolean *bool
	Numeric *float64
	Text    *string
}

// AsString renders the value for CLI display.
func (v Value) AsString() string {
	switch {
	case v.Boolean != nil:
		return strconv.FormatBool(*v.Boolean)
	case v.Numeric != nil:
		return strconv.FormatFloat(*v.Numeric, 'g', -1, 64)
	case v.Text != nil:
		return *v.Text
	default:
		return ""
	}
}

// AsAny unwraps the value to its native Go type, so JSON encoders
// preserve boolean/numeric/text typing instead of collapsing everything
// to a string. Used for the execution log's signal_snapshot.
func (v Value) AsAny() any {
	switch {
	case v.Boolean != nil:
		return *v.Boolean
	case v.Numeric != nil:
		return *v.Numeric
	case v.Text != nil:
		return *v.Text
	default:
		return nil
	}
}

// MarshalJSON encodes the value as its native JSON literal (true, 4.5,
// "strong_yes"), so persisted response_data and audit snapshots carry
// typed literals rather than this struct's field names.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.AsAny())
}

// UnmarshalJSON decodes a JSON literal into the matching typed field.
// null decodes to the zero Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Value{}
	switch x := raw.(type) {
	case nil:
	case bool:
		v.Boolean = &x
	case float64:
		v.Numeric = &x
	case string:
		v.Text = &x
	default:
		return fmt.Errorf("signal: value must be a boolean, number, string or null, got %T", raw)
	}
	return nil
}

// Row is one version of one application signal.
type Row struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ApplicationID uuid.UUID
	SignalKey     string
	SignalType    Type
	Value         Value
	SourceType    SourceType
	SourceID      *uuid.UUID
	SetBy         uuid.UUID
	SetAt         time.Time
	SupersededAt  *time.Time
	SupersededBy  *uuid.UUID
}

// IsLatest reports whether this row has not been superseded.
func (r Row) IsLatest() bool { return r.SupersededAt == nil }

var (
	// ErrTypeMismatch is returned when a condition operator is not valid
	// for the signal's declared type.
	ErrTypeMismatch = errors.New("signal: operator not valid for type")
)

// Repository is the persistence boundary for append-only signal
// history, owned by this package but mutated through PutSignal only —
// there is no raw insert/update exposed to callers.
type Repository interface {
	// PutSignal performs the supersede-then-insert write within a single
	// transaction: it finds the current unsuperseded row for
	// (application, key) honoring the interview-scoping rule, marks it
	// superseded, and inserts the new version. Returns the inserted row.
	PutSignal(ctx context.Context, in PutSignalInput) (*Row, error)

	// Latest returns the set of unsuperseded rows for an application,
	// one per key.
	Latest(ctx context.Context, tenantID, applicationID uuid.UUID) ([]Row, error)

	// History returns every version of a single key, newest first.
	History(ctx context.Context, tenantID, applicationID uuid.UUID, key string) ([]Row, error)
}

// PutSignalInput is the argument to Repository.PutSignal.
type PutSignalInput struct {
	TenantID      uuid.UUID
	ApplicationID uuid.UUID
	SignalKey     string
	SignalType    Type
	Value         Value
	SourceType    SourceType
	SourceID      *uuid.UUID
	SetBy         uuid.UUID
}

// Validate checks structural invariants before a write is attempted.
func (in PutSignalInput) Validate() error {
	if in.SignalKey == "" {
		return fmt.Errorf("signal_key is required")
	}
	if !in.SignalType.IsValid() {
		return fmt.Errorf("invalid signal_type: %s", in.SignalType)
	}
	switch in.SignalType {
	case TypeBoolean:
		if in.Value.Boolean == nil {
			return fmt.Errorf("boolean signal requires value_boolean")
		}
	case TypeInteger, TypeFloat:
		if in.Value.Numeric == nil {
			return fmt.Errorf("numeric signal requires value_numeric")
		}
	case TypeText:
		if in.Value.Text == nil {
			return fmt.Errorf("text signal requires value_text")
		}
	}
	return nil
}

// Condition is one clause of a TenantStageAction's signal_conditions
// predicate.
type Condition struct {
	Signal    string   `json:"signal"`
	Operator  Operator `json:"operator"`
	Value     string   `json:"value"`
	OnMissing string   `json:"on_missing"`
}

// Evaluate is the type-strict condition evaluator. It never
// panics on a malformed pairing: unsupported operator/type pairs fail
// closed (return false).
func Evaluate(signalType Type, actual Value, operator Operator, expected string) (bool, error) {
	switch signalType {
	case TypeBoolean:
		return evaluateBoolean(actual, operator, expected)
	case TypeInteger, TypeFloat:
		return evaluateNumeric(actual, operator, expected)
	case TypeText:
		return evaluateText(actual, operator, expected)
	default:
		return false, ErrTypeMismatch
	}
}

func evaluateBoolean(actual Value, operator Operator, expected string) (bool, error) {
	if operator != OpEqual && operator != OpNotEqual {
		return false, ErrTypeMismatch
	}
	if actual.Boolean == nil {
		return false, ErrTypeMismatch
	}
	want, err := strconv.ParseBool(expected)
	if err != nil {
		return false, fmt.Errorf("parse expected bool %q: %w", expected, err)
	}
	eq := *actual.Boolean == want
	if operator == OpNotEqual {
		return !eq, nil
	}
	return eq, nil
}

func evaluateNumeric(actual Value, operator Operator, expected string) (bool, error) {
	if actual.Numeric == nil {
		return false, ErrTypeMismatch
	}
	want, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return false, fmt.Errorf("parse expected number %q: %w", expected, err)
	}
	a := *actual.Numeric
	switch operator {
	case OpEqual:
		return a == want, nil
	case OpNotEqual:
		return a != want, nil
	case OpGreaterThan:
		return a > want, nil
	case OpGreaterEqual:
		return a >= want, nil
	case OpLessThan:
		return a < want, nil
	case OpLessEqual:
		return a <= want, nil
	default:
		return false, ErrTypeMismatch
	}
}

func evaluateText(actual Value, operator Operator, expected string) (bool, error) {
	if operator != OpEqual && operator != OpNotEqual {
		return false, ErrTypeMismatch
	}
	if actual.Text == nil {
		return false, ErrTypeMismatch
	}
	eq := *actual.Text == expected
	if operator == OpNotEqual {
		return !eq, nil
	}
	return eq, nil
}
