package minting

import (
	"errors"
	"strings"
)

// Rejection is a node or evaluator refusal, kept verbatim so an operator
// can tell a redeemer mismatch from an empty wallet.
type Rejection struct {
	Reason string
	// ScriptFailure marks phase-2 failures: the policy ran and said no,
	// which usually means the redeemer does not match the validator.
	ScriptFailure bool
	// InsufficientFunds marks value, fee and collateral shortfalls.
	InsufficientFunds bool

	err error
}

func (r *Rejection) Error() string {
	switch {
	case r.ScriptFailure:
		return "minting policy rejected the transaction: " + r.Reason
	case r.InsufficientFunds:
		return "insufficient funds: " + r.Reason
	default:
		return r.Reason
	}
}

func (r *Rejection) Unwrap() error { return r.err }

var (
	scriptFailureMarkers = []string{
		"scriptfailure",
		"plutusfailure",
		"validationtagmismatch",
		"evaluationfailure",
		"evaluation failed",
		"validatorfailed",
	}
	insufficientMarkers = []string{
		"insufficient",
		"valuenotconserved",
		"feetoosmall",
		"outputtoosmall",
	}
)

func classify(err error) *Rejection {
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	reason := err.Error()
	lower := strings.ToLower(reason)
	return &Rejection{
		Reason:            reason,
		ScriptFailure:     containsAny(lower, scriptFailureMarkers),
		InsufficientFunds: containsAny(lower, insufficientMarkers),
		err:               err,
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RejectionOf returns the node rejection in err's chain, if any.
func RejectionOf(err error) (*Rejection, bool) {
	var r *Rejection
	ok := errors.As(err, &r)
	return r, ok
}
