package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a minting failure. Every kind is terminal for the request.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidatorNotFound
	KindParameterApplication
	KindHashing
	KindAddressDecode
	KindEncodingRange
	KindInsufficientFunds
	KindTransactionBuild
	KindSigning
	KindSubmission
)

func (k Kind) String() string {
	switch k {
	case KindValidatorNotFound:
		return "validator_not_found"
	case KindParameterApplication:
		return "parameter_application"
	case KindHashing:
		return "hashing"
	case KindAddressDecode:
		return "address_decode"
	case KindEncodingRange:
		return "encoding_range"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindTransactionBuild:
		return "transaction_build"
	case KindSigning:
		return "signing"
	case KindSubmission:
		return "submission"
	default:
		return "unknown"
	}
}

// Error carries the failing stage and the raw underlying cause.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidatorNotFound    = &Error{Kind: KindValidatorNotFound}
	ErrParameterApplication = &Error{Kind: KindParameterApplication}
	ErrHashing              = &Error{Kind: KindHashing}
	ErrAddressDecode        = &Error{Kind: KindAddressDecode}
	ErrEncodingRange        = &Error{Kind: KindEncodingRange}
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds}
	ErrTransactionBuild     = &Error{Kind: KindTransactionBuild}
	ErrSigning              = &Error{Kind: KindSigning}
	ErrSubmission           = &Error{Kind: KindSubmission}
)

func NewError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Errorf builds an *Error whose cause is fmt.Errorf(format, args...).
func Errorf(kind Kind, stage string, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Stage == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StageOf returns the stage of the first *Error in err's chain.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
