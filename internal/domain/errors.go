package domain

import "errors"

// Infrastructure errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
	ErrLockLost     = errors.New("lock lost")
	ErrJournalGap   = errors.New("journal sequence gap")
	ErrHashMismatch = errors.New("journal hash mismatch")
	// ErrJournalWrite marks a call rolled back because its journal append
	// failed.
	ErrJournalWrite = errors.New("journal write failed")
)

// ErrorKind groups settlement failures by cause.
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindValidation    ErrorKind = "validation"
	KindFunds         ErrorKind = "funds"
)

// SettlementError is a structured failure reason returned by the engine. Each
// code is a package-level sentinel so callers compare with errors.Is.
type SettlementError struct {
	Kind ErrorKind
	Code string
}

func (e *SettlementError) Error() string {
	return string(e.Kind) + ": " + e.Code
}

func newErr(kind ErrorKind, code string) *SettlementError {
	return &SettlementError{Kind: kind, Code: code}
}

// Authorization.
var (
	ErrNotCreator       = newErr(KindAuthorization, "NotCreator")
	ErrNotOwner         = newErr(KindAuthorization, "NotOwner")
	ErrNotSeller        = newErr(KindAuthorization, "NotSeller")
	ErrNotManager       = newErr(KindAuthorization, "NotManager")
	ErrNotMinter        = newErr(KindAuthorization, "NotMinter")
	ErrNotApproved      = newErr(KindAuthorization, "NotApproved")
	ErrInvalidSignature = newErr(KindAuthorization, "InvalidSignature")
)

// State.
var (
	ErrAlreadyFinished    = newErr(KindState, "AlreadyFinished")
	ErrProjectFinished    = newErr(KindState, "ProjectFinished")
	ErrProjectExpired     = newErr(KindState, "ProjectExpired")
	ErrProjectNotFinished = newErr(KindState, "ProjectNotFinished")
	ErrTooEarly           = newErr(KindState, "TooEarly")
	ErrTooLate            = newErr(KindState, "TooLate")
	ErrOrderNotFound      = newErr(KindState, "OrderNotFound")
	ErrAlreadyListed      = newErr(KindState, "AlreadyListed")
	ErrProjectNotFound    = newErr(KindState, "ProjectNotFound")
	ErrTicketNotFound     = newErr(KindState, "TicketNotFound")
	ErrPermitExpired      = newErr(KindState, "PermitExpired")
)

// Validation.
var (
	ErrInvalidOptions   = newErr(KindValidation, "InvalidOptions")
	ErrInvalidDeadline  = newErr(KindValidation, "InvalidDeadline")
	ErrInvalidOption    = newErr(KindValidation, "InvalidOption")
	ErrInvalidPrice     = newErr(KindValidation, "InvalidPrice")
	ErrPriceMismatch    = newErr(KindValidation, "PriceMismatch")
	ErrInvalidAmount    = newErr(KindValidation, "InvalidAmount")
	ErrInvalidRecipient = newErr(KindValidation, "InvalidRecipient")
	ErrTicketMismatch   = newErr(KindValidation, "TicketMismatch")
	ErrIndexOutOfRange  = newErr(KindValidation, "IndexOutOfRange")
	ErrUnknownMethod    = newErr(KindValidation, "UnknownMethod")
	ErrMalformedParams  = newErr(KindValidation, "MalformedParams")
)

// Funds.
var (
	ErrInsufficientPayment   = newErr(KindFunds, "InsufficientPayment")
	ErrInsufficientAllowance = newErr(KindFunds, "InsufficientAllowance")
	ErrInsufficientBalance   = newErr(KindFunds, "InsufficientBalance")
	ErrAlreadyClaimed        = newErr(KindFunds, "AlreadyClaimed")
	ErrNothingToClaim        = newErr(KindFunds, "NothingToClaim")
)

// AsSettlementError unwraps err to its settlement reason, if any.
func AsSettlementError(err error) (*SettlementError, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
