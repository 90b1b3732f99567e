package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindBusinessRule Kind = "business_rule"
	KindConflict     Kind = "conflict"
	KindResource     Kind = "resource"
	KindDownstream   Kind = "downstream"
)

const (
	CodeInvalidInput             = "INVALID_INPUT"
	CodeBelowMinimumQuantity     = "BELOW_MINIMUM_QUANTITY"
	CodePriceMismatch            = "PRICE_MISMATCH"
	CodeDuplicateInquiry         = "DUPLICATE_INQUIRY"
	CodeConcurrentUpdateConflict = "CONCURRENT_UPDATE_CONFLICT"
	CodeInsufficientCredits      = "INSUFFICIENT_CREDITS"
	CodeListingNotFound          = "LISTING_NOT_FOUND"
	CodeLeadNotFound             = "LEAD_NOT_FOUND"
	CodeDealerNotFound           = "DEALER_NOT_FOUND"
	CodeUnlockRecordingFailed    = "UNLOCK_RECORDING_FAILED"
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodeStoreUnavailable         = "STORE_UNAVAILABLE"
	CodeAlreadyExists            = "ALREADY_EXISTS"
	CodeNotFound                 = "NOT_FOUND"
	CodeRateLimited              = "RATE_LIMITED"
)

// Error is the typed failure returned by the lead core. Details carries the
// values a caller needs to correct the request.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) With(key string, value interface{}) *Error {
	out := *e
	out.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func (e *Error) Wrap(cause error) *Error {
	out := *e
	out.cause = cause
	return &out
}

var (
	ErrInvalidInput             = &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: "invalid input"}
	ErrBelowMinimumQuantity     = &Error{Kind: KindBusinessRule, Code: CodeBelowMinimumQuantity, Message: "quantity is below the minimum purchase quantity"}
	ErrPriceMismatch            = &Error{Kind: KindBusinessRule, Code: CodePriceMismatch, Message: "price has changed, review the new total"}
	ErrDuplicateInquiry         = &Error{Kind: KindConflict, Code: CodeDuplicateInquiry, Message: "you have already inquired about this listing"}
	ErrConcurrentUpdateConflict = &Error{Kind: KindConflict, Code: CodeConcurrentUpdateConflict, Message: "the balance changed concurrently, please retry"}
	ErrInvalidTransition        = &Error{Kind: KindConflict, Code: CodeInvalidTransition, Message: "lead status cannot move backwards"}
	ErrInsufficientCredits      = &Error{Kind: KindResource, Code: CodeInsufficientCredits, Message: "insufficient credits, top up your balance"}
	ErrListingNotFound          = &Error{Kind: KindResource, Code: CodeListingNotFound, Message: "listing not found"}
	ErrLeadNotFound             = &Error{Kind: KindResource, Code: CodeLeadNotFound, Message: "lead not found"}
	ErrDealerNotFound           = &Error{Kind: KindResource, Code: CodeDealerNotFound, Message: "dealer account not found"}
	ErrUnlockRecordingFailed    = &Error{Kind: KindDownstream, Code: CodeUnlockRecordingFailed, Message: "unlock could not be recorded, credits were refunded"}
	ErrStoreUnavailable         = &Error{Kind: KindDownstream, Code: CodeStoreUnavailable, Message: "storage is temporarily unavailable"}
	ErrAlreadyExists            = &Error{Kind: KindConflict, Code: CodeAlreadyExists, Message: "record already exists"}
	ErrNotFound                 = &Error{Kind: KindResource, Code: CodeNotFound, Message: "not found"}
	ErrRateLimited              = &Error{Kind: KindBusinessRule, Code: CodeRateLimited, Message: "too many requests, slow down"}
)

func Invalid(format string, args ...interface{}) *Error {
	out := *ErrInvalidInput
	out.Message = fmt.Sprintf(format, args...)
	return &out
}

func BelowMinimum(minQuantity int) *Error {
	return ErrBelowMinimumQuantity.With("minQuantity", minQuantity)
}

func InsufficientCredits(balance, required int64) *Error {
	return ErrInsufficientCredits.With("balance", balance).With("required", required)
}

// KindOf returns the kind of the first *Error in err's chain. Untyped
// errors are treated as downstream failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDownstream
}

// As is errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
