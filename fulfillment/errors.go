package fulfillment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrCountMismatch           = errors.New("proxy count does not match order quantity")
	ErrIncomplete              = errors.New("every location needs complete proxy details")
	ErrConfirmationRequired    = errors.New("confirmation required")
	ErrAcknowledgementRequired = errors.New("submission must be acknowledged")
	ErrInvalidPort             = errors.New("port must be a number between 0 and 65535")
	ErrDuplicatePort           = errors.New("port already exists")
	ErrUnknownPort             = errors.New("port is not a custom port")
	ErrWrongKind               = errors.New("operation does not apply to this order")
	ErrNoDraft                 = errors.New("no fulfillment in progress for this order")
	ErrUnknownSlot             = errors.New("unknown location slot")
	ErrUnknownProxy            = errors.New("proxy index out of range")
	ErrInvalidProtocol         = errors.New("protocol must be http, https or socks5")
	ErrSubmitting              = errors.New("submission in progress")
)

// ValidationError lists the fields an operator left empty
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("please fill in all fields: missing %s", strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// MismatchError is returned when a special order's proxy list does not match
// the ordered quantity
type MismatchError struct {
	Have, Want int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("The number of proxies (%d) does not match the order quantity (%d).", e.Have, e.Want)
}

func (e *MismatchError) Unwrap() error {
	return ErrCountMismatch
}
