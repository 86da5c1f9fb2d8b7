// Package services defines the business logic for pledge records, upload
// reconciliation, and outbound notifications. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Pledge-record errors.
var (
	// ErrPledgeNotFound indicates that the requested pledge record does not
	// exist.
	ErrPledgeNotFound = errors.New("pledge record not found")

	// ErrNameRequired is returned when a record is saved without a name.
	ErrNameRequired = errors.New("name is required")

	// ErrNegativeAmount is returned when a pledge or paid amount is negative.
	ErrNegativeAmount = errors.New("amounts must not be negative")

	// ErrNegativeAttended is returned when an attended count is negative.
	ErrNegativeAttended = errors.New("attended count must not be negative")

	// ErrDuplicateMobile is returned when a save would assign a mobile number
	// that already belongs to another record.
	ErrDuplicateMobile = errors.New("mobile number already registered")

	// ErrDuplicateCardCode is returned when the storage layer rejects a card
	// code that lost the check-then-insert race to a concurrent writer.
	ErrDuplicateCardCode = errors.New("card code already in use")

	// ErrCardCodesExhausted is returned when the bounded code generation loop
	// fails to find a free code within its attempt cap.
	ErrCardCodesExhausted = errors.New("card code pool exhausted")
)

// Notification errors.
var (
	// ErrEmptyMessage is returned when a custom send has a blank body.
	ErrEmptyMessage = errors.New("message body is empty")

	// ErrForwardRecipientRequired is returned when a forwarded send lacks a
	// recipient number.
	ErrForwardRecipientRequired = errors.New("recipient number is required")

	// ErrQueueFull is returned when the background send queue cannot accept
	// more work.
	ErrQueueFull = errors.New("send queue is full, try again later")

	// ErrNothingToSend is returned by send-all operations when every record
	// already has the channel's sent flag set.
	ErrNothingToSend = errors.New("no unsent records")
)

// MissingColumnsError aborts an upload whose header row resolves none of the
// accepted aliases for one or more required fields.
type MissingColumnsError struct {
	Missing []string
}

// Error implements the error interface.
func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}
