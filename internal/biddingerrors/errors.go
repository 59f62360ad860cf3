package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNoBids          = errors.New("no bids found for auction")
)

// business logic errors
var (
	ErrInvalidBid       = errors.New("invalid bid")
	ErrBidTooLow        = errors.New("bid amount too low")
	ErrAuctionNotActive = errors.New("auction is not active")
)

// ledger conflicts, absorbed by the state store
var (
	ErrDuplicateBid = errors.New("duplicate bid")
	ErrMalformedBid = errors.New("malformed bid")
)

// transport and source errors
var (
	ErrTransport      = errors.New("push transport failure")
	ErrSourceRejected = errors.New("rejected by auction source")
)

// IsValidation reports whether err is a local validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrBidTooLow) ||
		errors.Is(err, ErrAuctionNotActive) ||
		errors.Is(err, ErrInvalidBid)
}

// SourceRejection is returned when the auction source declines a request.
// Reason is the server's message, unmodified.
type SourceRejection struct {
	StatusCode int
	Reason     string
}

func (e *SourceRejection) Error() string {
	return fmt.Sprintf("source rejected request (%d): %s", e.StatusCode, e.Reason)
}

// Is lets errors.Is(err, ErrSourceRejected) match any rejection
func (e *SourceRejection) Is(target error) bool {
	return target == ErrSourceRejected
}
