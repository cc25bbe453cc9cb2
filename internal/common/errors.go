package common

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidItem         = errors.New("invalid item")
	ErrItemNotFound        = errors.New("item has no price record")
	ErrUnauthorized        = errors.New("unauthorized caller")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidAmount       = errors.New("invalid votes amount")
	ErrSelfTrade           = errors.New("cannot trade votes to self")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyInitialized  = errors.New("item votes already initialized")
)

// These refine the errors above; errors.Is matches both the refined and the
// general kind.
var (
	ErrInsufficientUnlisted = fmt.Errorf("not enough unlisted votes: %w", ErrInsufficientBalance)
	ErrInsufficientListed   = fmt.Errorf("not enough listed votes: %w", ErrInsufficientBalance)
	ErrAlreadyListed        = fmt.Errorf("all votes already listed: %w", ErrInsufficientUnlisted)
	ErrAlreadyEnabled       = fmt.Errorf("item already enabled: %w", ErrAlreadyInitialized)
)
