package service

import "errors"

// Validation errors. These are returned before any contract write is made.
var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrNoChoice           = errors.New("no choice selected")
	ErrAmountNotAllowed   = errors.New("amount is not an allowed bet size")
	ErrActiveBetPending   = errors.New("an active bet is already pending")
	ErrNotWhitelisted     = errors.New("account is not whitelisted for a free bet")
	ErrFreeBetUsed        = errors.New("free bet already used")
	ErrRevealNotReady     = errors.New("reveal window has not opened yet")
	ErrInvalidPhase       = errors.New("action not allowed in current phase")
)

// ErrTxFailed wraps wallet rejections and reverted transactions
var ErrTxFailed = errors.New("transaction failed")
