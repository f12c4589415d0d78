package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrRejected        = errors.New("order rejected")
	ErrNoWinningTokens = errors.New("no winning tokens")
	ErrSigningFailed   = errors.New("signing failed")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrLockHeld        = errors.New("lock already held")
)
