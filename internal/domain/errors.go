package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrMarketClosed    = errors.New("market closed")
	ErrMarketNotOpen   = errors.New("market not open")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrDuplicateMarket = errors.New("duplicate market in slip")
	ErrEmptySlip       = errors.New("slip has no legs")
	ErrSlipFrozen      = errors.New("slip is no longer mutable")
	ErrUnderfunded     = errors.New("deposit below required stake")
	ErrExpired         = errors.New("funding window expired")
	ErrInvalidStake    = errors.New("invalid stake amount")
	ErrLockHeld        = errors.New("lock already held")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrContextDone     = errors.New("context cancelled")
)
