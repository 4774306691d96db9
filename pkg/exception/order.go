package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalid         = errors.New("order: invalid request")
	ErrOrderRiskRejected    = errors.New("order: rejected by risk validation")
	ErrOrderQueueFull       = errors.New("order: queue full")
	ErrOrderNotFound        = errors.New("order: not found")
	ErrOrderTerminal        = errors.New("order: already terminal")
	ErrOrderNotModifiable   = errors.New("order: not modifiable")
	ErrOrderInvalidFill     = errors.New("order: invalid fill")
	ErrOrderNoVenue         = errors.New("order: no venue for symbol")
	ErrOrderInvalidSlice    = errors.New("order: invalid hybrid slice")
	ErrOrderInvalidTrailing = errors.New("order: invalid trailing amount")
)
