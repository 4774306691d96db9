package exception

import "github.com/yanun0323/errors"

var (
	ErrConfigInvalid      = errors.New("config: invalid value")
	ErrConfigNoSymbols    = errors.New("config: no symbols")
	ErrConfigUnknownVenue = errors.New("config: unknown venue")
)
