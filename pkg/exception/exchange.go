package exception

import "github.com/yanun0323/errors"

var (
	ErrUnsupportedVenue    = errors.New("exchange: unsupported venue")
	ErrVenueNotConnected   = errors.New("exchange: not connected")
	ErrVenueRejected       = errors.New("exchange: order rejected")
	ErrVenueResponse       = errors.New("exchange: unexpected response")
	ErrUnknownInstrument   = errors.New("exchange: unknown instrument")
	ErrStreamClosed        = errors.New("exchange: stream closed")
	ErrMissingCredentials  = errors.New("exchange: missing api credentials")
	ErrInsufficientBalance = errors.New("exchange: insufficient balance")
)
