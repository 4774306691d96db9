package exception

import "github.com/yanun0323/errors"

var (
	ErrStoreQueueFull = errors.New("store: queue full")
	ErrStoreClosed    = errors.New("store: closed")
)

var (
	ErrQueueFull   = errors.New("queue: full")
	ErrQueueClosed = errors.New("queue: closed")
)
