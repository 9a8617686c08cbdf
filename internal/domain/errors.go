package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownExchange = errors.New("unknown exchange id")
	ErrUnknownSide     = errors.New("unknown side")
	ErrSymbolMismatch  = errors.New("symbol not served")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrSlowConsumer    = errors.New("subscriber queue overflow")
	ErrSessionFinished = errors.New("session finished")
)
