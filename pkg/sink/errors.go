package sink

import "errors"

var (
	ErrInvalidEndpoint  = errors.New("sink: invalid endpoint")
	ErrInvalidConfig    = errors.New("sink: invalid configuration")
	ErrEncodePacket     = errors.New("sink: failed to encode packet")
	ErrDeliveryFailed   = errors.New("sink: delivery failed")
	ErrPermanentFailure = errors.New("sink: permanent delivery failure")
	ErrTemporaryFailure = errors.New("sink: temporary delivery failure")
	ErrCircuitOpen      = errors.New("sink: circuit breaker is open")
	ErrTimeout          = errors.New("sink: request timeout")
	ErrArchiveFailed    = errors.New("sink: failed to archive batch")
)
