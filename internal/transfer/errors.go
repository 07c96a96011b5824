package transfer

import "errors"

var (
	ErrNoSession        = errors.New("no transfer session")
	ErrOutOfOrderChunk  = errors.New("out-of-order chunk")
	ErrSizeExceeded     = errors.New("chunk exceeds announced size")
	ErrUnexpectedChunk  = errors.New("chunk not expected in current state")
	ErrSessionConflict  = errors.New("metadata conflicts with unflushed session")
	ErrInvalidMetadata  = errors.New("invalid video metadata")
	ErrRetriesExhausted = errors.New("buffer append retries exhausted")
	ErrChannelClosed    = errors.New("peer channel closed")
	ErrSinkStalled      = errors.New("buffer operation timed out")
	ErrSinkFailed       = errors.New("buffer operation failed")
	ErrReceiverClosed   = errors.New("receiver closed")
	ErrNoSource         = errors.New("no media source")
)
