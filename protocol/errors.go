package protocol

import "errors"

var (
	// ErrIDMismatch indicates a message declared a block id that is not the
	// hash of the accompanying content.
	ErrIDMismatch = errors.New("protocol: declared id does not match content hash")
	// ErrOperationExpired indicates an operation past its expiry period.
	ErrOperationExpired = errors.New("protocol: operation expired")
	// ErrCommitmentMismatch indicates a block-info reply whose operation ids do
	// not hash to the commitment declared in the block's header.
	ErrCommitmentMismatch = errors.New("protocol: operation ids do not match header commitment")
	// ErrBatchTooLarge indicates an operation batch above the configured bound.
	ErrBatchTooLarge = errors.New("protocol: operation batch too large")
	// ErrMalformedPayload indicates a payload that failed to decode.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	// ErrWorkerStopped is returned by control operations after shutdown.
	ErrWorkerStopped = errors.New("protocol: worker stopped")
)
