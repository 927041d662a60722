package models

import "errors"

// Domain errors shared across the queue, store, and API layers.
var (
	// ErrJobNotFound indicates the referenced job id or queue name does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownQueue indicates a queue name outside the fixed set.
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrInvalidPayload indicates a job payload failed variant validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrDimensionMismatch indicates an embedding vector whose length differs
	// from the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
