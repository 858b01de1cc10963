package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store or ledger world state
// - ErrConflict: conditional write lost (stored state no longer matches)
// - ErrAlreadyExists: entity with the same key already present
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: peer, broker, or store temporarily unreachable
// - ErrClosed: resource (channel, cursor, client) already closed
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
	ErrClosed        = errors.New("closed")
)
