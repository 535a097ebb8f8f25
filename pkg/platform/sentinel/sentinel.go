package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and backend adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the backend inventory or a store
// - ErrExpired: cache entry or credential past its lifetime
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnavailable: backend or integration temporarily unavailable
// - ErrRejected: backend refused the operation outright
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrRejected     = errors.New("rejected")
)
