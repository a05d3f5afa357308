// Package encval models the external encrypted-value capability the lifecycle
// engine delegates to. The engine never sees plaintext except through the
// asynchronous decryption callback, which carries a verifiable proof.
package encval

import (
	"errors"

	"patentvault/internal/models"
)

var (
	ErrUnknownHandle = errors.New("unknown encrypted handle")
	ErrNoCallback    = errors.New("no decryption callback registered")
)

// Callback receives the cleartext values and proof for a completed
// decryption request. Implementations re-enter the lifecycle engine.
type Callback func(requestID uint64, values []uint64, proof []byte)

// Service is an opaque encrypted-value capability: it wraps plaintext-like
// values into handles, performs homomorphic addition on handles, and decrypts
// sets of handles asynchronously with a verifiable proof. Decrypt permissions
// are recorded in the access grant ledger the service is constructed with.
type Service interface {
	// Wrap produces an encrypted handle for a plaintext-like value.
	Wrap(value uint64) (models.Handle, error)

	// WrapRandom produces a handle over a uniformly random value in [0, bound).
	// Used to obfuscate the initial priority score against inference.
	WrapRandom(bound uint64) (models.Handle, error)

	// Add returns a fresh handle holding the homomorphic sum of a and b.
	Add(a, b models.Handle) (models.Handle, error)

	// Grant allows principal to later decrypt handle.
	Grant(handle models.Handle, principal models.Principal)

	// ProveInput produces a proof that handle is a well-formed encrypted
	// input produced by this service. Clients attach it when submitting
	// externally wrapped values.
	ProveInput(handle models.Handle) ([]byte, error)

	// VerifyInput checks an input proof produced by ProveInput.
	VerifyInput(handle models.Handle, proof []byte) bool

	// RequestDecryption schedules asynchronous decryption of the handles and
	// returns an opaque request id. The result is delivered to the registered
	// callback on a later Flush, never synchronously.
	RequestDecryption(handles []models.Handle) (uint64, error)

	// VerifyProof checks that a decryption result was produced by this
	// service for the given request.
	VerifyProof(requestID uint64, values []uint64, proof []byte) bool

	// OnDecryption registers the callback invoked for completed requests.
	OnDecryption(cb Callback)

	// Flush delivers all queued decryption results to the callback.
	Flush()

	// ExportState and ImportState serialize the service's handle table for
	// snapshot/restore. Keys are configuration, not state, and are excluded.
	ExportState() ([]byte, error)
	ImportState(data []byte) error
}
