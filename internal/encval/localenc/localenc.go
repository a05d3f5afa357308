// Package localenc is an in-process stand-in for a homomorphic encryption
// backend. It stores the cleartext values behind the handles and performs
// real integer addition, which makes lifecycle behavior fully testable, and
// signs decryption results with an HMAC so proof verification is exercised
// the same way as with a real backend.
package localenc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"patentvault/internal/encval"
	"patentvault/internal/grants"
	"patentvault/internal/models"
)

// Service implements encval.Service with plaintext arithmetic.
type Service struct {
	mu          sync.Mutex
	secret      []byte
	ledger      *grants.Ledger
	values      map[models.Handle]uint64
	nextHandle  uint64
	nextRequest uint64
	pending     []delivery
	callback    encval.Callback
}

type delivery struct {
	RequestID uint64          `json:"request_id"`
	Handles   []models.Handle `json:"handles"`
}

// New creates a local encrypted-value service. The secret keys the HMAC
// proofs; the ledger records decrypt permissions.
func New(secret []byte, ledger *grants.Ledger) *Service {
	return &Service{
		secret:     secret,
		ledger:     ledger,
		values:     make(map[models.Handle]uint64),
		nextHandle: 1,
	}
}

// Wrap stores the value and returns a fresh opaque handle
func (s *Service) Wrap(value uint64) (models.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrapLocked(value), nil
}

// WrapRandom wraps a uniformly random value in [0, bound)
func (s *Service) WrapRandom(bound uint64) (models.Handle, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(bound))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrapLocked(n.Uint64()), nil
}

func (s *Service) wrapLocked(value uint64) models.Handle {
	h := models.Handle(s.nextHandle)
	s.nextHandle++
	s.values[h] = value
	return h
}

// Add returns a fresh handle holding the sum of the two operands
func (s *Service) Add(a, b models.Handle) (models.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	va, ok := s.values[a]
	if !ok {
		return 0, encval.ErrUnknownHandle
	}
	vb, ok := s.values[b]
	if !ok {
		return 0, encval.ErrUnknownHandle
	}
	return s.wrapLocked(va + vb), nil
}

// Grant records the decrypt permission in the access grant ledger
func (s *Service) Grant(handle models.Handle, principal models.Principal) {
	s.ledger.Grant(handle, principal)
}

// ProveInput signs the handle as a well-formed encrypted input
func (s *Service) ProveInput(handle models.Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[handle]; !ok {
		return nil, encval.ErrUnknownHandle
	}
	return s.inputMAC(handle), nil
}

// VerifyInput checks an input proof produced by ProveInput
func (s *Service) VerifyInput(handle models.Handle, proof []byte) bool {
	return hmac.Equal(proof, s.inputMAC(handle))
}

// RequestDecryption queues the handles for asynchronous decryption
func (s *Service) RequestDecryption(handles []models.Handle) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range handles {
		if _, ok := s.values[h]; !ok {
			return 0, encval.ErrUnknownHandle
		}
	}

	s.nextRequest++
	id := s.nextRequest
	s.pending = append(s.pending, delivery{RequestID: id, Handles: append([]models.Handle(nil), handles...)})
	return id, nil
}

// VerifyProof checks that a decryption result matches this service's signature
func (s *Service) VerifyProof(requestID uint64, values []uint64, proof []byte) bool {
	return hmac.Equal(proof, s.decryptionMAC(requestID, values))
}

// OnDecryption registers the callback for completed requests
func (s *Service) OnDecryption(cb encval.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Flush delivers all queued decryption results. The callback runs without the
// service lock held, so it may re-enter the service.
func (s *Service) Flush() {
	s.mu.Lock()
	cb := s.callback
	queued := s.pending
	s.pending = nil

	type result struct {
		id     uint64
		values []uint64
		proof  []byte
	}
	results := make([]result, 0, len(queued))
	for _, d := range queued {
		values := make([]uint64, len(d.Handles))
		for i, h := range d.Handles {
			values[i] = s.values[h]
		}
		results = append(results, result{id: d.RequestID, values: values, proof: s.decryptionMAC(d.RequestID, values)})
	}
	s.mu.Unlock()

	if cb == nil {
		return
	}
	for _, r := range results {
		cb(r.id, r.values, r.proof)
	}
}

// Value exposes the cleartext behind a handle. Only the local stub has this;
// tests use it to assert homomorphic arithmetic end to end.
func (s *Service) Value(handle models.Handle) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[handle]
	return v, ok
}

type state struct {
	Values      map[models.Handle]uint64 `json:"values"`
	NextHandle  uint64                   `json:"next_handle"`
	NextRequest uint64                   `json:"next_request"`
	Pending     []delivery               `json:"pending,omitempty"`
}

// ExportState serializes the handle table
func (s *Service) ExportState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return json.Marshal(state{
		Values:      s.values,
		NextHandle:  s.nextHandle,
		NextRequest: s.nextRequest,
		Pending:     s.pending,
	})
}

// ImportState replaces the handle table with a previously exported one
func (s *Service) ImportState(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to decode encval state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = st.Values
	if s.values == nil {
		s.values = make(map[models.Handle]uint64)
	}
	s.nextHandle = st.NextHandle
	if s.nextHandle == 0 {
		s.nextHandle = 1
	}
	s.nextRequest = st.NextRequest
	s.pending = st.Pending
	return nil
}

func (s *Service) inputMAC(handle models.Handle) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("input:"))
	mac.Write(beUint64(uint64(handle)))
	return mac.Sum(nil)
}

func (s *Service) decryptionMAC(requestID uint64, values []uint64) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("decrypt:"))
	mac.Write(beUint64(requestID))
	for _, v := range values {
		mac.Write(beUint64(v))
	}
	return mac.Sum(nil)
}

func beUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
