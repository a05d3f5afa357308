// Package vaultenc backs the encrypted-value service with HashiCorp Vault's
// transit engine. Handles reference transit ciphertexts; addition decrypts,
// adds, and re-encrypts inside the adapter, which is where a homomorphic
// backend would differ. Proofs are transit HMACs.
package vaultenc

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"patentvault/internal/encval"
	"patentvault/internal/grants"
	"patentvault/internal/models"
	"patentvault/internal/vault"
)

const (
	encryptKey = "patentvault-values"
	proofKey   = "patentvault-proofs"
)

// Service implements encval.Service over Vault transit.
type Service struct {
	mu          sync.Mutex
	client      *vault.Client
	ledger      *grants.Ledger
	ciphertexts map[models.Handle]string
	nextHandle  uint64
	nextRequest uint64
	pending     []delivery
	callback    encval.Callback
}

type delivery struct {
	RequestID uint64          `json:"request_id"`
	Handles   []models.Handle `json:"handles"`
}

// New creates a Vault-backed encrypted-value service, creating the transit
// keys it needs on first use.
func New(client *vault.Client, ledger *grants.Ledger) (*Service, error) {
	if err := client.CreateKey(encryptKey, "aes256-gcm96"); err != nil {
		return nil, fmt.Errorf("failed to create value key: %w", err)
	}
	if err := client.CreateKey(proofKey, "hmac"); err != nil {
		return nil, fmt.Errorf("failed to create proof key: %w", err)
	}

	return &Service{
		client:      client,
		ledger:      ledger,
		ciphertexts: make(map[models.Handle]string),
		nextHandle:  1,
	}, nil
}

// Wrap encrypts the value under the transit key and returns a fresh handle
func (s *Service) Wrap(value uint64) (models.Handle, error) {
	ct, err := s.client.Encrypt(encryptKey, beUint64(value))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(ct), nil
}

// WrapRandom wraps a uniformly random value in [0, bound)
func (s *Service) WrapRandom(bound uint64) (models.Handle, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(bound))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random value: %w", err)
	}
	return s.Wrap(n.Uint64())
}

func (s *Service) storeLocked(ciphertext string) models.Handle {
	h := models.Handle(s.nextHandle)
	s.nextHandle++
	s.ciphertexts[h] = ciphertext
	return h
}

// Add decrypts both operands, adds, and re-encrypts into a fresh handle
func (s *Service) Add(a, b models.Handle) (models.Handle, error) {
	va, err := s.valueOf(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.valueOf(b)
	if err != nil {
		return 0, err
	}
	return s.Wrap(va + vb)
}

// Grant records the decrypt permission in the access grant ledger
func (s *Service) Grant(handle models.Handle, principal models.Principal) {
	s.ledger.Grant(handle, principal)
}

// ProveInput signs the handle as a well-formed encrypted input
func (s *Service) ProveInput(handle models.Handle) ([]byte, error) {
	s.mu.Lock()
	_, ok := s.ciphertexts[handle]
	s.mu.Unlock()
	if !ok {
		return nil, encval.ErrUnknownHandle
	}

	mac, err := s.client.HMAC(proofKey, inputPayload(handle))
	if err != nil {
		return nil, err
	}
	return []byte(mac), nil
}

// VerifyInput checks an input proof produced by ProveInput
func (s *Service) VerifyInput(handle models.Handle, proof []byte) bool {
	mac, err := s.client.HMAC(proofKey, inputPayload(handle))
	if err != nil {
		return false
	}
	return hmac.Equal(proof, []byte(mac))
}

// RequestDecryption queues the handles for asynchronous decryption
func (s *Service) RequestDecryption(handles []models.Handle) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range handles {
		if _, ok := s.ciphertexts[h]; !ok {
			return 0, encval.ErrUnknownHandle
		}
	}

	s.nextRequest++
	id := s.nextRequest
	s.pending = append(s.pending, delivery{RequestID: id, Handles: append([]models.Handle(nil), handles...)})
	return id, nil
}

// VerifyProof checks that a decryption result matches the transit HMAC
func (s *Service) VerifyProof(requestID uint64, values []uint64, proof []byte) bool {
	mac, err := s.client.HMAC(proofKey, decryptionPayload(requestID, values))
	if err != nil {
		return false
	}
	return hmac.Equal(proof, []byte(mac))
}

// OnDecryption registers the callback for completed requests
func (s *Service) OnDecryption(cb encval.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Flush decrypts and delivers all queued requests to the callback
func (s *Service) Flush() {
	s.mu.Lock()
	cb := s.callback
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	if cb == nil && len(queued) > 0 {
		// Keep undeliverable results queued rather than dropping them.
		s.mu.Lock()
		s.pending = append(queued, s.pending...)
		s.mu.Unlock()
		return
	}

	for _, d := range queued {
		values := make([]uint64, len(d.Handles))
		ok := true
		for i, h := range d.Handles {
			v, err := s.valueOf(h)
			if err != nil {
				ok = false
				break
			}
			values[i] = v
		}
		if !ok {
			continue
		}
		mac, err := s.client.HMAC(proofKey, decryptionPayload(d.RequestID, values))
		if err != nil {
			continue
		}
		cb(d.RequestID, values, []byte(mac))
	}
}

type state struct {
	Ciphertexts map[models.Handle]string `json:"ciphertexts"`
	NextHandle  uint64                   `json:"next_handle"`
	NextRequest uint64                   `json:"next_request"`
	Pending     []delivery               `json:"pending,omitempty"`
}

// ExportState serializes the handle table
func (s *Service) ExportState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return json.Marshal(state{
		Ciphertexts: s.ciphertexts,
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
	s.ciphertexts = st.Ciphertexts
	if s.ciphertexts == nil {
		s.ciphertexts = make(map[models.Handle]string)
	}
	s.nextHandle = st.NextHandle
	if s.nextHandle == 0 {
		s.nextHandle = 1
	}
	s.nextRequest = st.NextRequest
	s.pending = st.Pending
	return nil
}

func (s *Service) valueOf(handle models.Handle) (uint64, error) {
	s.mu.Lock()
	ct, ok := s.ciphertexts[handle]
	s.mu.Unlock()
	if !ok {
		return 0, encval.ErrUnknownHandle
	}

	plain, err := s.client.Decrypt(encryptKey, ct)
	if err != nil {
		return 0, err
	}
	if len(plain) != 8 {
		return 0, fmt.Errorf("unexpected plaintext length %d", len(plain))
	}
	return binary.BigEndian.Uint64(plain), nil
}

func inputPayload(handle models.Handle) []byte {
	payload := append([]byte("input:"), beUint64(uint64(handle))...)
	return payload
}

func decryptionPayload(requestID uint64, values []uint64) []byte {
	payload := append([]byte("decrypt:"), beUint64(requestID)...)
	for _, v := range values {
		payload = append(payload, beUint64(v)...)
	}
	return payload
}

func beUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
