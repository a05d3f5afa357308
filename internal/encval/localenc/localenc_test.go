package localenc

import (
	"errors"
	"testing"

	"patentvault/internal/encval"
	"patentvault/internal/grants"
	"patentvault/internal/models"
)

func newService() (*Service, *grants.Ledger) {
	ledger := grants.NewLedger()
	return New([]byte("test-secret"), ledger), ledger
}

func TestWrapAndAdd(t *testing.T) {
	s, _ := newService()

	a, err := s.Wrap(40)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	b, err := s.Wrap(2)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if a == b {
		t.Error("Handles must be distinct")
	}

	sum, err := s.Add(a, b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if v, ok := s.Value(sum); !ok || v != 42 {
		t.Errorf("Expected 42 behind sum handle, got %d (known=%v)", v, ok)
	}

	if _, err := s.Add(a, models.Handle(999)); !errors.Is(err, encval.ErrUnknownHandle) {
		t.Fatalf("Expected ErrUnknownHandle, got %v", err)
	}
}

func TestWrapRandomStaysBelowBound(t *testing.T) {
	s, _ := newService()

	for i := 0; i < 50; i++ {
		h, err := s.WrapRandom(1000)
		if err != nil {
			t.Fatalf("WrapRandom failed: %v", err)
		}
		v, ok := s.Value(h)
		if !ok {
			t.Fatal("Random handle unknown")
		}
		if v >= 1000 {
			t.Fatalf("Random value %d outside [0, 1000)", v)
		}
	}
}

func TestGrantRecordsInLedger(t *testing.T) {
	s, ledger := newService()

	h, _ := s.Wrap(1)
	s.Grant(h, 10)
	if !ledger.CanDecrypt(h, 10) {
		t.Error("Grant should be visible in the ledger")
	}
}

func TestInputProofs(t *testing.T) {
	s, _ := newService()

	h, _ := s.Wrap(7)
	proof, err := s.ProveInput(h)
	if err != nil {
		t.Fatalf("ProveInput failed: %v", err)
	}
	if !s.VerifyInput(h, proof) {
		t.Error("Valid proof rejected")
	}
	if s.VerifyInput(h, []byte("forged")) {
		t.Error("Forged proof accepted")
	}

	other, _ := s.Wrap(8)
	if s.VerifyInput(other, proof) {
		t.Error("Proof must be bound to its handle")
	}

	if _, err := s.ProveInput(999); !errors.Is(err, encval.ErrUnknownHandle) {
		t.Fatalf("Expected ErrUnknownHandle, got %v", err)
	}
}

func TestDecryptionDelivery(t *testing.T) {
	s, _ := newService()

	a, _ := s.Wrap(11)
	b, _ := s.Wrap(22)

	id, err := s.RequestDecryption([]models.Handle{a, b})
	if err != nil {
		t.Fatalf("RequestDecryption failed: %v", err)
	}

	var gotID uint64
	var gotValues []uint64
	var gotProof []byte
	s.OnDecryption(func(requestID uint64, values []uint64, proof []byte) {
		gotID = requestID
		gotValues = values
		gotProof = proof
	})
	s.Flush()

	if gotID != id {
		t.Fatalf("Expected request %d delivered, got %d", id, gotID)
	}
	if len(gotValues) != 2 || gotValues[0] != 11 || gotValues[1] != 22 {
		t.Errorf("Expected [11 22], got %v", gotValues)
	}
	if !s.VerifyProof(id, gotValues, gotProof) {
		t.Error("Delivered proof should verify")
	}
	if s.VerifyProof(id, []uint64{99, 22}, gotProof) {
		t.Error("Proof must be bound to the values")
	}
	if s.VerifyProof(id+1, gotValues, gotProof) {
		t.Error("Proof must be bound to the request id")
	}

	// The queue is drained; a second flush delivers nothing.
	gotID = 0
	s.Flush()
	if gotID != 0 {
		t.Error("Second flush should deliver nothing")
	}
}

func TestRequestDecryptionUnknownHandle(t *testing.T) {
	s, _ := newService()

	if _, err := s.RequestDecryption([]models.Handle{42}); !errors.Is(err, encval.ErrUnknownHandle) {
		t.Fatalf("Expected ErrUnknownHandle, got %v", err)
	}
}

func TestExportImportKeepsPendingDeliveries(t *testing.T) {
	s, _ := newService()
	h, _ := s.Wrap(5)
	id, err := s.RequestDecryption([]models.Handle{h})
	if err != nil {
		t.Fatalf("RequestDecryption failed: %v", err)
	}

	data, err := s.ExportState()
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}

	restored, _ := newService()
	if err := restored.ImportState(data); err != nil {
		t.Fatalf("ImportState failed: %v", err)
	}

	if v, ok := restored.Value(h); !ok || v != 5 {
		t.Errorf("Expected value 5 after import, got %d (known=%v)", v, ok)
	}

	delivered := false
	restored.OnDecryption(func(requestID uint64, values []uint64, proof []byte) {
		delivered = true
		if requestID != id || len(values) != 1 || values[0] != 5 {
			t.Errorf("Unexpected delivery: %d %v", requestID, values)
		}
	})
	restored.Flush()
	if !delivered {
		t.Error("Pending delivery lost across export/import")
	}

	// Handle allocation continues past imported ones.
	next, _ := restored.Wrap(6)
	if next <= h {
		t.Errorf("Expected a fresh handle after import, got %d", next)
	}
}
