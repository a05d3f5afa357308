package grants

import (
	"testing"

	"patentvault/internal/models"
)

func TestGrantAndCanDecrypt(t *testing.T) {
	l := NewLedger()

	if l.CanDecrypt(1, 10) {
		t.Error("Fresh ledger should grant nothing")
	}

	l.Grant(1, 10)
	if !l.CanDecrypt(1, 10) {
		t.Error("Granted principal should decrypt")
	}
	if l.CanDecrypt(1, 20) {
		t.Error("Other principals should not decrypt")
	}
	if l.CanDecrypt(2, 10) {
		t.Error("Grant is per handle")
	}
}

func TestGrantIdempotent(t *testing.T) {
	l := NewLedger()

	l.Grant(1, 10)
	l.Grant(1, 10)
	l.Grant(1, 20)

	if got := len(l.Principals(1)); got != 2 {
		t.Errorf("Expected 2 principals, got %d", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	l := NewLedger()
	l.Grant(1, 10)
	l.Grant(1, 20)
	l.Grant(7, 10)

	restored := NewLedger()
	restored.Restore(l.Snapshot())

	for _, tc := range []struct {
		handle    models.Handle
		principal models.Principal
		want      bool
	}{
		{1, 10, true},
		{1, 20, true},
		{7, 10, true},
		{7, 20, false},
		{2, 10, false},
	} {
		if got := restored.CanDecrypt(tc.handle, tc.principal); got != tc.want {
			t.Errorf("CanDecrypt(%d, %d) = %v, want %v", tc.handle, tc.principal, got, tc.want)
		}
	}
}
