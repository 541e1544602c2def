package services

import "testing"

func TestKeyManagerReadySignal(t *testing.T) {
	m := NewKeyManager("")

	if m.Ready() {
		t.Error("Expected not ready with no key")
	}
	if st := m.Status(); st.Ready || st.Reason != "no API key configured" {
		t.Errorf("Expected unready status with reason, got %+v", st)
	}

	m.Set("test-key-123")
	if !m.Ready() {
		t.Error("Expected ready after Set")
	}
	if key, ok := m.Key(); !ok || key != "test-key-123" {
		t.Errorf("Expected stored key, got %q ok=%v", key, ok)
	}
}

func TestKeyManagerFlag(t *testing.T) {
	m := NewKeyManager("rejected-key")

	m.Flag("API key not valid")

	if m.Ready() {
		t.Error("Expected not ready after Flag")
	}
	if st := m.Status(); st.Reason != "API key not valid" {
		t.Errorf("Expected flag reason in status, got %q", st.Reason)
	}

	// The key survives the flag so a retry without re-entry is possible.
	if key, ok := m.Key(); !ok || key != "rejected-key" {
		t.Errorf("Expected flagged key to remain available, got %q ok=%v", key, ok)
	}

	m.Set("fresh-key")
	if !m.Ready() {
		t.Error("Expected Set to clear the flag")
	}
}

func TestKeyManagerClear(t *testing.T) {
	m := NewKeyManager("some-key")

	m.Clear()

	if m.Ready() {
		t.Error("Expected not ready after Clear")
	}
	if _, ok := m.Key(); ok {
		t.Error("Expected no key after Clear")
	}
}

func TestKeyManagerSeededFromConfig(t *testing.T) {
	m := NewKeyManager("env-key")

	if !m.Ready() {
		t.Error("Expected ready when seeded with a key")
	}
}
