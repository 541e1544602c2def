package services

import "sync"

// KeyManager holds the Gemini API key used for generation and download
// calls. The key lives in memory only: it can be seeded from the
// environment and replaced at runtime, and it is never persisted or
// logged. When the vendor rejects the credential the key is flagged so
// the ready signal flips off and the client re-prompts, but the key
// itself is kept so a retry without re-entry stays possible.
type KeyManager struct {
	mu      sync.RWMutex
	key     string
	flagged bool
	reason  string
}

type KeyStatus struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

func NewKeyManager(initial string) *KeyManager {
	return &KeyManager{key: initial}
}

// Key returns the active credential. ok is false when no key is set.
func (m *KeyManager) Key() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.key, m.key != ""
}

// Set replaces the credential and clears any invalid flag.
func (m *KeyManager) Set(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.key = key
	m.flagged = false
	m.reason = ""
}

func (m *KeyManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.key = ""
	m.flagged = false
	m.reason = ""
}

// Flag records that the vendor rejected the credential.
func (m *KeyManager) Flag(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flagged = true
	m.reason = reason
}

// Ready reports whether a usable credential is configured. This is the
// boolean bootstrap signal the client polls before enabling submission.
func (m *KeyManager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.key != "" && !m.flagged
}

func (m *KeyManager) Status() KeyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := KeyStatus{Ready: m.key != "" && !m.flagged}
	if !st.Ready {
		switch {
		case m.key == "":
			st.Reason = "no API key configured"
		default:
			st.Reason = m.reason
		}
	}
	return st
}
