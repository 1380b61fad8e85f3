package acme

import (
	"fmt"
	"sync"
	"time"
)

// Manager represents the ACME certificate manager
type Manager struct {
	apiURL       string
	challengeDir string
	renewBefore  time.Duration
	mu           sync.RWMutex
}

// NewManager creates a new ACME manager
func NewManager(apiURL, challengeDir string) *Manager {
	return &Manager{
		apiURL:       apiURL,
		challengeDir: challengeDir,
		renewBefore:  30 * 24 * time.Hour, // Renew 30 days before expiration
	}
}

// ObtainCertificate obtains a single multi-SAN certificate covering every
// name in domains, filed under the primary (first) name. Per spec §4.5,
// a batch of hostnames sharing one certificate must all appear in its
// SAN list, not just the primary.
func (m *Manager) ObtainCertificate(domains []string, certPath, keyPath, accountKeyPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(domains) == 0 {
		return fmt.Errorf("no domains given")
	}

	// Create ACME client for this request
	acme := NewACMEv2(
		m.apiURL,
		accountKeyPath,
		keyPath,
		certPath,
		m.challengeDir,
		domains,
		false, // debug
		false, // skipReload
	)

	// Get the certificate
	if err := acme.GetCertificate(); err != nil {
		return fmt.Errorf("failed to obtain certificate: %v", err)
	}

	return nil
}
