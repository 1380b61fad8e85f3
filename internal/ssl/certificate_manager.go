package ssl

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rahulshinde/nginx-proxy-go/internal/acme"
	proxyerrors "github.com/rahulshinde/nginx-proxy-go/internal/errors"
	"github.com/rahulshinde/nginx-proxy-go/internal/host"
)

// Logger interface for certificate manager
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

// DomainVerifier self-checks that a set of hostnames actually resolve to
// this host before an ACME attempt is spent on them, per spec §4.4's
// verify_domain. Returns the subset of names that proved ownership.
// *nginx.Nginx satisfies this via its VerifyDomain method.
type DomainVerifier interface {
	VerifyDomain(names []string) ([]string, error)
}

// CertificateOptions carries the per-domain flags cmd/getssl accepts.
type CertificateOptions struct {
	Domain         string
	SkipDNSCheck   bool
	ForceNew       bool
	Force          bool
	CertPath       string
	KeyPath        string
	AccountKeyPath string
}

const (
	selfSignedKeyBits = 1024
	selfSignedValidity = 10 * 365 * 24 * time.Hour
	renewalWindowDays  = 2 // cert usable once more than this many days from expiry
	renewalForceDays   = 6 // cache entries under this many days remaining are evicted and re-issued
	acmeBatchSize      = 50
)

// CertificateManager is the combined TLS manager (spec §4.5) and SSL
// processor (spec §4.6): it owns the on-disk certificate tree, decides
// per-host certificate strategy during reload, and runs the background
// renewal scheduler. The teacher kept these as separate types
// (ssl.CertificateManager plus a second, unused CertificateManager
// embedded in acme.Manager); this merges them the way the live call path
// in webserver.go already uses only the ssl one.
type CertificateManager struct {
	sslPath     string
	acmeManager *acme.Manager
	logger      Logger
	verifier    DomainVerifier

	mu             sync.Mutex
	cond           *sync.Cond
	cache          map[string]time.Time // hostname -> expiry, ACME-issued certs only
	selfSigned     map[string]bool
	nextSSLExpiry  *time.Time
	shuttingDown   bool
	renewalStarted bool
	renewalWG      sync.WaitGroup
}

// NewCertificateManager creates a new certificate manager rooted at sslPath.
func NewCertificateManager(sslPath string, acmeManager *acme.Manager, logger Logger) *CertificateManager {
	cm := &CertificateManager{
		sslPath:     sslPath,
		acmeManager: acmeManager,
		logger:      logger,
		cache:       make(map[string]time.Time),
		selfSigned:  make(map[string]bool),
	}
	cm.cond = sync.NewCond(&cm.mu)

	os.MkdirAll(filepath.Join(sslPath, "certs"), 0755)
	os.MkdirAll(filepath.Join(sslPath, "private"), 0755)
	os.MkdirAll(filepath.Join(sslPath, "accounts"), 0755)

	return cm
}

// SetVerifier wires a domain ownership checker in, run before every ACME
// attempt. Left unset, no ownership check happens (useful for tests that
// point the ACME manager at an unreachable address and rely on issuance
// failing on its own).
func (cm *CertificateManager) SetVerifier(v DomainVerifier) {
	cm.verifier = v
}

// GetCertificate gets or creates a certificate for the given domain,
// outside of the batched host-list path (used for the default catch-all
// certificate). Returns the ssl_file basename to use.
func (cm *CertificateManager) GetCertificate(domain string) (string, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.certExists(domain) {
		if expiry, err := cm.expiryTime(domain); err == nil {
			if time.Until(expiry).Hours()/24 > renewalWindowDays {
				cm.cache[domain] = expiry
				cm.updateNextExpiryLocked()
				return domain, nil
			}
		}
	}

	if wildcard := cm.wildcardName(domain); wildcard != "" && cm.certExists(wildcard) {
		return wildcard, nil
	}

	issued := cm.registerCertificateOrSelfSign([]string{domain})
	if len(issued) == 1 && issued[0] == domain {
		if expiry, err := cm.expiryTime(domain); err == nil {
			cm.cache[domain] = expiry
			cm.updateNextExpiryLocked()
		}
		return domain, nil
	}
	return domain + ".selfsigned", nil
}

// ProcessSSLCertificates implements spec §4.6's process_ssl_certificates:
// for every secured host, decide its cert strategy, batching hosts that
// need fresh issuance and self-signing or ACME-issuing them together.
func (cm *CertificateManager) ProcessSSLCertificates(hosts map[string]map[int]*host.Host) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	type batched struct {
		hostname string
		h        *host.Host
	}
	var batch []batched

	for hostname, portMap := range hosts {
		for port, h := range portMap {
			if !h.SSLEnabled {
				continue
			}
			if port == 80 || port == 443 {
				h.Port = 443
				h.SSLRedirect = true
			}

			if expiry, ok := cm.cache[hostname]; ok {
				h.SSLFile = hostname
				h.SSLExpiry = expiry
				continue
			}

			if wildcard := cm.wildcardName(hostname); wildcard != "" && cm.certExists(wildcard) {
				h.SSLFile = wildcard
				continue
			}

			if expiry, err := cm.expiryTime(hostname); err == nil && time.Until(expiry).Hours()/24 > renewalWindowDays {
				cm.cache[hostname] = expiry
				h.SSLFile = hostname
				h.SSLExpiry = expiry
				continue
			}

			batch = append(batch, batched{hostname: hostname, h: h})
		}
	}

	if len(batch) > 0 {
		names := make([]string, 0, len(batch))
		for _, b := range batch {
			names = append(names, b.hostname)
		}
		issued := cm.registerCertificateOrSelfSign(names)
		issuedSet := make(map[string]struct{}, len(issued))
		for _, n := range issued {
			issuedSet[n] = struct{}{}
		}

		for _, b := range batch {
			if _, ok := issuedSet[b.hostname]; ok {
				b.h.SSLFile = b.hostname
				if expiry, err := cm.expiryTime(b.hostname); err == nil {
					cm.cache[b.hostname] = expiry
					b.h.SSLExpiry = expiry
				}
			} else {
				b.h.SSLFile = b.hostname + ".selfsigned"
				cm.selfSigned[b.hostname] = true
			}
		}
	}

	cm.updateNextExpiryLocked()
}

// updateNextExpiryLocked recomputes nextSSLExpiry from the cache and wakes
// the renewal scheduler if it changed. Caller must hold cm.mu.
func (cm *CertificateManager) updateNextExpiryLocked() {
	if len(cm.cache) == 0 {
		return
	}
	var min time.Time
	for _, expiry := range cm.cache {
		if min.IsZero() || expiry.Before(min) {
			min = expiry
		}
	}
	if cm.nextSSLExpiry == nil || !cm.nextSSLExpiry.Equal(min) {
		cm.nextSSLExpiry = &min
		cm.cond.Broadcast()
	}
}

// StartRenewalScheduler starts the long-lived renewal task described in
// spec §4.6. reload is invoked with the mutex released whenever the
// scheduler decides a reload is needed.
func (cm *CertificateManager) StartRenewalScheduler(reload func()) {
	cm.mu.Lock()
	if cm.renewalStarted {
		cm.mu.Unlock()
		return
	}
	cm.renewalStarted = true
	cm.mu.Unlock()

	cm.renewalWG.Add(1)
	go cm.renewalLoop(reload)
}

func (cm *CertificateManager) renewalLoop(reload func()) {
	defer cm.renewalWG.Done()
	cm.logger.Info("SSL certificate renewal scheduler started")

	for {
		cm.mu.Lock()
		if cm.shuttingDown {
			cm.mu.Unlock()
			cm.logger.Info("SSL certificate renewal scheduler stopped")
			return
		}

		if cm.nextSSLExpiry == nil {
			cm.cond.Wait()
			cm.mu.Unlock()
			continue
		}

		remainingDays := time.Until(*cm.nextSSLExpiry).Hours() / 24
		if remainingDays > renewalWindowDays {
			sleepDays := remainingDays
			if sleepDays > 32 {
				sleepDays = 32
			}
			sleepDays -= renewalWindowDays
			sleepDuration := time.Duration(sleepDays*24*float64(time.Hour)) - 10*time.Second
			if sleepDuration < 0 {
				sleepDuration = 0
			}
			cm.waitWithTimeoutLocked(sleepDuration)
			cm.mu.Unlock()
			continue
		}

		// remaining <= renewal window: evict near-expiry cache entries and reload.
		for hostname, expiry := range cm.cache {
			if time.Until(expiry).Hours()/24 < renewalForceDays {
				delete(cm.cache, hostname)
			}
		}
		cm.nextSSLExpiry = nil
		cm.mu.Unlock()

		cm.logger.Info("SSL certificates approaching expiry, triggering reload to re-issue")
		reload()
	}
}

// waitWithTimeoutLocked blocks on cm.cond for up to d, or until woken by a
// cache update or shutdown. Caller must hold cm.mu; it is released during
// the wait and re-acquired before returning.
func (cm *CertificateManager) waitWithTimeoutLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cm.mu.Lock()
		cm.cond.Broadcast()
		cm.mu.Unlock()
	})
	defer timer.Stop()
	cm.cond.Wait()
}

// Shutdown stops the renewal scheduler.
func (cm *CertificateManager) Shutdown() {
	cm.mu.Lock()
	cm.shuttingDown = true
	cm.cond.Broadcast()
	cm.mu.Unlock()
	cm.renewalWG.Wait()
}

// certExists reports whether both the cert and key file exist for name.
func (cm *CertificateManager) certExists(name string) bool {
	certPath := filepath.Join(cm.sslPath, "certs", name+".crt")
	keyPath := filepath.Join(cm.sslPath, "private", name+".key")
	_, err1 := os.Stat(certPath)
	_, err2 := os.Stat(keyPath)
	return err1 == nil && err2 == nil
}

// expiryTime parses notAfter from the on-disk certificate for name.
func (cm *CertificateManager) expiryTime(name string) (time.Time, error) {
	certPath := filepath.Join(cm.sslPath, "certs", name+".crt")
	data, err := os.ReadFile(certPath)
	if err != nil {
		return time.Time{}, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return time.Time{}, fmt.Errorf("failed to decode certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

// wildcardName returns "*.example.com" for "a.example.com", or "" if name
// has fewer than 3 dot-separated labels.
func (cm *CertificateManager) wildcardName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "*." + strings.Join(parts[1:], ".")
	}
	return ""
}

// registerCertificateOrSelfSign implements spec §4.5's
// register_certificate_or_self_sign: batches names in groups of
// acmeBatchSize, ACME-issues each batch, reuses the issued cert across
// the rest of the batch, and self-signs whatever could not be issued.
// Returns the names that were ACME-issued. Caller must hold cm.mu.
func (cm *CertificateManager) registerCertificateOrSelfSign(names []string) []string {
	var issued []string

	for start := 0; start < len(names); start += acmeBatchSize {
		end := start + acmeBatchSize
		if end > len(names) {
			end = len(names)
		}
		batch := names[start:end]

		fqdn := make([]string, 0, len(batch))
		for _, n := range batch {
			if strings.Contains(n, ".") {
				fqdn = append(fqdn, n)
			}
		}

		batchIssued := cm.registerCertificate(fqdn)
		issuedSet := make(map[string]struct{}, len(batchIssued))
		for _, n := range batchIssued {
			issuedSet[n] = struct{}{}
		}

		if len(batchIssued) > 0 {
			primary := batchIssued[0]
			for _, n := range batch {
				if n == primary {
					continue
				}
				if _, ok := issuedSet[n]; ok {
					cm.reuse(primary, n)
				}
			}
			issued = append(issued, batchIssued...)
		}

		for _, n := range batch {
			if _, ok := issuedSet[n]; !ok {
				if err := cm.selfSign(n); err != nil {
					cm.logger.Error("Failed to generate self-signed certificate for %s: %v", n, err)
					continue
				}
				cm.selfSigned[n] = true
			}
		}
	}

	return issued
}

// registerCertificate attempts ACME HTTP-01 issuance of a single multi-SAN
// certificate covering every name in names, filed under the first name's
// basename. Returns the names on success, or an empty slice if the
// challenge fails.
func (cm *CertificateManager) registerCertificate(names []string) []string {
	if len(names) == 0 {
		return nil
	}

	verified := names
	if cm.verifier != nil {
		owned, err := cm.verifier.VerifyDomain(names)
		if err != nil {
			cm.logger.Warn("Domain ownership check failed: %v", err)
		}
		verified = owned
	}
	if len(verified) == 0 {
		cm.logger.Warn("No domains passed ownership verification in %v, skipping ACME", names)
		return nil
	}

	primary := verified[0]
	cm.logger.Info("Requesting ACME certificate for %v (basename %s)", verified, primary)

	certPath := filepath.Join(cm.sslPath, "certs", primary+".crt")
	keyPath := filepath.Join(cm.sslPath, "private", primary+".key")
	accountKeyPath := filepath.Join(cm.sslPath, "accounts", primary+".account.key")

	if err := cm.acmeManager.ObtainCertificate(verified, certPath, keyPath, accountKeyPath); err != nil {
		acmeErr := proxyerrors.New(proxyerrors.ErrorTypeACME, "ACME issuance failed", err).
			WithContext("names", verified).WithContext("primary", primary)
		cm.logger.Warn("%v", acmeErr)
		return nil
	}

	cm.logger.Info("ACME issuance succeeded for %s", primary)
	return verified
}

// reuse copies the cert, key, and account key files from src to dst.
func (cm *CertificateManager) reuse(src, dst string) {
	copies := []struct{ srcPath, dstPath string }{
		{filepath.Join(cm.sslPath, "certs", src+".crt"), filepath.Join(cm.sslPath, "certs", dst+".crt")},
		{filepath.Join(cm.sslPath, "private", src+".key"), filepath.Join(cm.sslPath, "private", dst+".key")},
		{filepath.Join(cm.sslPath, "accounts", src+".account.key"), filepath.Join(cm.sslPath, "accounts", dst+".account.key")},
	}
	for _, c := range copies {
		data, err := os.ReadFile(c.srcPath)
		if err != nil {
			continue
		}
		perm := os.FileMode(0644)
		if strings.Contains(c.dstPath, "private") || strings.Contains(c.dstPath, "accounts") {
			perm = 0600
		}
		if err := os.WriteFile(c.dstPath, data, perm); err != nil {
			cm.logger.Error("Failed to reuse %s for %s: %v", c.srcPath, dst, err)
		}
	}
}

// selfSign generates a 1024-bit RSA key and a 10-year self-signed X.509
// certificate for name, per spec §4.5.
func (cm *CertificateManager) selfSign(name string) error {
	privateKey, err := rsa.GenerateKey(rand.Reader, selfSignedKeyBits)
	if err != nil {
		return err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName: name,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return err
	}

	certPath := filepath.Join(cm.sslPath, "certs", name+".selfsigned.crt")
	certFile, err := os.Create(certPath)
	if err != nil {
		return err
	}
	defer certFile.Close()
	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return err
	}

	keyPath := filepath.Join(cm.sslPath, "private", name+".selfsigned.key")
	keyFile, err := os.Create(keyPath)
	if err != nil {
		return err
	}
	defer keyFile.Close()
	if err := pem.Encode(keyFile, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}); err != nil {
		return err
	}

	cm.logger.Info("Generated self-signed certificate for %s", name)
	return nil
}
