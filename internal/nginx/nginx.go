package nginx

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	proxyerrors "github.com/rahulshinde/nginx-proxy-go/internal/errors"
)

// Nginx drives the nginx process: writing config, testing it, reloading or
// starting the server, and rolling back to the last working config on
// failure.
type Nginx struct {
	confFile     string
	challengeDir string
	commander    Commander

	mu                sync.Mutex
	lastWorkingConfig string
	started           bool
}

// NewNginx creates a new Nginx instance. A nil commander defaults to
// driving the real nginx binary via os/exec; tests pass a fake Commander.
func NewNginx(confFile, challengeDir string, commander Commander) *Nginx {
	if commander == nil {
		commander = DefaultCommander
	}
	return &Nginx{
		confFile:     confFile,
		challengeDir: challengeDir,
		commander:    commander,
	}
}

// UpdateConfig writes the given configuration, tests it, and reloads nginx.
// On any failure it restores the last known-working configuration to disk
// and logs a unified diff between the rejected config and the restored one,
// then returns the original error.
func (n *Nginx) UpdateConfig(config string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.writeConfig(config); err != nil {
		return err
	}

	if err := n.configTest(); err != nil {
		n.rollback(config, "nginx -t")
		return proxyerrors.New(proxyerrors.ErrorTypeProxyConfigTest, "nginx config test failed", err)
	}

	if err := n.doReload(); err != nil {
		n.rollback(config, "nginx -s reload")
		return proxyerrors.New(proxyerrors.ErrorTypeProxyStart, "failed to reload nginx", err)
	}

	n.lastWorkingConfig = config
	n.started = true
	return nil
}

// ForceStart writes the given configuration and starts nginx in the
// foreground. If nginx fails to start, the last working configuration (if
// any) is restored and a diff is logged.
func (n *Nginx) ForceStart(config string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.writeConfig(config); err != nil {
		return false
	}

	cmd := n.commander.Command("nginx", "-g", "daemon off;")
	if err := cmd.Start(); err != nil {
		n.rollback(config, "nginx -g daemon off;")
		return false
	}

	n.lastWorkingConfig = config
	n.started = true
	return true
}

// rollback restores the last working configuration to disk (if one exists)
// and logs a unified diff between the rejected configuration and the
// restored one. Callers must hold n.mu.
func (n *Nginx) rollback(rejected, step string) {
	if n.lastWorkingConfig == "" {
		fmt.Fprintf(os.Stderr, "nginx: %s rejected new config and no prior working config exists, leaving rejected config on disk for inspection\n", step)
		return
	}

	diff := unifiedDiff(rejected, n.lastWorkingConfig)
	fmt.Fprintf(os.Stderr, "nginx: %s rejected new config, rolling back to last working config\n%s\n", step, diff)

	if err := os.WriteFile(n.confFile, []byte(n.lastWorkingConfig), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "nginx: failed to restore last working config: %v\n", err)
	}
}

func (n *Nginx) writeConfig(config string) error {
	dir := filepath.Dir(n.confFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(n.confFile, []byte(config), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (n *Nginx) configTest() error {
	cmd := n.commander.Command("nginx", "-t")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s", string(output))
	}
	return nil
}

func (n *Nginx) doReload() error {
	if !n.started {
		return n.startDaemon()
	}
	cmd := n.commander.Command("nginx", "-s", "reload")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s", string(output))
	}
	return nil
}

func (n *Nginx) startDaemon() error {
	cmd := n.commander.Command("nginx", "-g", "daemon off;")
	return cmd.Start()
}

// Wait blocks until nginx accepts TCP connections on :80, polling once a
// second. Mirrors nginx_proxy.Nginx.wait() in the Python original, which
// loops on socket.connect_ex((127.0.0.1, 80)) until it returns 0.
func (n *Nginx) Wait() {
	for {
		conn, err := net.DialTimeout("tcp", "127.0.0.1:80", time.Second)
		if err == nil {
			conn.Close()
			return
		}
		fmt.Println("Waiting for nginx process to be ready")
		time.Sleep(time.Second)
	}
}

// VerifyDomain self-checks domain ownership for each candidate hostname by
// writing a random token under the ACME challenge directory and fetching
// it back over plain HTTP on that hostname, the way ssl.py's
// register_certificate calls self.nginx.verify_domain(domain) before ever
// contacting the ACME directory. Returns the subset of names that proved
// ownership; names that fail are reported via an *errors.Error of type
// ErrorTypeDomainNotOwned so callers can skip straight to self-signing
// without burning an ACME attempt.
func (n *Nginx) VerifyDomain(names []string) ([]string, error) {
	var owned []string
	var unowned []string

	for _, name := range names {
		if n.verifyOne(name) {
			owned = append(owned, name)
		} else {
			unowned = append(unowned, name)
		}
	}

	if len(unowned) > 0 {
		return owned, proxyerrors.New(proxyerrors.ErrorTypeDomainNotOwned,
			fmt.Sprintf("domain ownership check failed for %v", unowned), nil).
			WithContext("names", unowned)
	}

	return owned, nil
}

func (n *Nginx) verifyOne(name string) bool {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return false
	}
	tokenHex := hex.EncodeToString(token)

	challengeDir := n.challengeDir
	if challengeDir == "" {
		challengeDir = os.TempDir()
	}
	if err := os.MkdirAll(challengeDir, 0755); err != nil {
		return false
	}

	challengePath := filepath.Join(challengeDir, tokenHex)
	if err := os.WriteFile(challengePath, []byte(tokenHex), 0644); err != nil {
		return false
	}
	defer os.Remove(challengePath)

	url := fmt.Sprintf("http://%s/.well-known/acme-challenge/%s", name, tokenHex)
	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(body)) == tokenHex
}

// unifiedDiff produces a minimal line-based unified diff between two config
// bodies, good enough for operator-facing rollback logs.
func unifiedDiff(rejected, restored string) string {
	rejLines := strings.Split(rejected, "\n")
	resLines := strings.Split(restored, "\n")

	var b strings.Builder
	b.WriteString("--- rejected\n+++ restored\n")

	max := len(rejLines)
	if len(resLines) > max {
		max = len(resLines)
	}
	for i := 0; i < max; i++ {
		var rej, res string
		if i < len(rejLines) {
			rej = rejLines[i]
		}
		if i < len(resLines) {
			res = resLines[i]
		}
		if rej == res {
			continue
		}
		if i < len(rejLines) {
			b.WriteString("-" + rej + "\n")
		}
		if i < len(resLines) {
			b.WriteString("+" + res + "\n")
		}
	}
	return b.String()
}
