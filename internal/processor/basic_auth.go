package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahulshinde/nginx-proxy-go/internal/host"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuthProcessor handles basic authentication configuration
type BasicAuthProcessor struct {
	basicAuthDir string
}

// NewBasicAuthProcessor creates a new BasicAuthProcessor
func NewBasicAuthProcessor(basicAuthDir string) *BasicAuthProcessor {
	if !strings.HasSuffix(basicAuthDir, "/") {
		basicAuthDir += "/"
	}
	return &BasicAuthProcessor{
		basicAuthDir: basicAuthDir,
	}
}

// ProcessBasicAuth processes basic auth configuration from environment variables
func (p *BasicAuthProcessor) ProcessBasicAuth(environments map[string]string, hosts map[string]map[int]*host.Host) error {
	// Find all PROXY_BASIC_AUTH environment variables
	for key, value := range environments {
		if !strings.HasPrefix(key, "PROXY_BASIC_AUTH") {
			continue
		}

		// Parse the basic auth configuration
		parts := strings.SplitN(value, "->", 2)
		if len(parts) != 2 {
			// Global basic auth for all hosts
			if authMap := p.parseAuthMap(value); authMap != nil {
				for _, portMap := range hosts {
					for _, h := range portMap {
						p.updateHostSecurity(h, "/", authMap)
					}
				}
			}
			continue
		}

		// Host-specific basic auth
		hostPart := strings.TrimSpace(parts[0])
		authPart := strings.TrimSpace(parts[1])

		// Strip a leading scheme, if present, before splitting hostname:port
		for _, scheme := range []string{"https://", "http://", "wss://", "ws://"} {
			if strings.HasPrefix(hostPart, scheme) {
				hostPart = strings.TrimPrefix(hostPart, scheme)
				break
			}
		}

		// Parse hostname and port
		hostname := hostPart
		port := 80
		if strings.Contains(hostPart, ":") {
			parts := strings.SplitN(hostPart, ":", 2)
			hostname = parts[0]
			fmt.Sscanf(parts[1], "%d", &port)
		}

		// Parse auth credentials
		if authMap := p.parseAuthMap(authPart); authMap != nil {
			// Find the host and update its security
			if portMap, ok := hosts[hostname]; ok {
				if h, ok := portMap[port]; ok {
					p.updateHostSecurity(h, "/", authMap)
				}
			}
		}
	}

	return nil
}

// parseAuthMap parses a comma-separated list of username:password pairs
func (p *BasicAuthProcessor) parseAuthMap(authStr string) map[string]string {
	authMap := make(map[string]string)
	for _, pair := range strings.Split(authStr, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			username := strings.TrimSpace(parts[0])
			password := strings.TrimSpace(parts[1])
			if len(username) > 2 && len(password) > 2 {
				authMap[username] = password
			}
		}
	}
	return authMap
}

// updateHostSecurity updates the security configuration for a host or location
func (p *BasicAuthProcessor) updateHostSecurity(h *host.Host, path string, authMap map[string]string) {
	if path == "/" {
		// Update host-level security
		h.UpdateExtrasContent("security", authMap)
		h.BasicAuth = true
		h.BasicAuthFile = p.generateHtpasswdFile(h.Hostname, "", authMap)
	} else {
		// Update location-level security
		if loc, ok := h.Locations[path]; ok {
			loc.UpdateExtrasContent("security", authMap)
			loc.BasicAuth = true
			loc.BasicAuthFile = p.generateHtpasswdFile(h.Hostname, strings.ReplaceAll(path, "/", "_"), authMap)
		}
	}
}

// generateHtpasswdFile generates an htpasswd file for basic auth, named
// <hostname>[_<path>].htpasswd directly under the basic auth directory.
func (p *BasicAuthProcessor) generateHtpasswdFile(hostname, suffix string, authMap map[string]string) string {
	if err := os.MkdirAll(p.basicAuthDir, 0755); err != nil {
		return ""
	}

	filename := filepath.Join(p.basicAuthDir, hostname+suffix+".htpasswd")
	file, err := os.Create(filename)
	if err != nil {
		return ""
	}
	defer file.Close()

	// Write credentials
	for username, password := range authMap {
		hashed, err := p.hashPassword(password)
		if err != nil {
			continue
		}

		// Write to file
		fmt.Fprintf(file, "%s:%s\n", username, hashed)
	}

	return filename
}

// hashPassword hashes a password with bcrypt, matching nginx's
// auth_basic_hash_type bcrypt and Apache htpasswd -B.
func (p *BasicAuthProcessor) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
