package repoauth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/specsync/specsync/internal/api"
)

const KnownHostsPathEnv = "SPECSYNC_KNOWN_HOSTS_FILE"

// NormalizeKind canonicalizes repository auth kinds.
func NormalizeKind(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return api.AuthNone
	case "token":
		return api.AuthToken
	case "ssh_key", "ssh-key", "sshkey":
		return api.AuthSSHKey
	default:
		return ""
	}
}

// ValidateConfigInput validates auth settings before a config is persisted.
func ValidateConfigInput(repoURL, kind, secret string) error {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return fmt.Errorf("repository URL is required")
	}

	kind = NormalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("unsupported auth kind")
	}

	switch kind {
	case api.AuthNone:
		return nil
	case api.AuthToken:
		if strings.TrimSpace(secret) == "" {
			return fmt.Errorf("token is required for token auth")
		}
		return nil
	case api.AuthSSHKey:
		secret = NormalizeSSHKey(secret)
		if strings.TrimSpace(secret) == "" {
			return fmt.Errorf("private key is required for ssh_key auth")
		}
		if !isSSHRepoURL(repoURL) {
			return fmt.Errorf("ssh_key auth requires an SSH repo URL")
		}
		if _, err := ssh.ParseRawPrivateKey([]byte(secret)); err != nil {
			var passErr *ssh.PassphraseMissingError
			if errors.As(err, &passErr) {
				return fmt.Errorf("passphrase-protected keys are not supported")
			}
			return fmt.Errorf("invalid private key")
		}
		return nil
	}
	return nil
}

// NormalizeSSHKey normalizes copy-pasted private keys from forms/JSON payloads.
func NormalizeSSHKey(value string) string {
	normalized := strings.TrimSpace(value)
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	// Some API clients send literal "\n" sequences in JSON strings.
	if strings.Contains(normalized, `\n`) && !strings.Contains(normalized, "\n") {
		normalized = strings.ReplaceAll(normalized, `\n`, "\n")
	}
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return ""
	}
	return normalized + "\n"
}

// BuildAuthMethod turns a resolved secret into a uniform go-git credential.
// Callers resolve the tagged kind here once; the VCS adapter never branches
// on auth kind.
func BuildAuthMethod(kind string, secret []byte) (transport.AuthMethod, error) {
	switch NormalizeKind(kind) {
	case api.AuthNone:
		return nil, nil
	case api.AuthToken:
		token := strings.TrimSpace(string(secret))
		if token == "" {
			return nil, fmt.Errorf("missing token for token auth")
		}
		return &githttp.BasicAuth{Username: "git", Password: token}, nil
	case api.AuthSSHKey:
		if len(secret) == 0 {
			return nil, fmt.Errorf("missing private key for ssh_key auth")
		}
		knownHostsPath, err := ResolveKnownHostsPath()
		if err != nil {
			return nil, err
		}
		callback, err := NewHostKeyCallback(knownHostsPath)
		if err != nil {
			return nil, err
		}
		auth, err := gitssh.NewPublicKeys("git", secret, "")
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		auth.HostKeyCallbackHelper = gitssh.HostKeyCallbackHelper{
			HostKeyCallback: callback,
		}
		return auth, nil
	default:
		return nil, fmt.Errorf("unsupported auth kind: %s", kind)
	}
}

// ResolveKnownHostsPath returns the known_hosts file used for strict host verification.
func ResolveKnownHostsPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(KnownHostsPathEnv)); path != "" {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		return "", fmt.Errorf("%s points to an invalid file", KnownHostsPathEnv)
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		defaultPath := filepath.Join(homeDir, ".ssh", "known_hosts")
		if info, statErr := os.Stat(defaultPath); statErr == nil && !info.IsDir() {
			return defaultPath, nil
		}
	}

	systemPath := "/etc/ssh/ssh_known_hosts"
	if info, err := os.Stat(systemPath); err == nil && !info.IsDir() {
		return systemPath, nil
	}

	return "", fmt.Errorf("known_hosts file not found; set %s", KnownHostsPathEnv)
}

// NewHostKeyCallback returns a strict host-key callback.
func NewHostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	return knownhosts.New(path)
}

func isSSHRepoURL(repoURL string) bool {
	trimmed := strings.TrimSpace(repoURL)
	if strings.HasPrefix(strings.ToLower(trimmed), "ssh://") {
		return true
	}
	return strings.Contains(trimmed, "@") && strings.Contains(trimmed, ":")
}
