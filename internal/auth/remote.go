package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Remote is the part of a remote URL that authentication cares about.
type Remote struct {
	Scheme string
	User   string
	Host   string
}

// IsHTTP reports whether the remote uses an HTTP transport.
func (r Remote) IsHTTP() bool {
	return r.Scheme == "http" || r.Scheme == "https"
}

// IsSSH reports whether the remote uses an SSH transport.
func (r Remote) IsSSH() bool {
	return r.Scheme == "ssh" || r.Scheme == "git+ssh"
}

// ParseRemote parses a remote URL, including scp-like "user@host:path"
// addresses and plain local paths.
func ParseRemote(remoteURL string) (Remote, error) {
	if remoteURL == "" {
		return Remote{}, fmt.Errorf("empty remote URL")
	}

	if !strings.Contains(remoteURL, "://") {
		// scp-like syntax: [user@]host:path
		if i := strings.Index(remoteURL, ":"); i > 1 && !strings.ContainsAny(remoteURL[:i], "/\\") {
			hostPart := remoteURL[:i]
			r := Remote{Scheme: "ssh", Host: hostPart}
			if at := strings.LastIndex(hostPart, "@"); at >= 0 {
				r.User = hostPart[:at]
				r.Host = hostPart[at+1:]
			}
			return r, nil
		}
		return Remote{Scheme: "file"}, nil
	}

	u, err := url.Parse(remoteURL)
	if err != nil {
		return Remote{}, fmt.Errorf("invalid remote URL: %w", err)
	}
	r := Remote{Scheme: u.Scheme, Host: u.Hostname()}
	if u.User != nil {
		r.User = u.User.Username()
	}
	return r, nil
}

// hostAllowed reports whether host matches one of patterns. An empty pattern
// list allows every host.
func hostAllowed(host string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchHost(host, p) {
			return true
		}
	}
	return false
}

// matchHost matches host against a pattern that is either exact or has a
// single leading "*." or trailing ".*" wildcard.
func matchHost(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.Count(pattern, "*") != 1 {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(host, prefix+".")
	}
	return false
}
