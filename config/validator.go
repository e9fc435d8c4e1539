package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
)

// Validate checks every field and reports all problems in one error.
func (c *Config) Validate() error {
	var problems []string

	if err := c.validateIdentity(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.RemoteName == "" || strings.ContainsAny(c.RemoteName, "/ \t") {
		problems = append(problems, fmt.Sprintf("remote_name %q is not a valid remote name", c.RemoteName))
	}
	if err := validateFolder(c.ExportFolder); err != nil {
		problems = append(problems, err.Error())
	}
	if !c.DisablePolling && c.PollInterval < MinPollInterval {
		problems = append(problems, fmt.Sprintf("poll_interval %s is shorter than %s", c.PollInterval, MinPollInterval))
	}
	if _, err := c.Level(); err != nil {
		problems = append(problems, fmt.Sprintf("log_level %q is not a valid level", c.LogLevel))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		problems = append(problems, fmt.Sprintf("log_format %q must be %q or %q", c.LogFormat, LogFormatText, LogFormatJSON))
	}
	if err := validateProxy(c.Proxy.URL); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New(errors.CodeInvalidConfig, "config.Validate",
			"configuration validation failed: "+strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateIdentity() error {
	id := c.Identity
	if id.Name == "" && id.Email == "" {
		return nil
	}
	if id.Name == "" || id.Email == "" {
		return fmt.Errorf("identity needs both name and email")
	}
	if !strings.Contains(id.Email, "@") {
		return fmt.Errorf("identity email %q is not an address", id.Email)
	}
	return nil
}

func validateFolder(p string) error {
	if p == "" || path.IsAbs(p) || path.Clean(p) != p || p == "." || strings.HasPrefix(p, "..") {
		return fmt.Errorf("export_folder %q must be a relative folder inside the working copy", p)
	}
	if p == ".git" || strings.HasPrefix(p, ".git/") {
		return fmt.Errorf("export_folder %q is inside the repository metadata", p)
	}
	return nil
}

func validateProxy(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("proxy url %q must use http, https or socks5", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy url %q has no host", raw)
	}
	return nil
}
