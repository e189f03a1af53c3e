package config

import (
	"os"
	"strings"
)

// IdentitySource represents where the SEC User-Agent comes from.
type IdentitySource string

const (
	IdentitySourceEnv     IdentitySource = "env"
	IdentitySourceConfig  IdentitySource = "config"
	IdentitySourceDefault IdentitySource = "default"
)

const (
	userAgentEnv     = "NPORTP_SEC_USER_AGENT"
	defaultUserAgent = "nportp/1.0 (contact@example.com)"
)

// IdentityStatus describes the User-Agent sent to EDGAR.
type IdentityStatus struct {
	UserAgent string         `json:"user_agent"`
	Source    IdentitySource `json:"source"`
	HasEmail  bool           `json:"has_email"`
	Masked    string         `json:"masked,omitempty"` // e.g., "Jane Doe j***@example.com"
}

// CheckIdentity reports where the User-Agent was set and whether it carries
// a contact email. SEC throttles requests that do not identify their sender.
func CheckIdentity(cfg *Config) IdentityStatus {
	ua := cfg.SEC.UserAgent
	status := IdentityStatus{
		UserAgent: ua,
		HasEmail:  strings.Contains(ua, "@"),
		Masked:    maskEmail(ua),
	}

	switch {
	case os.Getenv(userAgentEnv) != "":
		status.Source = IdentitySourceEnv
	case ua == defaultUserAgent:
		status.Source = IdentitySourceDefault
	default:
		status.Source = IdentitySourceConfig
	}
	return status
}

// maskEmail masks the local part of any email in s, keeping its first char.
func maskEmail(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		at := strings.Index(f, "@")
		if at <= 0 {
			continue
		}
		lead := strings.TrimLeft(f[:at], "(<")
		prefix := f[:at-len(lead)]
		if lead == "" {
			continue
		}
		fields[i] = prefix + lead[:1] + "***" + f[at:]
	}
	return strings.Join(fields, " ")
}
