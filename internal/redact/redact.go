// Package redact scrubs script output before it leaves the pipeline. Device
// stdout/stderr routinely contains addresses, e-mails and credentials that
// must never reach the AI pipeline or the operator UI verbatim.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxOutputSize caps each of stdout/stderr independently.
	MaxOutputSize = 100 * 1024

	truncationMarker = "\n... [truncated]"

	ipPlaceholder         = "<IP_REDACTED>"
	emailPlaceholder      = "<EMAIL_REDACTED>"
	credentialPlaceholder = "<API_KEY_REDACTED>"
)

var (
	ipv4Re  = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})\b`)
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// Credential-shaped tokens: AWS access keys, bearer/API keys and
	// password assignments. Order matters – the broader password pattern
	// runs last so key material is already collapsed.
	credentialRes = []*regexp.Regexp{
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|token|secret|bearer)\b[\s:=]+\S+`),
		regexp.MustCompile(`(?i)\bpassword\b[\s:=]+\S+`),
	}
)

// Output scrubs a single stream: credentials, e-mails and IPs are replaced
// with fixed placeholders, then the stream is truncated to MaxOutputSize.
func Output(s string) string {
	if s == "" {
		return s
	}
	for _, re := range credentialRes {
		s = re.ReplaceAllString(s, credentialPlaceholder)
	}
	s = emailRe.ReplaceAllString(s, emailPlaceholder)
	s = ipv4Re.ReplaceAllStringFunc(s, maskIP)
	return Truncate(s)
}

// Truncate enforces the per-stream size cap with an explicit marker so a
// reader can tell the output was cut rather than the script going quiet.
func Truncate(s string) string {
	if len(s) <= MaxOutputSize {
		return s
	}
	return s[:MaxOutputSize] + truncationMarker
}

// maskIP keeps the first two octets of private IPv4 addresses and fully
// redacts everything else.
func maskIP(addr string) string {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return ipPlaceholder
	}
	if isPrivate(parts) {
		return fmt.Sprintf("%s.%s.*.*", parts[0], parts[1])
	}
	return ipPlaceholder
}

func isPrivate(octets []string) bool {
	switch octets[0] {
	case "10":
		return true
	case "192":
		return octets[1] == "168"
	case "172":
		// 172.16.0.0/12
		switch octets[1] {
		case "16", "17", "18", "19", "20", "21", "22", "23",
			"24", "25", "26", "27", "28", "29", "30", "31":
			return true
		}
	}
	return false
}
