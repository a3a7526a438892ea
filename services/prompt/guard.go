// Package prompt scans outbound prompts for credentials before they are sent
// to third-party providers.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/upb/ai-racers/services"
)

// SecretType names a kind of credential
type SecretType string

const (
	SecretTypeAWSKey      SecretType = "aws_key"
	SecretTypeGCPKey      SecretType = "gcp_key"
	SecretTypeOpenAIKey   SecretType = "openai_key"
	SecretTypeAnthropic   SecretType = "anthropic_key"
	SecretTypeXAIKey      SecretType = "xai_key"
	SecretTypeOpenRouter  SecretType = "openrouter_key"
	SecretTypeGitHubToken SecretType = "github_token"
	SecretTypeSlackToken  SecretType = "slack_token"
	SecretTypeStripeKey   SecretType = "stripe_key"
	SecretTypePrivateKey  SecretType = "private_key"
	SecretTypeJWT         SecretType = "jwt"
	SecretTypeDatabaseURL SecretType = "database_url"
	SecretTypePassword    SecretType = "password"
)

// Finding is one credential found in a text
type Finding struct {
	Type  SecretType
	Start int
	End   int
}

type detector struct {
	kind    SecretType
	pattern *regexp.Regexp
}

// Order matters: the first detector that claims a span wins, so specific
// provider prefixes come before the generic ones.
var detectors = []detector{
	{SecretTypeAnthropic, regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{32,}`)},
	{SecretTypeOpenRouter, regexp.MustCompile(`\bsk-or-v1-[a-f0-9]{64}\b`)},
	{SecretTypeOpenAIKey, regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_\-]{32,}`)},
	{SecretTypeXAIKey, regexp.MustCompile(`\bxai-[A-Za-z0-9]{40,}\b`)},
	{SecretTypeAWSKey, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{SecretTypeGCPKey, regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},
	{SecretTypeGitHubToken, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{SecretTypeSlackToken, regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`)},
	{SecretTypeStripeKey, regexp.MustCompile(`\b[sr]k_(?:live|test)_[0-9a-zA-Z]{24,}\b`)},
	{SecretTypePrivateKey, regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{SecretTypeJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)},
	{SecretTypeDatabaseURL, regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis)://[^\s:@'"]+:[^\s@'"]+@[^\s'"]+`)},
	{SecretTypePassword, regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}`)},
}

// Scan returns the credentials found in text, ordered by position.
// Overlapping matches are reported once.
func Scan(text string) []Finding {
	var findings []Finding
	for _, d := range detectors {
		for _, m := range d.pattern.FindAllStringIndex(text, -1) {
			if overlaps(findings, m[0], m[1]) {
				continue
			}
			findings = append(findings, Finding{Type: d.kind, Start: m[0], End: m[1]})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })
	return findings
}

func overlaps(findings []Finding, start, end int) bool {
	for _, f := range findings {
		if start < f.End && f.Start < end {
			return true
		}
	}
	return false
}

// Redact replaces every finding with a [REDACTED:<type>] marker
func Redact(text string) string {
	findings := Scan(text)
	if len(findings) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, f := range findings {
		b.WriteString(text[last:f.Start])
		fmt.Fprintf(&b, "[REDACTED:%s]", f.Type)
		last = f.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Check fails with a validation error naming the credential types found in
// any of the texts. Nothing about the values themselves is included.
func Check(texts ...string) error {
	seen := make(map[SecretType]bool)
	var kinds []string
	for _, text := range texts {
		for _, f := range Scan(text) {
			if !seen[f.Type] {
				seen[f.Type] = true
				kinds = append(kinds, string(f.Type))
			}
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	sort.Strings(kinds)
	return services.NewDomainError(services.ErrorTypeValidation,
		"prompt appears to contain credentials: "+strings.Join(kinds, ", "), nil).
		WithDetail("types", kinds)
}
