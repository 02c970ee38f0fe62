package secrets

// DefaultRules is the regex engine's built-in rule set. Token formats with a
// distinctive prefix run unconditionally; assignment-style rules are gated
// by keywords to keep ordinary source code untouched.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|ASIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA)[A-Z0-9]{16}\b`,
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS secret access key assignment",
			Pattern:     `(?i)(?:aws_secret_access_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords:    []string{"secret_access_key"},
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `\bgh[pousr]_[A-Za-z0-9]{36}\b`,
		},
		{
			ID:          "github-fine-grained-pat",
			Description: "GitHub fine-grained personal access token",
			Pattern:     `\bgithub_pat_[A-Za-z0-9_]{22,}`,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab personal access token",
			Pattern:     `\bglpat-[A-Za-z0-9\-]{20,}`,
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Pattern:     `\bxox[baprs]-[A-Za-z0-9\-]{10,}`,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe secret key",
			Pattern:     `\b(?:sk|rk)_live_[A-Za-z0-9]{24,}`,
		},
		{
			ID:          "npm-token",
			Description: "npm access token",
			Pattern:     `\bnpm_[A-Za-z0-9]{36}\b`,
		},
		{
			ID:          "google-api-key",
			Description: "Google API key",
			Pattern:     `\bAIza[A-Za-z0-9_\-]{35}`,
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Pattern:     `\bsk-ant-[A-Za-z0-9_\-]{90,}`,
		},
		{
			ID:          "sendgrid-api-key",
			Description: "SendGrid API key",
			Pattern:     `\bSG\.[A-Za-z0-9_\-]{22,}\.[A-Za-z0-9_\-]{43,}`,
		},
		{
			ID:          "private-key",
			Description: "PEM private key block",
			Pattern:     `(?s)-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----.*?-----END (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`,
		},
		{
			ID:          "jwt",
			Description: "JSON web token",
			Pattern:     `\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`,
		},
		{
			ID:          "credential-url",
			Description: "URL with embedded password",
			Pattern:     `\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@[^\s'"]+`,
			Keywords:    []string{"://"},
		},
		{
			ID:          "generic-secret-assignment",
			Description: "Password or secret assigned a literal",
			Pattern:     `(?i)\b(?:password|passwd|secret|api_?key|access_?token|auth_?token)\s*[:=]\s*['"][^\s'"]{8,}['"]`,
			Keywords:    []string{"password", "passwd", "secret", "key", "token"},
		},
	}
}
