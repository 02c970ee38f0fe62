// Package secrets redacts credentials from fetched file content before it is
// assembled into a context document.
//
// Two engines are available. The regex engine applies a small rule set of
// self-identifying token formats and assignment patterns. The gitleaks
// engine runs the full gitleaks default rule pack. Both report rule IDs and
// line numbers but never the secret itself.
package secrets
