package config

import (
	"os"
	"regexp"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR_NAME} references in YAML content with the
// named environment variable's value. Only the braced form expands: a
// bare $ stays literal, so regex anchors, passwords, and shell snippets
// embedded in config values pass through untouched. Missing variables
// expand to empty string; validation catches required fields left empty.
func ExpandEnv(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRefPattern.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}
