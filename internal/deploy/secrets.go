package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ParseSecrets parses KEY=VALUE secret file content (spec §4.7 step 5),
// grounded on original_source/minifly-cli/src/commands/secrets.rs::
// parse_secrets: "#" comments and blank lines are skipped, one
// surrounding pair of quotes is stripped from the value, and an empty
// key is an error.
func ParseSecrets(content string) (map[string]string, error) {
	secrets := make(map[string]string)
	for i, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pos := strings.Index(line, "=")
		if pos < 0 {
			return nil, fmt.Errorf("invalid format at line %d: expected KEY=VALUE", i+1)
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])
		if key == "" {
			return nil, fmt.Errorf("empty key at line %d", i+1)
		}
		secrets[key] = unquote(value)
	}
	return secrets, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// LoadSecrets loads the hierarchical .fly.secrets files for appName
// from dir: app-specific secrets (.fly.secrets.<app>) take precedence
// over the shared .fly.secrets file (spec §4.7 step 5).
func LoadSecrets(dir, appName string) (map[string]string, error) {
	secrets := make(map[string]string)

	appFile := filepath.Join(dir, ".fly.secrets."+appName)
	if content, err := os.ReadFile(appFile); err == nil {
		parsed, err := ParseSecrets(string(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", appFile, err)
		}
		for k, v := range parsed {
			secrets[k] = v
		}
	}

	defaultFile := filepath.Join(dir, ".fly.secrets")
	if content, err := os.ReadFile(defaultFile); err == nil {
		parsed, err := ParseSecrets(string(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", defaultFile, err)
		}
		for k, v := range parsed {
			if _, exists := secrets[k]; !exists {
				secrets[k] = v
			}
		}
	}

	return secrets, nil
}

// FormatSecretsFile renders secrets back to the KEY=VALUE file format,
// quoting values that contain whitespace or quote characters. Used by
// internal/cli's secrets subcommand, which reuses this grammar rather
// than inventing its own.
func FormatSecretsFile(secrets map[string]string) string {
	var b strings.Builder
	b.WriteString("# minifly secrets file - do not commit to version control\n\n")

	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := secrets[k]
		if strings.ContainsAny(v, " \"'") {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return b.String()
}
