package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecretsBasic(t *testing.T) {
	content := `
# comment
DATABASE_URL=postgres://localhost/mydb
API_KEY=abc123

SECRET_KEY="with spaces"
QUOTED='single quotes'
EMPTY=
`
	secrets, err := ParseSecrets(content)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/mydb", secrets["DATABASE_URL"])
	assert.Equal(t, "abc123", secrets["API_KEY"])
	assert.Equal(t, "with spaces", secrets["SECRET_KEY"])
	assert.Equal(t, "single quotes", secrets["QUOTED"])
	assert.Equal(t, "", secrets["EMPTY"])
	assert.Len(t, secrets, 5)
}

func TestParseSecretsInvalidFormat(t *testing.T) {
	_, err := ParseSecrets("NO_EQUALS_SIGN_HERE")
	assert.Error(t, err)
}

func TestParseSecretsEmptyKey(t *testing.T) {
	_, err := ParseSecrets("=value")
	assert.Error(t, err)
}

func TestLoadSecretsAppSpecificWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".fly.secrets"), []byte("KEY=default\nSHARED=common\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".fly.secrets.myapp"), []byte("KEY=app-specific\n"), 0o644))

	secrets, err := LoadSecrets(dir, "myapp")
	require.NoError(t, err)
	assert.Equal(t, "app-specific", secrets["KEY"])
	assert.Equal(t, "common", secrets["SHARED"])
}

func TestLoadSecretsNoFilesReturnsEmpty(t *testing.T) {
	secrets, err := LoadSecrets(t.TempDir(), "myapp")
	require.NoError(t, err)
	assert.Empty(t, secrets)
}

func TestFormatSecretsFileQuotesSpaces(t *testing.T) {
	out := FormatSecretsFile(map[string]string{"A": "has space", "B": "plain"})
	assert.Contains(t, out, `A="has space"`)
	assert.Contains(t, out, "B=plain")
}
