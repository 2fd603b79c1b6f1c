package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTargets(t *testing.T) {
	path := writeTemp(t, "targets.txt", `
# outreach batch for August
acme-widgets.example.io
https://already-scheme.example.io/contact

legacy.example.io
`)

	targets, err := loadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"acme-widgets.example.io",
		"https://already-scheme.example.io/contact",
		"legacy.example.io",
	}, targets)
}

func TestLoadTargetsEmptyFile(t *testing.T) {
	path := writeTemp(t, "targets.txt", "# only comments\n\n")
	_, err := loadTargets(path)
	assert.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	path := writeTemp(t, "profile.yaml", `
first_name: Ada
last_name: Larsen
email: ada@senderco.example.io
subject: Partnership enquiry
message: Hello, I would like to discuss a partnership.
captcha_api_key: owner-key
`)

	profile, err := loadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ada Larsen", profile.FullName())
	assert.Equal(t, "ada@senderco.example.io", profile.Email)
	assert.Equal(t, "owner-key", profile.CaptchaAPIKey)
}

func TestLoadProfileRequiresEmailAndMessage(t *testing.T) {
	path := writeTemp(t, "profile.yaml", "first_name: Ada\n")
	_, err := loadProfile(path)
	assert.Error(t, err)
}
