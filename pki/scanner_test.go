package pki

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPKI builds a PKI directory with the given certificate and key stems.
func newTestPKI(t *testing.T, certStems, keyStems []string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "issued"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "private"), 0o755))
	for _, stem := range certStems {
		path := filepath.Join(dir, "issued", stem+".crt")
		require.NoError(t, os.WriteFile(path, []byte("CERT-"+stem), 0o644))
	}
	for _, stem := range keyStems {
		path := filepath.Join(dir, "private", stem+".key")
		require.NoError(t, os.WriteFile(path, []byte("KEY-"+stem), 0o600))
	}
	return dir
}

func TestKnownUsersUnionSortedDeduplicated(t *testing.T) {
	pkiDir := newTestPKI(t, []string{"bravo", "alpha"}, []string{"alpha", "charlie", "ca"})

	var buf bytes.Buffer
	users, err := NewScanner(slog.New(slog.NewTextHandler(&buf, nil))).KnownUsers(pkiDir)
	require.NoError(t, err)

	assert.Equal(t, []Username{"alpha", "bravo", "charlie"}, users)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "certificate but no key"), "bravo has no key")
	assert.Equal(t, 1, strings.Count(out, "key but no certificate"), "charlie has no certificate")
	assert.NotContains(t, out, "user=ca", "the authority key is not an anomaly")
}

func TestKnownUsersSkipsBadEntries(t *testing.T) {
	pkiDir := newTestPKI(t, []string{"alice"}, []string{"alice"})

	// Not a regular file.
	require.NoError(t, os.Mkdir(filepath.Join(pkiDir, "issued", "subdir"), 0o755))
	// No stem once the extension is removed.
	require.NoError(t, os.WriteFile(filepath.Join(pkiDir, "issued", ".crt"), []byte("x"), 0o644))
	// Stem fails the username grammar.
	require.NoError(t, os.WriteFile(filepath.Join(pkiDir, "issued", "bad name.crt"), []byte("x"), 0o644))

	var buf bytes.Buffer
	users, err := NewScanner(slog.New(slog.NewTextHandler(&buf, nil))).KnownUsers(pkiDir)
	require.NoError(t, err)

	assert.Equal(t, []Username{"alice"}, users, "one bad entry never hides the rest")
	out := buf.String()
	assert.Contains(t, out, "not a regular file")
	assert.Contains(t, out, "no stem")
	assert.Contains(t, out, "invalid username")
}

func TestKnownUsersMissingDirectory(t *testing.T) {
	_, err := NewScanner(discardLogger()).KnownUsers(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestStem(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"alice.crt", "alice"},
		{"a.b.c", "a.b"},
		{"noext", "noext"},
		{".crt", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stem(tt.name), tt.name)
	}
}

func TestCertAndKeyPath(t *testing.T) {
	pkiDir := newTestPKI(t, []string{"alice"}, []string{"alice"})

	certPath, err := CertPath(pkiDir, "alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pkiDir, "issued", "alice.crt"), certPath)

	keyPath, err := KeyPath(pkiDir, "alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pkiDir, "private", "alice.key"), keyPath)

	_, err = CertPath(pkiDir, "ghost")
	assert.ErrorIs(t, err, ErrCredentialMissing)
	assert.Contains(t, err.Error(), "ghost")

	_, err = KeyPath(pkiDir, "ghost")
	assert.ErrorIs(t, err, ErrCredentialMissing)
}
