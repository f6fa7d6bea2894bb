package pki

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// EasyRSA drives the external EasyRSA executable against one PKI directory.
// Every invocation blocks until the tool exits; its stderr passes straight
// through to the operator. A non-zero exit is an error carrying the verb.
type EasyRSA struct {
	// Path is the EasyRSA executable.
	Path string

	// PKIDir is passed as --pki-dir on every invocation.
	PKIDir string

	Log *slog.Logger
}

// BuildClientFull issues a certificate and key for a new user. days limits
// the validity period when positive; otherwise the tool's default applies.
func (e *EasyRSA) BuildClientFull(user Username, days int) error {
	args := []string{"--batch", "--pki-dir=" + e.PKIDir, "--no-pass"}
	if days > 0 {
		args = append(args, fmt.Sprintf("--days=%d", days))
	}
	args = append(args, "build-client-full", user.String())
	_, err := e.run(false, args...)
	return err
}

// Revoke revokes the certificate of an existing user. The CRL is not
// regenerated here; call GenCRL afterwards.
func (e *EasyRSA) Revoke(user Username) error {
	_, err := e.run(false, "--batch", "--pki-dir="+e.PKIDir, "revoke", user.String())
	return err
}

// GenCRL regenerates the certificate revocation list.
func (e *EasyRSA) GenCRL() error {
	_, err := e.run(false, "--batch", "--pki-dir="+e.PKIDir, "gen-crl")
	return err
}

// ShowExpire runs the expiry report with the given horizon in days and
// returns the tool's raw stdout for parsing.
func (e *EasyRSA) ShowExpire(days int) (string, error) {
	return e.run(true, "--batch", "--pki-dir="+e.PKIDir, fmt.Sprintf("--days=%d", days), "show-expire")
}

func (e *EasyRSA) run(captureStdout bool, args ...string) (string, error) {
	cmd := exec.Command(e.Path, args...)
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	if captureStdout {
		cmd.Stdout = &stdout
	} else {
		cmd.Stdout = os.Stdout
	}

	e.Log.Debug("invoking easyrsa", slog.String("path", e.Path), slog.Any("args", args))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("easyrsa %v failed: %w", args, err)
	}
	return stdout.String(), nil
}
