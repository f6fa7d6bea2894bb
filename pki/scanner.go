package pki

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	issuedSubdir  = "issued"
	privateSubdir = "private"

	// caStem is the authority's own key under private/; never a user.
	caStem = "ca"
)

// ErrCredentialMissing reports a certificate or key file that disappeared
// between scan time and use time.
var ErrCredentialMissing = errors.New("credential file missing")

// Stem maps a directory entry name to its identity stem: the name with the
// final extension removed. The stem is the sole identity signal for a user,
// so the rule lives in one named function.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Scanner derives the known-user set from a PKI directory. Scanning is
// read-only; bad individual entries are warned about and skipped so one
// broken file never hides the rest.
type Scanner struct {
	log *slog.Logger
}

// NewScanner creates a scanner logging through log.
func NewScanner(log *slog.Logger) *Scanner {
	return &Scanner{log: log}
}

// KnownUsers returns the sorted, deduplicated usernames present in pkiDir:
// the union of certificate stems under issued/ and key stems under private/,
// with the authority's own "ca" key excluded. A user with only one of the
// two files is still known; the asymmetry is warned about.
func (s *Scanner) KnownUsers(pkiDir string) ([]Username, error) {
	certStems, err := s.listStems(filepath.Join(pkiDir, issuedSubdir))
	if err != nil {
		return nil, err
	}
	keyStems, err := s.listStems(filepath.Join(pkiDir, privateSubdir))
	if err != nil {
		return nil, err
	}
	delete(keyStems, caStem)

	for stem := range certStems {
		if !keyStems[stem] {
			s.log.Warn("user seems to have a certificate but no key", slog.String("user", stem))
		}
	}
	for stem := range keyStems {
		if !certStems[stem] {
			s.log.Warn("user seems to have a key but no certificate", slog.String("user", stem))
		}
	}

	union := make(map[string]bool, len(certStems)+len(keyStems))
	for stem := range certStems {
		union[stem] = true
	}
	for stem := range keyStems {
		union[stem] = true
	}

	users := make([]Username, 0, len(union))
	for stem := range union {
		if !utf8.ValidString(stem) {
			s.log.Warn("user seems to have a non-UTF8 name", slog.String("user", strings.ToValidUTF8(stem, "�")))
			stem = strings.ToValidUTF8(stem, "�")
		}
		user, err := NewUsername(stem)
		if err != nil {
			s.log.Warn("ignoring invalid username", slog.String("stem", stem), "err", err)
			continue
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// listStems enumerates dir and collects the stems of its regular files.
func (s *Scanner) listStems(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", dir, err)
	}

	stems := make(map[string]bool, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// Stat follows symlinks, same as the existence checks at use time.
		info, err := os.Stat(path)
		if err != nil {
			s.log.Warn("cannot read directory entry; the user list may be incomplete",
				slog.String("path", path), "err", err)
			continue
		}
		if !info.Mode().IsRegular() {
			s.log.Warn("not a regular file; ignoring", slog.String("path", path))
			continue
		}

		stem := Stem(entry.Name())
		if stem == "" {
			s.log.Warn("file has no stem; ignoring", slog.String("path", path))
			continue
		}
		stems[stem] = true
	}
	return stems, nil
}

// CertPath returns the path of the issued certificate for user, verifying
// the file exists. A missing file signals drift since the last scan.
func CertPath(pkiDir string, user Username) (string, error) {
	path := filepath.Join(pkiDir, issuedSubdir, user.String()+".crt")
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: no certificate for user %q at %s", ErrCredentialMissing, user, path)
	}
	return path, nil
}

// KeyPath returns the path of the private key for user, verifying the file
// exists.
func KeyPath(pkiDir string, user Username) (string, error) {
	path := filepath.Join(pkiDir, privateSubdir, user.String()+".key")
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: no key for user %q at %s", ErrCredentialMissing, user, path)
	}
	return path, nil
}
