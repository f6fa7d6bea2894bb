package packaging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/scheimong/openvpn-cred-management/pki"
	"github.com/scheimong/openvpn-cred-management/scripts"
)

var (
	// ErrUnknownUser reports a requested username outside the known set.
	ErrUnknownUser = errors.New("unknown user")

	// ErrDuplicateUser reports a username requested more than once.
	ErrDuplicateUser = errors.New("duplicate user")

	// ErrNoSpec reports a profile without a packaging section.
	ErrNoSpec = errors.New("profile has no packaging configuration")
)

// Spec describes how per-user packages are assembled. Paths are already
// resolved by the config layer: SkelDir is absolute, the subpaths are
// relative to the skeleton root.
type Spec struct {
	SkelDir string

	// SkelMapScripts mutate the staged skeleton copy, in declared order,
	// before any per-user work.
	SkelMapScripts []string

	CertSubpath string
	KeySubpath  string
}

// Options carries the operator flags for one pipeline run.
type Options struct {
	AddProfilePrefix bool
	AllowOverwrite   bool
	RetainWorkspace  bool
}

// Pipeline packages credentials for a batch of users of one profile.
type Pipeline struct {
	PKIDir    string
	Profile   string
	Spec      *Spec // nil when the profile has no packaging section
	OutputDir string
	Log       *slog.Logger
}

// Run produces one archive per requested user, or none at all. Validation
// happens before any filesystem mutation; every later step is a hard abort
// point, so a failure on one user writes nothing for the users after it.
func (p *Pipeline) Run(known, requested []pki.Username, opts Options) error {
	knownSet := make(map[pki.Username]bool, len(known))
	for _, user := range known {
		knownSet[user] = true
	}
	seen := make(map[pki.Username]bool, len(requested))
	for _, user := range requested {
		if seen[user] {
			return fmt.Errorf("%w: %q requested more than once", ErrDuplicateUser, user)
		}
		seen[user] = true
		if !knownSet[user] {
			return fmt.Errorf("%w: %q", ErrUnknownUser, user)
		}
	}
	if p.Spec == nil {
		return ErrNoSpec
	}

	workspace := filepath.Join(os.TempDir(), "ovpncm-"+uuid.NewString())
	if err := os.Mkdir(workspace, 0o700); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	defer func() {
		if opts.RetainWorkspace {
			p.Log.Info("retaining packaging workspace", slog.String("path", workspace))
			return
		}
		if err := os.RemoveAll(workspace); err != nil {
			p.Log.Warn("could not remove packaging workspace",
				slog.String("path", workspace), "err", err)
		}
	}()

	// One staged skeleton is the common ancestor of every user's archive.
	staged := filepath.Join(workspace, "skel")
	if err := copyTree(p.Spec.SkelDir, staged, maxCopyDepth); err != nil {
		return fmt.Errorf("staging skeleton %s: %w", p.Spec.SkelDir, err)
	}
	for i, body := range p.Spec.SkelMapScripts {
		p.Log.Debug("running skeleton transform script", slog.Int("index", i+1))
		if err := scripts.RunShell(body, staged); err != nil {
			return fmt.Errorf("skeleton transform script %d: %w", i+1, err)
		}
	}

	for _, user := range requested {
		if err := p.packageOne(staged, workspace, user, opts); err != nil {
			return err
		}
	}
	return nil
}

// packageOne replicates the staged skeleton for one user, injects that
// user's credentials and writes the archive.
func (p *Pipeline) packageOne(staged, workspace string, user pki.Username, opts Options) error {
	userDir := filepath.Join(workspace, "users", user.String())
	if err := copyTree(staged, userDir, maxCopyDepth); err != nil {
		return fmt.Errorf("replicating skeleton for %q: %w", user, err)
	}

	certDst := filepath.Join(userDir, filepath.FromSlash(p.Spec.CertSubpath))
	keyDst := filepath.Join(userDir, filepath.FromSlash(p.Spec.KeySubpath))
	for _, dst := range []string{certDst, keyDst} {
		parent := filepath.Dir(dst)
		if parent == userDir {
			continue // subpath has no parent component
		}
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("creating credential directory %s: %w", parent, err)
		}
	}

	certSrc, err := pki.CertPath(p.PKIDir, user)
	if err != nil {
		return err
	}
	keySrc, err := pki.KeyPath(p.PKIDir, user)
	if err != nil {
		return err
	}
	if err := copyFile(certSrc, certDst); err != nil {
		return err
	}
	if err := copyFile(keySrc, keyDst); err != nil {
		return err
	}

	name := user.String() + ".zip"
	if opts.AddProfilePrefix {
		name = p.Profile + "-" + name
	}
	archivePath := filepath.Join(p.OutputDir, name)
	if err := writeArchive(userDir, archivePath, opts.AllowOverwrite); err != nil {
		return fmt.Errorf("packaging %q: %w", user, err)
	}

	p.Log.Info("wrote package", slog.String("user", user.String()), slog.String("path", archivePath))
	return nil
}
