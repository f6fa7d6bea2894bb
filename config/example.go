package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrConfigExists reports a refusal to overwrite an existing config file.
var ErrConfigExists = errors.New("config file already exists")

// exampleConfig is the annotated starter configuration written by
// `ovpncm gen config`.
const exampleConfig = `# The path to the EasyRSA executable.
# Common locations:
#   /usr/share/easy-rsa/3/easyrsa  (Fedora)
#   /usr/share/easy-rsa/easyrsa    (Alpine, Debian)
#   /usr/bin/easyrsa               (Arch)
easy-rsa-path = "/usr/share/easy-rsa/easyrsa"

# The profile used when --profile is not given.
default-profile = "example"

# Define a single profile.
[[profile]]
# The identifier of the profile.
name = "example"

# The EasyRSA PKI directory.
# Relative paths resolve against the directory of this config file.
easy-rsa-pki-dir = "/etc/openvpn/server/example.auth.d/"

# Packaging settings; remove this table to disable 'user package'.
[profile.packaging]
# The skeleton directory that contains files to be included in all
# packages, relative to the location of this config file (if relative).
# Any contained symlinks will be followed.
skel-dir = "skel/example/"

# Scripts to be run on a temporary copy of the skeleton directory before
# it is used; the actual skeleton directory remains unchanged.
skel-map-scripts = [
    'echo "You can apply custom transforms to your skeleton directory"',
    'echo "before they are used to create user packages"',
]

# The subpath within the skeleton directory to write the user's certificate.
cert-subpath = "creds/client.crt"

# The subpath within the skeleton directory to write the user's key.
key-subpath = "creds/client.key"

# Additional scripts to be run after an action, defined separately for
# each kind of action. These scripts run in the current working directory.
[profile.post-action-scripts]
list = []
info = []
new-user = ['echo "issued a new certificate"']
rm-user = ['echo "revoked a certificate"']
package-for = []
`

// WriteExample writes the annotated example config to path, creating parent
// directories as needed and refusing to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot inspect %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("cannot write config file %s: %w", path, err)
	}
	return nil
}
