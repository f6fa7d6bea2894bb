// Package scripts runs operator-configured shell scripts after user-facing
// actions, and defines the closed set of action kinds they can hook.
package scripts

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// ActionKind identifies one action of the CLI. The set is closed: kinds are
// declared here and nowhere else, and Scriptable is total over them.
type ActionKind int

const (
	ActionList ActionKind = iota
	ActionInfo
	ActionNewUser
	ActionRenewUser
	ActionRemoveUser
	ActionPackage
	ActionGenConfig
	ActionProfileList
)

// kindNames are the config-file keys for each kind.
var kindNames = map[ActionKind]string{
	ActionList:        "list",
	ActionInfo:        "info",
	ActionNewUser:     "new-user",
	ActionRenewUser:   "renew-user",
	ActionRemoveUser:  "rm-user",
	ActionPackage:     "package-for",
	ActionGenConfig:   "gen-config",
	ActionProfileList: "profile-list",
}

// ParseKind maps a config-file key to its ActionKind.
func ParseKind(name string) (ActionKind, error) {
	for kind, kindName := range kindNames {
		if kindName == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", name)
}

func (k ActionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// Scriptable reports whether post-action scripts may run for k.
// Administrative kinds and the composite renew are deliberately excluded.
func (k ActionKind) Scriptable() bool {
	switch k {
	case ActionList, ActionInfo, ActionNewUser, ActionRemoveUser, ActionPackage:
		return true
	}
	return false
}

// Map holds ordered script bodies per action kind.
type Map map[ActionKind][]string

// RunShell executes one script body through the shell with the operator's
// inherited environment. dir is the working directory; empty means the
// current working directory. Stdout and stderr pass through.
func RunShell(body, dir string) error {
	cmd := exec.Command("/bin/sh", "-c", body)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Runner executes post-action scripts.
type Runner struct {
	Log *slog.Logger

	// Disabled suppresses all post-action scripts.
	Disabled bool
}

// RunPostAction runs the scripts configured for kind, strictly in order, in
// the operator's current working directory. A kind that is not scriptable,
// absent from the map, or mapped to an empty list is a silent no-op. The
// first failing script aborts the remainder.
func (r *Runner) RunPostAction(kind ActionKind, m Map) error {
	if r.Disabled || !kind.Scriptable() {
		return nil
	}
	for i, body := range m[kind] {
		r.Log.Debug("running post-action script",
			slog.String("action", kind.String()), slog.Int("index", i+1))
		if err := RunShell(body, ""); err != nil {
			return fmt.Errorf("post-action script %d for %s: %w", i+1, kind, err)
		}
	}
	return nil
}
