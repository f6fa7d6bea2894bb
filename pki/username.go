package pki

import (
	"fmt"
	"regexp"
)

// usernamePattern is anchored: a username doubles as a filename stem and a
// subprocess argument, so the whole token must match.
var usernamePattern = regexp.MustCompile(`^[\w-]+$`)

// Username is a validated user identity token.
type Username string

// NewUsername validates s as a username.
func NewUsername(s string) (Username, error) {
	if !usernamePattern.MatchString(s) {
		return "", fmt.Errorf("username %q must match %q", s, usernamePattern)
	}
	return Username(s), nil
}

// ParseUsernames validates each element of args in order.
func ParseUsernames(args []string) ([]Username, error) {
	users := make([]Username, 0, len(args))
	for _, arg := range args {
		user, err := NewUsername(arg)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// String returns the username as a plain string.
func (u Username) String() string {
	return string(u)
}
