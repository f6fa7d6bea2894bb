package pki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsername(t *testing.T) {
	valid := []string{"alice", "bob-2", "under_score", "UPPER", "0123", "a"}
	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			user, err := NewUsername(s)
			require.NoError(t, err)
			assert.Equal(t, Username(s), user)
		})
	}

	invalid := []string{"", "with space", "dot.name", "a/b", "semi;colon", "naïve", "tab\tname"}
	for _, s := range invalid {
		t.Run("invalid_"+s, func(t *testing.T) {
			_, err := NewUsername(s)
			assert.Error(t, err)
		})
	}
}

func TestParseUsernames(t *testing.T) {
	users, err := ParseUsernames([]string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, []Username{"alice", "bob"}, users)

	_, err = ParseUsernames([]string{"alice", "not valid"})
	assert.Error(t, err)

	users, err = ParseUsernames(nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
