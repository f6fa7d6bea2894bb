package pki

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiryReport(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := strings.Join([]string{
		"Expiring certificates:",
		"",
		"V | Serial: ABCD01 | Expires: 2026-02-01 00:00:00 | CN: alice",
		"V | Serial: ABCD02 | Expired: 2025-12-31 23:59:59 | CN: bob",
		"V | Serial: ABCD03 | Expires: 2027-01-01 00:00:00 | CN: carol",
		"R | Serial: ABCD04 | Expires: 2026-01-01 00:00:00 | CN: dave",
		"V | Serial: ABCD05 | Expires: not-a-date oops | CN: erin",
		"V | Serial: ABCD06 | Expires: 2026-01-01 00:00:00 | CN: bad name",
	}, "\n")

	var buf bytes.Buffer
	records := ParseExpiryReport(raw, now, slog.New(slog.NewTextHandler(&buf, nil)))
	require.Len(t, records, 3)

	assert.Equal(t, Username("alice"), records[0].User)
	assert.Equal(t, "ABCD01", records[0].Serial)
	assert.True(t, records[0].Expired)

	assert.Equal(t, Username("bob"), records[1].User)
	assert.True(t, records[1].Expired)

	assert.Equal(t, Username("carol"), records[2].User)
	assert.False(t, records[2].Expired)

	out := buf.String()
	assert.Contains(t, out, "invalid timestamp")
	assert.Contains(t, out, "invalid CN")
	assert.NotContains(t, out, "dave", "revoked lines are expected, not anomalous")
}

func TestParseExpiryReportCutoffIsStrict(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := "V | Serial: 0A | Expires: 2026-03-01 12:00:00 | CN: onthedot"

	records := ParseExpiryReport(raw, now, discardLogger())
	require.Len(t, records, 1)
	assert.False(t, records[0].Expired, "expiry exactly at the cutoff is not expired")
}

func TestParseExpiryReportEmptyInput(t *testing.T) {
	assert.Empty(t, ParseExpiryReport("", time.Now(), discardLogger()))
}

func TestExpiredUsers(t *testing.T) {
	records := []ExpiryRecord{
		{User: "a", Expired: true},
		{User: "b", Expired: false},
		{User: "c", Expired: true},
	}
	expired := ExpiredUsers(records)
	require.Len(t, expired, 2)
	assert.Equal(t, Username("a"), expired[0].User)
	assert.Equal(t, Username("c"), expired[1].User)
}

func TestExpiringWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []ExpiryRecord{
		{User: "gone", Expires: now.Add(-time.Hour), Expired: true},
		{User: "soon", Expires: now.Add(24 * time.Hour)},
		{User: "edge", Expires: now.Add(72 * time.Hour)},
		{User: "later", Expires: now.Add(96 * time.Hour)},
	}

	near := ExpiringWithin(records, now, 72*time.Hour)
	require.Len(t, near, 2)
	assert.Equal(t, Username("soon"), near[0].User)
	assert.Equal(t, Username("edge"), near[1].User, "the deadline itself is included")
}

func TestReportHorizonDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	days := ReportHorizonDays(now)
	// The span dwarfs time.Duration's ~292-year ceiling; a saturating
	// duration would clamp this to 106751.
	assert.Equal(t, 720564, days)

	// One fewer whole day when invoked a day later.
	assert.Equal(t, days-1, ReportHorizonDays(now.Add(24*time.Hour)))

	// Partial days do not count.
	assert.Equal(t, days-1, ReportHorizonDays(now.Add(12*time.Hour)))
}
