package pki

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// ExpiryRecord is one currently-valid certificate from the EasyRSA expiry
// report.
type ExpiryRecord struct {
	User    Username
	Serial  string
	Expires time.Time

	// Expired is true when Expires is strictly before the evaluation
	// instant captured at the start of parsing.
	Expired bool
}

// expiryLinePattern matches a single "valid" line of show-expire output:
//
//	V | Serial: <hex> | Expires: <date> <time> | CN: <name>
//
// Revoked entries, headers and blank lines deliberately fall through.
var expiryLinePattern = regexp.MustCompile(`^V \| Serial: ([0-9A-Fa-f]+) \| Expire[sd]: (\S+) (\S+) \| CN: (.+)$`)

const expiryTimeLayout = "2006-01-02 15:04:05"

// reportCutoff is far enough in the future to defeat the tool's own default
// report horizon while staying clear of its date arithmetic limits.
var reportCutoff = time.Date(3999, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReportHorizonDays returns the --days horizon for the expiry report: the
// number of whole days between now and the fixed far-future cutoff. The
// span is far beyond what a time.Duration can carry, so the arithmetic
// stays in Unix seconds.
func ReportHorizonDays(now time.Time) int {
	return int((reportCutoff.Unix() - now.Unix()) / 86400)
}

// ParseExpiryReport parses the raw stdout of the expiry report into records.
// Lines not matching the grammar at all are skipped silently; a matching
// line with an invalid CN or timestamp is dropped with a warning. now is
// captured once by the caller so the whole report shares one expiry cutoff.
func ParseExpiryReport(raw string, now time.Time, log *slog.Logger) []ExpiryRecord {
	var records []ExpiryRecord
	for _, line := range strings.Split(raw, "\n") {
		m := expiryLinePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}

		user, err := NewUsername(m[4])
		if err != nil {
			log.Warn("dropping expiry report line with invalid CN",
				slog.String("cn", m[4]), "err", err)
			continue
		}
		expires, err := time.Parse(expiryTimeLayout, m[2]+" "+m[3])
		if err != nil {
			log.Warn("dropping expiry report line with invalid timestamp",
				slog.String("cn", m[4]), "err", err)
			continue
		}

		records = append(records, ExpiryRecord{
			User:    user,
			Serial:  m[1],
			Expires: expires,
			Expired: expires.Before(now),
		})
	}
	return records
}

// ExpiringWithin filters records down to those not yet expired that expire
// within d of now.
func ExpiringWithin(records []ExpiryRecord, now time.Time, d time.Duration) []ExpiryRecord {
	deadline := now.Add(d)
	var near []ExpiryRecord
	for _, record := range records {
		if !record.Expired && !record.Expires.After(deadline) {
			near = append(near, record)
		}
	}
	return near
}

// ExpiredUsers filters records down to the expired ones.
func ExpiredUsers(records []ExpiryRecord) []ExpiryRecord {
	var expired []ExpiryRecord
	for _, record := range records {
		if record.Expired {
			expired = append(expired, record)
		}
	}
	return expired
}
