// Package ulid wraps github.com/oklog/ulid/v2 with prefixed identifiers.
//
// ULIDs sort by creation time, which keeps sync pass logs and request ids
// ordered without an extra timestamp column. Entity records use UUIDs
// instead (see package entity) because the remote database expects them.
package ulid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixPass    = "pass"
	PrefixSyncLog = "slog"
	PrefixRequest = "req"
	PrefixSetting = "set"

	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ULID is a ulid.ULID with an optional prefix
type ULID struct {
	ulid.ULID
	prefix string
}

// NewWithTime creates a ULID for a specific timestamp
func NewWithTime(t time.Time) ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ULID{ULID: ulid.MustNew(ulid.Timestamp(t), entropy)}
}

// GenerateWithPrefix creates a ULID for now tagged with prefix
func GenerateWithPrefix(prefix string) ULID {
	id := NewWithTime(time.Now())
	id.prefix = prefix
	return id
}

// Parse accepts both plain ("01AN4Z07BY79KA1307SR9X4MV3") and prefixed
// ("pass-01AN4Z07BY79KA1307SR9X4MV3") forms.
func Parse(s string) (ULID, error) {
	prefix, raw := "", s
	if i := strings.LastIndex(s, PrefixSeparator); i >= 0 {
		prefix, raw = s[:i], s[i+1:]
	}

	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return ULID{}, fmt.Errorf("parsing ulid %q: %w", s, err)
	}
	return ULID{ULID: id, prefix: prefix}, nil
}

// Prefix returns the prefix, empty if none
func (u ULID) Prefix() string {
	return u.prefix
}

// String renders the ULID with its prefix
func (u ULID) String() string {
	if u.prefix == "" {
		return u.ULID.String()
	}
	return u.prefix + PrefixSeparator + u.ULID.String()
}

// Time returns the timestamp encoded in the ULID
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// PassID identifies one synchronization pass
func PassID() string {
	return GenerateWithPrefix(PrefixPass).String()
}

// SyncLogID identifies a row in sync_logs
func SyncLogID() string {
	return GenerateWithPrefix(PrefixSyncLog).String()
}

// RequestID identifies one remote request chain
func RequestID() string {
	return GenerateWithPrefix(PrefixRequest).String()
}

// SettingID identifies a row in settings
func SettingID() string {
	return GenerateWithPrefix(PrefixSetting).String()
}
