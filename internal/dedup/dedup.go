// Package dedup tracks which (event, channel) pairs have already been
// alerted. The package holds no I/O; callers supply a snapshot of known
// records and persist new ones through the store layer.
//
// The key is per (event, channel) pair, not per event: channels have
// independent eligibility and independently-tracked delivery history. An
// event may qualify for a high-threshold channel only after a later feed
// revision raises its magnitude, which needs a separate send decision even
// for the same event id.
package dedup

import "time"

// RetentionWindow is how long a record must be kept. Events older than the
// feed's lookback horizon can never recur, so stores may garbage-collect
// records past this window.
const RetentionWindow = 30 * 24 * time.Hour

// Key identifies a unique send decision.
type Key struct {
	EventID string
	Channel string
}

// Record marks that a dispatch intent was emitted for a key. Records are
// created immediately after the intent is emitted, before any delivery
// attempt, and are never mutated.
type Record struct {
	Key    Key
	SentAt time.Time
}

// Snapshot is the set of known dedup keys at the start of an invocation.
type Snapshot map[Key]struct{}

// NewSnapshot builds a snapshot from a list of known keys.
func NewSnapshot(keys []Key) Snapshot {
	s := make(Snapshot, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// IsNew reports whether no record exists for the (event, channel) pair.
// Absence of a record is the only "new" signal.
func (s Snapshot) IsNew(eventID, channel string) bool {
	_, known := s[Key{EventID: eventID, Channel: channel}]
	return !known
}

// MarkSent records the pair in the snapshot and returns the durable record
// to persist. After MarkSent the snapshot never reports the pair as new
// again.
func (s Snapshot) MarkSent(eventID, channel string, at time.Time) Record {
	k := Key{EventID: eventID, Channel: channel}
	s[k] = struct{}{}
	return Record{Key: k, SentAt: at.UTC()}
}

// KeysFor enumerates every candidate (event, channel) key for a batch, for
// a single store lookup up front.
func KeysFor(eventIDs, channels []string) []Key {
	keys := make([]Key, 0, len(eventIDs)*len(channels))
	for _, id := range eventIDs {
		for _, ch := range channels {
			keys = append(keys, Key{EventID: id, Channel: ch})
		}
	}
	return keys
}
