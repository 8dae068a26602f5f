package dedup

import (
	"testing"
	"time"
)

func TestSnapshot_IsNew(t *testing.T) {
	snap := NewSnapshot([]Key{
		{EventID: "nc001", Channel: "critical"},
		{EventID: "nc002", Channel: "all"},
	})

	tests := []struct {
		name    string
		eventID string
		channel string
		want    bool
	}{
		{
			name:    "known pair",
			eventID: "nc001",
			channel: "critical",
			want:    false,
		},
		{
			name:    "same event, different channel",
			eventID: "nc001",
			channel: "all",
			want:    true,
		},
		{
			name:    "same channel, different event",
			eventID: "nc003",
			channel: "critical",
			want:    true,
		},
		{
			name:    "unknown pair",
			eventID: "nc099",
			channel: "nope",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.IsNew(tt.eventID, tt.channel); got != tt.want {
				t.Errorf("IsNew(%q, %q) = %v, want %v", tt.eventID, tt.channel, got, tt.want)
			}
		})
	}
}

func TestSnapshot_MarkSent(t *testing.T) {
	snap := NewSnapshot(nil)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if !snap.IsNew("nc001", "all") {
		t.Fatal("IsNew() = false before MarkSent, want true")
	}

	rec := snap.MarkSent("nc001", "all", at)

	if rec.Key.EventID != "nc001" || rec.Key.Channel != "all" {
		t.Errorf("MarkSent() key = %+v, want {nc001 all}", rec.Key)
	}
	if !rec.SentAt.Equal(at) {
		t.Errorf("MarkSent() SentAt = %v, want %v", rec.SentAt, at)
	}
	if snap.IsNew("nc001", "all") {
		t.Error("IsNew() = true after MarkSent, want false")
	}
	// Other channels stay unaffected.
	if !snap.IsNew("nc001", "critical") {
		t.Error("IsNew() for other channel = false, want true")
	}
}

func TestSnapshot_MarkSentNormalizesUTC(t *testing.T) {
	snap := NewSnapshot(nil)
	loc := time.FixedZone("PST", -8*3600)
	rec := snap.MarkSent("nc001", "all", time.Date(2024, 1, 1, 4, 0, 0, 0, loc))

	if rec.SentAt.Location() != time.UTC {
		t.Errorf("SentAt location = %v, want UTC", rec.SentAt.Location())
	}
}

func TestKeysFor(t *testing.T) {
	keys := KeysFor([]string{"nc001", "nc002"}, []string{"all", "critical"})

	if len(keys) != 4 {
		t.Fatalf("KeysFor() returned %d keys, want 4", len(keys))
	}

	want := map[Key]bool{
		{EventID: "nc001", Channel: "all"}:      true,
		{EventID: "nc001", Channel: "critical"}: true,
		{EventID: "nc002", Channel: "all"}:      true,
		{EventID: "nc002", Channel: "critical"}: true,
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("KeysFor() unexpected key %+v", k)
		}
	}
}
