package telem

import (
	"testing"
	"time"

	"github.com/markus-lassfolk/wavescope/pkg/scan"
)

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(500*time.Millisecond, 10); err == nil {
		t.Error("sub-second retention accepted")
	}
	if _, err := NewStore(time.Minute, 0); err == nil {
		t.Error("zero capacity accepted")
	}
	if _, err := NewStore(time.Minute, 10); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestStoreRecordAndHistory(t *testing.T) {
	s, err := NewStore(time.Minute, 16)
	if err != nil {
		t.Fatal(err)
	}

	aps := []*scan.AccessPoint{
		{BSSID: "AA:BB:CC:DD:EE:FF", Signal: 85, Channel: 6, FreqMHz: 2437, InUse: true},
		{BSSID: "11:22:33:44:55:66", Signal: 60, Channel: 36, FreqMHz: 5180},
	}
	s.Record(aps)
	s.Record(aps)

	hist := s.History("aa:bb:cc:dd:ee:ff")
	if len(hist) != 2 {
		t.Fatalf("History len = %d, want 2", len(hist))
	}
	first := hist[0]
	if first.BSSID != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("BSSID = %q, want lowercase key", first.BSSID)
	}
	if first.SignalPct != 85 {
		t.Errorf("SignalPct = %d, want 85", first.SignalPct)
	}
	if first.SignalDBm != -57 {
		t.Errorf("SignalDBm = %v, want -57", first.SignalDBm)
	}
	if !first.InUse {
		t.Error("InUse not carried")
	}
	if !first.Timestamp.Before(hist[1].Timestamp) && !first.Timestamp.Equal(hist[1].Timestamp) {
		t.Error("history not oldest first")
	}

	if got := s.History("99:99:99:99:99:99"); got != nil {
		t.Errorf("History for unknown BSSID = %v, want nil", got)
	}
}

func TestStoreTracked(t *testing.T) {
	s, err := NewStore(time.Minute, 16)
	if err != nil {
		t.Fatal(err)
	}
	s.Record([]*scan.AccessPoint{
		{BSSID: "AA:BB:CC:DD:EE:FF", Signal: 85},
		{BSSID: "11:22:33:44:55:66", Signal: 60},
	})
	tracked := s.Tracked()
	if len(tracked) != 2 {
		t.Fatalf("Tracked len = %d, want 2", len(tracked))
	}
	seen := map[string]bool{}
	for _, key := range tracked {
		seen[key] = true
	}
	if !seen["aa:bb:cc:dd:ee:ff"] || !seen["11:22:33:44:55:66"] {
		t.Errorf("Tracked = %v", tracked)
	}
}

func TestStoreHistoryRetentionCutoff(t *testing.T) {
	s, err := NewStore(time.Minute, 16)
	if err != nil {
		t.Fatal(err)
	}
	buf := NewRingBuffer(16)
	s.buffers["aa:bb:cc:dd:ee:ff"] = buf

	now := time.Now()
	buf.Add(&Sample{BSSID: "aa:bb:cc:dd:ee:ff", Timestamp: now.Add(-2 * time.Minute)})
	buf.Add(&Sample{BSSID: "aa:bb:cc:dd:ee:ff", Timestamp: now.Add(-30 * time.Second)})
	buf.Add(&Sample{BSSID: "aa:bb:cc:dd:ee:ff", Timestamp: now.Add(-5 * time.Second)})

	hist := s.History("aa:bb:cc:dd:ee:ff")
	if len(hist) != 2 {
		t.Fatalf("History len = %d, want 2 inside retention", len(hist))
	}
	if !hist[0].Timestamp.Before(hist[1].Timestamp) {
		t.Error("history not oldest first")
	}
}

func TestRingBufferWraps(t *testing.T) {
	buf := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Add(&Sample{SignalPct: i})
	}
	if buf.Len() != 3 {
		t.Fatalf("Len = %d, want 3", buf.Len())
	}
	samples := buf.Samples()
	want := []int{2, 3, 4}
	for i, s := range samples {
		if s.SignalPct != want[i] {
			t.Errorf("samples[%d].SignalPct = %d, want %d", i, s.SignalPct, want[i])
		}
	}
	if last := buf.Last(); last == nil || last.SignalPct != 4 {
		t.Errorf("Last = %+v, want SignalPct 4", last)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	buf := NewRingBuffer(3)
	if buf.Len() != 0 {
		t.Errorf("Len = %d, want 0", buf.Len())
	}
	if buf.Last() != nil {
		t.Error("Last on empty buffer not nil")
	}
	if got := buf.Samples(); len(got) != 0 {
		t.Errorf("Samples on empty buffer = %v", got)
	}
}
