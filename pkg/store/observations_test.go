package store

import (
	"path/filepath"
	"testing"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
	"github.com/markus-lassfolk/wavescope/pkg/scan"
)

func testStore(t *testing.T, cfg *Config) *ObservationStore {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.DatabasePath = filepath.Join(t.TempDir(), "observations.db")

	s, err := NewObservationStore(cfg, logx.NewLogger("error", "store-test"))
	if err != nil {
		t.Fatalf("NewObservationStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func cycleAPs() []*scan.AccessPoint {
	return []*scan.AccessPoint{
		{
			BSSID:        "AA:BB:CC:DD:EE:FF",
			SSID:         "MyNet",
			Band:         "2.4 GHz",
			Channel:      6,
			FreqMHz:      2437,
			Signal:       85,
			Security:     "WPA2",
			BandwidthMHz: 40,
			Manufacturer: "Acme Co",
			InUse:        true,
		},
		{
			BSSID:     "11:22:33:44:55:66",
			SSID:      "OtherNet",
			Band:      "5 GHz",
			Channel:   36,
			FreqMHz:   5180,
			Signal:    60,
			Lingering: true,
		},
	}
}

func TestStoreCycleAndQuery(t *testing.T) {
	s := testStore(t, nil)

	if err := s.StoreCycle(cycleAPs()); err != nil {
		t.Fatalf("StoreCycle: %v", err)
	}
	if err := s.StoreCycle(cycleAPs()); err != nil {
		t.Fatalf("StoreCycle: %v", err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Fatalf("Count = %d, want 4", n)
	}

	obs, err := s.RecentForBSSID("aa:bb:cc:dd:ee:ff", 10)
	if err != nil {
		t.Fatalf("RecentForBSSID: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	o := obs[0]
	if o.SSID != "MyNet" || o.SignalPct != 85 || o.SignalDBm != -57 {
		t.Errorf("observation = %+v", o)
	}
	if !o.InUse {
		t.Error("InUse not persisted")
	}
	if o.BSSID != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("BSSID = %q, want lowercase key", o.BSSID)
	}

	obs, err = s.RecentForBSSID("11:22:33:44:55:66", 1)
	if err != nil {
		t.Fatalf("RecentForBSSID: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("limit ignored: got %d observations", len(obs))
	}
	if !obs[0].Lingering {
		t.Error("Lingering not persisted")
	}
}

func TestStoreCycleEmpty(t *testing.T) {
	s := testStore(t, nil)
	if err := s.StoreCycle(nil); err != nil {
		t.Fatalf("StoreCycle(nil): %v", err)
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestCleanupRowCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObservations = 3
	s := testStore(t, cfg)

	for i := 0; i < 3; i++ {
		if err := s.StoreCycle(cycleAPs()); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if n, _ := s.Count(); n != 3 {
		t.Errorf("Count = %d, want 3 after cap", n)
	}
}

func TestCleanupNothingToDo(t *testing.T) {
	s := testStore(t, nil)
	if err := s.StoreCycle(cycleAPs()); err != nil {
		t.Fatal(err)
	}
	deleted, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}
