package scan

import "testing"

func intPtr(v int) *int { return &v }

func TestHERateMbps(t *testing.T) {
	tests := []struct {
		bw, nss, mcs int
		want         int
	}{
		{80, 2, 11, 1201},
		{80, 2, 9, 961},
		{160, 2, 11, 2402},
		{20, 1, 7, 86},
		{40, 4, 11, 1147},
		{320, 4, 11, 9608},
		{80, 2, 8, 961},  // MCS 8 rounds down to the 9 bracket
		{80, 2, 10, 1201}, // MCS 10 rounds down to the 11 bracket
	}
	for _, tt := range tests {
		if got := HERateMbps(tt.bw, tt.nss, tt.mcs); got != tt.want {
			t.Errorf("HERateMbps(%d, %d, %d) = %d, want %d",
				tt.bw, tt.nss, tt.mcs, got, tt.want)
		}
	}
}

func TestMergeOverlaysEnrichment(t *testing.T) {
	m := NewMerger(nil)
	ap := &AccessPoint{
		BSSID:        "AA:BB:CC:DD:EE:FF",
		SSID:         "MyNet",
		Channel:      6,
		FreqMHz:      2437,
		Signal:       85,
		BandwidthMHz: 40,
	}
	dbm := -57.5
	dump := map[string]*Enrichment{
		"aa:bb:cc:dd:ee:ff": {
			DBmExact: &dbm,
			WiFiGen:  WiFiGen6,
			PMF:      PMFOptional,
			ChanUtil: intPtr(130),
			Country:  "DE",
		},
	}

	m.Merge([]*AccessPoint{ap}, dump, nil)

	if ap.WiFiGen != WiFiGen6 {
		t.Errorf("WiFiGen = %q, want %q", ap.WiFiGen, WiFiGen6)
	}
	if ap.PMF != PMFOptional || !ap.Covered() {
		t.Errorf("PMF = %q, Covered = %v", ap.PMF, ap.Covered())
	}
	if ap.DBmExact == nil || *ap.DBmExact != -57.5 {
		t.Errorf("DBmExact = %v, want -57.5", ap.DBmExact)
	}
	if ap.Country != "DE" {
		t.Errorf("Country = %q, want DE", ap.Country)
	}
}

func TestMergeUnmatchedLeftUnenriched(t *testing.T) {
	m := NewMerger(nil)
	ap := &AccessPoint{BSSID: "AA:BB:CC:DD:EE:FF", FreqMHz: 2437, BandwidthMHz: 20}
	m.Merge([]*AccessPoint{ap}, map[string]*Enrichment{}, nil)
	if ap.Covered() {
		t.Error("unmatched record reported as covered")
	}
	if ap.WiFiGen != "" {
		t.Errorf("WiFiGen = %q, want empty", ap.WiFiGen)
	}
}

func TestMerge6GHzGenerationFallback(t *testing.T) {
	m := NewMerger(nil)
	ap := &AccessPoint{BSSID: "AA:BB:CC:DD:EE:FF", FreqMHz: 6135, BandwidthMHz: 160}
	m.Merge([]*AccessPoint{ap}, map[string]*Enrichment{}, nil)
	if ap.WiFiGen != WiFiGen6E {
		t.Errorf("WiFiGen = %q, want %q for uncovered 6 GHz record", ap.WiFiGen, WiFiGen6E)
	}
}

func TestMergeAttachesLinkStats(t *testing.T) {
	m := NewMerger(nil)
	connected := &AccessPoint{BSSID: "AA:BB:CC:DD:EE:FF", FreqMHz: 5180, BandwidthMHz: 80, InUse: true}
	other := &AccessPoint{BSSID: "11:22:33:44:55:66", FreqMHz: 2437, BandwidthMHz: 20}

	link := &LinkInfo{BSSID: "aa:bb:cc:dd:ee:ff"}
	link.Stats.SSID = "MyNet"
	retries := int64(150)
	link.Stats.TxRetries = &retries

	m.Merge([]*AccessPoint{connected, other}, map[string]*Enrichment{}, link)

	if connected.Link.TxRetries == nil || *connected.Link.TxRetries != 150 {
		t.Errorf("connected Link.TxRetries = %v, want 150", connected.Link.TxRetries)
	}
	if other.Link.TxRetries != nil {
		t.Error("link stats attached to non-associated record")
	}
}

func TestFixBandwidthLadder(t *testing.T) {
	tests := []struct {
		name   string
		ap     AccessPoint
		want   int
	}{
		{
			name: "existing width untouched",
			ap:   AccessPoint{BandwidthMHz: 40, FreqMHz: 6135},
			want: 40,
		},
		{
			name: "operating width wins",
			ap: AccessPoint{
				FreqMHz:    6135,
				Enrichment: Enrichment{operBandwidthMHz: 160, CenterFreqMHz: intPtr(6145)},
			},
			want: 160,
		},
		{
			name: "center offset 5 is 20 MHz",
			ap: AccessPoint{
				FreqMHz:    6115,
				Enrichment: Enrichment{CenterFreqMHz: intPtr(6115)},
			},
			want: 20,
		},
		{
			name: "center offset 10 is 40 MHz",
			ap: AccessPoint{
				FreqMHz:    6135,
				Enrichment: Enrichment{CenterFreqMHz: intPtr(6145)},
			},
			want: 40,
		},
		{
			name: "center offset 30 is 80 MHz",
			ap: AccessPoint{
				FreqMHz:    6115,
				Enrichment: Enrichment{CenterFreqMHz: intPtr(6145)},
			},
			want: 80,
		},
		{
			name: "center offset 70 is 160 MHz",
			ap: AccessPoint{
				FreqMHz:    6095,
				Enrichment: Enrichment{CenterFreqMHz: intPtr(6025)},
			},
			want: 160,
		},
		{
			name: "center offset 150 is 320 MHz",
			ap: AccessPoint{
				FreqMHz:    6255,
				Enrichment: Enrichment{CenterFreqMHz: intPtr(6105)},
			},
			want: 320,
		},
		{
			name: "capability width fallback",
			ap: AccessPoint{
				FreqMHz:    6135,
				Enrichment: Enrichment{capMaxBandwidth: 160},
			},
			want: 160,
		},
		{
			name: "nothing known stays zero",
			ap:   AccessPoint{FreqMHz: 6135},
			want: 0,
		},
	}

	m := NewMerger(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ap := tt.ap
			m.Merge([]*AccessPoint{&ap}, map[string]*Enrichment{}, nil)
			if ap.BandwidthMHz != tt.want {
				t.Errorf("BandwidthMHz = %d, want %d", ap.BandwidthMHz, tt.want)
			}
		})
	}
}

func TestFixRateFromHECapabilities(t *testing.T) {
	m := NewMerger(nil)
	ap := &AccessPoint{
		BSSID:        "AA:BB:CC:DD:EE:FF",
		FreqMHz:      6135,
		BandwidthMHz: 160,
		Enrichment:   Enrichment{maxNSS: 2, maxMCS: 11},
	}
	m.Merge([]*AccessPoint{ap}, map[string]*Enrichment{}, nil)
	if ap.RateMbps != 2402 {
		t.Errorf("RateMbps = %v, want 2402", ap.RateMbps)
	}

	// Unknown MCS defaults to the top bracket.
	ap2 := &AccessPoint{
		FreqMHz:      6135,
		BandwidthMHz: 80,
		Enrichment:   Enrichment{maxNSS: 2},
	}
	m.Merge([]*AccessPoint{ap2}, map[string]*Enrichment{}, nil)
	if ap2.RateMbps != 1201 {
		t.Errorf("RateMbps = %v, want 1201", ap2.RateMbps)
	}

	// Existing rate left alone.
	ap3 := &AccessPoint{
		FreqMHz:      5180,
		RateMbps:     270,
		BandwidthMHz: 40,
		Enrichment:   Enrichment{maxNSS: 2, maxMCS: 11},
	}
	m.Merge([]*AccessPoint{ap3}, map[string]*Enrichment{}, nil)
	if ap3.RateMbps != 270 {
		t.Errorf("RateMbps = %v, want 270", ap3.RateMbps)
	}
}

func TestApplyWPSVendor(t *testing.T) {
	m := NewMerger(nil)

	// No OUI answer: WPS name fills in.
	ap := &AccessPoint{
		BSSID:      "AA:BB:CC:DD:EE:FF",
		Enrichment: Enrichment{WPSManufacturer: "Acme Co"},
	}
	m.Merge([]*AccessPoint{ap}, map[string]*Enrichment{}, nil)
	if ap.Manufacturer != "Acme Co" || ap.ManufacturerSource != ManufacturerSourceWPS {
		t.Errorf("Manufacturer = %q (%q), want Acme Co via WPS",
			ap.Manufacturer, ap.ManufacturerSource)
	}

	// Globally administered with an OUI answer: OUI name kept.
	ap2 := &AccessPoint{
		BSSID:              "AC:BB:CC:DD:EE:FF",
		Manufacturer:       "Prefix Vendor",
		ManufacturerSource: ManufacturerSourceOUI,
		Enrichment:         Enrichment{WPSManufacturer: "Acme Co"},
	}
	m.Merge([]*AccessPoint{ap2}, map[string]*Enrichment{}, nil)
	if ap2.Manufacturer != "Prefix Vendor" {
		t.Errorf("Manufacturer = %q, want Prefix Vendor", ap2.Manufacturer)
	}

	// Locally administered: WPS name overrides a prefix-table hit.
	ap3 := &AccessPoint{
		BSSID:              "AE:BB:CC:DD:EE:FF",
		Manufacturer:       "Prefix Vendor",
		ManufacturerSource: ManufacturerSourceOUI,
		Enrichment:         Enrichment{WPSManufacturer: "Acme Co"},
	}
	m.Merge([]*AccessPoint{ap3}, map[string]*Enrichment{}, nil)
	if ap3.Manufacturer != "Acme Co" || ap3.ManufacturerSource != ManufacturerSourceWPS {
		t.Errorf("Manufacturer = %q (%q), want Acme Co via WPS for LAA BSSID",
			ap3.Manufacturer, ap3.ManufacturerSource)
	}
}

func TestInferSiblingVendors(t *testing.T) {
	m := NewMerger(nil)
	global := &AccessPoint{
		BSSID:              "AC:BB:CC:DD:EE:FF",
		Manufacturer:       "Acme Co",
		ManufacturerSource: ManufacturerSourceOUI,
	}
	laa := &AccessPoint{BSSID: "AE:BB:CC:DD:EE:FF"}
	unrelated := &AccessPoint{BSSID: "AE:00:11:22:33:44"}

	m.Merge([]*AccessPoint{global, laa, unrelated}, map[string]*Enrichment{}, nil)

	if laa.Manufacturer != "Acme Co" || laa.ManufacturerSource != ManufacturerSourceSibling {
		t.Errorf("laa Manufacturer = %q (%q), want Acme Co via sibling",
			laa.Manufacturer, laa.ManufacturerSource)
	}
	if unrelated.Manufacturer != "" {
		t.Errorf("unrelated Manufacturer = %q, want empty", unrelated.Manufacturer)
	}
}

func TestLocallyAdministered(t *testing.T) {
	tests := []struct {
		mac  string
		want bool
	}{
		{"AA:BB:CC:DD:EE:FF", true},  // 0xAA has bit 1 set
		{"AC:BB:CC:DD:EE:FF", false}, // 0xAC does not
		{"AE:BB:CC:DD:EE:FF", true},
		{"00:11:22:33:44:55", false},
		{"02:11:22:33:44:55", true},
		{"", false},
		{"zz:11:22:33:44:55", false},
	}
	for _, tt := range tests {
		if got := locallyAdministered(tt.mac); got != tt.want {
			t.Errorf("locallyAdministered(%q) = %v, want %v", tt.mac, got, tt.want)
		}
	}
}
