package scan

import (
	"math"
	"strconv"
	"strings"
)

// heRate1SS is the HE/EHT per-spatial-stream throughput in Mbps at 0.8 us GI
// (IEEE 802.11ax Table 27-52), keyed by channel width and MCS bracket
// (7/9/11).
var heRate1SS = map[[2]int]float64{
	{20, 7}: 86.0, {20, 9}: 114.7, {20, 11}: 143.4,
	{40, 7}: 172.0, {40, 9}: 229.4, {40, 11}: 286.8,
	{80, 7}: 360.3, {80, 9}: 480.4, {80, 11}: 600.4,
	{160, 7}: 720.6, {160, 9}: 960.8, {160, 11}: 1201.0,
	{320, 7}: 1441.2, {320, 9}: 1921.6, {320, 11}: 2402.0,
}

// HERateMbps returns the theoretical max HE/EHT rate for the given width,
// spatial-stream count and max MCS index (rounded down to the 7/9/11
// bracket).
func HERateMbps(bandwidthMHz, nss, maxMCS int) int {
	bracket := 7
	if maxMCS >= 10 {
		bracket = 11
	} else if maxMCS >= 8 {
		bracket = 9
	}
	return int(math.Round(heRate1SS[[2]int{bandwidthMHz, bracket}] * float64(nss)))
}

// Merger overlays scan-dump enrichment onto primary-source records by BSSID
// and applies the vendor-identity and 6 GHz repair passes.
type Merger struct {
	resolver VendorResolver
}

// NewMerger creates a merger using resolver for sibling-based vendor
// lookups (nil disables them).
func NewMerger(resolver VendorResolver) *Merger {
	return &Merger{resolver: resolver}
}

// Merge populates enrichment fields on each record from dump, attaches link
// telemetry to the associated AP, and runs the repair passes. Records with
// no matching dump entry are left unenriched; that is resolved by the
// stability cache, not here.
func (m *Merger) Merge(aps []*AccessPoint, dump map[string]*Enrichment, link *LinkInfo) {
	for _, ap := range aps {
		e := dump[ap.Key()]
		if e != nil {
			ap.Enrichment = *e
		}

		m.applyWPSVendor(ap)
		m.fixBandwidth(ap)
		m.fixRate(ap)

		if link != nil && link.BSSID != "" && ap.Key() == link.BSSID {
			ap.Link = link.Stats
		}
	}

	// Generation fallback for APs the dump missed: a 6 GHz beacon is
	// always at least 802.11ax.
	for _, ap := range aps {
		if ap.WiFiGen == "" && ap.FreqMHz >= 5925 {
			ap.WiFiGen = WiFiGen6E
		}
	}

	m.inferSiblingVendors(aps)
}

// applyWPSVendor prefers the WPS-advertised manufacturer over the OUI table
// when the table had no answer or the BSSID is locally administered
// (synthetic per-radio MACs rarely resolve via prefix lookup).
func (m *Merger) applyWPSVendor(ap *AccessPoint) {
	if ap.WPSManufacturer == "" {
		return
	}
	useWPS := ap.Manufacturer == ""
	if locallyAdministered(ap.BSSID) {
		useWPS = true
	}
	if useWPS {
		ap.Manufacturer = ap.WPSManufacturer
		ap.ManufacturerSource = ManufacturerSourceWPS
	}
}

// fixBandwidth substitutes a real channel width when the primary source
// reported zero (observed for 6 GHz entries): first the dump's operating
// width, then the offset between bonded-block center and primary frequency,
// then the widest width the capability summary admits.
func (m *Merger) fixBandwidth(ap *AccessPoint) {
	if ap.BandwidthMHz != 0 {
		return
	}
	if ap.operBandwidthMHz != 0 {
		ap.BandwidthMHz = ap.operBandwidthMHz
		return
	}
	if ap.CenterFreqMHz != nil && ap.FreqMHz != 0 {
		diff := *ap.CenterFreqMHz - ap.FreqMHz
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff <= 5:
			ap.BandwidthMHz = 20
		case diff <= 20:
			ap.BandwidthMHz = 40
		case diff <= 40:
			ap.BandwidthMHz = 80
		case diff <= 80:
			ap.BandwidthMHz = 160
		case diff <= 160:
			ap.BandwidthMHz = 320
		}
		if ap.BandwidthMHz != 0 {
			return
		}
	}
	if ap.capMaxBandwidth >= 20 {
		ap.BandwidthMHz = ap.capMaxBandwidth
	}
}

// fixRate computes a theoretical rate when the primary source reports zero.
// 6 GHz beacons carry no legacy Supported Rates element, so the primary
// source has nothing to report; derive it from the HE MCS/NSS set instead.
func (m *Merger) fixRate(ap *AccessPoint) {
	if ap.RateMbps != 0 || ap.BandwidthMHz == 0 {
		return
	}
	if ap.maxNSS > 0 {
		mcs := ap.maxMCS
		if mcs == 0 {
			mcs = 11
		}
		ap.RateMbps = float64(HERateMbps(ap.BandwidthMHz, ap.maxNSS, mcs))
	}
}

// inferSiblingVendors resolves vendor identity for locally-administered
// BSSIDs from a globally-administered sibling sharing the same trailing
// five bytes. Multi-radio APs commonly derive the 6 GHz radio's MAC from
// the 5 GHz radio's MAC this way. The result is tagged with a distinct,
// lower-confidence provenance.
func (m *Merger) inferSiblingVendors(aps []*AccessPoint) {
	tailToVendor := make(map[string]string)
	for _, ap := range aps {
		if ap.Manufacturer != "" && !locallyAdministered(ap.BSSID) {
			if tail := macTail(ap.BSSID); tail != "" {
				tailToVendor[tail] = ap.Manufacturer
			}
		}
	}
	for _, ap := range aps {
		if ap.Manufacturer != "" || !locallyAdministered(ap.BSSID) {
			continue
		}
		if vendor := tailToVendor[macTail(ap.BSSID)]; vendor != "" {
			ap.Manufacturer = vendor
			ap.ManufacturerSource = ManufacturerSourceSibling
		}
	}
}

// locallyAdministered reports whether the U/L bit of the first octet is set.
func locallyAdministered(mac string) bool {
	if len(mac) < 2 {
		return false
	}
	octet, err := strconv.ParseUint(mac[:2], 16, 8)
	if err != nil {
		return false
	}
	return octet&0x02 != 0
}

// macTail returns everything after the first octet, lowercased, or "" for
// malformed addresses.
func macTail(mac string) string {
	if len(mac) < 4 {
		return ""
	}
	return strings.ToLower(mac[3:])
}
