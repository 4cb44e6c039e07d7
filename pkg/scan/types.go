// Package scan implements the WiFi acquisition pipeline: parsing the two
// external tool outputs, merging them into per-BSSID AccessPoint records,
// smoothing the result across cycles, and running the polling worker.
package scan

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/wavescope/pkg/chanfreq"
)

// VendorResolver resolves a hardware address to a manufacturer name.
// Implementations must be safe for concurrent use; an empty string means
// the address is unknown.
type VendorResolver interface {
	Manufacturer(mac string) string
}

// NopVendorResolver resolves every address to unknown.
type NopVendorResolver struct{}

// Manufacturer implements VendorResolver.
func (NopVendorResolver) Manufacturer(string) string { return "" }

// Provenance values for AccessPoint.ManufacturerSource.
const (
	ManufacturerSourceOUI     = "OUI database"
	ManufacturerSourceWPS     = "WPS (iw scan)"
	ManufacturerSourceSibling = "LAA sibling OUI"
	ManufacturerSourceUnknown = "Unknown"
)

// PMF requirement levels as set by the scan-dump parser. The parser sets one
// of these for every BSS it covers, which doubles as the liveness signal for
// the enrichment-persistence cache.
const (
	PMFNo       = "No"
	PMFOptional = "Optional"
	PMFRequired = "Required"
)

// WiFi generation labels.
const (
	WiFiGen4  = "WiFi 4"
	WiFiGen5  = "WiFi 5"
	WiFiGen6  = "WiFi 6"
	WiFiGen6E = "WiFi 6E"
	WiFiGen7  = "WiFi 7"
)

// AccessPoint is one observed access point. Identity is the BSSID; it is the
// sole join key between the two sources and across polling cycles. Emitted
// records are never mutated after a cycle is published.
type AccessPoint struct {
	// Required fields, always populated from the primary (nmcli) source.
	SSID         string  `json:"ssid"`
	BSSID        string  `json:"bssid"`
	Mode         string  `json:"mode"`
	Channel      int     `json:"channel"`
	FreqMHz      int     `json:"freq_mhz"`
	RateMbps     float64 `json:"rate_mbps"`
	Signal       int     `json:"signal"` // 0-100 nmcli scale
	Security     string  `json:"security"`
	WPAFlags     string  `json:"wpa_flags"`
	RSNFlags     string  `json:"rsn_flags"`
	BandwidthMHz int     `json:"bandwidth_mhz"`
	InUse        bool    `json:"in_use"`

	// Enrichment fields, populated only when the scan dump covered this
	// BSSID (directly or via the persistence cache).
	Enrichment

	// Link telemetry for the currently associated AP only.
	Link LinkStats `json:"link,omitempty"`

	// Lingering marks a record re-emitted from the grace-period cache
	// rather than seen in this cycle's primary read. Presentation hint.
	Lingering bool `json:"lingering"`

	// Computed at construction from required fields; never re-derived by
	// enrichment (the merger may overwrite manufacturer, with provenance).
	Band               string `json:"band"`
	Manufacturer       string `json:"manufacturer"`
	ManufacturerSource string `json:"manufacturer_source"`
}

// Enrichment carries the optional fields extracted from the scan dump.
// The struct is merged field-by-field onto AccessPoint records and is the
// exact set snapshotted by the enrichment-persistence cache.
type Enrichment struct {
	DBmExact         *float64 `json:"dbm_exact,omitempty"`
	WiFiGen          string   `json:"wifi_gen,omitempty"`
	ChanUtil         *int     `json:"chan_util,omitempty"` // BSS Load, 0-255
	StationCount     *int     `json:"station_count,omitempty"`
	PMF              string   `json:"pmf,omitempty"`
	AKM              string   `json:"akm,omitempty"`     // compact summary
	AKMRaw           string   `json:"akm_raw,omitempty"` // raw suite string
	WPSManufacturer  string   `json:"wps_manufacturer,omitempty"`
	RRM              bool     `json:"rrm,omitempty"` // 802.11k
	BTM              bool     `json:"btm,omitempty"` // 802.11v
	FT               bool     `json:"ft,omitempty"`  // 802.11r
	Country          string   `json:"country,omitempty"`
	CenterFreqMHz    *int     `json:"center_freq_mhz,omitempty"` // bonded block center
	BeaconIntervalTU *int     `json:"beacon_interval_tu,omitempty"`
	DTIMPeriod       *int     `json:"dtim_period,omitempty"`
	RSNCapabilities  string   `json:"rsn_capabilities,omitempty"`
	VendorIEOUIs     string   `json:"vendor_ie_ouis,omitempty"`
	PHYCapSummary    string   `json:"phy_cap_summary,omitempty"`
	HEEHTFeatures    string   `json:"he_eht_features,omitempty"`

	// Capability hints consumed by the merger, not exported to consumers.
	operBandwidthMHz int
	capMaxBandwidth  int
	maxNSS           int
	maxMCS           int
}

// Covered reports whether the scan dump actually covered this BSSID this
// cycle. PMF is set to one of three non-empty values for every covered BSS.
func (e *Enrichment) Covered() bool { return e.PMF != "" }

// LinkStats is the live telemetry for the currently associated AP, collected
// from the link-status, per-station and survey dumps.
type LinkStats struct {
	Iface          string   `json:"iface,omitempty"`
	SSID           string   `json:"ssid,omitempty"`
	FreqMHz        *int     `json:"freq_mhz,omitempty"`
	SignalDBm      *float64 `json:"signal_dbm,omitempty"`
	RxBitrate      string   `json:"rx_bitrate,omitempty"`
	TxBitrate      string   `json:"tx_bitrate,omitempty"`
	RxPHY          string   `json:"rx_phy,omitempty"`
	TxPHY          string   `json:"tx_phy,omitempty"`
	ExpectedTP     string   `json:"expected_throughput,omitempty"`
	SignalAvgDBm   *int     `json:"signal_avg_dbm,omitempty"`
	TxRetries      *int64   `json:"tx_retries,omitempty"`
	TxFailed       *int64   `json:"tx_failed,omitempty"`
	InactiveMs     *int64   `json:"inactive_ms,omitempty"`
	ConnectedTimeS *int64   `json:"connected_time_s,omitempty"`
	TxPackets      *int64   `json:"tx_packets,omitempty"`
	TxBytes        *int64   `json:"tx_bytes,omitempty"`
	RxPackets      *int64   `json:"rx_packets,omitempty"`
	RxBytes        *int64   `json:"rx_bytes,omitempty"`
	RxDropMisc     *int64   `json:"rx_drop_misc,omitempty"`
	TxRetryRatePct *float64 `json:"tx_retry_rate_pct,omitempty"`
	TxFailRatePct  *float64 `json:"tx_fail_rate_pct,omitempty"`
	SurveyBusyPct  *float64 `json:"survey_busy_pct,omitempty"`
	SurveyNoiseDBm *int     `json:"survey_noise_dbm,omitempty"`
}

// NewAccessPoint constructs a record from required fields and derives the
// computed attributes. The resolver may be nil.
func NewAccessPoint(bssid string, resolver VendorResolver) *AccessPoint {
	ap := &AccessPoint{BSSID: bssid}
	ap.Derive(resolver)
	return ap
}

// Derive (re)computes band and manufacturer from the required fields.
// Called once at construction; never by enrichment.
func (ap *AccessPoint) Derive(resolver VendorResolver) {
	ap.Band = chanfreq.BandOf(ap.FreqMHz)
	if resolver != nil {
		ap.Manufacturer = resolver.Manufacturer(ap.BSSID)
	}
	if ap.Manufacturer != "" {
		ap.ManufacturerSource = ManufacturerSourceOUI
	} else {
		ap.ManufacturerSource = ManufacturerSourceUnknown
	}
}

// Key returns the lowercase BSSID used as the join/cache key.
func (ap *AccessPoint) Key() string { return strings.ToLower(ap.BSSID) }

// DBm prefers the exact iw dBm and falls back to the nmcli approximation.
func (ap *AccessPoint) DBm() int {
	if ap.DBmExact != nil {
		return int(math.Round(*ap.DBmExact))
	}
	return chanfreq.SignalToDBm(ap.Signal)
}

// ChanUtilPct returns BSS Load channel utilization as 0-100 percent,
// or ok=false when unavailable.
func (ap *AccessPoint) ChanUtilPct() (int, bool) {
	if ap.ChanUtil == nil {
		return 0, false
	}
	return int(math.Round(float64(*ap.ChanUtil) / 255 * 100)), true
}

// KVRFlags returns the compact 802.11k/v/r roaming badge, e.g. "k v r".
func (ap *AccessPoint) KVRFlags() string {
	var flags []string
	if ap.RRM {
		flags = append(flags, "k")
	}
	if ap.BTM {
		flags = append(flags, "v")
	}
	if ap.FT {
		flags = append(flags, "r")
	}
	return strings.Join(flags, " ")
}

// Protocol returns the IEEE amendment label, e.g. "AX  (802.11ax)".
func (ap *AccessPoint) Protocol() string {
	switch ap.WiFiGen {
	case WiFiGen7:
		return "BE  (802.11be)"
	case WiFiGen6, WiFiGen6E:
		return "AX  (802.11ax)"
	case WiFiGen5:
		return "AC  (802.11ac)"
	case WiFiGen4:
		return "N   (802.11n)"
	}
	if ap.FreqMHz >= 5000 {
		return "A   (802.11a)"
	}
	return "B/G (802.11b/g)"
}

// PHYMode returns the compact PHY label for tabular display.
func (ap *AccessPoint) PHYMode() string {
	switch ap.WiFiGen {
	case WiFiGen7:
		return "BE"
	case WiFiGen6, WiFiGen6E:
		return "AX"
	case WiFiGen5:
		return "AC"
	case WiFiGen4:
		if ap.FreqMHz >= 5000 {
			return "A/N"
		}
		return "B/G/N"
	}
	if ap.FreqMHz >= 5000 {
		return "A"
	}
	return "B/G"
}

// DisplaySSID substitutes a hidden-network placeholder for empty names.
func (ap *AccessPoint) DisplaySSID() string {
	if ap.SSID == "" {
		return fmt.Sprintf("<hidden> (%s)", ap.BSSID)
	}
	return ap.SSID
}

// ChannelSpan returns the human-readable member-channel range of the AP's
// bonded block, e.g. "116–128" for channel 116 at 80 MHz, or the bare
// primary channel for 20 MHz operation.
func (ap *AccessPoint) ChannelSpan() string {
	switch {
	case ap.Band == chanfreq.Band5GHz && ap.Channel != 0:
		if ap.CenterFreqMHz != nil && ap.BandwidthMHz > 20 {
			if lo, hi, ok := chanfreq.BlockChannelRange(ap.Band, *ap.CenterFreqMHz, ap.BandwidthMHz); ok && lo != hi {
				return fmt.Sprintf("%d–%d", lo, hi)
			}
		}
		if _, chans := chanfreq.BondedBlock5GHz(ap.Channel, ap.BandwidthMHz); len(chans) > 1 {
			return fmt.Sprintf("%d–%d", chans[0], chans[len(chans)-1])
		}
		return strconv.Itoa(ap.Channel)

	case ap.Band == chanfreq.Band24GHz && ap.Channel != 0:
		if ap.CenterFreqMHz != nil && ap.BandwidthMHz == 40 {
			if lo, hi, ok := chanfreq.BlockChannelRange(ap.Band, *ap.CenterFreqMHz, 40); ok && lo != hi {
				return fmt.Sprintf("%d–%d", lo, hi)
			}
		}
		return strconv.Itoa(ap.Channel)

	case ap.Band == chanfreq.Band6GHz && ap.Channel != 0:
		if ap.BandwidthMHz > 20 {
			if _, chans := chanfreq.BondedBlock6GHz(ap.Channel, ap.BandwidthMHz); len(chans) > 1 {
				return fmt.Sprintf("%d–%d", chans[0], chans[len(chans)-1])
			}
			if ap.CenterFreqMHz != nil {
				if lo, hi, ok := chanfreq.BlockChannelRange(ap.Band, *ap.CenterFreqMHz, ap.BandwidthMHz); ok && lo != hi {
					return fmt.Sprintf("%d–%d", lo, hi)
				}
			}
		}
		return strconv.Itoa(ap.Channel)
	}

	if ap.Channel != 0 {
		return strconv.Itoa(ap.Channel)
	}
	return "?"
}

// DrawCenterMHz returns the MHz center to use when placing the AP's spectrum
// shape: the bonded-block center for wide 5/6 GHz operation, the reported
// block center for 2.4 GHz HT40, else the primary channel frequency.
func (ap *AccessPoint) DrawCenterMHz() int {
	if ap.BandwidthMHz > 20 {
		if ap.Band == chanfreq.Band5GHz && ap.Channel != 0 {
			if center, _ := chanfreq.BondedBlock5GHz(ap.Channel, ap.BandwidthMHz); center != 0 {
				return center
			}
		}
		if ap.Band == chanfreq.Band6GHz && ap.Channel != 0 {
			if center, chans := chanfreq.BondedBlock6GHz(ap.Channel, ap.BandwidthMHz); center != 0 && len(chans) > 1 {
				return center
			}
		}
		if ap.CenterFreqMHz != nil && *ap.CenterFreqMHz != 0 {
			return *ap.CenterFreqMHz
		}
	}
	return ap.FreqMHz
}

// Clone returns a deep-enough copy for re-emission from the linger cache:
// pointer fields are shared, but emitted records are immutable so sharing is
// safe; the Lingering flag is settable on the copy without touching the
// cached original.
func (ap *AccessPoint) Clone() *AccessPoint {
	copied := *ap
	return &copied
}
