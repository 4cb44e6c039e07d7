package scan

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	connectedToRe = regexp.MustCompile(`(?i)Connected\s+to\s+([0-9a-f:]{17})`)
	linkSSIDRe    = regexp.MustCompile(`(?m)^\s*SSID:\s*(.+?)\s*$`)
	linkFreqRe    = regexp.MustCompile(`(?m)^\s*freq:\s*(\d+)\s*$`)
	linkSignalRe  = regexp.MustCompile(`(?m)^\s*signal:\s*([\-\d.]+)\s*dBm\s*$`)
	rxBitrateRe   = regexp.MustCompile(`(?m)^\s*rx\s+bitrate:\s*(.+?)\s*$`)
	txBitrateRe   = regexp.MustCompile(`(?m)^\s*tx\s+bitrate:\s*(.+?)\s*$`)

	stationMACRe = regexp.MustCompile(`(?i)^([0-9a-f:]{17})`)
	inactiveRe   = regexp.MustCompile(`(?i)inactive\s+time:\s*(\d+)\s*ms`)
	txRetriesRe  = regexp.MustCompile(`(?i)tx\s+retries:\s*(\d+)`)
	txFailedRe   = regexp.MustCompile(`(?i)tx\s+failed:\s*(\d+)`)
	connTimeRe   = regexp.MustCompile(`(?i)connected\s+time:\s*(\d+)\s*seconds`)
	signalAvgRe  = regexp.MustCompile(`(?i)signal\s+avg:\s*(-?\d+)\s*dBm`)
	txPacketsRe  = regexp.MustCompile(`(?i)tx\s+packets:\s*(\d+)`)
	txBytesRe    = regexp.MustCompile(`(?i)tx\s+bytes:\s*(\d+)`)
	rxPacketsRe  = regexp.MustCompile(`(?i)rx\s+packets:\s*(\d+)`)
	rxBytesRe    = regexp.MustCompile(`(?i)rx\s+bytes:\s*(\d+)`)
	rxDropRe     = regexp.MustCompile(`(?i)rx\s+drop\s+misc:\s*(\d+)`)
	expectedTPRe = regexp.MustCompile(`(?i)expected\s+throughput:\s*([^\n]+)`)

	surveyFreqRe   = regexp.MustCompile(`(?i)frequency:\s*(\d+)\s*MHz`)
	activeTimeRe   = regexp.MustCompile(`(?i)channel\s+active\s+time:\s*(\d+)\s*ms`)
	busyTimeRe     = regexp.MustCompile(`(?i)channel\s+busy\s+time:\s*(\d+)\s*ms`)
	surveyNoiseRe  = regexp.MustCompile(`(?i)noise:\s*(-?\d+)\s*dBm`)
	phyModeRe      = regexp.MustCompile(`\b(EHT|HE|VHT|HT)-MCS\b`)
	phyMCSRe       = regexp.MustCompile(`\b(?:EHT|HE|VHT|HT)-MCS\s*(\d+)\b`)
	phyNSSRe       = regexp.MustCompile(`\b(?:EHT|HE|VHT|HT)-NSS\s*(\d+)\b`)
	phyGIRe        = regexp.MustCompile(`\b(?:EHT|HE|VHT|HT)-GI\s*([\d.]+)\b`)
	phyDCMRe       = regexp.MustCompile(`\b(?:EHT|HE)-DCM\s*(\d+)\b`)
	phyRURe        = regexp.MustCompile(`\bRU\s*([0-9A-Za-z/]+)\b`)
	phyBandwidthRe = regexp.MustCompile(`\b(20|40|80|160|320)\s*MHz\b`)
)

// LinkInfo is the parsed current-association summary with the BSSID it
// belongs to.
type LinkInfo struct {
	BSSID string
	Stats LinkStats
}

// ParseLink parses the link-status dump. Returns nil when the interface is
// not associated.
func ParseLink(output, iface string) *LinkInfo {
	if strings.Contains(output, "Not connected.") {
		return nil
	}

	info := &LinkInfo{}
	info.Stats.Iface = iface

	if m := connectedToRe.FindStringSubmatch(output); m != nil {
		info.BSSID = strings.ToLower(m[1])
	}
	if m := linkSSIDRe.FindStringSubmatch(output); m != nil {
		info.Stats.SSID = m[1]
	}
	if m := linkFreqRe.FindStringSubmatch(output); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			info.Stats.FreqMHz = &v
		}
	}
	if m := linkSignalRe.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			info.Stats.SignalDBm = &v
		}
	}
	if m := rxBitrateRe.FindStringSubmatch(output); m != nil {
		info.Stats.RxBitrate = m[1]
		info.Stats.RxPHY = ParseBitratePHY(m[1])
	}
	if m := txBitrateRe.FindStringSubmatch(output); m != nil {
		info.Stats.TxBitrate = m[1]
		info.Stats.TxPHY = ParseBitratePHY(m[1])
	}
	if info.BSSID == "" && info.Stats.SSID == "" {
		return nil
	}
	return info
}

// ParseBitratePHY decomposes a bitrate description string into its PHY
// components: modulation family, MCS index, spatial streams, guard interval,
// DCM, resource unit and bandwidth.
func ParseBitratePHY(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	var parts []string
	if m := phyModeRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, m[1])
	}
	if m := phyMCSRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "MCS "+m[1])
	}
	if m := phyNSSRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "NSS "+m[1])
	}
	if m := phyGIRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "GI "+m[1])
	}
	if m := phyDCMRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "DCM "+m[1])
	}
	if m := phyRURe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "RU "+m[1])
	}
	if m := phyBandwidthRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, m[1]+" MHz")
	}
	return strings.Join(parts, " · ")
}

// ParseStationDump extracts counters for the station block matching
// targetBSSID (or the first block when targetBSSID is empty). Fills only the
// counter fields of stats; returns false when no matching block exists.
func ParseStationDump(output, targetBSSID string, stats *LinkStats) bool {
	target := strings.ToLower(targetBSSID)
	blocks := strings.Split(output, "\nStation ")
	if strings.HasPrefix(output, "Station ") && len(blocks) > 0 {
		blocks[0] = strings.TrimPrefix(blocks[0], "Station ")
	} else if len(blocks) > 0 {
		blocks = blocks[1:]
	}

	for _, block := range blocks {
		m := stationMACRe.FindStringSubmatch(strings.TrimSpace(block))
		if m == nil {
			continue
		}
		if target != "" && strings.ToLower(m[1]) != target {
			continue
		}

		stats.InactiveMs = matchInt64(inactiveRe, block)
		stats.TxRetries = matchInt64(txRetriesRe, block)
		stats.TxFailed = matchInt64(txFailedRe, block)
		stats.ConnectedTimeS = matchInt64(connTimeRe, block)
		stats.TxPackets = matchInt64(txPacketsRe, block)
		stats.TxBytes = matchInt64(txBytesRe, block)
		stats.RxPackets = matchInt64(rxPacketsRe, block)
		stats.RxBytes = matchInt64(rxBytesRe, block)
		stats.RxDropMisc = matchInt64(rxDropRe, block)
		if sm := signalAvgRe.FindStringSubmatch(block); sm != nil {
			if v, err := strconv.Atoi(sm[1]); err == nil {
				stats.SignalAvgDBm = &v
			}
		}
		if em := expectedTPRe.FindStringSubmatch(block); em != nil {
			stats.ExpectedTP = strings.TrimSpace(em[1])
		}
		return true
	}
	return false
}

// ParseSurveyDump computes channel busy percentage and noise floor from the
// survey dump. The entry flagged "[in use]" is preferred; otherwise the
// entry matching targetFreqMHz is used. Fills only the survey fields.
func ParseSurveyDump(output string, targetFreqMHz int, stats *LinkStats) bool {
	blocks := strings.Split(output, "Survey data from")
	if len(blocks) < 2 {
		return false
	}
	var chosen string
	for _, block := range blocks[1:] {
		b := strings.TrimSpace(block)
		if b == "" {
			continue
		}
		fm := surveyFreqRe.FindStringSubmatch(b)
		if fm == nil {
			continue
		}
		freq, _ := strconv.Atoi(fm[1])
		if strings.Contains(b, "[in use]") {
			chosen = b
			break
		}
		if targetFreqMHz != 0 && freq == targetFreqMHz {
			chosen = b
			break
		}
	}
	if chosen == "" {
		return false
	}

	activeMs := matchInt64(activeTimeRe, chosen)
	busyMs := matchInt64(busyTimeRe, chosen)
	found := false
	if activeMs != nil && *activeMs > 0 && busyMs != nil {
		pct := float64(*busyMs) / float64(*activeMs) * 100
		stats.SurveyBusyPct = &pct
		found = true
	}
	if m := surveyNoiseRe.FindStringSubmatch(chosen); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			stats.SurveyNoiseDBm = &v
			found = true
		}
	}
	return found
}

func matchInt64(re *regexp.Regexp, text string) *int64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
