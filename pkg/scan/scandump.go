package scan

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Scan-dump sub-blocks start with this header token followed by the BSSID.
const bssHeader = "BSS "

var (
	bssidRe        = regexp.MustCompile(`(?i)^([0-9a-f:]{17})`)
	signalRe       = regexp.MustCompile(`signal:\s*([-\d.]+)\s*dBm`)
	dumpFreqRe     = regexp.MustCompile(`freq:\s*([\d.]+)`)
	stationCountRe = regexp.MustCompile(`station count:\s*(\d+)`)
	chanUtilRe     = regexp.MustCompile(`channel utilis[ae]tion:\s*(\d+)/255`)
	akmRe          = regexp.MustCompile(`Authentication suites:(.*)`)
	mfpRe          = regexp.MustCompile(`(?i)Capabilities:.*?MFP-(capable|required)`)
	wpsManufRe     = regexp.MustCompile(`(?im)^\s*\*\s*Manufacturer:\s*(.+?)\s*$`)
	countryRe      = regexp.MustCompile(`Country:\s+([A-Z]{2})`)
	beaconIntRe    = regexp.MustCompile(`(?i)beacon\s+interval:\s*(\d+)\s*TU`)
	dtimRe         = regexp.MustCompile(`(?i)DTIM\s+period:\s*(\d+)`)
	rsnCapsLineRe  = regexp.MustCompile(`(?im)^\s*Capabilities:\s*(.+?)\s*$`)
	vendorOUIRe    = regexp.MustCompile(`(?i)Vendor\s+specific:\s*OUI\s*([0-9a-f:]{8})`)
	centerFreqRe   = regexp.MustCompile(`\*\s*center freq(?:\s+segment)?\s*1\s*:\s*(\d+)`)
	secondaryRe    = regexp.MustCompile(`\*\s*secondary channel offset:\s*(above|below)`)
	operWidthRe    = regexp.MustCompile(`(?i)\*\s*channel\s+width\s*:\s*(?:\d+\s+\()?(\d+)\s*MHz`)
	vhtOperRe      = regexp.MustCompile(`(?i)VHT\s+operation`)
	vhtWidthCodeRe = regexp.MustCompile(`(?i)\*\s*channel\s+width:\s*(\d+)`)
	widthValRe     = regexp.MustCompile(`(?i)\b(20|40|80|160|320)\s*MHz\b`)
	mcsStreamsRe   = regexp.MustCompile(`(?i)(\d+)\s+streams?\s*:\s*MCS\s+0-(\d+)`)
	bssColorRe     = regexp.MustCompile(`(?i)BSS\s+color:\s*(\d+)`)
	twtRe          = regexp.MustCompile(`(?i)\bTWT\b`)
	spatialReuseRe = regexp.MustCompile(`(?i)Spatial\s+Reuse`)
	hexCapsRe      = regexp.MustCompile(`(?i)0x[0-9a-f]+`)
)

// wpsPlaceholders are WPS manufacturer strings that carry no information.
var wpsPlaceholders = map[string]bool{
	"unknown": true,
	"private": true,
	"n/a":     true,
}

// ParseScanDump parses the secondary source's block-structured text into a
// map keyed by lowercase BSSID. Every extraction is independently optional:
// a pattern that does not match leaves its field unset instead of erroring.
// Sub-blocks whose header does not parse as a BSSID are skipped entirely.
// The parser is stateless and idempotent.
func ParseScanDump(output string) map[string]*Enrichment {
	result := make(map[string]*Enrichment)
	blocks := strings.Split(output, "\n"+bssHeader)
	if strings.HasPrefix(output, bssHeader) && len(blocks) > 0 {
		blocks[0] = strings.TrimPrefix(blocks[0], bssHeader)
	} else if len(blocks) > 0 {
		// Text before the first header is preamble, not a BSS block.
		blocks = blocks[1:]
	}

	for _, block := range blocks {
		m := bssidRe.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		bssid := strings.ToLower(m[1])
		result[bssid] = parseBSSBlock(block)
	}
	return result
}

func parseBSSBlock(text string) *Enrichment {
	e := &Enrichment{}

	if m := signalRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			e.DBmExact = &v
		}
	}

	// WiFi generation from capability-family IE presence. HE splits into
	// 6 vs 6E on the 6 GHz band edge.
	hasEHT := strings.Contains(text, "EHT capabilities")
	hasHE := strings.Contains(text, "HE capabilities")
	hasVHT := strings.Contains(text, "VHT capabilities")
	hasHT := strings.Contains(text, "HT capabilities")
	freqVal := 0.0
	if m := dumpFreqRe.FindStringSubmatch(text); m != nil {
		freqVal, _ = strconv.ParseFloat(m[1], 64)
	}
	switch {
	case hasEHT:
		e.WiFiGen = WiFiGen7
	case hasHE && freqVal >= 5925:
		e.WiFiGen = WiFiGen6E
	case hasHE:
		e.WiFiGen = WiFiGen6
	case hasVHT:
		e.WiFiGen = WiFiGen5
	case hasHT:
		e.WiFiGen = WiFiGen4
	}

	// PHY capability summary: families seen plus the widest width mentioned.
	var families []string
	if hasHT {
		families = append(families, "HT")
	}
	if hasVHT {
		families = append(families, "VHT")
	}
	if hasHE {
		families = append(families, "HE")
	}
	if hasEHT {
		families = append(families, "EHT")
	}
	maxWidth := 0
	for _, m := range widthValRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil && v > maxWidth {
			maxWidth = v
		}
	}
	var capBits []string
	if len(families) > 0 {
		capBits = append(capBits, strings.Join(families, "/"))
	}
	if maxWidth > 0 {
		capBits = append(capBits, fmt.Sprintf("max width %d MHz", maxWidth))
		e.capMaxBandwidth = maxWidth
	}
	if len(capBits) > 0 {
		e.PHYCapSummary = strings.Join(capBits, " · ")
	}

	// HE/EHT spatial streams and MCS: count "N streams: MCS 0-M" entries.
	for _, m := range mcsStreamsRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > e.maxNSS {
			e.maxNSS = n
		}
		if mcs, err := strconv.Atoi(m[2]); err == nil && mcs > e.maxMCS {
			e.maxMCS = mcs
		}
	}

	var heFeats []string
	if m := bssColorRe.FindStringSubmatch(text); m != nil {
		heFeats = append(heFeats, "BSS color "+m[1])
	}
	if twtRe.MatchString(text) {
		heFeats = append(heFeats, "TWT")
	}
	if spatialReuseRe.MatchString(text) {
		heFeats = append(heFeats, "Spatial reuse")
	}
	if len(heFeats) > 0 {
		e.HEEHTFeatures = strings.Join(heFeats, ", ")
	}

	if m := stationCountRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			e.StationCount = &v
		}
	}
	if m := chanUtilRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			e.ChanUtil = &v
		}
	}

	if m := akmRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		e.AKMRaw = strings.TrimSpace(raw)
		e.FT = strings.Contains(raw, "FT/")
		e.AKM = classifyAKM(raw, e.FT)
	}

	// PMF is set for every covered BSS; this is the liveness signal the
	// enrichment-persistence cache keys on.
	if m := mfpRe.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "required") {
			e.PMF = PMFRequired
		} else {
			e.PMF = PMFOptional
		}
	} else {
		e.PMF = PMFNo
	}

	if m := wpsManufRe.FindStringSubmatch(text); m != nil {
		name := strings.Trim(strings.TrimSpace(m[1]), `"`)
		if name != "" && !wpsPlaceholders[strings.ToLower(name)] {
			e.WPSManufacturer = name
		}
	}

	e.RRM = strings.Contains(text, "Neighbor Report")
	e.BTM = strings.Contains(text, "BSS Transition")

	if m := countryRe.FindStringSubmatch(text); m != nil {
		e.Country = m[1]
	}
	if m := beaconIntRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			e.BeaconIntervalTU = &v
		}
	}
	if m := dtimRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			e.DTIMPeriod = &v
		}
	}

	if m := rsnCapsLineRe.FindStringSubmatch(text); m != nil {
		if decoded := DecodeRSNCapabilities(m[1]); decoded != "" {
			e.RSNCapabilities = decoded
		}
	}

	ouiSet := make(map[string]bool)
	for _, m := range vendorOUIRe.FindAllStringSubmatch(text, -1) {
		ouiSet[strings.ToUpper(m[1])] = true
	}
	if len(ouiSet) > 0 {
		ouis := make([]string, 0, len(ouiSet))
		for o := range ouiSet {
			ouis = append(ouis, o)
		}
		sort.Strings(ouis)
		e.VendorIEOUIs = strings.Join(ouis, ", ")
	}

	// Bonded-block center: VHT/HE operation report it directly; HT 40 MHz
	// only reports the secondary channel offset, so derive center +-10 MHz.
	if m := centerFreqRe.FindStringSubmatch(text); m != nil {
		if cf, err := strconv.Atoi(m[1]); err == nil && cf > 0 {
			e.CenterFreqMHz = &cf
		}
	}
	if e.CenterFreqMHz == nil && freqVal > 0 {
		if m := secondaryRe.FindStringSubmatch(text); m != nil {
			offset := -10
			if m[1] == "above" {
				offset = 10
			}
			cf := int(freqVal) + offset
			e.CenterFreqMHz = &cf
		}
	}

	// Operating channel width from the HE/VHT Operation IE. HE reports MHz
	// directly; VHT reports a 0-3 width code.
	if m := operWidthRe.FindStringSubmatch(text); m != nil {
		if cw, err := strconv.Atoi(m[1]); err == nil {
			switch cw {
			case 20, 40, 80, 160, 320:
				e.operBandwidthMHz = cw
			}
		}
	}
	if e.operBandwidthMHz == 0 && vhtOperRe.MatchString(text) {
		if m := vhtWidthCodeRe.FindStringSubmatch(text); m != nil {
			switch m[1] {
			case "0":
				e.operBandwidthMHz = 40
			case "1":
				e.operBandwidthMHz = 80
			case "2", "3":
				e.operBandwidthMHz = 160
			}
		}
	}

	return e
}

// classifyAKM maps a raw authentication-suite string to the compact label.
// Priority: OWE beats Enterprise beats SAE+PSK beats SAE beats PSK beats
// raw passthrough; FT appends a suffix.
func classifyAKM(raw string, ft bool) string {
	hasSAE := strings.Contains(raw, "SAE")
	hasPSK := strings.Contains(raw, "PSK")
	hasEAP := strings.Contains(raw, "EAP") || strings.Contains(raw, "802.1X")
	hasOWE := strings.Contains(raw, "OWE")

	var label string
	switch {
	case hasOWE:
		label = "OWE (Enhanced Open)"
	case hasEAP:
		label = "Enterprise (EAP)"
	case hasSAE && hasPSK:
		label = "WPA2+WPA3"
	case hasSAE:
		label = "WPA3-SAE"
	case hasPSK:
		label = "WPA2-PSK"
	default:
		label = strings.TrimSpace(raw)
	}
	if ft {
		label += " +FT"
	}
	return label
}

// rsnReplayCounters maps the 2-bit replay-counter field to its count.
var rsnReplayCounters = [4]int{1, 2, 4, 16}

// DecodeRSNCapabilities translates the RSN Capabilities field into human
// labels per the IEEE bit definitions. When the driver exposes only
// tokenized text (no hex value), known tokens are translated directly and
// unrecognized text passes through unchanged.
func DecodeRSNCapabilities(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	hexM := hexCapsRe.FindString(text)
	if hexM == "" {
		return decodeRSNCapabilityTokens(text)
	}

	v, err := strconv.ParseUint(hexM[2:], 16, 64)
	if err != nil {
		return text
	}
	caps := uint16(v)

	var decoded []string
	if caps&(1<<0) != 0 {
		decoded = append(decoded, "Pre-authentication")
	}
	if caps&(1<<1) != 0 {
		decoded = append(decoded, "No pairwise cipher")
	}
	decoded = append(decoded,
		fmt.Sprintf("PTKSA replay counters: %d", rsnReplayCounters[(caps>>2)&0x3]),
		fmt.Sprintf("GTKSA replay counters: %d", rsnReplayCounters[(caps>>4)&0x3]))
	if caps&(1<<6) != 0 {
		decoded = append(decoded, "PMF capable")
	}
	if caps&(1<<7) != 0 {
		decoded = append(decoded, "PMF required")
	}
	if caps&(1<<8) != 0 {
		decoded = append(decoded, "Joint multi-band RSNA")
	}
	if caps&(1<<9) != 0 {
		decoded = append(decoded, "PeerKey")
	}
	if caps&(1<<10) != 0 {
		decoded = append(decoded, "SPP-A-MSDU capable")
	}
	if caps&(1<<11) != 0 {
		decoded = append(decoded, "SPP-A-MSDU required")
	}
	if caps&(1<<12) != 0 {
		decoded = append(decoded, "PBAC")
	}
	if caps&(1<<13) != 0 {
		decoded = append(decoded, "Extended Key ID")
	}

	// Raw value kept as a compact suffix for transparency.
	decoded = append(decoded, "RSN caps "+strings.ToUpper(hexM))
	return strings.Join(decoded, ", ")
}

var rsnTokenLabels = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)\bPreAuth\b`), "Pre-authentication"},
	{regexp.MustCompile(`(?i)\bNoPairwise\b`), "No pairwise cipher"},
	{regexp.MustCompile(`(?i)\bPeerkey\b`), "PeerKey"},
	{regexp.MustCompile(`(?i)\bSPP-AMSDU-capable\b`), "SPP-A-MSDU capable"},
	{regexp.MustCompile(`(?i)\bSPP-AMSDU-required\b`), "SPP-A-MSDU required"},
	{regexp.MustCompile(`(?i)\bPBAC\b`), "PBAC"},
	{regexp.MustCompile(`(?i)\bExtended-Key-ID\b|\bExtKeyID\b`), "Extended Key ID"},
	{regexp.MustCompile(`(?i)\bOCVC\b`), "OCVC"},
}

var (
	mfpRequiredTokenRe = regexp.MustCompile(`(?i)\bMFP-required\b`)
	mfpCapableTokenRe  = regexp.MustCompile(`(?i)\bMFP-capable\b`)
)

func decodeRSNCapabilityTokens(text string) string {
	var out []string
	if mfpRequiredTokenRe.MatchString(text) {
		out = append(out, "PMF required")
	} else if mfpCapableTokenRe.MatchString(text) {
		out = append(out, "PMF capable")
	}
	for _, t := range rsnTokenLabels {
		if t.re.MatchString(text) {
			out = append(out, t.label)
		}
	}
	if len(out) == 0 {
		return text
	}
	return strings.Join(out, ", ")
}
