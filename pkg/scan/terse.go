package scan

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/wavescope/pkg/chanfreq"
)

// The primary source emits one colon-delimited line per AP with this fixed
// field order. Colons inside a field (the BSSID) are escaped with a
// backslash, so lines cannot be split naively.
const TerseFields = "IN-USE,SSID,BSSID,MODE,CHAN,FREQ,RATE,SIGNAL,SECURITY,WPA-FLAGS,RSN-FLAGS,BANDWIDTH"

// terseFieldCount is the minimum field count of a well-formed line.
const terseFieldCount = 12

var (
	leadingInt   = regexp.MustCompile(`(\d+)`)
	leadingFloat = regexp.MustCompile(`([\d.]+)`)
)

// SplitTerse splits one terse line on unescaped colons. An escaped colon
// (`\:`) contributes a literal colon to the current field.
func SplitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == ':':
			cur.WriteByte(':')
			i++
		case line[i] == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// parseLeadingInt extracts the first run of digits, tolerating trailing unit
// text ("2437 MHz" -> 2437). Returns def when no digits are present.
func parseLeadingInt(s string, def int) int {
	m := leadingInt.FindString(s)
	if m == "" {
		return def
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return def
	}
	return v
}

// parseLeadingFloat extracts the first numeric run ("270 Mbit/s" -> 270.0).
func parseLeadingFloat(s string) float64 {
	m := leadingFloat.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// TerseParser turns the primary source's terse output into AccessPoint
// records. It is stateless; parsing the same input twice yields identical
// records.
type TerseParser struct {
	resolver VendorResolver
}

// NewTerseParser creates a parser that derives manufacturer names through
// the given resolver (nil disables vendor lookup).
func NewTerseParser(resolver VendorResolver) *TerseParser {
	return &TerseParser{resolver: resolver}
}

// Parse converts terse output into records, one per well-formed line.
// Malformed or short lines are dropped silently; one bad line never discards
// the rest of the cycle.
func (p *TerseParser) Parse(output string) []*AccessPoint {
	var aps []*AccessPoint
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := SplitTerse(line)
		if len(parts) < terseFieldCount {
			continue
		}
		ap := p.parseLine(parts)
		if ap != nil {
			aps = append(aps, ap)
		}
	}
	return aps
}

func (p *TerseParser) parseLine(parts []string) *AccessPoint {
	channel := 0
	if s := strings.TrimSpace(parts[4]); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			channel = v
		}
	}
	signal := 0
	if s := strings.TrimSpace(parts[7]); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			signal = v
		}
	}

	ap := &AccessPoint{
		InUse:        strings.TrimSpace(parts[0]) == "*",
		SSID:         strings.TrimSpace(parts[1]),
		BSSID:        strings.TrimSpace(parts[2]),
		Mode:         strings.TrimSpace(parts[3]),
		Channel:      channel,
		FreqMHz:      parseLeadingInt(parts[5], 0),
		RateMbps:     parseLeadingFloat(parts[6]),
		Signal:       signal,
		Security:     strings.TrimSpace(parts[8]),
		WPAFlags:     strings.TrimSpace(parts[9]),
		RSNFlags:     strings.TrimSpace(parts[10]),
		BandwidthMHz: parseLeadingInt(parts[11], 20),
	}

	// nmcli omits FREQ on some drivers; back-fill from the channel table.
	if ap.FreqMHz == 0 && ap.Channel != 0 {
		ap.FreqMHz = chanfreq.FrequencyOf(ap.Channel)
	}

	ap.Derive(p.resolver)
	return ap
}
