package scan

import (
	"regexp"
	"strings"
)

var detailTokenRe = regexp.MustCompile(`[A-Z0-9]+`)

// SecurityShort returns the compact canonical security label combining the
// primary source's flag strings with the scan dump's AKM summary.
func (ap *AccessPoint) SecurityShort() string {
	sec := strings.ToUpper(strings.TrimSpace(ap.Security))
	wpa := strings.ToUpper(strings.TrimSpace(ap.WPAFlags))
	rsn := strings.ToUpper(strings.TrimSpace(ap.RSNFlags))
	akm := strings.ToUpper(strings.TrimSpace(ap.AKMRaw))
	if akm == "" {
		akm = strings.ToUpper(strings.TrimSpace(ap.AKM))
	}

	hasWPAIE := wpa != "" && wpa != "--" && wpa != "(NONE)"
	hasRSNIE := rsn != "" && rsn != "--" && rsn != "(NONE)"
	hasWEP := strings.Contains(sec, "WEP")
	hasSAE := strings.Contains(akm, "SAE")
	hasPSK := strings.Contains(akm, "PSK") || strings.Contains(sec, "PSK") ||
		strings.Contains(wpa, "PSK") || strings.Contains(rsn, "PSK")
	hasEAP := strings.Contains(akm, "EAP") || strings.Contains(akm, "802.1X") ||
		strings.Contains(akm, "8021X") || strings.Contains(akm, "ENTERPRISE") ||
		strings.Contains(sec, "EAP")
	hasOWE := strings.Contains(akm, "OWE") || strings.Contains(sec, "OWE")

	switch {
	case sec == "" && !hasWPAIE && !hasRSNIE && akm == "":
		return "Open"
	case hasWEP:
		return "WEP"
	case hasOWE:
		return "OWE"
	case hasSAE && hasPSK:
		return "WPA2/WPA3 (PSK/SAE)"
	case hasSAE:
		return "WPA3 (SAE)"
	case hasEAP && hasWPAIE && hasRSNIE:
		return "WPA/WPA2 (802.1X)"
	case hasEAP && hasRSNIE:
		return "WPA2 (802.1X)"
	case hasEAP:
		return "Enterprise (802.1X)"
	case hasWPAIE && hasRSNIE:
		return "WPA/WPA2 (PSK)"
	case hasRSNIE:
		return "WPA2 (PSK)"
	case hasWPAIE:
		return "WPA (PSK)"
	case strings.Contains(sec, "WPA3") && strings.Contains(sec, "WPA2"):
		return "WPA2/WPA3 (PSK/SAE)"
	case strings.Contains(sec, "WPA3"):
		return "WPA3"
	case strings.Contains(sec, "WPA2") && strings.Contains(sec, "WPA"):
		return "WPA/WPA2"
	case strings.Contains(sec, "WPA2"):
		return "WPA2"
	case strings.Contains(sec, "WPA"):
		return "WPA"
	default:
		return "Open"
	}
}

// DetailTokens tokenizes a security/AKM detail string for comparison.
// "802.1X" is normalized to a single token first.
func DetailTokens(text string) map[string]bool {
	t := strings.ToUpper(text)
	t = strings.ReplaceAll(t, "802.1X", "8021X")
	tokens := make(map[string]bool)
	for _, tok := range detailTokenRe.FindAllString(t, -1) {
		tokens[tok] = true
	}
	return tokens
}

// ChoosePrimaryDetail picks the more informative of two security/AKM detail
// strings: WPA3/SAE presence wins, then token count, then byte length.
// The tie-break order is a preserved heuristic; do not silently reorder.
func ChoosePrimaryDetail(first, second string) string {
	a := strings.TrimSpace(first)
	b := strings.TrimSpace(second)
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}

	aTokens := DetailTokens(a)
	bTokens := DetailTokens(b)
	aWPA3 := aTokens["WPA3"] || aTokens["SAE"]
	bWPA3 := bTokens["WPA3"] || bTokens["SAE"]
	if aWPA3 != bWPA3 {
		if aWPA3 {
			return a
		}
		return b
	}

	if len(aTokens) != len(bTokens) {
		if len(aTokens) > len(bTokens) {
			return a
		}
		return b
	}
	if len(a) >= len(b) {
		return a
	}
	return b
}

// ShowSecondaryDetail reports whether the secondary string adds information
// not already present in the primary (used by consumers rendering both).
func ShowSecondaryDetail(primary, secondary string) bool {
	p := strings.TrimSpace(primary)
	s := strings.TrimSpace(secondary)
	if p == "" || s == "" || p == s {
		return false
	}
	sTokens := DetailTokens(s)
	if len(sTokens) == 0 {
		return false
	}
	pTokens := DetailTokens(p)
	for tok := range sTokens {
		if !pTokens[tok] {
			return true
		}
	}
	return false
}
