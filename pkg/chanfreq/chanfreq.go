// Package chanfreq maps IEEE 802.11 channel numbers to center frequencies
// and resolves bonded-channel blocks (40/80/160/320 MHz) across the
// 2.4/5/6 GHz bands. All tables are built once at init and never mutated.
package chanfreq

// Names of the frequency bands as reported on AccessPoint records.
const (
	Band24GHz   = "2.4 GHz"
	Band5GHz    = "5 GHz"
	Band6GHz    = "6 GHz"
	BandUnknown = "?"
)

// ch24 maps 2.4 GHz channels to center frequency (MHz). Channel 14 (Japan,
// 11b only) sits 12 MHz above channel 13 instead of the usual 5 MHz step.
var ch24 = map[int]int{
	1: 2412, 2: 2417, 3: 2422, 4: 2427, 5: 2432, 6: 2437, 7: 2442,
	8: 2447, 9: 2452, 10: 2457, 11: 2462, 12: 2467, 13: 2472, 14: 2484,
}

// ch5 maps 5 GHz channels to center frequency (MHz).
var ch5 = map[int]int{
	36: 5180, 40: 5200, 44: 5220, 48: 5240,
	52: 5260, 56: 5280, 60: 5300, 64: 5320,
	100: 5500, 104: 5520, 108: 5540, 112: 5560, 116: 5580,
	120: 5600, 124: 5620, 128: 5640, 132: 5660, 136: 5680,
	140: 5700, 144: 5720,
	149: 5745, 153: 5765, 157: 5785, 161: 5805, 165: 5825,
	169: 5845, 173: 5865, 177: 5885,
}

// ch6 maps 6 GHz primary channels (1, 5, 9, ..., 233) to center frequency.
// center_MHz = 5950 + 5*channel; the band spans 5925-7125 MHz (UNII-5..8).
var ch6 = func() map[int]int {
	m := make(map[int]int, 59)
	for ch := 1; ch <= 233; ch += 4 {
		m[ch] = 5950 + 5*ch
	}
	return m
}()

// FrequencyOf returns the best-guess center frequency in MHz for a channel
// number, or 0 when the channel is not in any band's table.
func FrequencyOf(channel int) int {
	if f, ok := ch24[channel]; ok {
		return f
	}
	if f, ok := ch5[channel]; ok {
		return f
	}
	if f, ok := ch6[channel]; ok {
		return f
	}
	return 0
}

// BandOf classifies a frequency in MHz into one of the four band labels.
// The 2.4/5/6 GHz ranges are mutually exclusive; everything else is unknown.
func BandOf(freqMHz int) string {
	switch {
	case freqMHz >= 2400 && freqMHz < 2500:
		return Band24GHz
	case freqMHz >= 5000 && freqMHz < 5900:
		return Band5GHz
	case freqMHz >= 5925 && freqMHz <= 7125:
		return Band6GHz
	default:
		return BandUnknown
	}
}

// bondedBlock is one fixed OFDM channel grouping: the member 20 MHz primary
// channels and the block's center frequency.
type bondedBlock struct {
	channels   []int
	centerFreq int
}

type bondedKey struct {
	channel int
	widthMH int
}

// 5 GHz bonded groups are enumerated per the IEEE channelization tables.
// When an AP reports its primary 20 MHz channel at a wider width, the
// occupied spectrum is the whole bonded block, not +-width/2 around the
// primary channel center.
var groups5GHz40 = []bondedBlock{
	{[]int{36, 40}, 5190}, {[]int{44, 48}, 5230},
	{[]int{52, 56}, 5270}, {[]int{60, 64}, 5310},
	{[]int{100, 104}, 5510}, {[]int{108, 112}, 5550},
	{[]int{116, 120}, 5590}, {[]int{124, 128}, 5630},
	{[]int{132, 136}, 5670}, {[]int{140, 144}, 5710},
	{[]int{149, 153}, 5755}, {[]int{157, 161}, 5795},
	{[]int{165, 169}, 5835}, {[]int{173, 177}, 5875},
}

var groups5GHz80 = []bondedBlock{
	{[]int{36, 40, 44, 48}, 5210},
	{[]int{52, 56, 60, 64}, 5290},
	{[]int{100, 104, 108, 112}, 5530},
	{[]int{116, 120, 124, 128}, 5610},
	{[]int{132, 136, 140, 144}, 5690},
	{[]int{149, 153, 157, 161}, 5775},
	{[]int{165, 169, 173, 177}, 5855},
}

var groups5GHz160 = []bondedBlock{
	{[]int{36, 40, 44, 48, 52, 56, 60, 64}, 5250},
	{[]int{100, 104, 108, 112, 116, 120, 124, 128}, 5570},
	{[]int{149, 153, 157, 161, 165, 169, 173, 177}, 5815},
}

// make6GHzGroup derives one 6 GHz bonded block from its center channel and
// width. n20 = width/20; members start at center-2*(n20-1) and step by 4.
// This single formula reproduces the enumerated per-width plans.
func make6GHzGroup(centerChan, widthMHz int) bondedBlock {
	n20 := widthMHz / 20
	start := centerChan - 2*(n20-1)
	channels := make([]int, n20)
	for i := range channels {
		channels[i] = start + 4*i
	}
	return bondedBlock{channels: channels, centerFreq: 5950 + 5*centerChan}
}

func make6GHzGroups(widthMHz, firstCenter, lastCenter, step int) []bondedBlock {
	var groups []bondedBlock
	for c := firstCenter; c <= lastCenter; c += step {
		groups = append(groups, make6GHzGroup(c, widthMHz))
	}
	return groups
}

var (
	bonded5GHz = buildBondedIndex(map[int][]bondedBlock{
		40:  groups5GHz40,
		80:  groups5GHz80,
		160: groups5GHz160,
	})
	bonded6GHz = buildBondedIndex(map[int][]bondedBlock{
		40:  make6GHzGroups(40, 3, 179, 8),
		80:  make6GHzGroups(80, 7, 167, 16),
		160: make6GHzGroups(160, 15, 143, 32),
		320: make6GHzGroups(320, 31, 159, 64),
	})
)

// buildBondedIndex builds the reverse lookup: (any member channel, width) ->
// block. Built once at init.
func buildBondedIndex(byWidth map[int][]bondedBlock) map[bondedKey]bondedBlock {
	index := make(map[bondedKey]bondedBlock)
	for width, groups := range byWidth {
		for _, g := range groups {
			for _, ch := range g.channels {
				index[bondedKey{channel: ch, widthMH: width}] = g
			}
		}
	}
	return index
}

// BondedBlock5GHz resolves a 5 GHz primary channel at the given width to the
// block center frequency and the full member-channel list. Combinations
// absent from the standard tables degrade to the primary channel as its own
// single-member 20 MHz block.
func BondedBlock5GHz(primaryChan, widthMHz int) (centerFreqMHz int, channels []int) {
	if block, ok := bonded5GHz[bondedKey{channel: primaryChan, widthMH: widthMHz}]; ok {
		return block.centerFreq, block.channels
	}
	if f, ok := ch5[primaryChan]; ok {
		return f, []int{primaryChan}
	}
	return FrequencyOf(primaryChan), []int{primaryChan}
}

// BondedBlock6GHz resolves a 6 GHz primary channel at the given width, with
// the same single-member fallback as the 5 GHz lookup.
func BondedBlock6GHz(primaryChan, widthMHz int) (centerFreqMHz int, channels []int) {
	if block, ok := bonded6GHz[bondedKey{channel: primaryChan, widthMH: widthMHz}]; ok {
		return block.centerFreq, block.channels
	}
	if f, ok := ch6[primaryChan]; ok {
		return f, []int{primaryChan}
	}
	return FrequencyOf(primaryChan), []int{primaryChan}
}

// BlockChannelRange returns the outermost primary channels of `band` whose
// centers fall inside a bonded block of widthMHz centered at centerFreq MHz.
// Each 20 MHz primary has its center width/2-10 MHz inside the block edge.
// Returns ok=false when no channel of the band lands in the block.
func BlockChannelRange(band string, centerFreqMHz, widthMHz int) (lo, hi int, ok bool) {
	var table map[int]int
	switch band {
	case Band24GHz:
		table = ch24
	case Band5GHz:
		table = ch5
	case Band6GHz:
		table = ch6
	default:
		return 0, 0, false
	}

	half := widthMHz/2 - 10
	lower := centerFreqMHz - half
	upper := centerFreqMHz + half
	for ch, f := range table {
		if f < lower || f > upper {
			continue
		}
		if !ok || ch < lo {
			lo = ch
		}
		if !ok || ch > hi {
			hi = ch
		}
		ok = true
	}
	return lo, hi, ok
}

// SignalToDBm approximates dBm from the primary source's 0-100 signal scale.
// Truncates toward zero, so signal 85 maps to -57 rather than -58.
func SignalToDBm(signal int) int {
	return (signal - 200) / 2
}
