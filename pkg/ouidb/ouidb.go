// Package ouidb resolves hardware addresses to manufacturer names using the
// OUI registries commonly installed on Linux systems, with a persistent
// cache for resolved lookups.
package ouidb

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
)

// DefaultSourcePaths are the registry files probed in order. The first
// parseable file wins for a given prefix; later files only fill gaps.
var DefaultSourcePaths = []string{
	"/usr/share/wireshark/manuf",
	"/usr/share/ieee-data/oui.txt",
	"/var/lib/ieee-data/oui.txt",
	"/usr/share/nmap/nmap-mac-prefixes",
}

// Config holds resolver configuration.
type Config struct {
	SourcePaths []string `json:"source_paths"`
	// CachePath is the bbolt file for persisted resolutions. Empty
	// disables persistence.
	CachePath string `json:"cache_path"`
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() *Config {
	return &Config{SourcePaths: DefaultSourcePaths}
}

// Resolver maps hardware addresses to manufacturer names. It satisfies the
// scan package's VendorResolver interface.
type Resolver struct {
	logger *logx.Logger
	config *Config
	cache  *Cache

	mu          sync.RWMutex
	loaded      bool
	index       map[string]string // 24-bit prefix ("aa:bb:cc") -> vendor
	suffixIndex map[string]string // trailing octets ("bb:cc") -> vendor, unambiguous only
}

// NewResolver creates a resolver. The registry files are parsed lazily on
// first lookup so a missing registry costs nothing until used.
func NewResolver(config *Config, logger *logx.Logger) (*Resolver, error) {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Resolver{
		logger: logger,
		config: config,
		index:  make(map[string]string),
	}
	if config.CachePath != "" {
		cache, err := NewCache(config.CachePath, logger)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}
	return r, nil
}

// Close releases the persistent cache, if any.
func (r *Resolver) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// Manufacturer returns the vendor name for mac, or "" when unknown.
// Locally-administered addresses are retried with the U/L bit cleared,
// since most randomized and multi-BSS addresses derive from a burned-in
// vendor MAC with only that bit flipped. When that also misses, the
// trailing two prefix octets are matched against the suffix index, which
// catches firmware that transforms the whole first octet.
func (r *Resolver) Manufacturer(mac string) string {
	mac = strings.ToLower(strings.TrimSpace(mac))
	if len(mac) < 8 {
		return ""
	}

	if r.cache != nil {
		if vendor, ok := r.cache.Get(mac); ok {
			return vendor
		}
	}

	r.ensureLoaded()

	vendor := r.lookup(mac[:8])
	if vendor == "" {
		if cleared, ok := clearLocalBit(mac); ok {
			vendor = r.lookup(cleared[:8])
		}
		if vendor == "" {
			vendor = r.lookupSuffix(mac)
		}
	}

	if r.cache != nil {
		r.cache.Put(mac, vendor)
	}
	return vendor
}

func (r *Resolver) lookup(prefix string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index[prefix]
}

// lookupSuffix resolves a locally-administered unicast address whose trailing
// two prefix octets belong to exactly one globally-administered OUI. The
// suffix index is built on first use from the loaded registries.
func (r *Resolver) lookupSuffix(mac string) string {
	b, ok := hexByte(mac[0], mac[1])
	if !ok || b&0x02 == 0 || b&0x01 != 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suffixIndex == nil {
		r.suffixIndex = buildSuffixIndex(r.index)
	}
	return r.suffixIndex[mac[3:8]]
}

// buildSuffixIndex maps the trailing two prefix octets to a vendor, keeping
// only suffixes owned by exactly one globally-administered OUI so the
// fallback cannot invent a vendor for an ambiguous suffix.
func buildSuffixIndex(index map[string]string) map[string]string {
	owners := make(map[string]int)
	vendors := make(map[string]string)
	for prefix, vendor := range index {
		b, ok := hexByte(prefix[0], prefix[1])
		if !ok || b&0x02 != 0 || vendor == "" {
			continue
		}
		suffix := prefix[3:8]
		owners[suffix]++
		vendors[suffix] = vendor
	}

	resolved := make(map[string]string)
	for suffix, n := range owners {
		if n == 1 {
			resolved[suffix] = vendors[suffix]
		}
	}
	return resolved
}

// clearLocalBit returns mac with the locally-administered bit of the first
// octet cleared, and whether it was set at all.
func clearLocalBit(mac string) (string, bool) {
	b, ok := hexByte(mac[0], mac[1])
	if !ok || b&0x02 == 0 {
		return "", false
	}
	b &^= 0x02
	const hexdigits = "0123456789abcdef"
	return string([]byte{hexdigits[b>>4], hexdigits[b&0x0f]}) + mac[2:], true
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexNibble(hi)
	l, ok2 := hexNibble(lo)
	return h<<4 | l, ok1 && ok2
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (r *Resolver) ensureLoaded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	r.loaded = true

	for _, path := range r.config.SourcePaths {
		n, err := r.loadFile(path)
		if err != nil {
			continue
		}
		r.logger.Debug("Loaded OUI registry", "path", path, "prefixes", n)
	}
	if len(r.index) == 0 {
		r.logger.Warn("No OUI registry found, vendor resolution disabled",
			"paths", strings.Join(r.config.SourcePaths, ", "))
	}
}

// loadFile parses one registry file. All three common formats share the
// shape "prefix <whitespace> name", differing only in prefix spelling and
// extra columns, so a single tolerant parser covers them.
func (r *Resolver) loadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	added := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prefix, vendor := parseRegistryLine(line)
		if prefix == "" || vendor == "" {
			continue
		}
		if _, exists := r.index[prefix]; !exists {
			r.index[prefix] = vendor
			added++
		}
	}
	return added, scanner.Err()
}

// parseRegistryLine handles the wireshark manuf format
// ("AA:BB:CC<TAB>Short<TAB>Long Name"), the IEEE oui.txt format
// ("AA-BB-CC   (hex)  Vendor") and the nmap format ("AABBCC Vendor").
func parseRegistryLine(line string) (prefix, vendor string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", ""
	}

	prefix = normalizePrefix(fields[0])
	if prefix == "" {
		return "", ""
	}

	rest := fields[1:]
	if rest[0] == "(hex)" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", ""
	}

	// manuf carries short and long names tab-separated; prefer the long one.
	if cols := strings.Split(line, "\t"); len(cols) >= 3 && strings.TrimSpace(cols[2]) != "" {
		return prefix, strings.TrimSpace(cols[2])
	}
	return prefix, strings.Join(rest, " ")
}

// normalizePrefix canonicalizes a 24-bit prefix to "aa:bb:cc". Longer
// masked prefixes (manuf /28 and /36 entries) are ignored.
func normalizePrefix(raw string) string {
	raw = strings.ToLower(raw)
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		return ""
	}
	raw = strings.ReplaceAll(raw, "-", ":")
	if len(raw) == 6 && !strings.Contains(raw, ":") {
		raw = raw[0:2] + ":" + raw[2:4] + ":" + raw[4:6]
	}
	if len(raw) != 8 || raw[2] != ':' || raw[5] != ':' {
		return ""
	}
	for i, c := range []byte(raw) {
		if i == 2 || i == 5 {
			continue
		}
		if _, ok := hexNibble(c); !ok {
			return ""
		}
	}
	return raw
}
