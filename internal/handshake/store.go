package handshake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"airbrain/internal/logger"
	"airbrain/pkg/models"
)

const defaultCacheTTL = 5 * time.Minute

// Entry is one analyzed capture file.
type Entry struct {
	BSSID   string
	SSID    string
	Path    string
	Quality models.HandshakeQuality
}

// Store indexes the capture directory by BSSID. Captures are written by
// the sniffer as <ssid>_<bssid>.pcap; the store validates each file and
// caches the verdict so the hot path never re-parses pcaps.
type Store struct {
	mu       sync.Mutex
	dir      string
	ttl      time.Duration
	entries  map[string]Entry
	lastScan time.Time

	now func() time.Time
}

// NewStore creates a store over the given capture directory.
func NewStore(dir string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Store{
		dir:     dir,
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Scan refreshes the quality cache if it has expired. A scan validates
// every .pcap in the directory, so callers on the decision path should
// rely on the TTL rather than forcing.
func (s *Store) Scan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) > 0 && s.now().Sub(s.lastScan) < s.ttl {
		return nil
	}
	return s.scanLocked()
}

// Rescan bypasses the TTL. Used after a capture event lands so the new
// file is graded immediately.
func (s *Store) Rescan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanLocked()
}

func (s *Store) scanLocked() error {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading capture dir: %w", err)
	}

	entries := make(map[string]Entry)
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".pcap") {
			continue
		}
		ssid, bssid, ok := parseCaptureName(name)
		if !ok {
			continue
		}
		path := filepath.Join(s.dir, name)
		res, err := Validate(path)
		if err != nil {
			logger.Warnf("skipping unreadable capture %s: %v", name, err)
			continue
		}
		entries[bssid] = Entry{
			BSSID:   bssid,
			SSID:    ssid,
			Path:    path,
			Quality: res.Quality,
		}
		logger.Debugf("capture %s (%s): %s [validated=%t nc=%t temporal=%t]",
			ssid, bssid, res.Quality, res.Validated, res.NonceCorrection, res.TemporalValid)
	}

	s.entries = entries
	s.lastScan = s.now()
	logger.Infof("capture store: analyzed %d files in %s", len(entries), s.dir)
	return nil
}

// Quality returns the graded quality for a BSSID, or QualityNone if no
// capture exists for it.
func (s *Store) Quality(bssid string) models.HandshakeQuality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[normalizeBSSID(bssid)].Quality
}

// Path returns the capture file path for a BSSID, or "" if none.
func (s *Store) Path(bssid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[normalizeBSSID(bssid)].Path
}

// Crackable reports whether a usable (full or PMKID) capture already
// exists for the BSSID.
func (s *Store) Crackable(bssid string) bool {
	return s.Quality(bssid).Crackable()
}

// FullCount returns how many targets have a usable capture.
func (s *Store) FullCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Quality.Crackable() {
			n++
		}
	}
	return n
}

// Entries returns a copy of the current cache.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// TotalBytes sums the sizes of all .pcap files in the directory. The
// sniffer appends to existing files, so a byte-count delta detects new
// handshake material that a filename scan would miss.
func (s *Store) TotalBytes() int64 {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".pcap") {
			continue
		}
		if info, err := de.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

// parseCaptureName splits <ssid>_<bssid>.pcap. The BSSID part is either
// 12 bare hex digits or a dash-separated MAC; both normalize to the
// colon form.
func parseCaptureName(name string) (ssid, bssid string, ok bool) {
	base := strings.TrimSuffix(name, ".pcap")
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return "", "", false
	}
	ssid = base[:idx]
	raw := base[idx+1:]

	switch len(raw) {
	case 12:
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if !isHex(raw[i]) || !isHex(raw[i+1]) {
				return "", "", false
			}
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteByte(raw[i])
			b.WriteByte(raw[i+1])
		}
		return ssid, strings.ToLower(b.String()), true
	case 17:
		return ssid, normalizeBSSID(strings.ReplaceAll(raw, "-", ":")), true
	default:
		return "", "", false
	}
}

func normalizeBSSID(bssid string) string {
	return strings.ToLower(bssid)
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
