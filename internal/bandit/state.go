package bandit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"airbrain/internal/logger"
)

// Snapshot format: little-endian, magic+version header, summary
// counters, mode-bandit arrays, then one length-prefixed record per
// entity so layout changes bump the version instead of silently
// corrupting old files.
const (
	stateMagic   uint32 = 0x41425253 // "ABRS"
	stateVersion uint32 = 2
)

// Save writes the brain's learned state to path.
func (b *Brain) Save(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var buf bytes.Buffer
	putU32(&buf, stateMagic)
	putU32(&buf, stateVersion)
	putU64(&buf, b.totalDecisions)
	putU64(&buf, b.totalHandshakes)
	putI64(&buf, b.startedAt.Unix())

	for i := 0; i < ModeCount; i++ {
		putF64(&buf, b.modeAlpha[i])
	}
	for i := 0; i < ModeCount; i++ {
		putF64(&buf, b.modeBeta[i])
	}

	putU32(&buf, uint32(b.arena.Len()))
	for i := range b.arena.slots {
		if !b.arena.inUse[i] {
			continue
		}
		rec := encodeEntity(&b.arena.slots[i])
		putU32(&buf, uint32(len(rec)))
		buf.Write(rec)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	logger.Infof("Saved brain state to %s (%d entities)", path, b.arena.Len())
	return nil
}

// Load restores the brain's state from path. A missing file, or one
// with an unknown magic or version, leaves the brain fresh and returns
// nil; learned state is a cache, not a contract.
func (b *Brain) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	r := bytes.NewReader(data)
	magic, err1 := getU32(r)
	version, err2 := getU32(r)
	if err1 != nil || err2 != nil || magic != stateMagic || version != stateVersion {
		logger.Warnf("Ignoring state file %s: unknown format (magic=%08x version=%d)", path, magic, version)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.totalDecisions, err = getU64(r); err != nil {
		return fmt.Errorf("truncated state header: %w", err)
	}
	if b.totalHandshakes, err = getU64(r); err != nil {
		return fmt.Errorf("truncated state header: %w", err)
	}
	started, err := getI64(r)
	if err != nil {
		return fmt.Errorf("truncated state header: %w", err)
	}
	b.startedAt = time.Unix(started, 0)

	for i := 0; i < ModeCount; i++ {
		if b.modeAlpha[i], err = getF64(r); err != nil {
			return fmt.Errorf("truncated mode priors: %w", err)
		}
	}
	for i := 0; i < ModeCount; i++ {
		if b.modeBeta[i], err = getF64(r); err != nil {
			return fmt.Errorf("truncated mode priors: %w", err)
		}
	}

	count, err := getU32(r)
	if err != nil {
		return fmt.Errorf("truncated entity count: %w", err)
	}

	b.arena = NewArena()
	for i := uint32(0); i < count; i++ {
		recLen, err := getU32(r)
		if err != nil {
			break
		}
		rec := make([]byte, recLen)
		if _, err := io.ReadFull(r, rec); err != nil {
			break
		}
		e, err := decodeEntity(rec)
		if err != nil {
			logger.Warnf("Skipping corrupt entity record %d: %v", i, err)
			continue
		}
		if b.arena.count < MaxEntities {
			idx := b.arena.count
			b.arena.slots[idx] = e
			b.arena.inUse[idx] = true
			b.arena.count++
		}
	}

	logger.Infof("Loaded brain state from %s (%d entities)", path, b.arena.Len())
	return nil
}

func encodeEntity(e *Entity) []byte {
	var buf bytes.Buffer
	putString(&buf, e.MAC)
	putString(&buf, e.SSID)
	putString(&buf, e.Vendor)
	putString(&buf, e.Encryption)
	putString(&buf, e.SoftIdentity)
	putU32(&buf, uint32(e.Channel))
	putU32(&buf, uint32(e.Beacon))
	putF64(&buf, e.Alpha)
	putF64(&buf, e.Beta)
	putF64(&buf, e.ClientBoost)
	buf.WriteByte(byte(e.Status))
	putI64(&buf, e.FirstSeen.Unix())
	putI64(&buf, e.LastSeen.Unix())
	putI64(&buf, e.LastAttacked.Unix())
	putU32(&buf, uint32(e.TotalInteractions))
	putU32(&buf, uint32(e.TotalSuccesses))
	return buf.Bytes()
}

func decodeEntity(rec []byte) (Entity, error) {
	r := bytes.NewReader(rec)
	e := Entity{signal: SignalTracker{ewma: signalInitLevel}}

	var err error
	if e.MAC, err = getString(r); err != nil {
		return Entity{}, err
	}
	if e.SSID, err = getString(r); err != nil {
		return Entity{}, err
	}
	if e.Vendor, err = getString(r); err != nil {
		return Entity{}, err
	}
	if e.Encryption, err = getString(r); err != nil {
		return Entity{}, err
	}
	if e.SoftIdentity, err = getString(r); err != nil {
		return Entity{}, err
	}

	ch, err := getU32(r)
	if err != nil {
		return Entity{}, err
	}
	beacon, err := getU32(r)
	if err != nil {
		return Entity{}, err
	}
	e.Channel = int(ch)
	e.Beacon = int(beacon)

	if e.Alpha, err = getF64(r); err != nil {
		return Entity{}, err
	}
	if e.Beta, err = getF64(r); err != nil {
		return Entity{}, err
	}
	if e.ClientBoost, err = getF64(r); err != nil {
		return Entity{}, err
	}

	status, err := r.ReadByte()
	if err != nil {
		return Entity{}, err
	}
	e.Status = Status(status)

	firstSeen, err := getI64(r)
	if err != nil {
		return Entity{}, err
	}
	lastSeen, err := getI64(r)
	if err != nil {
		return Entity{}, err
	}
	lastAttacked, err := getI64(r)
	if err != nil {
		return Entity{}, err
	}
	e.FirstSeen = time.Unix(firstSeen, 0)
	e.LastSeen = time.Unix(lastSeen, 0)
	e.LastAttacked = time.Unix(lastAttacked, 0)

	interactions, err := getU32(r)
	if err != nil {
		return Entity{}, err
	}
	successes, err := getU32(r)
	if err != nil {
		return Entity{}, err
	}
	e.TotalInteractions = int(interactions)
	e.TotalSuccesses = int(successes)

	if e.Alpha <= 0 {
		e.Alpha = 1
	}
	if e.Beta <= 0 {
		e.Beta = 1
	}
	return e, nil
}

func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putI64(buf *bytes.Buffer, v int64) {
	putU64(buf, uint64(v))
}

func putF64(buf *bytes.Buffer, v float64) {
	putU64(buf, math.Float64bits(v))
}

func putString(buf *bytes.Buffer, s string) {
	if len(s) > 0xFFFF {
		s = s[:0xFFFF]
	}
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	buf.Write(tmp[:])
	buf.WriteString(s)
}

func getU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func getU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func getI64(r *bytes.Reader) (int64, error) {
	v, err := getU64(r)
	return int64(v), err
}

func getF64(r *bytes.Reader) (float64, error) {
	v, err := getU64(r)
	return math.Float64frombits(v), err
}

func getString(r *bytes.Reader) (string, error) {
	var tmp [2]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(tmp[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
