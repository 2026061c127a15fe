// Package handshake validates WPA handshake captures and tracks their
// quality per target network.
package handshake

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"airbrain/internal/logger"
	"airbrain/pkg/models"
)

const (
	// replayWindow bounds how far apart replay counters of two frames
	// from the same exchange may drift.
	replayWindow = 3

	// noncePrefixLen is the number of ANonce bytes that must match
	// between M1 and M3. A mismatch in only the last 4 bytes means the
	// capture is still usable with nonce correction enabled.
	noncePrefixLen = 28

	// temporalThresholdMS flags captures whose consecutive messages
	// arrived suspiciously far apart. Informational only: crackers
	// ignore timing.
	temporalThresholdMS = 250
)

// Result describes what one capture file contains and how trustworthy
// it is.
type Result struct {
	EAPOLCount int

	HasM1    bool
	HasM2    bool
	HasM3    bool
	HasM4    bool
	HasPMKID bool

	ReplayValid     bool
	NonceValid      bool
	NonceCorrection bool
	TemporalValid   bool

	// Validated means the replay counter and nonce checks both passed,
	// so the collected messages belong to a single exchange.
	Validated bool
	Crackable bool
	Full      bool

	Quality models.HandshakeQuality
}

type message struct {
	seen   bool
	nonce  [32]byte
	replay uint64
	ts     time.Time
}

// fourWay accumulates handshake state across the frames of one capture.
// The first M1 whose replay counter is confirmed by a matching M2 locks
// the pair; later exchanges in the same file no longer overwrite it.
type fourWay struct {
	m1, m2, m3, m4 message

	m1m2Locked bool
	m3Locked   bool

	pmkid      bool
	eapolCount int
}

// Validate parses a pcap file and classifies the handshake material in
// it. The same file always yields the same result.
func Validate(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return Result{}, fmt.Errorf("reading capture header: %w", err)
	}

	var hs fourWay
	for {
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Truncated tail, commonly from a capture cut mid-write.
			// Keep whatever parsed cleanly.
			logger.Debugf("capture %s truncated: %v", path, err)
			break
		}
		hs.feed(data, r.LinkType(), ci.Timestamp)
	}

	return hs.finalize(), nil
}

func (hs *fourWay) feed(data []byte, linkType layers.LinkType, ts time.Time) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.Lazy)
	layer := pkt.Layer(layers.LayerTypeEAPOLKey)
	if layer == nil {
		return
	}
	key := layer.(*layers.EAPOLKey)
	if len(key.Nonce) < 32 || len(key.MIC) < 16 {
		return
	}

	hs.eapolCount++

	switch classify(key) {
	case 1:
		// M1 carries the ANonce and no MIC.
		if !micIsZero(key.MIC) || nonceIsZero(key.Nonce) {
			return
		}
		if !hs.m1m2Locked {
			hs.m1.seen = true
			copy(hs.m1.nonce[:], key.Nonce)
			hs.m1.replay = key.ReplayCounter
			hs.m1.ts = ts
		}
		// PMKID rides in the M1 key data, independent of the lock.
		if key.KeyDataLength >= 22 && hasPMKID(keyData(key)) {
			hs.pmkid = true
		}

	case 2:
		// M2 carries the SNonce and a MIC.
		if hs.m1m2Locked || micIsZero(key.MIC) || nonceIsZero(key.Nonce) {
			return
		}
		rc := key.ReplayCounter
		if hs.m1.seen && rc >= hs.m1.replay && rc <= hs.m1.replay+replayWindow {
			// Confirmed pair from one exchange.
			hs.m2.seen = true
			copy(hs.m2.nonce[:], key.Nonce)
			hs.m2.replay = rc
			hs.m2.ts = ts
			hs.m1m2Locked = true
		} else if !hs.m2.seen {
			// Unconfirmed fallback; a later matching pair replaces it.
			hs.m2.seen = true
			copy(hs.m2.nonce[:], key.Nonce)
			hs.m2.replay = rc
			hs.m2.ts = ts
		}

	case 3:
		if micIsZero(key.MIC) || nonceIsZero(key.Nonce) {
			return
		}
		if hs.m1m2Locked && !hs.m3Locked {
			// Only accept an M3 whose ANonce continues the locked
			// exchange.
			if bytes.Equal(hs.m1.nonce[:noncePrefixLen], key.Nonce[:noncePrefixLen]) {
				hs.m3.seen = true
				copy(hs.m3.nonce[:], key.Nonce)
				hs.m3.replay = key.ReplayCounter
				hs.m3.ts = ts
				hs.m3Locked = true
			}
		} else if !hs.m1m2Locked {
			hs.m3.seen = true
			copy(hs.m3.nonce[:], key.Nonce)
			hs.m3.replay = key.ReplayCounter
			hs.m3.ts = ts
		}

	case 4:
		if micIsZero(key.MIC) {
			return
		}
		rc := key.ReplayCounter
		if hs.m3Locked {
			if rc >= hs.m3.replay && rc <= hs.m3.replay+replayWindow {
				hs.m4.seen = true
				hs.m4.replay = rc
				hs.m4.ts = ts
			}
		} else {
			hs.m4.seen = true
			hs.m4.replay = rc
			hs.m4.ts = ts
		}
	}
}

// classify maps key_info flags to the handshake message number.
// M4 shares ACK=0 MIC=1 with M2 and must be distinguished first by its
// Secure bit.
func classify(key *layers.EAPOLKey) int {
	switch {
	case key.KeyACK && !key.KeyMIC:
		return 1
	case key.KeyACK && key.KeyMIC && key.Install:
		return 3
	case !key.KeyACK && key.KeyMIC && key.Secure:
		return 4
	case !key.KeyACK && key.KeyMIC && !key.Secure:
		return 2
	}
	return 0
}

func (hs *fourWay) finalize() Result {
	res := Result{
		EAPOLCount: hs.eapolCount,
		HasM1:      hs.m1.seen,
		HasM2:      hs.m2.seen,
		HasM3:      hs.m3.seen,
		HasM4:      hs.m4.seen,
		HasPMKID:   hs.pmkid,

		ReplayValid:   true,
		NonceValid:    true,
		TemporalValid: true,
	}

	res.Crackable = res.HasPMKID ||
		(res.HasM1 && res.HasM2) ||
		(res.HasM2 && res.HasM3)
	res.Full = res.HasM1 && res.HasM2 && res.HasM3 && res.HasM4

	// Replay counters must advance within the window between
	// consecutive messages of one exchange.
	if res.HasM1 && res.HasM2 && !inWindow(hs.m2.replay, hs.m1.replay) {
		res.ReplayValid = false
	}
	if res.HasM2 && res.HasM3 && !inWindow(hs.m3.replay, hs.m2.replay) {
		res.ReplayValid = false
	}
	if res.HasM3 && res.HasM4 {
		if !inWindow(hs.m4.replay, hs.m3.replay) {
			res.ReplayValid = false
		}
	} else if res.HasM2 && res.HasM4 && !inWindow(hs.m4.replay, hs.m2.replay) {
		res.ReplayValid = false
	}

	// M1 and M3 must agree on the ANonce. A difference confined to the
	// last 4 bytes is recoverable with nonce correction.
	if res.HasM1 && res.HasM3 {
		if !bytes.Equal(hs.m1.nonce[:noncePrefixLen], hs.m3.nonce[:noncePrefixLen]) {
			res.NonceValid = false
		} else if !bytes.Equal(hs.m1.nonce[noncePrefixLen:], hs.m3.nonce[noncePrefixLen:]) {
			res.NonceCorrection = true
		}
	}

	if res.HasM1 && res.HasM2 && !withinThreshold(hs.m1.ts, hs.m2.ts) {
		res.TemporalValid = false
	}
	if res.HasM2 && res.HasM3 && !withinThreshold(hs.m2.ts, hs.m3.ts) {
		res.TemporalValid = false
	}
	if res.HasM3 && res.HasM4 && !withinThreshold(hs.m3.ts, hs.m4.ts) {
		res.TemporalValid = false
	}

	// Timing never affects crackability.
	res.Validated = res.ReplayValid && res.NonceValid

	if res.HasPMKID {
		res.Crackable = true
	}
	if res.HasM1 && res.HasM2 && !res.ReplayValid && !res.HasPMKID {
		// The stored M1/M2 come from different exchanges; the nonce
		// pair is useless.
		res.Crackable = false
		res.Full = false
	}
	if res.HasM1 && res.HasM3 && !res.NonceValid {
		res.Full = false
	}

	res.Quality = quality(res)
	return res
}

func quality(res Result) models.HandshakeQuality {
	switch {
	case res.Full && res.Validated:
		return models.QualityFull
	case res.Crackable && res.Validated:
		return models.QualityFull
	case res.HasPMKID:
		return models.QualityPMKID
	case res.Crackable:
		return models.QualityPartial
	case res.EAPOLCount > 0:
		return models.QualityPartial
	default:
		return models.QualityNone
	}
}

func inWindow(rc, base uint64) bool {
	return rc >= base && rc <= base+replayWindow
}

func withinThreshold(a, b time.Time) bool {
	delta := b.Sub(a)
	return delta >= 0 && delta <= temporalThresholdMS*time.Millisecond
}

// keyData returns the frame's key-data bytes. The decoder only fills
// EncryptedKeyData when the Encrypted-Key-Data bit is set; an M1's
// PMKID KDE travels as plaintext and stays in the layer payload.
func keyData(key *layers.EAPOLKey) []byte {
	if key.HasEncryptedKeyData {
		return key.EncryptedKeyData
	}
	data := key.LayerPayload()
	if n := int(key.KeyDataLength); n < len(data) {
		data = data[:n]
	}
	return data
}

// hasPMKID scans EAPOL key data for a vendor-specific KDE carrying a
// nonzero PMKID (OUI 00:0F:AC, data type 4).
func hasPMKID(keyData []byte) bool {
	for i := 0; i+2 < len(keyData); {
		tag := keyData[i]
		length := int(keyData[i+1])
		if i+2+length > len(keyData) {
			return false
		}
		if tag == 0xDD && length >= 20 &&
			keyData[i+2] == 0x00 && keyData[i+3] == 0x0F &&
			keyData[i+4] == 0xAC && keyData[i+5] == 0x04 {
			pmkid := keyData[i+6 : i+22]
			for _, b := range pmkid {
				if b != 0 {
					return true
				}
			}
		}
		i += 2 + length
	}
	return false
}

func micIsZero(mic []byte) bool {
	for _, b := range mic {
		if b != 0 {
			return false
		}
	}
	return true
}

func nonceIsZero(nonce []byte) bool {
	for _, b := range nonce {
		if b != 0 {
			return false
		}
	}
	return true
}
