package models

// HandshakeQuality classifies what a capture file contains for one target.
type HandshakeQuality int

const (
	QualityNone HandshakeQuality = iota
	QualityPartial
	QualityPMKID
	QualityFull
)

func (q HandshakeQuality) String() string {
	switch q {
	case QualityPartial:
		return "partial"
	case QualityPMKID:
		return "pmkid"
	case QualityFull:
		return "full"
	default:
		return "none"
	}
}

// Crackable reports whether the capture is worth handing to a cracker.
func (q HandshakeQuality) Crackable() bool {
	return q == QualityPMKID || q == QualityFull
}
