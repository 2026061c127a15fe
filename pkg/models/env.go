package models

// AccessPoint is one visible access point as reported by the recon daemon.
type AccessPoint struct {
	MAC        string    `json:"mac"`
	SSID       string    `json:"hostname"`
	Vendor     string    `json:"vendor"`
	Channel    int       `json:"channel"`
	Frequency  int       `json:"frequency"`
	RSSI       int       `json:"rssi"`
	Encryption string    `json:"encryption"`
	Cipher     string    `json:"cipher"`
	Auth       string    `json:"authentication"`
	Beacon     int       `json:"beacon_interval"`
	Clients    []Station `json:"clients"`
}

// Station is a client associated to an access point.
type Station struct {
	MAC  string `json:"mac"`
	RSSI int    `json:"rssi"`
}

// AttackPhase identifies one attack technique.
type AttackPhase int

const (
	PhasePMKID AttackPhase = iota
	PhaseCSA
	PhaseDeauth
	PhasePMFBypass
	PhaseDisassoc
	PhaseRogueM2
	PhaseProbe
	PhasePassive

	NumAttackPhases = 8
)

func (p AttackPhase) String() string {
	switch p {
	case PhasePMKID:
		return "pmkid"
	case PhaseCSA:
		return "csa"
	case PhaseDeauth:
		return "deauth"
	case PhasePMFBypass:
		return "pmf_bypass"
	case PhaseDisassoc:
		return "disassoc"
	case PhaseRogueM2:
		return "rogue_m2"
	case PhaseProbe:
		return "probe"
	case PhasePassive:
		return "passive"
	default:
		return "unknown"
	}
}
