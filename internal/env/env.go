// Package env abstracts the recon daemon the decision core drives: it
// reads the radio environment and dispatches attack phases.
package env

import (
	"context"

	"airbrain/pkg/models"
)

// Environment is the read/steer side of the recon daemon.
type Environment interface {
	// AccessPoints returns the currently visible networks, clients
	// embedded per AP.
	AccessPoints(ctx context.Context) ([]models.AccessPoint, error)
	// Stations returns all visible client stations.
	Stations(ctx context.Context) ([]models.Station, error)
	// SetChannel steers recon to one channel; ch <= 0 releases the
	// restriction.
	SetChannel(ctx context.Context, ch int) error
}

// AttackReport summarizes what one dispatch actually sent, so the
// caller can account for it in epoch counters and blacklisting.
type AttackReport struct {
	Deauths      int
	Associations int
	Probes       int
}

// AttackRunner executes one attack phase against a target.
type AttackRunner interface {
	Perform(ctx context.Context, phase models.AttackPhase, ap models.AccessPoint, stations []models.Station) (AttackReport, error)
}
