package game

import (
	"math"

	"tankwar/internal/config"
)

// Projectile is one cannon shot in flight. Shots travel on the sphere
// surface along a fixed heading; hit testing sweeps the chord covered during
// the tick so fast shots cannot tunnel through a hull.
type Projectile struct {
	ID      uint64  `json:"id"`
	OwnerID string  `json:"ownerId"`
	Faction Faction `json:"f"`
	FromBot bool    `json:"-"`

	Theta   float64 `json:"t"`
	Phi     float64 `json:"p"`
	Heading float64 `json:"h"`
	Speed   float64 `json:"s"`
	Power   float64 `json:"pw"`

	Damage   int     `json:"-"`
	Range    float64 `json:"-"`
	Age      float64 `json:"-"`
	Traveled float64 `json:"-"`

	prevTheta float64
	prevPhi   float64
}

// ChargeDamage returns the damage of a shot at the given charge power,
// scaling x1 at power 0 to x3 at power 10.
func ChargeDamage(base int, power float64) int {
	return int(math.Round(float64(base) * (1 + power/5)))
}

// NewProjectile spawns a shot with charge scaling applied: speed x1->x2,
// range and damage x1->x3 across power 0-10.
func NewProjectile(id uint64, ownerID string, faction Faction, fromBot bool, theta, phi, heading, power float64, cfg config.ProjectileConfig) *Projectile {
	if power < 0 {
		power = 0
	}
	if power > 10 {
		power = 10
	}
	return &Projectile{
		ID:        id,
		OwnerID:   ownerID,
		Faction:   faction,
		FromBot:   fromBot,
		Theta:     theta,
		Phi:       phi,
		Heading:   wrapAngle(heading),
		Speed:     cfg.BaseSpeed * (1 + power/10),
		Power:     power,
		Damage:    ChargeDamage(cfg.BaseDamage, power),
		Range:     cfg.BaseRange * (1 + power/5),
		prevTheta: theta,
		prevPhi:   phi,
	}
}

// Advance integrates the shot one tick and records the chord start for
// swept hit testing.
func (pr *Projectile) Advance(dt, radius float64) {
	pr.prevTheta = pr.Theta
	pr.prevPhi = pr.Phi
	step := pr.Speed * dt
	pr.Theta, pr.Phi = advanceOnSphere(pr.Theta, pr.Phi, pr.Heading, step, radius)
	pr.Age += dt
	pr.Traveled += step
}

// Expired reports whether the shot has outlived its range or lifetime.
func (pr *Projectile) Expired(maxLifetime float64) bool {
	return pr.Age > maxLifetime || pr.Traveled > pr.Range
}

// HitsTank runs the swept oriented-box test against one tank, preceded by a
// distance quick-reject around the chord midpoint.
func (pr *Projectile) HitsTank(tankTheta, tankPhi, tankHeading float64, hull Hull, radius float64) bool {
	midTheta := pr.prevTheta + wrapAngle(pr.Theta-pr.prevTheta)/2
	midPhi := (pr.prevPhi + pr.Phi) / 2
	chordHalf := surfaceDistance(pr.prevTheta, pr.prevPhi, pr.Theta, pr.Phi, radius) / 2
	reach := chordHalf + hull.BoundRadius() + 1.0
	if surfaceDistance(midTheta, midPhi, tankTheta, tankPhi, radius) > reach {
		return false
	}
	return segmentHitsHull(tankTheta, tankPhi, tankHeading, pr.prevTheta, pr.prevPhi, pr.Theta, pr.Phi, hull, radius)
}
