package bot

import "math"

// Spherical movement helpers mirroring the server integrator: theta is
// longitude in [-pi, pi), phi is colatitude clamped away from the poles,
// heading 0 points north and pi/2 east. The client prediction code runs the
// same law, so bots and humans trace identical arcs for identical inputs.

const poleMargin = 0.05

func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func clampColat(phi float64) float64 {
	if phi < poleMargin {
		return poleMargin
	}
	if phi > math.Pi-poleMargin {
		return math.Pi - poleMargin
	}
	return phi
}

func sphereStep(theta, phi, heading, dist, radius float64) (float64, float64) {
	if dist == 0 {
		return theta, phi
	}
	arc := dist / radius
	phi = clampColat(phi - arc*math.Cos(heading))
	theta = wrapAngle(theta + arc*math.Sin(heading)/math.Sin(phi))
	return theta, phi
}

func surfaceDist(t1, p1, t2, p2, radius float64) float64 {
	d := math.Sin(p1)*math.Sin(p2)*math.Cos(t1-t2) + math.Cos(p1)*math.Cos(p2)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d) * radius
}

// tangentOffset maps a point into the local east/north frame of a reference
// point, in world units.
func tangentOffset(refTheta, refPhi, theta, phi, radius float64) (east, north float64) {
	east = wrapAngle(theta-refTheta) * math.Sin(refPhi) * radius
	north = (refPhi - phi) * radius
	return east, north
}

// headingBetween returns the initial heading from one surface point toward
// another, in the local tangent frame of the first.
func headingBetween(fromTheta, fromPhi, toTheta, toPhi, radius float64) float64 {
	east, north := tangentOffset(fromTheta, fromPhi, toTheta, toPhi, radius)
	if east == 0 && north == 0 {
		return 0
	}
	return math.Atan2(east, north)
}

// turnToward rotates a heading toward a desired one, bounded by maxDelta.
func turnToward(current, desired, maxDelta float64) float64 {
	diff := wrapAngle(desired - current)
	if diff > maxDelta {
		diff = maxDelta
	} else if diff < -maxDelta {
		diff = -maxDelta
	}
	return wrapAngle(current + diff)
}
