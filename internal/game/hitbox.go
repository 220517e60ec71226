package game

import "math"

// Hull is the oriented collision box of a tank, aligned to its heading.
// HalfLength runs along the heading, HalfWidth across it.
type Hull struct {
	HalfLength float64
	HalfWidth  float64
}

// BoundRadius returns the radius of the circle that encloses the hull,
// used for cheap quick-reject checks before the oriented test.
func (h Hull) BoundRadius() float64 {
	return math.Hypot(h.HalfLength, h.HalfWidth)
}

// tangentOffset maps a surface point into the local tangent plane of a
// reference point, in world units. East is increasing theta, north is
// decreasing phi. The longitude delta shrinks by sin(phi) so offsets stay
// metric at every latitude.
func tangentOffset(refTheta, refPhi, theta, phi, radius float64) (east, north float64) {
	east = wrapAngle(theta-refTheta) * math.Sin(refPhi) * radius
	north = (refPhi - phi) * radius
	return east, north
}

// segmentHitsHull tests a swept projectile chord (A to B, spherical coords)
// against a tank hull at (tankTheta, tankPhi) facing tankHeading. Both chord
// endpoints are projected into the tank's tangent frame, rotated into
// hull-local axes, then clipped against the box with the slab method.
// All checks are O(1); no iteration over geometry.
func segmentHitsHull(tankTheta, tankPhi, tankHeading float64, aTheta, aPhi, bTheta, bPhi float64, hull Hull, radius float64) bool {
	ae, an := tangentOffset(tankTheta, tankPhi, aTheta, aPhi, radius)
	be, bn := tangentOffset(tankTheta, tankPhi, bTheta, bPhi, radius)

	sin, cos := math.Sincos(tankHeading)

	// Rotate into the hull frame: x along heading, y to the right.
	ax := ae*sin + an*cos
	ay := ae*cos - an*sin
	bx := be*sin + bn*cos
	by := be*cos - bn*sin

	return segmentIntersectsBox(ax, ay, bx, by, hull.HalfLength, hull.HalfWidth)
}

// segmentIntersectsBox clips the segment (ax,ay)-(bx,by) against the
// axis-aligned box [-hx,hx] x [-hy,hy] (Liang-Barsky). Returns true when any
// part of the segment lies inside the box.
func segmentIntersectsBox(ax, ay, bx, by, hx, hy float64) bool {
	dx := bx - ax
	dy := by - ay
	tmin, tmax := 0.0, 1.0

	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		t := q / p
		if p < 0 {
			if t > tmax {
				return false
			}
			if t > tmin {
				tmin = t
			}
		} else {
			if t < tmin {
				return false
			}
			if t < tmax {
				tmax = t
			}
		}
		return tmin <= tmax
	}

	if !clip(-dx, ax+hx) {
		return false
	}
	if !clip(dx, hx-ax) {
		return false
	}
	if !clip(-dy, ay+hy) {
		return false
	}
	return clip(dy, hy-ay)
}

// surfaceDistance returns the great-circle distance between two surface
// points in world units.
func surfaceDistance(t1, p1, t2, p2, radius float64) float64 {
	// Unit-vector dot product in colatitude form.
	d := math.Sin(p1)*math.Sin(p2)*math.Cos(t1-t2) + math.Cos(p1)*math.Cos(p2)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d) * radius
}
