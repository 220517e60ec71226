package game

import (
	"math"
	"testing"
)

// TestChargeScaling tests speed, range and damage scaling across the charge
// band, including the clamp at both ends
func TestChargeScaling(t *testing.T) {
	cfg := testConfig().Projectile

	p0 := NewProjectile(1, "p1", FactionRust, false, 0, math.Pi/2, 0, 0, cfg)
	if p0.Speed != 60 || p0.Range != 80 || p0.Damage != 25 {
		t.Errorf("Zero charge: expected 60/80/25, got %v/%v/%d", p0.Speed, p0.Range, p0.Damage)
	}

	p10 := NewProjectile(2, "p1", FactionRust, false, 0, math.Pi/2, 0, 10, cfg)
	if p10.Speed != 120 || p10.Range != 240 || p10.Damage != 75 {
		t.Errorf("Full charge: expected 120/240/75, got %v/%v/%d", p10.Speed, p10.Range, p10.Damage)
	}

	over := NewProjectile(3, "p1", FactionRust, false, 0, math.Pi/2, 0, 99, cfg)
	if over.Power != 10 || over.Damage != 75 {
		t.Errorf("Charge must clamp at 10, got power %v damage %d", over.Power, over.Damage)
	}
	under := NewProjectile(4, "p1", FactionRust, false, 0, math.Pi/2, 0, -3, cfg)
	if under.Power != 0 || under.Damage != 25 {
		t.Errorf("Charge must clamp at 0, got power %v damage %d", under.Power, under.Damage)
	}
}

// TestProjectileExpiresByRange tests a shot dies once it travels its range
func TestProjectileExpiresByRange(t *testing.T) {
	cfg := testConfig().Projectile
	pr := NewProjectile(1, "p1", FactionRust, false, 0, math.Pi/2, math.Pi/2, 0, cfg)

	dt := 1.0 / 20.0
	steps := 0
	for !pr.Expired(cfg.MaxLifetime) && steps < 1000 {
		pr.Advance(dt, 200)
		steps++
	}
	if pr.Traveled <= pr.Range {
		t.Fatalf("Expected expiry by range, traveled %v of %v", pr.Traveled, pr.Range)
	}
	// 80 units at 60 u/s and 3 units per tick expires on the tick that
	// crosses 80.
	if steps < 26 || steps > 28 {
		t.Errorf("Expected range expiry around tick 27, got %d", steps)
	}
	if pr.Age > cfg.MaxLifetime {
		t.Error("Range must expire the shot before its lifetime at zero charge")
	}
}

// TestProjectileExpiresByLifetime tests the lifetime backstop for shots whose
// range outlasts it
func TestProjectileExpiresByLifetime(t *testing.T) {
	cfg := testConfig().Projectile
	cfg.BaseRange = 1e9
	pr := NewProjectile(1, "p1", FactionRust, false, 0, math.Pi/2, 0, 0, cfg)

	dt := 1.0 / 20.0
	steps := 0
	for !pr.Expired(cfg.MaxLifetime) && steps < 1000 {
		pr.Advance(dt, 200)
		steps++
	}
	if steps < 80 || steps > 82 {
		t.Errorf("Expected lifetime expiry around tick 81, got %d", steps)
	}
}

// TestHitsTankHeadOn tests the swept chord connects with a hull directly in
// the flight path
func TestHitsTankHeadOn(t *testing.T) {
	cfg := testConfig().Projectile
	hull := Hull{HalfLength: cfg.HullHalfLength, HalfWidth: cfg.HullHalfWidth}
	radius := 200.0

	// Shot travels east along the equator; tank sits 15 units east facing
	// north, so its east extent is the half width.
	pr := NewProjectile(1, "p1", FactionRust, false, 0, math.Pi/2, math.Pi/2, 0, cfg)
	tankTheta := 15.0 / radius
	tankPhi := math.Pi / 2

	dt := 1.0 / 20.0
	hit := false
	for i := 0; i < 40 && !pr.Expired(cfg.MaxLifetime); i++ {
		pr.Advance(dt, radius)
		if pr.HitsTank(tankTheta, tankPhi, 0, hull, radius) {
			hit = true
			break
		}
	}
	if !hit {
		t.Fatal("Expected the shot to hit the tank in its path")
	}
	// The near face sits at 15 - 3 = 12 units; at 3 units per tick the
	// sweep crosses it between 12 and 15 units traveled.
	if pr.Traveled < 12 || pr.Traveled > 15+hull.BoundRadius() {
		t.Errorf("Hit at implausible travel distance %v", pr.Traveled)
	}
}

// TestHitsTankMissesAside tests a parallel shot offset past the hull width
// never connects
func TestHitsTankMissesAside(t *testing.T) {
	cfg := testConfig().Projectile
	hull := Hull{HalfLength: cfg.HullHalfLength, HalfWidth: cfg.HullHalfWidth}
	radius := 200.0

	// Same eastward flight, but the tank is 8 units north of the path.
	// Facing north, its north extent is the 3.5 half length.
	pr := NewProjectile(1, "p1", FactionRust, false, 0, math.Pi/2, math.Pi/2, 0, cfg)
	tankTheta := 15.0 / radius
	tankPhi := math.Pi/2 - 8.0/radius

	dt := 1.0 / 20.0
	for i := 0; i < 40 && !pr.Expired(cfg.MaxLifetime); i++ {
		pr.Advance(dt, radius)
		if pr.HitsTank(tankTheta, tankPhi, 0, hull, radius) {
			t.Fatalf("Shot hit a tank %v units off its path at travel %v", 8.0, pr.Traveled)
		}
	}
}

// TestHitsTankOrientationMatters tests the oriented box: the same offset hits
// along the long axis and misses along the short one
func TestHitsTankOrientationMatters(t *testing.T) {
	cfg := testConfig().Projectile
	hull := Hull{HalfLength: cfg.HullHalfLength, HalfWidth: cfg.HullHalfWidth}
	radius := 200.0

	// The tank sits 3.2 units north of an eastward shot line: inside the
	// 3.5 half length when facing north, outside the 3.0 half width when
	// facing east.
	tankTheta := 15.0 / radius
	tankPhi := math.Pi/2 - 3.2/radius

	for _, tc := range []struct {
		name    string
		heading float64
		want    bool
	}{
		{"facing north", 0, true},
		{"facing east", math.Pi / 2, false},
	} {
		pr := NewProjectile(1, "p1", FactionRust, false, 0, math.Pi/2, math.Pi/2, 0, cfg)
		hit := false
		for i := 0; i < 40 && !pr.Expired(cfg.MaxLifetime); i++ {
			pr.Advance(1.0/20.0, radius)
			if pr.HitsTank(tankTheta, tankPhi, tc.heading, hull, radius) {
				hit = true
				break
			}
		}
		if hit != tc.want {
			t.Errorf("%s: hit=%v, want %v", tc.name, hit, tc.want)
		}
	}
}

// TestSurfaceDistance tests great-circle distances on reference geometry
func TestSurfaceDistance(t *testing.T) {
	radius := 200.0

	// Quarter circumference between the pole margin and the equator is
	// close to R*pi/2; along the equator it is exact.
	if d := surfaceDistance(0, math.Pi/2, math.Pi/2, math.Pi/2, radius); math.Abs(d-radius*math.Pi/2) > 1e-9 {
		t.Errorf("Equator quarter arc: got %v, want %v", d, radius*math.Pi/2)
	}
	if d := surfaceDistance(1.2, math.Pi/3, 1.2, math.Pi/3, radius); d != 0 {
		t.Errorf("Zero distance for identical points, got %v", d)
	}
	// Antipodal points are half the circumference.
	if d := surfaceDistance(0, math.Pi/2, math.Pi, math.Pi/2, radius); math.Abs(d-radius*math.Pi) > 1e-9 {
		t.Errorf("Antipodal distance: got %v, want %v", d, radius*math.Pi)
	}
}

// TestBoundRadius tests the enclosing circle of the stock hull
func TestBoundRadius(t *testing.T) {
	hull := Hull{HalfLength: 3.5, HalfWidth: 3.0}
	want := math.Hypot(3.5, 3.0)
	if got := hull.BoundRadius(); got != want {
		t.Errorf("BoundRadius = %v, want %v", got, want)
	}
}

// TestTangentOffset tests the local frame mapping at a reference latitude
func TestTangentOffset(t *testing.T) {
	radius := 200.0

	// Five units east along the equator.
	east, north := tangentOffset(0, math.Pi/2, 5.0/radius, math.Pi/2, radius)
	if math.Abs(east-5) > 1e-9 || math.Abs(north) > 1e-9 {
		t.Errorf("East offset: got (%v, %v), want (5, 0)", east, north)
	}

	// Five units north (phi decreases northward).
	east, north = tangentOffset(0, math.Pi/2, 0, math.Pi/2-5.0/radius, radius)
	if math.Abs(east) > 1e-9 || math.Abs(north-5) > 1e-9 {
		t.Errorf("North offset: got (%v, %v), want (0, 5)", east, north)
	}

	// At 60 degrees colatitude the longitude delta shrinks by sin(phi).
	phi := math.Pi / 3
	east, north = tangentOffset(1.0, phi, 1.0+0.1, phi, radius)
	want := 0.1 * math.Sin(phi) * radius
	if math.Abs(east-want) > 1e-9 {
		t.Errorf("Latitude-scaled east offset: got %v, want %v", east, want)
	}

	// Wraparound across the dateline stays short.
	east, _ = tangentOffset(math.Pi-0.01, math.Pi/2, -math.Pi+0.01, math.Pi/2, radius)
	if math.Abs(east-0.02*radius) > 1e-9 {
		t.Errorf("Dateline offset: got %v, want %v", east, 0.02*radius)
	}
}
