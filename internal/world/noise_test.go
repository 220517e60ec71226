package world

import (
	"math"
	"testing"
)

// TestPerlinDeterministic tests that the same seed reproduces the field
func TestPerlinDeterministic(t *testing.T) {
	a := NewPerlin(7331)
	b := NewPerlin(7331)
	for i := 0; i < 100; i++ {
		x, y, z := float64(i)*0.13, float64(i)*0.29, float64(i)*0.07
		if a.Noise3D(x, y, z) != b.Noise3D(x, y, z) {
			t.Fatalf("seeded noise differs at sample %d", i)
		}
	}
}

// TestPerlinSeedsDiffer tests that different seeds change the field
func TestPerlinSeedsDiffer(t *testing.T) {
	a := NewPerlin(1)
	b := NewPerlin(2)
	same := true
	for i := 0; i < 50 && same; i++ {
		x := float64(i)*0.37 + 0.1
		if a.Noise3D(x, x*0.5, x*0.25) != b.Noise3D(x, x*0.5, x*0.25) {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical noise")
	}
}

// TestPerlinRange tests raw noise bounds
func TestPerlinRange(t *testing.T) {
	p := NewPerlin(99)
	for i := 0; i < 1000; i++ {
		x, y, z := float64(i)*0.11, float64(i)*0.17, float64(i)*0.23
		v := p.Noise3D(x, y, z)
		if v < -1 || v > 1 {
			t.Fatalf("Noise3D out of [-1,1]: %v", v)
		}
		if math.IsNaN(v) {
			t.Fatal("Noise3D returned NaN")
		}
	}
}

// TestOctaveNoiseRange tests that octave stacking stays normalized
func TestOctaveNoiseRange(t *testing.T) {
	p := NewPerlin(99)
	for i := 0; i < 1000; i++ {
		x, y, z := float64(i)*0.05, float64(i)*0.09, float64(i)*0.03
		v := p.OctaveNoise3D(x, y, z, 4, 2.3, 0.55)
		if v < -1 || v > 1 {
			t.Fatalf("OctaveNoise3D out of [-1,1]: %v", v)
		}
	}
}
