package game

import (
	"errors"
	"testing"
)

func testEconomy() *EconomyEngine {
	return NewEconomyEngine(testConfig().Crypto)
}

// TestFireCost tests the base cost plus the rounded-up charge surcharge
func TestFireCost(t *testing.T) {
	e := testEconomy()
	cases := []struct {
		power float64
		want  int64
	}{
		{0, 5},
		{1, 6},
		{5.2, 11},
		{10, 15},
	}
	for _, c := range cases {
		if got := e.FireCost(c.power); got != c.want {
			t.Errorf("FireCost(%v) = %d, want %d", c.power, got, c.want)
		}
	}
}

// TestTrySpendFireDebtFloor tests spending may land exactly on the floor but
// never below it
func TestTrySpendFireDebtFloor(t *testing.T) {
	e := testEconomy()

	p := NewPlayer("p1", "Alice", FactionRust, PlayerOptions{})
	p.Crypto = -45
	cost, err := e.TrySpendFire(p, 0)
	if err != nil {
		t.Fatalf("Shot landing exactly on the floor must pass, got %v", err)
	}
	if cost != 5 || p.Crypto != -50 {
		t.Errorf("Expected cost 5 landing at -50, got cost %d balance %d", cost, p.Crypto)
	}
	if !p.OnLoan {
		t.Error("Negative balance should flag the loan")
	}

	p.Crypto = -46
	p.OnLoan = true
	if _, err := e.TrySpendFire(p, 0); !errors.Is(err, ErrInsufficientCrypto) {
		t.Fatalf("Expected ErrInsufficientCrypto below the floor, got %v", err)
	}
	if p.Crypto != -46 {
		t.Errorf("Rejected spend must not move the balance, got %d", p.Crypto)
	}
}

// TestAwardDamageCommanderBounty tests the commander multiplier applies to
// the victim's rank, not the attacker's
func TestAwardDamageCommanderBounty(t *testing.T) {
	e := testEconomy()

	p := NewPlayer("p1", "Alice", FactionRust, PlayerOptions{})
	if amt := e.AwardDamage(p, 25, false); amt != 5 {
		t.Errorf("Expected 5 for 25 damage, got %d", amt)
	}
	if amt := e.AwardDamage(p, 25, true); amt != 50 {
		t.Errorf("Expected 50 for 25 damage on a commander, got %d", amt)
	}
	if p.Crypto != 55 || p.TotalCrypto != 55 {
		t.Errorf("Expected 55/55 balance/lifetime, got %d/%d", p.Crypto, p.TotalCrypto)
	}

	// Fractional cents round down.
	if amt := e.AwardDamage(p, 3, false); amt != 0 {
		t.Errorf("Expected 3 damage to round to 0, got %d", amt)
	}
}

// TestAwardKill tests the kill bonus and its commander tier
func TestAwardKill(t *testing.T) {
	e := testEconomy()

	p := NewPlayer("p1", "Alice", FactionRust, PlayerOptions{})
	if amt := e.AwardKill(p, false); amt != 10 {
		t.Errorf("Expected 10 for a kill, got %d", amt)
	}
	if amt := e.AwardKill(p, true); amt != 100 {
		t.Errorf("Expected 100 for a commander kill, got %d", amt)
	}
}

// TestAwardTicTiers tests the large-cluster award tier
func TestAwardTicTiers(t *testing.T) {
	e := testEconomy()
	cfg := testConfig().Crypto

	p := NewPlayer("p1", "Alice", FactionRust, PlayerOptions{})
	if amt := e.AwardTic(p, cfg.LargeClusterMin-1); amt != int64(cfg.TicAward) {
		t.Errorf("Expected small tier %d, got %d", cfg.TicAward, amt)
	}
	if amt := e.AwardTic(p, cfg.LargeClusterMin); amt != int64(cfg.TicAwardLarge) {
		t.Errorf("Expected large tier %d, got %d", cfg.TicAwardLarge, amt)
	}
}

// TestAwardHolding tests the payout scales with owned clusters and skips
// factions holding nothing
func TestAwardHolding(t *testing.T) {
	e := testEconomy()

	p := NewPlayer("p1", "Alice", FactionRust, PlayerOptions{})
	if amt := e.AwardHolding(p, 3); amt != 6 {
		t.Errorf("Expected 6 for three clusters, got %d", amt)
	}
	if amt := e.AwardHolding(p, 0); amt != 0 {
		t.Errorf("Expected no payout for zero clusters, got %d", amt)
	}
	if p.Crypto != 6 {
		t.Errorf("Expected balance 6, got %d", p.Crypto)
	}
}

// TestTipRules tests every tip guard in order plus the transfer semantics
func TestTipRules(t *testing.T) {
	e := testEconomy()

	from := NewPlayer("alpha", "Alice", FactionRust, PlayerOptions{})
	to := NewPlayer("bravo", "Bob", FactionRust, PlayerOptions{})
	from.Crypto = 150

	if err := e.Tip(from, to, 0, 100, 20); !errors.Is(err, ErrTipBadAmount) {
		t.Errorf("Expected ErrTipBadAmount, got %v", err)
	}
	if err := e.Tip(from, to, 101, 100, 20); !errors.Is(err, ErrTipTooLarge) {
		t.Errorf("Expected ErrTipTooLarge above the cap, got %v", err)
	}

	if err := e.Tip(from, to, 100, 100, 20); err != nil {
		t.Fatalf("Expected the tip to pass, got %v", err)
	}
	if from.Crypto != 50 || to.Crypto != 100 {
		t.Errorf("Expected 50/100 after transfer, got %d/%d", from.Crypto, to.Crypto)
	}
	if to.TotalCrypto != 0 {
		t.Errorf("Tips must not raise lifetime earnings, got %d", to.TotalCrypto)
	}
	if from.LastTipTick != 100 {
		t.Errorf("Expected cooldown armed at tick 100, got %d", from.LastTipTick)
	}

	// Inside the 10 second window at 20 TPS.
	if err := e.Tip(from, to, 10, 299, 20); !errors.Is(err, ErrTipCooldown) {
		t.Errorf("Expected ErrTipCooldown at tick 299, got %v", err)
	}
	if err := e.Tip(from, to, 40, 300, 20); err != nil {
		t.Fatalf("Expected the tip to pass once the window closed, got %v", err)
	}
	if from.Crypto != 10 {
		t.Errorf("Expected balance 10 after the second tip, got %d", from.Crypto)
	}

	// Tips never create debt.
	if err := e.Tip(from, to, 20, 600, 20); !errors.Is(err, ErrInsufficientCrypto) {
		t.Errorf("Expected ErrInsufficientCrypto on an uncovered tip, got %v", err)
	}
}

// TestLevelCurve tests the geometric level thresholds
func TestLevelCurve(t *testing.T) {
	e := testEconomy()
	cases := []struct {
		total int64
		want  int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{234, 1},
		{235, 2},
		{10000, 11},
	}
	for _, c := range cases {
		if got := e.LevelFor(c.total); got != c.want {
			t.Errorf("LevelFor(%d) = %d, want %d", c.total, got, c.want)
		}
	}
	if got := e.LevelFor(1 << 60); got != 50 {
		t.Errorf("Expected the level cap at 50, got %d", got)
	}
}

// TestRecomputeLevel tests levels track lifetime earnings, not balance
func TestRecomputeLevel(t *testing.T) {
	e := testEconomy()

	p := NewPlayer("p1", "Alice", FactionRust, PlayerOptions{})
	p.Crypto = -40
	p.TotalCrypto = 235
	e.RecomputeLevel(p)
	if p.Level != 2 {
		t.Errorf("Expected level 2 from lifetime 235, got %d", p.Level)
	}
}
