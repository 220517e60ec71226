package game

import (
	"errors"
	"math"

	"tankwar/internal/config"
)

var (
	ErrInsufficientCrypto = errors.New("insufficient crypto")
	ErrTipTooLarge        = errors.New("tip exceeds limit")
	ErrTipCooldown        = errors.New("tip rate limited")
	ErrTipBadAmount       = errors.New("tip amount must be positive")
)

// EconomyEngine owns every crypto award, spend and the level curve. Amounts
// are cents. Balances may run negative down to the debt floor; lifetime
// earnings (TotalCrypto) only ever grow and drive levels.
type EconomyEngine struct {
	cfg config.CryptoConfig
}

// NewEconomyEngine creates an economy with the given constants.
func NewEconomyEngine(cfg config.CryptoConfig) *EconomyEngine {
	return &EconomyEngine{cfg: cfg}
}

// FireCost returns the cost of a cannon shot at the given charge power.
func (e *EconomyEngine) FireCost(power float64) int64 {
	return int64(e.cfg.FireBaseCost) + int64(math.Ceil(power))
}

// TrySpendFire deducts the fire cost, or rejects the shot when it would push
// the balance below the debt floor. State is unchanged on rejection.
func (e *EconomyEngine) TrySpendFire(p *Player, power float64) (int64, error) {
	cost := e.FireCost(power)
	if p.Crypto-cost < int64(e.cfg.DebtFloor) {
		return 0, ErrInsufficientCrypto
	}
	p.Crypto -= cost
	p.OnLoan = p.Crypto < 0
	return cost, nil
}

// AwardDamage credits the attacker for damage dealt. Commander victims pay
// out the commander multiplier.
func (e *EconomyEngine) AwardDamage(attacker *Player, damage int, victimIsCommander bool) int64 {
	amt := int64(math.Floor(float64(damage) * e.cfg.DamageValue))
	if victimIsCommander {
		amt *= int64(e.cfg.CommanderFactor)
	}
	e.credit(attacker, amt)
	return amt
}

// AwardKill credits the killer the kill bonus.
func (e *EconomyEngine) AwardKill(killer *Player, victimIsCommander bool) int64 {
	amt := int64(e.cfg.KillBonus)
	if victimIsCommander {
		amt *= int64(e.cfg.CommanderFactor)
	}
	e.credit(killer, amt)
	return amt
}

// AwardTic credits a tic contribution, tiered by cluster size.
func (e *EconomyEngine) AwardTic(p *Player, clusterTiles int) int64 {
	amt := int64(e.cfg.TicAward)
	if clusterTiles >= e.cfg.LargeClusterMin {
		amt = int64(e.cfg.TicAwardLarge)
	}
	e.credit(p, amt)
	return amt
}

// AwardHolding credits the periodic holding payout, proportional to the
// number of faction-owned clusters.
func (e *EconomyEngine) AwardHolding(p *Player, ownedClusters int) int64 {
	amt := int64(e.cfg.HoldingValue) * int64(ownedClusters)
	if amt <= 0 {
		return 0
	}
	e.credit(p, amt)
	return amt
}

// Tip transfers crypto from a commander to a teammate. Tips never create
// debt and are rate limited per sender.
func (e *EconomyEngine) Tip(from, to *Player, amount int64, tick uint64, tickRate int) error {
	if amount <= 0 {
		return ErrTipBadAmount
	}
	if amount > int64(e.cfg.TipMax) {
		return ErrTipTooLarge
	}
	cooldownTicks := uint64(e.cfg.TipCooldown * float64(tickRate))
	if from.LastTipTick != 0 && tick-from.LastTipTick < cooldownTicks {
		return ErrTipCooldown
	}
	if from.Crypto < amount {
		return ErrInsufficientCrypto
	}
	from.Crypto -= amount
	from.OnLoan = from.Crypto < 0
	// A tip is a transfer, not an earning: the receiver's lifetime total
	// stays untouched so tips cannot farm levels.
	to.Crypto += amount
	to.OnLoan = to.Crypto < 0
	from.LastTipTick = tick
	return nil
}

// LevelFor maps lifetime earnings to a level: advancing past level L costs
// LevelBase * LevelGrowth^L on top of everything spent before it.
func (e *EconomyEngine) LevelFor(total int64) int {
	lvl := 0
	need := e.cfg.LevelBase
	remaining := float64(total)
	for remaining >= need && lvl < 50 {
		remaining -= need
		need *= e.cfg.LevelGrowth
		lvl++
	}
	return lvl
}

// RecomputeLevel refreshes a player's level from lifetime earnings.
func (e *EconomyEngine) RecomputeLevel(p *Player) {
	p.Level = e.LevelFor(p.TotalCrypto)
}

func (e *EconomyEngine) credit(p *Player, amt int64) {
	if amt == 0 {
		return
	}
	p.Crypto += amt
	p.TotalCrypto += amt
	p.OnLoan = p.Crypto < 0
	p.Level = e.LevelFor(p.TotalCrypto)
}
