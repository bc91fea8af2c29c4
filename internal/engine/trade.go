// Trade and economic flow between allied factions.
// Wealth moves from the richer to the poorer partner each day, with an
// anti-exploit throttle on repeated large transfers.
package engine

import (
	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// Percentile is the fraction of the last window transfers strictly smaller
// than amount. An empty history yields 0.
func Percentile(history []social.Transfer, amount float64, window int) float64 {
	if len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) == 0 {
		return 0
	}
	below := 0
	for _, t := range history {
		if t.Amount < amount {
			below++
		}
	}
	return float64(below) / float64(len(history))
}

// Admit runs the anti-exploit ledger for a proposed transfer. When the
// alliance already made throttle_count high transfers inside the throttle
// window the transfer is suppressed: the returned entry has Amount 0 and
// ok is false. Otherwise the entry is appended to the trailing history.
func Admit(a *social.Alliance, day int, amount float64, cfg config.TradeConfig) (social.Transfer, bool) {
	pct := Percentile(a.Transfers, amount, cfg.HistoryWindow)
	t := social.Transfer{
		Day:        day,
		Amount:     amount,
		Percentile: pct,
		High:       pct > cfg.HighPercentile,
	}

	recentHigh := 0
	for _, prev := range a.Transfers {
		if prev.High && prev.Day > day-cfg.ThrottleWindowDays {
			recentHigh++
		}
	}
	if recentHigh >= cfg.ThrottleCount {
		t.Amount = 0
		return t, false
	}

	a.Transfers = append(a.Transfers, t)
	if len(a.Transfers) > cfg.HistoryWindow {
		a.Transfers = append([]social.Transfer(nil), a.Transfers[len(a.Transfers)-cfg.HistoryWindow:]...)
	}
	return t, true
}

// TransferAmount sizes a transfer from giver to taker wealth. The result is
// a banded fraction of the gap, never more than max_gap_fraction of it, and
// never takes the giver below the reserve floor.
func TransferAmount(cfg config.TradeConfig, giverWealth, takerWealth, jitter float64) float64 {
	gap := giverWealth - takerWealth
	if gap <= 0 {
		return 0
	}
	amount := gap * cfg.TransferRate * jitter
	amount = min(amount, gap*cfg.MaxGapFraction)
	amount = min(amount, giverWealth-cfg.ReserveFloor)
	if amount < cfg.MinTransfer {
		return 0
	}
	return amount
}

// processTrade moves wealth across trade pacts.
func (s *Simulation) processTrade(a *social.Alliance) error {
	if !a.TradePact {
		return nil
	}
	fa, fb, err := s.parties(a)
	if err != nil {
		return err
	}
	tc := s.cfg.Trade

	giver, taker := fa, fb
	if s.wealth(fb) > s.wealth(fa) {
		giver, taker = fb, fa
	}
	jitter := entropy.Uniform(s.rng, 1-tc.VolatilityBand, 1+tc.VolatilityBand)
	amount := TransferAmount(tc, s.wealth(giver), s.wealth(taker), jitter)
	if amount <= 0 {
		return nil
	}

	t, ok := Admit(a, s.day, amount, tc)
	if !ok {
		s.report.Throttled++
		s.metrics.Throttled()
		s.log.Debug("transfer throttled", "alliance", a.ID, "amount", amount, "percentile", t.Percentile)
		return nil
	}

	s.queue(world.Effect{
		Kind:   world.EffectWealth,
		From:   giver.ID,
		To:     taker.ID,
		Amount: t.Amount,
		Reason: "alliance trade",
	})
	s.wealthDelta[giver.ID] -= t.Amount
	s.wealthDelta[taker.ID] += t.Amount
	s.report.Transferred += t.Amount
	s.metrics.Transfer(t.Amount)

	a.CumulativeTransfer += t.Amount
	a.AdjustTrust(tc.TrustGain / (1 + a.CumulativeTransfer/tc.TrustSaturation))
	a.AdjustSecrecy(-tc.SecrecyCost * t.Percentile)
	a.LastInteractionDay = s.day

	if t.Percentile > tc.IntelPercentile {
		s.addIntel(a, &social.Intel{
			Category:    social.CategoryFinancial,
			Source:      social.SourceTrade,
			Informer:    giver.LeaderID,
			Reliability: s.intelReliability(),
			Severity:    t.Percentile * (0.5 + 0.5*a.Strength),
		})
	}
	return nil
}
