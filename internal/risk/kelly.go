package risk

import "sync"

// minKellySamples is the trade count below which no fraction is reported;
// the caller falls back to the plain fixed-fraction size.
const minKellySamples = 10

// KellyTracker accumulates rolling win/loss statistics from realized trades.
type KellyTracker struct {
	mu      sync.Mutex
	wins    int
	losses  int
	sumWin  float64
	sumLoss float64
}

// NewKellyTracker creates an empty tracker.
func NewKellyTracker() *KellyTracker { return &KellyTracker{} }

// RecordTrade registers a realized PnL. Break-even trades are ignored.
func (k *KellyTracker) RecordTrade(pnl float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case pnl > 0:
		k.wins++
		k.sumWin += pnl
	case pnl < 0:
		k.losses++
		k.sumLoss += -pnl
	}
}

// Fraction returns the Kelly fraction W - (1-W)/R where W is the win rate
// and R the average win over average loss. The second return is false until
// enough trades accumulated or when the ratio is undefined.
func (k *KellyTracker) Fraction() (float64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	total := k.wins + k.losses
	if total < minKellySamples || k.wins == 0 || k.losses == 0 {
		return 0, false
	}

	avgWin := k.sumWin / float64(k.wins)
	avgLoss := k.sumLoss / float64(k.losses)
	if avgLoss <= 0 {
		return 0, false
	}

	w := float64(k.wins) / float64(total)
	r := avgWin / avgLoss
	return w - (1-w)/r, true
}
