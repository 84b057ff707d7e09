package backtest

import (
	"math"
	"sort"

	"orbtrader/internal/risk"
)

// Stats summarizes a list of closed trades
type Stats struct {
	StartingCapital float64 `json:"starting_capital"`
	EndingCapital   float64 `json:"ending_capital"`

	// Summary
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	// Returns
	TotalPnL    float64 `json:"total_pnl"`
	TotalPnLPct float64 `json:"total_pnl_pct"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"` // negative
	AvgWinPct   float64 `json:"avg_win_pct"`
	AvgLossPct  float64 `json:"avg_loss_pct"`
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`

	// Risk metrics
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
	Expectancy      float64 `json:"expectancy"`    // Expected $ per trade
	ProfitFactor    float64 `json:"profit_factor"` // Gross profit / Gross loss
	MaxDrawdown     float64 `json:"max_drawdown"`  // Maximum drawdown %
	SharpeRatio     float64 `json:"sharpe_ratio"`

	// Streaks
	MaxWinStreak  int `json:"max_win_streak"`
	MaxLoseStreak int `json:"max_lose_streak"`

	ExitReasons map[string]int `json:"exit_reasons"`
	BySymbol    []SymbolStats  `json:"by_symbol"`

	// Equity curve, one point per closed trade starting at the initial capital
	EquityCurve []float64 `json:"equity_curve"`
}

// SymbolStats per-symbol breakdown
type SymbolStats struct {
	Symbol  string  `json:"symbol"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	PnL     float64 `json:"pnl"`
	AvgPnL  float64 `json:"avg_pnl"`
}

// CalculateStats computes statistics over trades in closing order.
// A trade with zero PnL counts as neither a win nor a loss.
func CalculateStats(trades []*risk.Trade, startingCapital float64) Stats {
	stats := Stats{
		StartingCapital: startingCapital,
		EndingCapital:   startingCapital,
		ExitReasons:     make(map[string]int),
	}
	if len(trades) == 0 {
		return stats
	}

	stats.TotalTrades = len(trades)

	var totalWin, totalLoss float64
	var winPcts, lossPcts, returns []float64
	var winStreak, loseStreak int

	equity := make([]float64, 0, len(trades)+1)
	equity = append(equity, startingCapital)
	capital := startingCapital

	bySymbol := make(map[string]*SymbolStats)

	for _, t := range trades {
		capital += t.PnL
		equity = append(equity, capital)
		returns = append(returns, t.PnLPct)
		stats.ExitReasons[t.ExitReason]++

		sym, ok := bySymbol[t.Symbol]
		if !ok {
			sym = &SymbolStats{Symbol: t.Symbol}
			bySymbol[t.Symbol] = sym
		}
		sym.Trades++
		sym.PnL += t.PnL

		switch {
		case t.PnL > 0:
			stats.WinningTrades++
			sym.Wins++
			totalWin += t.PnL
			winPcts = append(winPcts, t.PnLPct)
			if t.PnL > stats.LargestWin {
				stats.LargestWin = t.PnL
			}

			winStreak++
			loseStreak = 0
			if winStreak > stats.MaxWinStreak {
				stats.MaxWinStreak = winStreak
			}
		case t.PnL < 0:
			stats.LosingTrades++
			totalLoss += math.Abs(t.PnL)
			lossPcts = append(lossPcts, t.PnLPct)
			if t.PnL < stats.LargestLoss {
				stats.LargestLoss = t.PnL
			}

			loseStreak++
			winStreak = 0
			if loseStreak > stats.MaxLoseStreak {
				stats.MaxLoseStreak = loseStreak
			}
		default:
			winStreak, loseStreak = 0, 0
		}
	}

	stats.EndingCapital = capital
	stats.EquityCurve = equity
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100

	stats.TotalPnL = totalWin - totalLoss
	if startingCapital > 0 {
		stats.TotalPnLPct = stats.TotalPnL / startingCapital * 100
	}

	if stats.WinningTrades > 0 {
		stats.AvgWin = totalWin / float64(stats.WinningTrades)
		stats.AvgWinPct = average(winPcts)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = -totalLoss / float64(stats.LosingTrades)
		stats.AvgLossPct = average(lossPcts)
	}

	if stats.AvgLoss < 0 {
		stats.RiskRewardRatio = stats.AvgWin / math.Abs(stats.AvgLoss)
	}
	if totalLoss > 0 {
		stats.ProfitFactor = totalWin / totalLoss
	}

	stats.Expectancy = stats.TotalPnL / float64(stats.TotalTrades)
	stats.MaxDrawdown = maxDrawdown(equity)

	if len(returns) > 1 {
		if sd := stdDev(returns); sd > 0 {
			stats.SharpeRatio = average(returns) / sd * math.Sqrt(252)
		}
	}

	for _, s := range bySymbol {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
		s.AvgPnL = s.PnL / float64(s.Trades)
		stats.BySymbol = append(stats.BySymbol, *s)
	}
	sort.Slice(stats.BySymbol, func(i, j int) bool {
		if stats.BySymbol[i].PnL != stats.BySymbol[j].PnL {
			return stats.BySymbol[i].PnL > stats.BySymbol[j].PnL
		}
		return stats.BySymbol[i].Symbol < stats.BySymbol[j].Symbol
	})

	return stats
}

// maxDrawdown returns the largest peak-to-trough decline in percent
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	var maxDD float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - e) / peak * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := average(values)
	var sumSquares float64
	for _, v := range values {
		sumSquares += (v - avg) * (v - avg)
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
