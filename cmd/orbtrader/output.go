package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"orbtrader/internal/backtest"
	"orbtrader/internal/risk"
	"orbtrader/internal/scanner"
)

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printStats(w io.Writer, title string, s backtest.Stats) {
	fmt.Fprintf(w, "%s\n\n", title)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Metric", "Value"}),
	)
	rows := [][]string{
		{"Starting capital", fmt.Sprintf("$%.2f", s.StartingCapital)},
		{"Ending capital", fmt.Sprintf("$%.2f", s.EndingCapital)},
		{"Total PnL", fmt.Sprintf("$%+.2f (%+.2f%%)", s.TotalPnL, s.TotalPnLPct)},
		{"Trades", fmt.Sprintf("%d (%dW / %dL)", s.TotalTrades, s.WinningTrades, s.LosingTrades)},
		{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate)},
		{"Avg win", fmt.Sprintf("$%.2f (%+.2f%%)", s.AvgWin, s.AvgWinPct)},
		{"Avg loss", fmt.Sprintf("$%.2f (%+.2f%%)", s.AvgLoss, s.AvgLossPct)},
		{"Largest win", fmt.Sprintf("$%.2f", s.LargestWin)},
		{"Largest loss", fmt.Sprintf("$%.2f", s.LargestLoss)},
		{"Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor)},
		{"Risk/reward", fmt.Sprintf("%.2f", s.RiskRewardRatio)},
		{"Expectancy", fmt.Sprintf("$%.2f", s.Expectancy)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown)},
		{"Sharpe", fmt.Sprintf("%.2f", s.SharpeRatio)},
		{"Streaks", fmt.Sprintf("%d wins / %d losses", s.MaxWinStreak, s.MaxLoseStreak)},
	}
	for _, r := range rows {
		table.Append(r)
	}
	table.Render()

	if len(s.ExitReasons) > 0 {
		fmt.Fprintln(w, "\n--- Exit Reasons ---")
		reasons := make([]string, 0, len(s.ExitReasons))
		for r := range s.ExitReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)

		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Reason", "Count"}),
		)
		for _, r := range reasons {
			table.Append([]string{r, fmt.Sprintf("%d", s.ExitReasons[r])})
		}
		table.Render()
	}

	if len(s.BySymbol) > 0 {
		fmt.Fprintln(w, "\n--- By Symbol ---")
		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Symbol", "Trades", "Wins", "Win Rate", "PnL", "Avg PnL"}),
		)
		for _, sym := range s.BySymbol {
			table.Append([]string{
				sym.Symbol,
				fmt.Sprintf("%d", sym.Trades),
				fmt.Sprintf("%d", sym.Wins),
				fmt.Sprintf("%.0f%%", sym.WinRate),
				fmt.Sprintf("$%+.2f", sym.PnL),
				fmt.Sprintf("$%+.2f", sym.AvgPnL),
			})
		}
		table.Render()
	}
}

func printTrades(w io.Writer, trades []*risk.Trade, loc *time.Location) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "No trades.")
		return
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Date", "Symbol", "Qty", "Entry", "Exit", "PnL", "PnL %", "Reason"}),
	)
	for _, t := range trades {
		exit := "-"
		if t.ExitPrice != nil {
			exit = fmt.Sprintf("$%.2f", *t.ExitPrice)
		}
		table.Append([]string{
			t.EntryTime.In(loc).Format("2006-01-02 15:04"),
			t.Symbol,
			fmt.Sprintf("%.4f", t.Quantity),
			fmt.Sprintf("$%.2f", t.EntryPrice),
			exit,
			fmt.Sprintf("$%+.2f", t.PnL),
			fmt.Sprintf("%+.2f%%", t.PnLPct),
			t.ExitReason,
		})
	}
	table.Render()
}

func printDays(w io.Writer, days []risk.Summary) {
	if len(days) == 0 {
		return
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Date", "Trades", "Day PnL", "Day %", "Capital", "Halted"}),
	)
	for _, d := range days {
		halted := ""
		if d.KillSwitchTripped {
			halted = "yes"
		}
		table.Append([]string{
			d.TradingDate.Format("2006-01-02"),
			fmt.Sprintf("%d", d.TradesCount),
			fmt.Sprintf("$%+.2f", d.DailyPnL),
			fmt.Sprintf("%+.2f%%", d.DailyPnLPct),
			fmt.Sprintf("$%.2f", d.EndingCapital),
			halted,
		})
	}
	table.Render()
}

func printCandidates(w io.Writer, result *scanner.Result, minGap float64) {
	if len(result.Candidates) == 0 {
		fmt.Fprintf(w, "No stocks gapping up %.1f%% or more.\n", minGap*100)
		fmt.Fprintf(w, "Scanned %d stocks in %s\n", result.TotalScanned, result.ScanTime.Round(time.Second))
		return
	}

	fmt.Fprintf(w, "Found %d stocks gapping up %.1f%%+:\n\n", len(result.Candidates), minGap*100)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"#", "Symbol", "Gap", "Prev Close", "Open"}),
	)
	for i, c := range result.Candidates {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			c.Symbol,
			fmt.Sprintf("%+.2f%%", c.GapPct*100),
			fmt.Sprintf("$%.2f", c.PrevClose),
			fmt.Sprintf("$%.2f", c.TodayOpen),
		})
	}
	table.Render()

	fmt.Fprintf(w, "\nScanned %d stocks in %s (%d failed)\n", result.TotalScanned, result.ScanTime.Round(time.Second), result.Failed)
}
