package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tradeworks/nightfade/internal/signal"
)

const (
	// breakevenBand treats net P&L within ±1bp as neither win nor loss.
	breakevenBand = 0.0001
	// maxSessionLog bounds the per-night history kept in the totals file.
	maxSessionLog = 30
)

// SessionLogEntry is one night's line in the rolling session history.
type SessionLogEntry struct {
	Date          string   `json:"date"`
	Trades        int      `json:"trades"`
	NetPnLPct     float64  `json:"net_pnl_pct"`
	NetPnLDollars float64  `json:"net_pnl_dollars"`
	Symbols       []string `json:"symbols,omitempty"`
}

// Performance carries the running cross-session totals. Win/loss sums
// are persisted alongside the averages so the averages stay exact as
// sessions accumulate.
type Performance struct {
	LastUpdated time.Time `json:"last_updated"`

	TotalSessions      int `json:"total_sessions"`
	SessionsWithTrades int `json:"sessions_with_trades"`
	SessionsNoTrades   int `json:"sessions_no_trades"`

	TotalTrades int `json:"total_trades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Breakeven   int `json:"breakeven"`

	LongTrades  int `json:"long_trades"`
	LongWins    int `json:"long_wins"`
	ShortTrades int `json:"short_trades"`
	ShortWins   int `json:"short_wins"`

	TotalNetPnLPct     float64 `json:"total_net_pnl_pct"`
	TotalNetPnLDollars float64 `json:"total_net_pnl_dollars"`
	BestTradePnLPct    float64 `json:"best_trade_pnl_pct"`
	BestTradeSymbol    string  `json:"best_trade_symbol,omitempty"`
	WorstTradePnLPct   float64 `json:"worst_trade_pnl_pct"`
	WorstTradeSymbol   string  `json:"worst_trade_symbol,omitempty"`
	AvgWinPct          float64 `json:"avg_win_pct"`
	AvgLossPct         float64 `json:"avg_loss_pct"`
	WinSum             float64 `json:"win_sum"`
	LossSum            float64 `json:"loss_sum"`

	AvgMFEPct float64 `json:"avg_mfe_pct"`
	AvgMAEPct float64 `json:"avg_mae_pct"`

	// CurrentStreak is positive during win runs, negative during losses.
	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`
	WorstStreak   int `json:"worst_streak"`

	SessionLog []SessionLogEntry `json:"session_log"`
}

// DefaultPerformance returns empty totals.
func DefaultPerformance() Performance {
	return Performance{}
}

// Applied reports whether a session date is already folded into the
// totals. Finalization can re-run after a crash; the second pass must
// not double-count the night.
func (p *Performance) Applied(date string) bool {
	for _, entry := range p.SessionLog {
		if entry.Date == date {
			return true
		}
	}
	return false
}

// ApplySession folds one finished night's round trips into the totals.
// Empty sessions still count toward the session tally and log.
func (p *Performance) ApplySession(date string, trades []signal.TradeMetrics) {
	p.TotalSessions++

	if len(trades) == 0 {
		p.SessionsNoTrades++
		p.appendSessionLog(SessionLogEntry{Date: date})
		return
	}
	p.SessionsWithTrades++

	var sessionPct, sessionDollars float64
	symbols := make([]string, 0, len(trades))

	for _, t := range trades {
		net := t.NetPnLPct

		p.TotalTrades++
		sessionPct += net
		sessionDollars += t.NetPnLDollars
		p.TotalNetPnLPct += net
		p.TotalNetPnLDollars += t.NetPnLDollars

		switch {
		case net > breakevenBand:
			p.Wins++
			p.WinSum += net
			if p.CurrentStreak < 0 {
				p.CurrentStreak = 0
			}
			p.CurrentStreak++
		case net < -breakevenBand:
			p.Losses++
			p.LossSum += net
			if p.CurrentStreak > 0 {
				p.CurrentStreak = 0
			}
			p.CurrentStreak--
		default:
			p.Breakeven++
		}

		if t.Direction == signal.DirectionLong {
			p.LongTrades++
			if net > breakevenBand {
				p.LongWins++
			}
		} else {
			p.ShortTrades++
			if net > breakevenBand {
				p.ShortWins++
			}
		}

		if net > p.BestTradePnLPct {
			p.BestTradePnLPct = net
			p.BestTradeSymbol = t.Symbol
		}
		if net < p.WorstTradePnLPct {
			p.WorstTradePnLPct = net
			p.WorstTradeSymbol = t.Symbol
		}

		// Incremental running averages across all trades ever taken.
		p.AvgMFEPct += (t.MaxFavorableExcursion - p.AvgMFEPct) / float64(p.TotalTrades)
		p.AvgMAEPct += (t.MaxAdverseExcursion - p.AvgMAEPct) / float64(p.TotalTrades)

		symbols = append(symbols, t.Symbol)
	}

	if p.CurrentStreak > p.BestStreak {
		p.BestStreak = p.CurrentStreak
	}
	if p.CurrentStreak < p.WorstStreak {
		p.WorstStreak = p.CurrentStreak
	}

	if p.Wins > 0 {
		p.AvgWinPct = round4(p.WinSum / float64(p.Wins))
	}
	if p.Losses > 0 {
		p.AvgLossPct = round4(p.LossSum / float64(p.Losses))
	}

	p.appendSessionLog(SessionLogEntry{
		Date:          date,
		Trades:        len(trades),
		NetPnLPct:     round4(sessionPct),
		NetPnLDollars: round2(sessionDollars),
		Symbols:       symbols,
	})

	p.TotalNetPnLPct = round4(p.TotalNetPnLPct)
	p.TotalNetPnLDollars = round2(p.TotalNetPnLDollars)
	p.AvgMFEPct = round4(p.AvgMFEPct)
	p.AvgMAEPct = round4(p.AvgMAEPct)
}

func (p *Performance) appendSessionLog(entry SessionLogEntry) {
	p.SessionLog = append(p.SessionLog, entry)
	if n := len(p.SessionLog); n > maxSessionLog {
		p.SessionLog = append([]SessionLogEntry(nil), p.SessionLog[n-maxSessionLog:]...)
	}
}

// WinRate returns the overall win percentage (0 when no trades).
func (p *Performance) WinRate() float64 {
	if p.TotalTrades == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.TotalTrades) * 100
}

// Summary renders the totals as a fixed-width console report.
func (p *Performance) Summary() string {
	rule := strings.Repeat("═", 60)

	longWR, shortWR := 0.0, 0.0
	if p.LongTrades > 0 {
		longWR = float64(p.LongWins) / float64(p.LongTrades) * 100
	}
	if p.ShortTrades > 0 {
		shortWR = float64(p.ShortWins) / float64(p.ShortTrades) * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "  RUNNING PERFORMANCE TOTALS\n")
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "  Sessions:     %d total, %d with trades, %d empty\n",
		p.TotalSessions, p.SessionsWithTrades, p.SessionsNoTrades)
	fmt.Fprintf(&b, "  Trades:       %d total (%dW / %dL / %dBE)\n",
		p.TotalTrades, p.Wins, p.Losses, p.Breakeven)
	fmt.Fprintf(&b, "  Win rate:     %.1f%%\n", p.WinRate())
	fmt.Fprintf(&b, "  Long:         %d trades, %.1f%% win rate\n", p.LongTrades, longWR)
	fmt.Fprintf(&b, "  Short:        %d trades, %.1f%% win rate\n\n", p.ShortTrades, shortWR)
	fmt.Fprintf(&b, "  Net P&L:      %+.2f%% ($%+.2f)\n", p.TotalNetPnLPct*100, p.TotalNetPnLDollars)
	fmt.Fprintf(&b, "  Avg win:      %+.2f%%\n", p.AvgWinPct*100)
	fmt.Fprintf(&b, "  Avg loss:     %+.2f%%\n", p.AvgLossPct*100)
	fmt.Fprintf(&b, "  Best trade:   %+.2f%% (%s)\n", p.BestTradePnLPct*100, orDash(p.BestTradeSymbol))
	fmt.Fprintf(&b, "  Worst trade:  %+.2f%% (%s)\n\n", p.WorstTradePnLPct*100, orDash(p.WorstTradeSymbol))
	fmt.Fprintf(&b, "  Avg MFE:      %+.2f%%\n", p.AvgMFEPct*100)
	fmt.Fprintf(&b, "  Avg MAE:      %+.2f%%\n", p.AvgMAEPct*100)
	fmt.Fprintf(&b, "  Streak:       %+d (best: %+d, worst: %+d)\n\n",
		p.CurrentStreak, p.BestStreak, p.WorstStreak)

	if n := len(p.SessionLog); n > 0 {
		fmt.Fprintf(&b, "  LAST %d SESSIONS\n", minInt(n, 5))
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, s := range p.SessionLog[start:] {
			fmt.Fprintf(&b, "    %s  %d trades  %+.2f%%  $%+.2f  [%s]\n",
				s.Date, s.Trades, s.NetPnLPct*100, s.NetPnLDollars, strings.Join(s.Symbols, ", "))
		}
	}
	fmt.Fprintf(&b, "%s\n", rule)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
