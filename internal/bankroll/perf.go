package bankroll

// PerformanceReport summarizes session performance from the ledger.
type PerformanceReport struct {
	ROI          float64 `json:"roi"`
	WinRate      float64 `json:"win_rate"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalBets    int     `json:"total_bets"`
	TotalProfit  float64 `json:"total_profit"`
	AverageStake float64 `json:"average_stake"`
}

// Performance derives return and risk-adjusted metrics from the settled
// ledger entries.
func (m *Manager) Performance() PerformanceReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := PerformanceReport{}
	if m.cfg.InitialBalance > 0 {
		report.ROI = m.balance/m.cfg.InitialBalance - 1
	}
	report.TotalBets = m.settled
	if m.settled > 0 {
		report.WinRate = float64(m.wins) / float64(m.settled)
	}

	var profits, stakes []float64
	for _, e := range m.ledger {
		if e.Type != EntryBetSettled {
			continue
		}
		profits = append(profits, e.Profit)
		stakes = append(stakes, e.Stake)
	}
	if len(profits) == 0 {
		return report
	}

	var sum, stakeSum float64
	for i := range profits {
		sum += profits[i]
		stakeSum += stakes[i]
	}
	report.TotalProfit = sum
	report.AverageStake = stakeSum / float64(len(stakes))

	mean := sum / float64(len(profits))
	if sd := stddev(profits); sd > 0 {
		report.Sharpe = mean / sd
	}

	var downside []float64
	for _, p := range profits {
		if p < 0 {
			downside = append(downside, p)
		}
	}
	if len(downside) > 0 {
		if sd := stddev(downside); sd > 0 {
			report.Sortino = mean / sd
		}
	}

	// Max drawdown over the cumulative settled P&L curve.
	var cum, runningMax, maxDD float64
	for _, p := range profits {
		cum += p
		if cum > runningMax {
			runningMax = cum
		}
		if dd := runningMax - cum; dd > maxDD {
			maxDD = dd
		}
	}
	if m.cfg.InitialBalance > 0 {
		report.MaxDrawdown = maxDD / m.cfg.InitialBalance
	}
	return report
}
