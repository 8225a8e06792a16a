package eod

// legRow is one leg's aggregate for the day.
type legRow struct {
	Leg         string
	Buys        int
	Sells       int
	Completed   int
	Wins        int
	GrossProfit float64
	Charges     float64
	NetProfit   float64
	// CapitalUsed is the sum of BUY notionals.
	CapitalUsed float64
	// Unmatched counts SELLs with no BUY to close.
	Unmatched int
}

func (r legRow) winRate() float64 {
	if r.Completed == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Completed) * 100
}
