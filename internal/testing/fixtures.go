package testing

import (
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
)

// FixtureEnd is the date of the newest bar produced by the bar fixtures (a Friday).
var FixtureEnd = time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)

// BarSpec shapes a synthetic daily series.
type BarSpec struct {
	Count  int
	Start  float64 // oldest close
	Step   float64 // close change per bar
	Range  float64 // high - low
	Volume float64
	// VolumeStep is added to volume per bar (oldest to newest).
	VolumeStep float64
}

// NewBars builds newest-first bars on consecutive weekdays ending at FixtureEnd.
// Each bar opens at the previous close and has a symmetric range around its close.
func NewBars(spec BarSpec) domain.Bars {
	if spec.Range <= 0 {
		spec.Range = 1
	}
	if spec.Volume <= 0 {
		spec.Volume = 1_000_000
	}

	dates := weekdaysEndingAt(FixtureEnd, spec.Count)
	bars := make(domain.Bars, spec.Count)
	prev := spec.Start
	for i := 0; i < spec.Count; i++ { // i counts from the oldest bar
		c := spec.Start + spec.Step*float64(i)
		open := prev
		high := max(c, open) + spec.Range/2
		low := min(c, open) - spec.Range/2
		if low <= 0 {
			low = 0.01
		}
		bars[spec.Count-1-i] = domain.Bar{
			Date:   dates[i],
			Open:   open,
			High:   high,
			Low:    low,
			Close:  c,
			Volume: spec.Volume + spec.VolumeStep*float64(i),
		}
		prev = c
	}
	return bars
}

// UptrendBars is a steady uptrend long enough for every indicator.
func UptrendBars() domain.Bars {
	return NewBars(BarSpec{Count: 260, Start: 50, Step: 0.25, Range: 1})
}

// DowntrendBars is a steady downtrend long enough for every indicator.
func DowntrendBars() domain.Bars {
	return NewBars(BarSpec{Count: 260, Start: 150, Step: -0.25, Range: 1})
}

// weekdaysEndingAt returns n weekday dates, oldest-first, the last one being end.
func weekdaysEndingAt(end time.Time, n int) []time.Time {
	dates := make([]time.Time, n)
	d := end
	for i := n - 1; i >= 0; i-- {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		dates[i] = d
		d = d.AddDate(0, 0, -1)
	}
	return dates
}

// NewSecurityFixtures returns one security per sleeve.
func NewSecurityFixtures() []domain.Security {
	return []domain.Security{
		{Ticker: "AAPL", Name: "Apple Inc.", Sleeve: domain.SleeveCore, Sector: "Technology", Cluster: "MEGA_TECH", Currency: "USD", Active: true},
		{Ticker: "PLTR", Name: "Palantir", Sleeve: domain.SleeveHighRisk, Sector: "Technology", Cluster: "AI_SOFTWARE", Currency: "USD", Active: true},
		{Ticker: "XLE", Name: "Energy Select SPDR", Sleeve: domain.SleeveETF, Sector: "Energy", Cluster: "ENERGY", Currency: "USD", Active: true},
		{Ticker: "GLD", Name: "SPDR Gold", Sleeve: domain.SleeveHedge, Sector: "Commodities", Cluster: "GOLD", Currency: "USD", Active: true},
	}
}

// NewPositionFixtures returns open positions across sleeves. IDs are unset.
func NewPositionFixtures() []domain.Position {
	entry := FixtureEnd.AddDate(0, -1, 0)
	return []domain.Position{
		{
			Ticker: "AAPL", Sleeve: domain.SleeveCore, Sector: "Technology", Cluster: "MEGA_TECH", Currency: "USD",
			EntryDate: entry, EntryPrice: 100, Shares: 20, EntryRisk: 5,
			Protection: domain.ProtectionState{Level: domain.LevelInitial, Stop: 95},
			Status:     domain.PositionOpen, LastPrice: 104, ATRPctAtEntry: 2.5, RegimeAtEntry: domain.RegimeBullish,
		},
		{
			Ticker: "XLE", Sleeve: domain.SleeveETF, Sector: "Energy", Cluster: "ENERGY", Currency: "USD",
			EntryDate: entry, EntryPrice: 50, Shares: 40, EntryRisk: 2,
			Protection: domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 50},
			Status:     domain.PositionOpen, LastPrice: 54, ATRPctAtEntry: 1.8, RegimeAtEntry: domain.RegimeBullish,
		},
		{
			Ticker: "GLD", Sleeve: domain.SleeveHedge, Sector: "Commodities", Cluster: "GOLD", Currency: "USD",
			EntryDate: entry, EntryPrice: 180, Shares: 5, EntryRisk: 20,
			Protection: domain.ProtectionState{Level: domain.LevelInitial, Stop: 160},
			Status:     domain.PositionOpen, LastPrice: 182, ATRPctAtEntry: 1.2, RegimeAtEntry: domain.RegimeSideways,
		},
	}
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}
