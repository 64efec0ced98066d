package technical

import "github.com/aristath/swingsentinel/internal/domain"

const (
	MinADX             = 20.0
	MinTrendEfficiency = 30.0
	// ATRSpikeRatio flags ATR expanding by more than 30% over 20 bars.
	ATRSpikeRatio = 1.3
)

// ATRPctCaps is the maximum ATR% accepted per sleeve.
var ATRPctCaps = map[domain.Sleeve]float64{
	domain.SleeveCore:     6,
	domain.SleeveETF:      4,
	domain.SleeveHighRisk: 10,
	domain.SleeveHedge:    6,
}

// FilterResults holds the six entry filters and the spike override.
type FilterResults struct {
	AboveMA200    bool `json:"above_ma200"`
	ADXOK         bool `json:"adx_ok"`
	DIBullish     bool `json:"di_bullish"`
	ATROK         bool `json:"atr_ok"`
	EfficiencyOK  bool `json:"efficiency_ok"`
	DataQualityOK bool `json:"data_quality_ok"`

	ATRSpike        bool `json:"atr_spike"`
	ATRSpikeBearish bool `json:"atr_spike_bearish"`

	PassesAll bool `json:"passes_all"`
}

// StructuralOK reports whether every filter except trend efficiency passes.
// Efficiency only downgrades READY to WATCH.
func (f FilterResults) StructuralOK() bool {
	return f.AboveMA200 && f.ADXOK && f.DIBullish && f.ATROK && f.DataQualityOK && !f.ATRSpikeBearish
}

// EvaluateFilters runs the entry filters against a snapshot.
func EvaluateFilters(snap domain.TechnicalSnapshot, sleeve domain.Sleeve) FilterResults {
	capPct, ok := ATRPctCaps[sleeve]
	if !ok {
		capPct = ATRPctCaps[domain.SleeveCore]
	}

	f := FilterResults{
		AboveMA200:    snap.MA200 > 0 && snap.Price > snap.MA200,
		ADXOK:         snap.ADX >= MinADX,
		DIBullish:     snap.PlusDI > snap.MinusDI,
		ATROK:         snap.ATRPct > 0 && snap.ATRPct < capPct,
		EfficiencyOK:  snap.TrendEfficiency >= MinTrendEfficiency,
		DataQualityOK: snap.DataQualityOK,
	}

	f.ATRSpike = snap.ATRRatio() > ATRSpikeRatio
	f.ATRSpikeBearish = f.ATRSpike && !f.DIBullish

	f.PassesAll = f.StructuralOK() && f.EfficiencyOK
	return f
}
