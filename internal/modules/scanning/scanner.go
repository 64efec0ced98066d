package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/expectancy"
	"github.com/aristath/swingsentinel/internal/modules/guards"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/scoring"
	"github.com/aristath/swingsentinel/internal/modules/sizing"
	"github.com/aristath/swingsentinel/internal/modules/technical"
	"github.com/aristath/swingsentinel/internal/workers"
	"github.com/aristath/swingsentinel/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrScanInProgress is returned when a scan is requested while another one runs.
var ErrScanInProgress = errors.New("scan already in progress")

// SecuritySource lists the active universe.
type SecuritySource interface {
	GetActive(ctx context.Context) ([]domain.Security, error)
}

// EVSource resolves the expectancy modifier for a slice key.
type EVSource interface {
	Lookup(ctx context.Context, key domain.ExpectancyKey) expectancy.Result
}

// ResultSink stores finished scans.
type ResultSink interface {
	Save(res *Result) error
}

// Config holds the scan settings that do not change between runs.
type Config struct {
	Benchmark string
	AntiChase guards.AntiChaseConfig
}

// Options are per-run inputs.
type Options struct {
	Profile risk.Profile
	Equity  float64
}

// Scanner runs the full pipeline: bars, snapshot, classification, scoring, ranking,
// entry guards, sizing and risk gates.
type Scanner struct {
	securities SecuritySource
	market     domain.MarketDataProvider
	scorer     *scoring.Scorer
	ev         EVSource
	gates      *risk.Validator
	sizer      *sizing.Sizer
	pool       *workers.WorkerPool
	sink       ResultSink
	cfg        Config
	now        func() time.Time
	running    sync.Mutex
	log        zerolog.Logger
}

// NewScanner creates a scanner. sink may be nil.
func NewScanner(
	securities SecuritySource,
	market domain.MarketDataProvider,
	scorer *scoring.Scorer,
	ev EVSource,
	gates *risk.Validator,
	sizer *sizing.Sizer,
	pool *workers.WorkerPool,
	sink ResultSink,
	cfg Config,
	log zerolog.Logger,
) *Scanner {
	return &Scanner{
		securities: securities,
		market:     market,
		scorer:     scorer,
		ev:         ev,
		gates:      gates,
		sizer:      sizer,
		pool:       pool,
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
		log:        log.With().Str("service", "scanner").Logger(),
	}
}

// analyzed is the per-ticker output of the fan-out stage.
type analyzed struct {
	candidate *Candidate
	failure   *Failure
}

// Run scans the active universe once. Per-ticker failures are recorded on the result
// and never abort the run; only failing to read the universe or the open positions does.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Result, error) {
	if !s.running.TryLock() {
		return nil, ErrScanInProgress
	}
	defer s.running.Unlock()

	if !(opts.Equity > 0) {
		return nil, domain.NewValidationError("equity", "equity must be positive, got %v", opts.Equity)
	}

	res := &Result{
		ID:        uuid.New().String(),
		StartedAt: s.now().UTC(),
		Profile:   opts.Profile.Name,
		Equity:    opts.Equity,
	}

	secs, err := s.securities.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe: %w", err)
	}
	res.Universe = len(secs)

	res.Regime, res.VolRegime = s.regimes(ctx)
	benchmark := s.benchmarkBars(ctx)

	outcomes, err := workers.Process(ctx, s.pool, secs, func(ctx context.Context, sec domain.Security) analyzed {
		return s.analyze(ctx, sec, benchmark, res.VolRegime)
	})
	if err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	candidates := make([]Candidate, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case o.failure != nil:
			res.Failures = append(res.Failures, *o.failure)
		case o.candidate != nil:
			candidates = append(candidates, *o.candidate)
		}
	}

	s.score(ctx, candidates, res.Regime)

	exposure, err := s.gates.LoadExposure(ctx, opts.Equity)
	if err != nil {
		return nil, fmt.Errorf("failed to load exposure: %w", err)
	}

	now := s.now()
	for i := range candidates {
		c := &candidates[i]
		s.guard(c, now)
		if f := s.sizeAndGate(ctx, c, opts, exposure); f != nil {
			res.Failures = append(res.Failures, *f)
		}
	}

	scoring.SortByRank(candidates)
	res.Candidates = candidates
	res.FinishedAt = s.now().UTC()

	if s.sink != nil {
		if err := s.sink.Save(res); err != nil {
			s.log.Warn().Err(err).Str("scan_id", res.ID).Msg("Failed to store scan result")
		}
	}

	counts := res.Counts()
	s.log.Info().
		Str("scan_id", res.ID).
		Int("universe", res.Universe).
		Int("ready", counts[domain.StatusReady]).
		Int("watch", counts[domain.StatusWatch]).
		Int("wait_pullback", counts[domain.StatusWaitPullback]).
		Int("failures", len(res.Failures)).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Scan completed")
	return res, nil
}

// regimes reads the trend and volatility regimes, falling back to SIDEWAYS and NORMAL.
func (s *Scanner) regimes(ctx context.Context) (domain.MarketRegime, domain.VolatilityRegime) {
	trend, err := s.market.GetMarketRegime(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Market regime unavailable, assuming SIDEWAYS")
		trend = domain.RegimeSideways
	}

	vol := domain.VolNormal
	if p, ok := s.market.(domain.VolatilityRegimeProvider); ok {
		v, err := p.GetVolatilityRegime(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Volatility regime unavailable, assuming NORMAL")
		} else {
			vol = v
		}
	}
	return trend, vol
}

func (s *Scanner) benchmarkBars(ctx context.Context) domain.Bars {
	if s.cfg.Benchmark == "" {
		return nil
	}
	bars, err := s.market.GetDailyBars(ctx, s.cfg.Benchmark)
	if err != nil {
		s.log.Warn().Err(err).Str("benchmark", s.cfg.Benchmark).Msg("Benchmark bars unavailable, relative strength disabled")
		return nil
	}
	return bars
}

// analyze is the fan-out stage. It must not touch shared state. A panic while
// analyzing one ticker is recorded as a compute failure for that ticker.
func (s *Scanner) analyze(ctx context.Context, sec domain.Security, benchmark domain.Bars, vol domain.VolatilityRegime) (out analyzed) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("ticker", sec.Ticker).Interface("panic", r).Msg("Ticker analysis panicked")
			out = analyzed{failure: &Failure{Ticker: sec.Ticker, Stage: StageCompute, Reason: fmt.Sprintf("panic: %v", r)}}
		}
	}()

	bars, err := s.market.GetDailyBars(ctx, sec.Ticker)
	if err != nil {
		return analyzed{failure: &Failure{Ticker: sec.Ticker, Stage: StageBars, Reason: err.Error()}}
	}
	if len(bars) == 0 {
		return analyzed{failure: &Failure{Ticker: sec.Ticker, Stage: StageBars, Reason: "no bars"}}
	}

	snap := technical.BuildSnapshot(sec.Ticker, bars, benchmark)
	if snap.Price <= 0 {
		return analyzed{failure: &Failure{Ticker: sec.Ticker, Stage: StageSnapshot, Reason: "no usable price"}}
	}
	class := technical.Classify(snap, sec.Sleeve, vol)
	hurst, determined := formulas.HurstExponent(bars.Closes())

	return analyzed{candidate: &Candidate{
		Ticker:          sec.Ticker,
		Name:            sec.Name,
		Sleeve:          sec.Sleeve,
		Sector:          sec.Sector,
		Cluster:         sec.Cluster,
		Currency:        sec.Currency,
		Snapshot:        snap,
		Classification:  class,
		Status:          class.Status,
		Reasons:         append([]string(nil), class.Reasons...),
		Entry:           class.EntryTrigger,
		Stop:            class.StopPrice,
		Hurst:           hurst,
		HurstDetermined: determined,
	}}
}

// score is the fan-in stage: cross-sectional RS percentile, BPS, EV and composite rank.
func (s *Scanner) score(ctx context.Context, candidates []Candidate, regime domain.MarketRegime) {
	rs := make(map[string]float64)
	for _, c := range candidates {
		if c.Snapshot.RelativeStrength != nil {
			rs[c.Ticker] = *c.Snapshot.RelativeStrength
		}
	}
	percentiles := scoring.Percentiles(rs)

	for i := range candidates {
		c := &candidates[i]
		if p, ok := percentiles[c.Ticker]; ok {
			c.RSPercentile = &p
		}
		c.BPS = s.scorer.Score(c.Snapshot, c.Sector, c.RSPercentile)

		key := domain.ExpectancyKey{
			Sleeve:    c.Sleeve,
			ATRBucket: domain.BucketForATRPct(c.Snapshot.ATRPct),
			Regime:    regime,
		}
		if s.ev != nil {
			c.EV = s.ev.Lookup(ctx, key)
		} else {
			c.EV = expectancy.Modifier(key, nil)
		}

		c.Score = scoring.CompositeScore(scoring.CompositeInput{
			BPS:             c.BPS.Total,
			Hurst:           c.Hurst,
			HurstDetermined: c.HurstDetermined,
			DistancePct:     c.Classification.DistancePct,
			EVModifier:      c.EV.Modifier,
		})
	}
}

// guard applies Mode A to READY candidates and Mode B to WAIT_PULLBACK ones.
func (s *Scanner) guard(c *Candidate, now time.Time) {
	snap := c.Snapshot
	if c.Status == domain.StatusReady {
		ac := guards.CheckAntiChase(s.cfg.AntiChase, snap.Price, c.Classification.EntryTrigger, snap.ATR, now)
		c.AntiChase = &ac
		if ac.Allowed {
			return
		}
		c.Status = domain.StatusWaitPullback
		c.Reasons = append(c.Reasons, "anti_chase:"+ac.Reason)
	}
	if c.Status != domain.StatusWaitPullback {
		return
	}

	pb := guards.CheckPullback(guards.PullbackInput{
		Status: c.Status,
		High20: snap.High20,
		EMA20:  snap.EMA20,
		ATR:    snap.ATR,
		Close:  snap.Price,
		DayLow: snap.DayLow,
	})
	c.Pullback = &pb
	if pb.Triggered {
		c.Status = domain.StatusReady
		c.Entry, c.Stop = pb.Entry, pb.Stop
		c.Reasons = append(c.Reasons, pb.Reason)
	}
}

// sizeAndGate sizes actionable candidates and gates the sized exposure against the
// book. A failed gate blocks the candidate; a sizing error is recorded as a failure.
func (s *Scanner) sizeAndGate(ctx context.Context, c *Candidate, opts Options, exposure risk.Exposure) *Failure {
	if !c.Status.Actionable() {
		return nil
	}

	size, err := s.sizer.Size(ctx, opts.Profile, c.Currency, sizing.Request{
		Ticker: c.Ticker,
		Sleeve: c.Sleeve,
		Entry:  c.Entry,
		Stop:   c.Stop,
		Equity: opts.Equity,
	})
	if err != nil {
		c.Reasons = append(c.Reasons, "sizing_failed")
		return &Failure{Ticker: c.Ticker, Stage: StageSizing, Reason: err.Error()}
	}
	c.Sizing = &size

	gate := risk.Evaluate(opts.Profile, risk.GateCandidate{
		Ticker:        c.Ticker,
		Sleeve:        c.Sleeve,
		Sector:        c.Sector,
		Cluster:       c.Cluster,
		PositionValue: size.PositionValue,
		RiskDollars:   size.RiskDollars,
	}, exposure)
	c.Gate = &gate
	if !gate.Passed {
		c.Status = domain.StatusBlocked
		for _, g := range gate.Failed() {
			c.Reasons = append(c.Reasons, "risk_gate:"+strings.ToLower(string(g.Name)))
		}
	}
	return nil
}
