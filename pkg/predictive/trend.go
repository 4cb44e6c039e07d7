// Package predictive estimates short-term signal trends from the telemetry
// history, so consumers can flag access points that are fading before they
// actually drop out.
package predictive

import (
	"context"
	"fmt"
	"math"

	"github.com/sajari/regression"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
	"github.com/markus-lassfolk/wavescope/pkg/telem"
)

// Trend directions reported by the analyzer.
const (
	TrendImproving = "improving"
	TrendDegrading = "degrading"
	TrendStable    = "stable"
)

// stableSlopeDBmPerMin is the band within which a slope counts as stable.
const stableSlopeDBmPerMin = 0.5

// SignalAnalysis is the fitted trend for one access point.
type SignalAnalysis struct {
	BSSID           string  `json:"bssid"`
	Samples         int     `json:"samples"`
	SlopeDBmPerMin  float64 `json:"slope_dbm_per_min"`
	PredictedDBm    float64 `json:"predicted_dbm"` // at the prediction horizon
	CurrentDBm      float64 `json:"current_dbm"`
	TrendDirection  string  `json:"trend_direction"`
	R2              float64 `json:"r2"`
	HorizonSeconds  int     `json:"horizon_seconds"`
}

// Analyzer fits per-BSSID linear models over the retained signal history.
type Analyzer struct {
	logger     *logx.Logger
	store      *telem.Store
	minSamples int
	horizonSec int
}

// NewAnalyzer creates an analyzer over the given history store.
func NewAnalyzer(store *telem.Store, logger *logx.Logger) *Analyzer {
	return &Analyzer{
		logger:     logger,
		store:      store,
		minSamples: 5,
		horizonSec: 60,
	}
}

// Analyze fits a trend for one access point. Returns an error when the
// history is too short for a meaningful fit.
func (a *Analyzer) Analyze(ctx context.Context, bssid string) (*SignalAnalysis, error) {
	history := a.store.History(bssid)
	if len(history) < a.minSamples {
		return nil, fmt.Errorf("insufficient history for %s: %d samples, need %d",
			bssid, len(history), a.minSamples)
	}

	r := new(regression.Regression)
	r.SetObserved("signal dBm")
	r.SetVar(0, "elapsed minutes")

	t0 := history[0].Timestamp
	for _, s := range history {
		minutes := s.Timestamp.Sub(t0).Minutes()
		r.Train(regression.DataPoint(s.SignalDBm, []float64{minutes}))
	}
	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("trend fit failed for %s: %w", bssid, err)
	}

	last := history[len(history)-1]
	slope := r.Coeff(1)
	horizonMin := last.Timestamp.Sub(t0).Minutes() + float64(a.horizonSec)/60
	predicted, err := r.Predict([]float64{horizonMin})
	if err != nil {
		return nil, fmt.Errorf("trend predict failed for %s: %w", bssid, err)
	}

	analysis := &SignalAnalysis{
		BSSID:          bssid,
		Samples:        len(history),
		SlopeDBmPerMin: slope,
		PredictedDBm:   predicted,
		CurrentDBm:     last.SignalDBm,
		TrendDirection: classify(slope),
		R2:             r.R2,
		HorizonSeconds: a.horizonSec,
	}

	a.logger.Debug("Signal trend fitted",
		"bssid", bssid, "slope_dbm_per_min", slope,
		"direction", analysis.TrendDirection, "r2", r.R2)
	return analysis, nil
}

// AnalyzeAll fits trends for every tracked access point, skipping those
// with too little history.
func (a *Analyzer) AnalyzeAll(ctx context.Context) map[string]*SignalAnalysis {
	out := make(map[string]*SignalAnalysis)
	for _, bssid := range a.store.Tracked() {
		analysis, err := a.Analyze(ctx, bssid)
		if err != nil {
			continue
		}
		out[bssid] = analysis
	}
	return out
}

func classify(slope float64) string {
	if math.Abs(slope) < stableSlopeDBmPerMin {
		return TrendStable
	}
	if slope > 0 {
		return TrendImproving
	}
	return TrendDegrading
}
