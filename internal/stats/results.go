// Package stats turns raw assignment and event tallies into experiment
// reports: conversion rates, confidence, significance against control,
// uplift and a recommendation. Reports are derived on demand and never
// persisted; the event log stays the source of truth.
package stats

import (
	"github.com/carsuggester/roadtest/internal/store"
)

type Recommendation string

const (
	RecommendContinue      Recommendation = "continue"
	RecommendDeclareWinner Recommendation = "declare_winner"
	RecommendInconclusive  Recommendation = "inconclusive"
)

// DefaultMinSample is the participant floor below which no recommendation
// stronger than "continue" is made.
const DefaultMinSample = 100

// VariantResults holds the derived numbers for one arm.
type VariantResults struct {
	VariantID    string  `json:"variant_id"`
	Name         string  `json:"name"`
	IsControl    bool    `json:"is_control"`
	Participants int     `json:"participants"`
	Exposures    int     `json:"exposures"`
	Conversions  int     `json:"conversions"`
	// ConversionRate is conversions/exposures; 0 when there are no
	// exposures so a fresh experiment never reports NaN.
	ConversionRate float64 `json:"conversion_rate"`
	// Confidence is the margin-of-error score for this arm alone.
	Confidence float64 `json:"confidence"`
	CILower    float64 `json:"ci_lower"`
	CIUpper    float64 `json:"ci_upper"`
	// Significant and SignificanceLevel compare this arm against control
	// with a two-proportion z-test. Always false/0 for the control itself.
	Significant       bool    `json:"significant"`
	SignificanceLevel float64 `json:"significance_level"`
	// Uplift is the relative rate improvement over control, in percent.
	// Zero for control and when the control rate is zero.
	Uplift   float64 `json:"uplift"`
	IsWinner bool    `json:"is_winner"`
}

// ExperimentResults is the experiment-level report.
type ExperimentResults struct {
	ExperimentID      string           `json:"experiment_id"`
	Variants          []VariantResults `json:"variants"`
	TotalParticipants int              `json:"total_participants"`
	Recommendation    Recommendation   `json:"recommendation"`
}

// Aggregate computes the report for an experiment from per-variant tallies.
// minSample is the participant floor for recommendations; pass
// DefaultMinSample unless the caller has a reason not to.
func Aggregate(exp *store.Experiment, counts []store.VariantCounts, minSample int) *ExperimentResults {
	byVariant := make(map[string]store.VariantCounts, len(counts))
	for _, c := range counts {
		byVariant[c.VariantID] = c
	}

	control := exp.ControlVariant()

	results := make([]VariantResults, len(exp.Variants))
	total := 0
	controlRate := 0.0
	var controlCounts store.VariantCounts
	if control != nil {
		controlCounts = byVariant[control.ID]
		if controlCounts.Exposures > 0 {
			controlRate = float64(controlCounts.Conversions) / float64(controlCounts.Exposures)
		}
	}

	for i, v := range exp.Variants {
		c := byVariant[v.ID] // zero-valued when the variant has no data yet
		total += c.Participants

		rate := 0.0
		if c.Exposures > 0 {
			rate = float64(c.Conversions) / float64(c.Exposures)
		}
		ciLower, ciUpper := WilsonInterval(c.Conversions, c.Exposures)

		r := VariantResults{
			VariantID:      v.ID,
			Name:           v.Name,
			IsControl:      v.IsControl,
			Participants:   c.Participants,
			Exposures:      c.Exposures,
			Conversions:    c.Conversions,
			ConversionRate: rate,
			Confidence:     ConfidenceScore(c.Conversions, c.Exposures),
			CILower:        ciLower,
			CIUpper:        ciUpper,
		}

		if control != nil && !v.IsControl {
			_, level, significant := ZTest(c.Conversions, c.Exposures, controlCounts.Conversions, controlCounts.Exposures)
			r.Significant = significant
			r.SignificanceLevel = level
			if controlRate > 0 {
				r.Uplift = (rate - controlRate) / controlRate * 100
			}
			// A winner must beat control, not merely differ from it.
			r.IsWinner = significant && rate > controlRate
		}

		results[i] = r
	}

	return &ExperimentResults{
		ExperimentID:      exp.ID,
		Variants:          results,
		TotalParticipants: total,
		Recommendation:    recommend(results, total, minSample, control != nil),
	}
}

func recommend(results []VariantResults, total, minSample int, hasControl bool) Recommendation {
	if !hasControl || total < minSample {
		return RecommendContinue
	}

	anySignificant := false
	for _, r := range results {
		if r.IsWinner {
			return RecommendDeclareWinner
		}
		if r.Significant {
			anySignificant = true
		}
	}
	// Significance without a strictly better variant: the experiment told
	// us something, just not that a challenger won.
	if anySignificant {
		return RecommendInconclusive
	}
	return RecommendContinue
}
