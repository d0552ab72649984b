package ml

import (
	"context"

	"github.com/sirupsen/logrus"

	"inventory-risk-radar/backend/internal/scoring"
)

type rulesPredictor struct {
	model scoring.RuleModel
}

// Rules wraps the deterministic rule table as a Predictor. It is always
// enabled and never fails, which makes it the terminal fallback.
func Rules(model scoring.RuleModel) Predictor {
	return rulesPredictor{model: model}
}

func (p rulesPredictor) Enabled() bool { return true }

func (p rulesPredictor) Predict(_ context.Context, records []scoring.FeatureRecord) ([]scoring.Level, error) {
	return p.model.Predict(records), nil
}

type predictorChain struct {
	primary  Predictor
	fallback Predictor
}

// WithFallback returns a predictor that first tries the primary implementation
// and falls back to the provided predictor when the primary is unavailable or
// produces an unusable response.
func WithFallback(primary, fallback Predictor) Predictor {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &predictorChain{primary: primary, fallback: fallback}
}

func (c *predictorChain) Enabled() bool {
	if c == nil {
		return false
	}
	if c.primary != nil && c.primary.Enabled() {
		return true
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return true
	}
	return false
}

func (c *predictorChain) Predict(ctx context.Context, records []scoring.FeatureRecord) ([]scoring.Level, error) {
	if c == nil {
		return nil, ErrDisabled
	}
	if c.primary != nil && c.primary.Enabled() {
		labels, err := c.primary.Predict(ctx, records)
		if err == nil && len(labels) == len(records) {
			return labels, nil
		}
		if err != nil {
			logrus.WithError(err).Warn("primary predictor failed; trying fallback")
		}
	}
	if c.fallback != nil && c.fallback.Enabled() {
		return c.fallback.Predict(ctx, records)
	}
	return nil, ErrDisabled
}
