package estimate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Model is the persisted regression payload. It predicts log-seconds, so
// Predict exponentiates. Feature names travel with the weights: a model
// trained against an older schema refuses to predict rather than silently
// misaligning columns.
type Model struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`

	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`

	// Priors are the per-priority delivered-duration medians captured at
	// training time, with the static fallbacks filling in where the run
	// had too few samples. Blended predictions lean on these instead of a
	// live heuristic, so an estimate is reproducible from the payload
	// alone.
	Priors map[models.Priority]int64 `json:"priors,omitempty"`

	// PriceScale standardizes the price columns. Computed on the train
	// split only and replayed at inference, so rows line up with the
	// fitted weights.
	PriceScale Scale `json:"price_scale"`

	Stats TrainStats `json:"stats"`
}

// Scale is a column standardization captured at training time.
type Scale struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// apply standardizes v; the zero Scale is the identity.
func (s Scale) apply(v float64) float64 {
	std := s.Std
	if std <= 0 {
		std = 1
	}
	return (v - s.Mean) / std
}

// TrainStats summarizes the evaluation of a training run, on the seeded
// holdout and on the train split itself. A train error far below the
// holdout error reads as overfit.
type TrainStats struct {
	Samples      int     `json:"samples"`
	Anchors      int     `json:"anchors"`
	HoldoutCount int     `json:"holdout_count"`
	MAESec       float64 `json:"mae_sec"`
	MAPE         float64 `json:"mape"`
	TrainMAESec  float64 `json:"train_mae_sec"`
	TrainMAPE    float64 `json:"train_mape"`

	// Mean absolute percentage error per detected segment, where the
	// holdout had at least one sample carrying the token.
	SegmentMAPE map[string]float64 `json:"segment_mape,omitempty"`
}

// Predict returns the model's duration in seconds for the feature row.
func (m *Model) Predict(row []float64) (int64, error) {
	if len(row) != len(m.Weights) {
		return 0, fmt.Errorf("feature width %d does not match model %s (%d weights)",
			len(row), m.Version, len(m.Weights))
	}
	logSec := dot(m.Weights, row)
	return int64(expSec(logSec)), nil
}

// PriorFor returns the trained duration prior for a priority, or 0 when the
// payload predates priors.
func (m *Model) PriorFor(p models.Priority) int64 {
	return m.Priors[p]
}

// Compatible reports whether the model was trained with the current schema.
func (m *Model) Compatible() bool {
	current := FeatureNames()
	if len(m.FeatureNames) != len(current) || len(m.Weights) != len(current) {
		return false
	}
	for i := range current {
		if m.FeatureNames[i] != current[i] {
			return false
		}
	}
	return true
}

// DecodeModel parses a persisted payload.
func DecodeModel(payload []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode model payload: %w", err)
	}
	return &m, nil
}

// Encode serializes the model for the trained_models table.
func (m *Model) Encode() ([]byte, error) {
	return json.Marshal(m)
}
