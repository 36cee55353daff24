package classifier

import (
	"math"
	"time"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/ml/cluster"
	"pacelab/pkg/errors"
)

// Decision is either an MLDecision or a FallbackDecision
type Decision interface {
	Result(recordID int64, at time.Time) classification.Result
	decision()
}

// MLDecision is a nearest-centroid answer from the active model
type MLDecision struct {
	Model      *model.TrainedModel
	Cluster    int
	Label      classification.Label
	Confidence float64
	Distances  []float64
}

func (MLDecision) decision() {}

// Result converts the decision into a classification result
func (d MLDecision) Result(recordID int64, at time.Time) classification.Result {
	id, version := d.Model.ID, d.Model.Version
	return classification.Result{
		RecordID:     recordID,
		Label:        d.Label,
		Confidence:   d.Confidence,
		Method:       classification.MethodML,
		ModelID:      &id,
		ModelVersion: &version,
		Timestamp:    at,
	}
}

// FallbackDecision is a rule-based answer with the reason the model was skipped
type FallbackDecision struct {
	Reason     string
	Label      classification.Label
	Confidence float64
	Cause      error
}

func (FallbackDecision) decision() {}

// Result converts the decision into a classification result
func (d FallbackDecision) Result(recordID int64, at time.Time) classification.Result {
	return classification.Result{
		RecordID:       recordID,
		Label:          d.Label,
		Confidence:     d.Confidence,
		Method:         classification.MethodRuleFallback,
		Timestamp:      at,
		FallbackReason: d.Reason,
	}
}

// Classifier applies a trained model with a rule fallback. It holds no model
// state; callers pass the model they read for the request.
type Classifier struct {
	fallback FallbackRule
}

// New creates a classifier
func New(fallback FallbackRule) (*Classifier, error) {
	if err := fallback.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{fallback: fallback}, nil
}

// Decide classifies one record. m may be nil when no model is active.
func (c *Classifier) Decide(m *model.TrainedModel, r activity.Record) Decision {
	if m == nil {
		return c.fallbackFor(r, classification.ReasonNoActiveModel, errors.ErrNoActiveModel)
	}

	fv := activity.Extract(r)
	if !fv.Valid {
		return c.fallbackFor(r, classification.ReasonInvalidFeatures,
			errors.Wrap(errors.ErrClassificationInput, fv.Reason))
	}

	point, err := scale(m, fv)
	if err != nil {
		return c.fallbackFor(r, classification.ReasonInvalidFeatures, err)
	}

	nearest, distances := cluster.Nearest(point, m.Centroids)
	label, ok := m.LabelMap[nearest]
	if !ok {
		return c.fallbackFor(r, classification.ReasonInvalidFeatures,
			errors.Wrapf(errors.ErrIntegrity, "cluster %d has no label", nearest))
	}

	return MLDecision{
		Model:      m,
		Cluster:    nearest,
		Label:      label,
		Confidence: cluster.Confidence(distances),
		Distances:  distances,
	}
}

func (c *Classifier) fallbackFor(r activity.Record, reason string, cause error) FallbackDecision {
	return FallbackDecision{
		Reason:     reason,
		Label:      c.fallback.Label(r.Timestamp),
		Confidence: c.fallback.Confidence,
		Cause:      cause,
	}
}

// scale maps features into the model's standardised space
func scale(m *model.TrainedModel, fv activity.FeatureVector) ([]float64, error) {
	values, ok := fv.Values(m.FeatureColumns)
	dim := m.Dimension()
	if !ok || len(values) != dim || len(m.Scaling.Means) != dim || len(m.Scaling.StdDevs) != dim {
		return nil, errors.Wrap(errors.ErrClassificationInput, "feature dimension does not match model")
	}
	for _, centroid := range m.Centroids {
		if len(centroid) != dim {
			return nil, errors.Wrap(errors.ErrClassificationInput, "centroid dimension does not match model")
		}
	}

	point := make([]float64, dim)
	for i, v := range values {
		std := m.Scaling.StdDevs[i]
		if std == 0 {
			std = 1
		}
		point[i] = (v - m.Scaling.Means[i]) / std
		if math.IsNaN(point[i]) || math.IsInf(point[i], 0) {
			return nil, errors.Wrap(errors.ErrClassificationInput, "scaled feature is not finite")
		}
	}
	return point, nil
}
