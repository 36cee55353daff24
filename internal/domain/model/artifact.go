package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

// ArtifactFormat identifies the serialised model layout
const ArtifactFormat = "pacelab.kmeans.v1"

// Artifact is the self-contained fitted model written to the artifact store
type Artifact struct {
	Format         string                       `json:"format"`
	ModelID        uuid.UUID                    `json:"model_id"`
	Version        int                          `json:"version"`
	TrainedAt      time.Time                    `json:"trained_at"`
	FeatureColumns []string                     `json:"feature_columns"`
	Scaling        ScalingParams                `json:"scaling"`
	Centroids      [][]float64                  `json:"centroids"`
	LabelMap       map[int]classification.Label `json:"label_map"`
}

// ArtifactStore persists serialised artifacts by key.
// Get returns errors.ErrNotFound for a missing key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewArtifact snapshots the fitted parameters of m
func NewArtifact(m *TrainedModel) *Artifact {
	return &Artifact{
		Format:         ArtifactFormat,
		ModelID:        m.ID,
		Version:        m.Version,
		TrainedAt:      m.TrainedAt,
		FeatureColumns: m.FeatureColumns,
		Scaling:        m.Scaling,
		Centroids:      m.Centroids,
		LabelMap:       m.LabelMap,
	}
}

// Encode serialises the artifact
func (a *Artifact) Encode() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode artifact")
	}
	return data, nil
}

// DecodeArtifact parses and validates a stored artifact
func DecodeArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.WithKind(errors.ErrIntegrity, err, "failed to decode artifact")
	}
	if a.Format != ArtifactFormat {
		return nil, errors.Wrapf(errors.ErrIntegrity, "unsupported artifact format %q", a.Format)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	dim := len(a.FeatureColumns)
	if dim == 0 || len(a.Scaling.Means) != dim || len(a.Scaling.StdDevs) != dim {
		return errors.Wrap(errors.ErrIntegrity, "artifact scaling does not match feature columns")
	}
	if len(a.Centroids) == 0 {
		return errors.Wrap(errors.ErrIntegrity, "artifact has no centroids")
	}
	for _, c := range a.Centroids {
		if len(c) != dim {
			return errors.Wrap(errors.ErrIntegrity, "artifact centroid dimension mismatch")
		}
	}
	if len(a.LabelMap) != len(a.Centroids) {
		return errors.Wrapf(errors.ErrIntegrity, "artifact label map has %d entries for %d clusters",
			len(a.LabelMap), len(a.Centroids))
	}
	owner := make(map[classification.Label]int, len(a.LabelMap))
	for i := range a.Centroids {
		label, ok := a.LabelMap[i]
		if !ok {
			return errors.Wrapf(errors.ErrIntegrity, "artifact label map missing cluster %d", i)
		}
		if prev, dup := owner[label]; dup {
			return errors.Wrapf(errors.ErrIntegrity, "artifact label %q assigned to clusters %d and %d", label, prev, i)
		}
		owner[label] = i
	}
	return nil
}
