package cluster

import (
	"os"

	"gopkg.in/yaml.v3"

	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/classification"
	"pacelab/pkg/errors"
)

// LabelPolicy names clusters by rank. Centroids are sorted ascending by
// SortFeature in original units and rank i receives OrderedLabels[i].
type LabelPolicy struct {
	SortFeature   string                 `yaml:"sort_feature"`
	OrderedLabels []classification.Label `yaml:"labels"`
}

// DefaultPolicy returns the built-in policy for k, ordered fastest pace first.
// Only k=2 and k=3 have defaults.
func DefaultPolicy(k int) (LabelPolicy, error) {
	switch k {
	case 2:
		return LabelPolicy{
			SortFeature:   activity.ColumnPace,
			OrderedLabels: []classification.Label{classification.LabelRun, classification.LabelWalk},
		}, nil
	case 3:
		return LabelPolicy{
			SortFeature:   activity.ColumnPace,
			OrderedLabels: []classification.Label{classification.LabelRun, classification.LabelMixed, classification.LabelWalk},
		}, nil
	}
	return LabelPolicy{}, errors.Wrapf(errors.ErrInvalidPolicy, "no default label policy for %d clusters", k)
}

// LoadPolicyFile reads a YAML label policy
func LoadPolicyFile(path string) (LabelPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LabelPolicy{}, errors.Wrapf(err, "failed to read label policy %s", path)
	}

	var p LabelPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LabelPolicy{}, errors.WithKind(errors.ErrInvalidPolicy, err, "failed to parse label policy")
	}
	if p.SortFeature == "" {
		p.SortFeature = activity.ColumnPace
	}
	return p, nil
}

// ResolvePolicy picks the policy for k: file first, then explicit labels, then the default
func ResolvePolicy(k int, labels []string, file string) (LabelPolicy, error) {
	var (
		p   LabelPolicy
		err error
	)
	switch {
	case file != "":
		p, err = LoadPolicyFile(file)
	case len(labels) > 0:
		p = LabelPolicy{SortFeature: activity.ColumnPace}
		for _, l := range labels {
			p.OrderedLabels = append(p.OrderedLabels, classification.Label(l))
		}
	default:
		p, err = DefaultPolicy(k)
	}
	if err != nil {
		return LabelPolicy{}, err
	}
	if err := p.Validate(k, activity.DefaultColumns); err != nil {
		return LabelPolicy{}, err
	}
	return p, nil
}

// Validate checks the policy against the cluster count and feature columns
func (p LabelPolicy) Validate(k int, columns []string) error {
	if len(p.OrderedLabels) != k {
		return errors.Wrapf(errors.ErrInvalidPolicy, "policy has %d labels for %d clusters", len(p.OrderedLabels), k)
	}

	seen := make(map[classification.Label]bool, k)
	for _, l := range p.OrderedLabels {
		if l == "" {
			return errors.Wrap(errors.ErrInvalidPolicy, "policy contains an empty label")
		}
		if seen[l] {
			return errors.Wrapf(errors.ErrInvalidPolicy, "policy repeats label %q", l)
		}
		seen[l] = true
	}

	for _, c := range columns {
		if c == p.SortFeature {
			return nil
		}
	}
	return errors.Wrapf(errors.ErrInvalidPolicy, "sort feature %q is not a model column", p.SortFeature)
}

func (p LabelPolicy) sortIndex(columns []string) int {
	for i, c := range columns {
		if c == p.SortFeature {
			return i
		}
	}
	return 0
}
