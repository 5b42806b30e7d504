package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"netsentry/internal/model"
)

// Artifact is the exported form of an externally trained linear
// classifier: a binary logistic regression plus an optional multiclass
// head, with the scaler and feature ordering used at training time.
type Artifact struct {
	Version      string   `json:"version"`
	FeatureOrder []string `json:"feature_order"`

	Scaler struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`

	Binary struct {
		Coefficients []float64 `json:"coefficients"`
		Intercept    float64   `json:"intercept"`
	} `json:"binary"`

	Classes         []string    `json:"classes,omitempty"`
	ClassWeights    [][]float64 `json:"class_weights,omitempty"`
	ClassIntercepts []float64   `json:"class_intercepts,omitempty"`
}

// ArtifactEngine applies a loaded artifact with preprocessing identical
// to training: fixed feature order, NaN sanitation, standard scaling.
type ArtifactEngine struct {
	artifact  *Artifact
	threshold threshold
}

// NewArtifactEngine loads and validates an artifact file. Errors wrap
// model.ErrClassifierUnavailable so callers can fall back.
func NewArtifactEngine(path string, t float64) (*ArtifactEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrClassifierUnavailable, err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: corrupt artifact: %v", model.ErrClassifierUnavailable, err)
	}
	if err := artifact.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrClassifierUnavailable, err)
	}

	engine := &ArtifactEngine{artifact: &artifact}
	engine.threshold.set(t)
	return engine, nil
}

func (a *Artifact) validate() error {
	n := len(a.FeatureOrder)
	if n == 0 {
		return fmt.Errorf("artifact has no feature order")
	}
	if len(a.Binary.Coefficients) != n {
		return fmt.Errorf("binary coefficients length %d does not match %d features", len(a.Binary.Coefficients), n)
	}
	if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
		return fmt.Errorf("scaler parameter length does not match %d features", n)
	}
	if len(a.Classes) > 0 {
		if len(a.ClassWeights) != len(a.Classes) || len(a.ClassIntercepts) != len(a.Classes) {
			return fmt.Errorf("multiclass head is inconsistent with %d classes", len(a.Classes))
		}
		for i, w := range a.ClassWeights {
			if len(w) != n {
				return fmt.Errorf("class %q weights length %d does not match %d features", a.Classes[i], len(w), n)
			}
		}
	}
	return nil
}

// SetThreshold updates the binary decision threshold.
func (e *ArtifactEngine) SetThreshold(t float64) {
	e.threshold.set(t)
}

// Predict applies the artifact to a feature vector.
func (e *ArtifactEngine) Predict(fv *model.FeatureVector) *model.ModelPrediction {
	start := time.Now()

	x := e.prepare(fv)

	z := e.artifact.Binary.Intercept
	for i, w := range e.artifact.Binary.Coefficients {
		z += w * x[i]
	}
	prob := clamp01(sigmoid(z))

	thresh := e.threshold.get()
	isAttack := prob > thresh

	pred := &model.ModelPrediction{
		Timestamp:         fv.Timestamp,
		FlowKey:           fv.FlowKey,
		IsAttack:          isAttack,
		AttackProbability: prob,
		ModelVersion:      e.artifact.Version,
		ThresholdUsed:     thresh,
	}

	if isAttack && len(e.artifact.Classes) > 0 {
		pred.AttackClass, pred.ClassProbabilities = e.predictClass(x)
	}

	pred.ProcessingTime = time.Since(start)
	return pred
}

// prepare orders, sanitizes and scales the features exactly as the
// training pipeline did.
func (e *ArtifactEngine) prepare(fv *model.FeatureVector) []float64 {
	x := make([]float64, len(e.artifact.FeatureOrder))
	for i, name := range e.artifact.FeatureOrder {
		x[i] = sanitize(fv.ValueByName(name))
	}
	for i := range x {
		scale := e.artifact.Scaler.Scale[i]
		if scale == 0 {
			x[i] = 0
			continue
		}
		x[i] = sanitize((x[i] - e.artifact.Scaler.Mean[i]) / scale)
	}
	return x
}

// predictClass runs the multiclass head as a softmax over linear scores.
func (e *ArtifactEngine) predictClass(x []float64) (string, map[string]float64) {
	scores := make([]float64, len(e.artifact.Classes))
	maxScore := math.Inf(-1)
	for i, weights := range e.artifact.ClassWeights {
		z := e.artifact.ClassIntercepts[i]
		for j, w := range weights {
			z += w * x[j]
		}
		scores[i] = z
		if z > maxScore {
			maxScore = z
		}
	}

	sum := 0.0
	for i, z := range scores {
		scores[i] = math.Exp(z - maxScore)
		sum += scores[i]
	}

	probs := make(map[string]float64, len(scores))
	best := 0
	for i, class := range e.artifact.Classes {
		probs[class] = scores[i] / sum
		if scores[i] > scores[best] {
			best = i
		}
	}
	return e.artifact.Classes[best], probs
}
