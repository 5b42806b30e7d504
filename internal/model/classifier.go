package model

// Classifier is the pluggable classification contract. Implementations
// must keep AttackProbability within [0,1] and set IsAttack exactly when
// the probability exceeds the active threshold.
type Classifier interface {
	// Predict classifies a single feature vector.
	Predict(fv *FeatureVector) *ModelPrediction

	// SetThreshold updates the binary decision threshold, clamped to [0,1].
	SetThreshold(t float64)
}
