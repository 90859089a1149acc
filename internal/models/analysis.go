package models

// Overall status values derived from detection counts. Severity ordering is
// caries over plaque over healthy.
const (
	StatusGood             = "Good"
	StatusNeedsImprovement = "Needs improvement"
	StatusAttentionNeeded  = "Attention needed"
	StatusUnknown          = "Unknown"
)

// Known detection classes emitted by the vision model.
const (
	ClassCaries  = "caries"
	ClassPlaque  = "plaque"
	ClassHealthy = "healthy"
)

// Prediction is a single detection. Box is [y0, x0, y1, x1].
type Prediction struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box_2d"`
}

// AnalysisResult is the normalized output of one vision analysis.
// Confidences are per-class maxima expressed as percentages (0-100).
type AnalysisResult struct {
	Predictions     []Prediction       `json:"predictions"`
	DetectionCounts map[string]int     `json:"detection_counts"`
	Confidences     map[string]float64 `json:"confidences"`
	Status          string             `json:"status"`
	PrimaryIssue    string             `json:"primary_issue"`
	Recommendations []string           `json:"recommendations"`
	Filename        string             `json:"filename,omitempty"`
}
