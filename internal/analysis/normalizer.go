// Package analysis turns the vision model's free-form output into the
// normalized result schema. It is pure: raw bytes in, result or parse error
// out, with no network or storage access.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"dentalcam-backend/internal/apperrors"
	"dentalcam-backend/internal/models"
)

// DefaultConfidence substitutes a missing or non-numeric confidence.
const DefaultConfidence = 0.85

// placeholderBox substitutes a malformed bounding box.
var placeholderBox = []float64{100, 100, 200, 200}

// defaultRecommendations guarantee the consumer-facing contract of a
// non-empty recommendations list.
var defaultRecommendations = []string{
	"Brush your teeth twice daily",
	"Use fluoride toothpaste",
	"Floss once a day",
	"Visit your dentist regularly",
}

// decorative suffixes the upstream model appends to class labels.
var classSuffixes = []string{"-like", "-looking"}

type rawPayload struct {
	Predictions     []map[string]interface{} `json:"predictions"`
	Recommendations []string                 `json:"recommendations"`
}

// Normalize parses a structured vision payload and aggregates it into an
// AnalysisResult. Individual malformed predictions never abort processing
// of their siblings.
func Normalize(raw []byte) (*models.AnalysisResult, error) {
	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperrors.NewBadUpstreamResponse(string(raw), err)
	}
	return aggregate(payload), nil
}

// NormalizeText handles the textual variant: the JSON object may be wrapped
// in markdown fencing or surrounding prose, and may use single quotes.
func NormalizeText(text string) (*models.AnalysisResult, error) {
	candidate := ExtractJSON(text)

	var payload rawPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		// Some model revisions emit single-quoted pseudo-JSON.
		repaired := strings.ReplaceAll(candidate, "'", `"`)
		if err2 := json.Unmarshal([]byte(repaired), &payload); err2 != nil {
			return nil, apperrors.NewBadUpstreamResponse(text, err)
		}
	}
	return aggregate(payload), nil
}

// ExtractJSON pulls the JSON object out of a possibly-fenced, possibly
// prose-wrapped model response. When no object is found the input is
// returned unchanged and left to the parser to reject.
func ExtractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func aggregate(payload rawPayload) *models.AnalysisResult {
	result := &models.AnalysisResult{
		Predictions:     make([]models.Prediction, 0, len(payload.Predictions)),
		DetectionCounts: make(map[string]int),
		Confidences:     make(map[string]float64),
	}

	for _, raw := range payload.Predictions {
		pred := normalizePrediction(raw)
		if pred.Class == "" {
			continue
		}
		result.Predictions = append(result.Predictions, pred)
		result.DetectionCounts[pred.Class]++
		if pct := pred.Confidence * 100; pct > result.Confidences[pred.Class] {
			result.Confidences[pred.Class] = pct
		}
	}

	result.Status, result.PrimaryIssue = deriveStatus(result.DetectionCounts)

	result.Recommendations = payload.Recommendations
	if len(result.Recommendations) == 0 {
		result.Recommendations = append([]string(nil), defaultRecommendations...)
	}

	return result
}

func normalizePrediction(raw map[string]interface{}) models.Prediction {
	pred := models.Prediction{
		Class:      NormalizeClass(raw["class"]),
		Confidence: normalizeConfidence(raw["confidence"]),
		Box:        normalizeBox(raw["box_2d"]),
	}
	return pred
}

// NormalizeClass strips decorative suffixes so labels collapse onto the
// fixed vocabulary.
func NormalizeClass(value interface{}) string {
	name, ok := value.(string)
	if !ok {
		return ""
	}
	for _, suffix := range classSuffixes {
		name = strings.ReplaceAll(name, suffix, "")
	}
	return strings.TrimSpace(name)
}

func normalizeConfidence(value interface{}) float64 {
	conf, ok := value.(float64)
	if !ok {
		return DefaultConfidence
	}
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

func normalizeBox(value interface{}) []float64 {
	list, ok := value.([]interface{})
	if !ok || len(list) != 4 {
		return append([]float64(nil), placeholderBox...)
	}
	box := make([]float64, 4)
	for i, item := range list {
		coord, ok := item.(float64)
		if !ok {
			return append([]float64(nil), placeholderBox...)
		}
		box[i] = coord
	}
	return box
}

// deriveStatus maps detection counts to the overall status by clinical
// severity: caries dominates plaque dominates healthy.
func deriveStatus(counts map[string]int) (string, string) {
	if n := counts[models.ClassCaries]; n > 0 {
		return models.StatusAttentionNeeded, fmt.Sprintf("Detected %d potential cavity areas", n)
	}
	if n := counts[models.ClassPlaque]; n > 0 {
		return models.StatusNeedsImprovement, fmt.Sprintf("Detected %d areas with potential plaque buildup", n)
	}
	if counts[models.ClassHealthy] > 0 {
		return models.StatusGood, "Your teeth appear to be in good condition"
	}
	return models.StatusUnknown, "No specific issues detected"
}
