package models

// Confidence grades how decisive a classification stage was.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ClassificationResult is the ephemeral outcome of the private-vs-commercial
// pipeline. It is logged for observability and never persisted.
type ClassificationResult struct {
	Allowed    bool
	Reason     string
	Confidence Confidence
}
