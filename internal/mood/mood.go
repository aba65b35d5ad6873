// Package mood derives a lightweight sentiment signal from the most recent
// messages of a conversation. The signal is advisory UI decoration; the
// engine treats the classifier as a pluggable strategy so the keyword matcher
// can be swapped for a statistical model without touching reconciliation.
package mood

// Mood is the classified signal for the current conversation window.
type Mood struct {
	ID    string  `json:"id"`
	Emoji string  `json:"emoji"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier maps the last few text message bodies (oldest first) to a mood.
// Returns nil when there is nothing to classify.
type Classifier interface {
	Classify(texts []string) *Mood
}
