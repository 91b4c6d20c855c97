package models

import (
	"encoding/json"
	"fmt"
)

// Emotion is the closed set of classifications an evaluation may carry.
type Emotion string

const (
	EmotionHappy   Emotion = "HAPPY"
	EmotionSad     Emotion = "SAD"
	EmotionAngry   Emotion = "ANGRY"
	EmotionNeutral Emotion = "NEUTRAL"
)

// Emotions lists every accepted value in declaration order.
var Emotions = []Emotion{EmotionHappy, EmotionSad, EmotionAngry, EmotionNeutral}

// ParseEmotion returns the Emotion named by s or an error if s is not one of Emotions.
func ParseEmotion(s string) (Emotion, error) {
	for _, e := range Emotions {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown emotion %q", s)
}

// UnmarshalJSON rejects values outside the enumerated set.
func (e *Emotion) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("emotion must be a string: %w", err)
	}
	parsed, err := ParseEmotion(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// EmotionEvaluation is the structured result of an emotion request.
type EmotionEvaluation struct {
	Emotion Emotion  `json:"emotion"`
	Reasons []string `json:"reasons"`
}
