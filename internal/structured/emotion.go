package structured

import (
	"encoding/json"

	"github.com/hyperjump/hanashi/internal/models"
)

func emotionNames() []string {
	out := make([]string, len(models.Emotions))
	for i, e := range models.Emotions {
		out[i] = string(e)
	}
	return out
}

// EmotionSchema is the shape of an emotion evaluation.
var EmotionSchema = Schema[models.EmotionEvaluation]{
	Name: "emotion evaluation",
	Fields: []Field{
		{Name: "emotion", Type: TypeString, Enum: emotionNames(), Description: "the emotion expressed by the user"},
		{Name: "reasons", Type: TypeStringArray, Description: "short reasons for the classification"},
	},
	Build: func(fields map[string]json.RawMessage) (models.EmotionEvaluation, error) {
		var ev models.EmotionEvaluation
		if err := json.Unmarshal(fields["emotion"], &ev.Emotion); err != nil {
			return ev, err
		}
		if err := json.Unmarshal(fields["reasons"], &ev.Reasons); err != nil {
			return ev, err
		}
		return ev, nil
	},
}

// DecodeEmotion decodes raw model output into an EmotionEvaluation.
func DecodeEmotion(raw string) (*models.EmotionEvaluation, error) {
	return Decode(raw, EmotionSchema)
}
