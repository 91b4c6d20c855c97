package models

import (
	"encoding/json"
	"testing"
)

func TestRetrievalQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *RetrievalQuery
		wantErr bool
	}{
		{"empty text", &RetrievalQuery{Text: ""}, true},
		{"blank text", &RetrievalQuery{Text: "   "}, true},
		{"valid query", &RetrievalQuery{Text: "hello", TopK: 3, Threshold: 0.3}, false},
		{"sets default top-k", &RetrievalQuery{Text: "x", TopK: 0}, false},
		{"caps top-k at 100", &RetrievalQuery{Text: "x", TopK: 200}, false},
		{"clamps threshold", &RetrievalQuery{Text: "x", Threshold: 1.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.query.TopK < 1 || tt.query.TopK > 100 {
				t.Errorf("top-k out of range: %d", tt.query.TopK)
			}
			if tt.query.Threshold < 0 || tt.query.Threshold > 1 {
				t.Errorf("threshold out of range: %v", tt.query.Threshold)
			}
		})
	}
}

func TestRetrievalQuery_BlankFilterCleared(t *testing.T) {
	q := &RetrievalQuery{Text: "x", FilterExpression: "  \t"}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.HasFilter() || q.FilterExpression != "" {
		t.Errorf("blank filter should be cleared, got %q", q.FilterExpression)
	}
}

func TestChatRequest_Validate(t *testing.T) {
	r := &ChatRequest{UserPrompt: "hi"}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	if r.ConversationID != DefaultConversationID {
		t.Errorf("conversation id = %q, want %q", r.ConversationID, DefaultConversationID)
	}
	if err := (&ChatRequest{UserPrompt: " "}).Validate(); err == nil {
		t.Error("expected error for blank prompt")
	}
}

func TestEmotion_UnmarshalJSON(t *testing.T) {
	var ev EmotionEvaluation
	if err := json.Unmarshal([]byte(`{"emotion":"SAD","reasons":["rain"]}`), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Emotion != EmotionSad || len(ev.Reasons) != 1 {
		t.Errorf("got %+v", ev)
	}
	if err := json.Unmarshal([]byte(`{"emotion":"EXCITED"}`), &ev); err == nil {
		t.Error("expected error for unknown emotion")
	}
	if err := json.Unmarshal([]byte(`{"emotion":3}`), &ev); err == nil {
		t.Error("expected error for non-string emotion")
	}
}

func TestSpanLen(t *testing.T) {
	if (Span{Start: 3, End: 10}).Len() != 7 {
		t.Error("span length")
	}
}
