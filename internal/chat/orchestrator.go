package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/llm"
	"github.com/hyperjump/hanashi/internal/memory"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/retrieval"
	"github.com/hyperjump/hanashi/internal/structured"
	"go.uber.org/zap"
)

const defaultBufferSize = 16

// Orchestrator handles chat turns. The stage list is fixed at construction and
// applies to every request; concurrent turns share only the stages' collaborators.
type Orchestrator struct {
	model      llm.ChatModel
	stages     []Stage
	defaults   llm.Options
	bufferSize int
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for stage failures that do not fail the turn.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDefaults sets the model options used when a request does not override them.
func WithDefaults(opts llm.Options) Option {
	return func(o *Orchestrator) { o.defaults = opts }
}

// WithBufferSize sets how many streamed fragments may wait for a slow consumer.
func WithBufferSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// NewOrchestrator returns an orchestrator running stages, in order, around model.
func NewOrchestrator(model llm.ChatModel, stages []Stage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:      model,
		stages:     stages,
		bufferSize: defaultBufferSize,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultStages returns the standard pipeline: memory, then retrieval, then logging.
// Either of augmenter or logging may be nil to leave that stage out.
func DefaultStages(store *memory.Store, augmenter *retrieval.Augmenter, logging *LoggingStage, onResult func(*models.RetrievalResult)) []Stage {
	stages := []Stage{NewMemoryStage(store)}
	if augmenter != nil {
		stages = append(stages, NewRetrievalStage(augmenter, onResult))
	}
	if logging != nil {
		stages = append(stages, logging)
	}
	return stages
}

// Stages returns the stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name()
	}
	return names
}

func (o *Orchestrator) begin(ctx context.Context, mode Mode, req *models.ChatRequest) (*Turn, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.InvalidRequest(string(mode), err)
	}
	t := &Turn{Mode: mode, Request: req, Started: time.Now(), UserText: req.UserPrompt}
	for _, s := range o.stages {
		if err := s.Before(ctx, t); err != nil {
			if isObserver(s) {
				o.logger.Warn("stage failed", zap.String("stage", s.Name()), zap.Error(err))
				continue
			}
			t.Err = err
			o.after(ctx, t)
			return nil, err
		}
	}
	opts := options(o.defaults, req.ChatOptions)
	if mode == ModeStructured {
		opts.JSON = true
	}
	t.Prompt = assemble(t, opts)
	return t, nil
}

// after runs every After hook in reverse order. The first failure of a
// non-observer stage becomes the turn's error.
func (o *Orchestrator) after(ctx context.Context, t *Turn) {
	for i := len(o.stages) - 1; i >= 0; i-- {
		s := o.stages[i]
		if err := s.After(ctx, t); err != nil {
			if isObserver(s) {
				o.logger.Warn("stage failed", zap.String("stage", s.Name()), zap.Error(err))
				continue
			}
			if t.Err == nil {
				t.Err = err
			}
		}
	}
}

func modelError(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.ModelInvocation("invoke model", err)
}

func (o *Orchestrator) response(t *Turn) *models.ChatResponse {
	meta := map[string]interface{}{}
	for k, v := range t.Completion.Metadata {
		meta[k] = v
	}
	meta["conversation_id"] = t.Request.ConversationID
	meta["context_status"] = string(contextStatus(t))
	if t.Retrieval != nil {
		docs := make([]map[string]interface{}, 0, len(t.Retrieval.Result.Chunks))
		for _, sc := range t.Retrieval.Result.Chunks {
			docs = append(docs, map[string]interface{}{
				"chunk_id":    sc.Chunk.ID,
				"document_id": sc.Chunk.DocumentID,
				"source":      sc.Chunk.Metadata[models.MetaSource],
				"score":       sc.Score,
			})
		}
		meta["documents"] = docs
		if t.Retrieval.Degraded {
			meta["retrieval_degraded"] = true
		}
	}
	return &models.ChatResponse{Text: t.Completion.Text, Metadata: meta}
}

// Call runs a blocking turn and returns the full answer. The turn is recorded
// in memory before Call returns.
func (o *Orchestrator) Call(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	t, err := o.begin(ctx, ModeCall, req)
	if err != nil {
		return nil, err
	}
	t.Completion, err = o.model.Call(ctx, t.Prompt)
	if err != nil {
		t.Err = modelError(err)
	}
	o.after(ctx, t)
	if t.Err != nil {
		return nil, t.Err
	}
	return o.response(t), nil
}

// Stream starts a streaming turn. Request validation and the Before stages run
// before Stream returns, so their failures come back as an error. Afterwards
// fragments arrive on the channel in model order, followed by exactly one
// terminal event: Done, or Err. The channel is closed after the terminal event.
//
// Memory is written only when the model finished and ctx was not canceled.
// Canceling ctx stops the model call; the consumer may stop reading after canceling.
func (o *Orchestrator) Stream(ctx context.Context, req *models.ChatRequest) (<-chan models.StreamEvent, error) {
	t, err := o.begin(ctx, ModeStream, req)
	if err != nil {
		return nil, err
	}
	events := make(chan models.StreamEvent, o.bufferSize)
	go func() {
		defer close(events)
		send := func(ev models.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		completion, err := o.model.Stream(ctx, t.Prompt, func(fragment string) error {
			if fragment == "" {
				return nil
			}
			if !send(models.StreamEvent{Text: fragment}) {
				return ctx.Err()
			}
			return nil
		})
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			t.Err = modelError(err)
		} else {
			t.Completion = completion
		}
		// After hooks must still run for a canceled request (logging), but must
		// not inherit its cancellation.
		o.after(context.WithoutCancel(ctx), t)
		if t.Err != nil {
			send(models.StreamEvent{Err: t.Err})
			return
		}
		send(models.StreamEvent{Done: true, Metadata: o.response(t).Metadata})
	}()
	return events, nil
}

// Structured runs a turn whose answer must match schema. The format
// instructions are appended to the user message and the model is asked for
// JSON. The turn is recorded in memory only if decoding succeeds.
func Structured[T any](ctx context.Context, o *Orchestrator, req *models.ChatRequest, schema structured.Schema[T]) (*T, error) {
	t, err := o.beginStructured(ctx, req, schema.Instructions())
	if err != nil {
		return nil, err
	}
	var out *T
	t.Completion, err = o.model.Call(ctx, t.Prompt)
	if err != nil {
		t.Err = modelError(err)
	} else if out, err = structured.Decode(t.Completion.Text, schema); err != nil {
		t.Err = err
	}
	o.after(ctx, t)
	if t.Err != nil {
		return nil, t.Err
	}
	return out, nil
}

func (o *Orchestrator) beginStructured(ctx context.Context, req *models.ChatRequest, instructions string) (*Turn, error) {
	t, err := o.begin(ctx, ModeStructured, req)
	if err != nil {
		return nil, err
	}
	t.Instructions = instructions
	t.Prompt = assemble(t, t.Prompt.Options)
	return t, nil
}

// EvaluateEmotion classifies the emotion of the user prompt.
func (o *Orchestrator) EvaluateEmotion(ctx context.Context, req *models.ChatRequest) (*models.EmotionEvaluation, error) {
	return Structured(ctx, o, req, structured.EmotionSchema)
}

// Complete sends message straight to the model with the default options and no
// stages: no memory, no retrieval.
func (o *Orchestrator) Complete(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", apperr.InvalidRequest("complete", fmt.Errorf("message cannot be empty"))
	}
	c, err := o.model.Call(ctx, &llm.Prompt{
		Messages: []models.Message{models.UserMessage(message)},
		Options:  o.defaults,
	})
	if err != nil {
		return "", modelError(err)
	}
	return c.Text, nil
}
