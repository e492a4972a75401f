package eval

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/observe"
)

const defaultScorerTimeout = 10 * time.Second

// Scored pairs a scorer id with its result for one turn.
type Scored struct {
	ScorerID string `json:"scorerId"`
	Result
}

// Pipeline runs a fixed scorer set against sampled turns and hands every
// non-skipped result to a Recorder. Scorers are isolated from each other:
// an error or panic in one becomes a failed result for that scorer only.
type Pipeline struct {
	scorers  []Scorer
	rate     float64
	random   func() float64
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration

	inflight sync.WaitGroup
}

type Option func(*Pipeline)

// WithSamplingRate sets the fraction of turns that are scored. Values are
// clamped to [0, 1].
func WithSamplingRate(rate float64) Option {
	return func(p *Pipeline) {
		p.rate = min(max(rate, 0), 1)
	}
}

// WithRandom replaces the sampling source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.random = fn
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithScorerTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPipeline(scorers []Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		scorers: append([]Scorer(nil), scorers...),
		rate:    1,
		random:  rand.Float64,
		logger:  zap.NewNop(),
		timeout: defaultScorerTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ScorerIDs lists the configured scorers in order.
func (p *Pipeline) ScorerIDs() []string {
	ids := make([]string, 0, len(p.scorers))
	for _, s := range p.scorers {
		ids = append(ids, s.ID())
	}
	return ids
}

func (p *Pipeline) sampled() bool {
	if p.rate >= 1 {
		return true
	}
	if p.rate <= 0 {
		return false
	}
	return p.random() < p.rate
}

// Evaluate scores payload in the background and returns immediately. The
// return value reports whether the turn was sampled.
func (p *Pipeline) Evaluate(ctx context.Context, payload Payload) bool {
	if !p.sampled() {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.run(ctx, payload)
	}()
	return true
}

// EvaluateSync scores payload and returns every result, including skips.
// Non-skipped results are also recorded. ok is false when the turn was not
// sampled.
func (p *Pipeline) EvaluateSync(ctx context.Context, payload Payload) (results []Scored, ok bool) {
	if !p.sampled() {
		return nil, false
	}
	return p.run(ctx, payload), true
}

// Wait blocks until background evaluations started by Evaluate finish.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

func (p *Pipeline) run(ctx context.Context, payload Payload) []Scored {
	n := Normalize(payload)
	results := p.score(ctx, n)
	for _, r := range results {
		if r.Skipped() {
			continue
		}
		p.record(ctx, n, r)
	}
	return results
}

func (p *Pipeline) score(ctx context.Context, n Normalized) []Scored {
	results := make([]Scored, len(p.scorers))
	var wg sync.WaitGroup
	for i, s := range p.scorers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = Scored{ScorerID: s.ID(), Result: p.scoreOne(ctx, s, n)}
		}()
	}
	wg.Wait()
	return results
}

// scoreOne runs s with the scorer timeout enforced. A scorer that ignores
// its context is abandoned at the deadline and reported as failed; its
// goroutine exits whenever the scorer returns.
func (p *Pipeline) scoreOne(ctx context.Context, s Scorer, n Normalized) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("scorer panicked", zap.String("scorer_id", s.ID()), zap.Any("panic", r))
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := s.Score(ctx, n)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = fmt.Errorf("scorer timed out after %s: %w", p.timeout, ctx.Err())
	}
	if out.err != nil {
		p.logger.Warn("scorer failed", zap.String("scorer_id", s.ID()), zap.Error(out.err))
		return failed(out.err)
	}
	res := out.res
	res.Score = clamp(res.Score)
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	return res
}

func failed(err error) Result {
	return Result{Score: 0, Passed: false, Metadata: map[string]any{"error": err.Error()}}
}

func (p *Pipeline) record(ctx context.Context, n Normalized, s Scored) {
	if p.recorder == nil {
		return
	}
	meta := make(map[string]any, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		meta[k] = v
	}
	if n.ConversationID != "" {
		meta["conversationId"] = n.ConversationID
	}
	err := p.recorder.SaveEvalResult(ctx, observe.EvalResult{
		ConversationID: n.ConversationID,
		ScorerID:       s.ScorerID,
		Score:          s.Score,
		Passed:         s.Passed,
		Metadata:       meta,
	})
	if err != nil {
		p.logger.Warn("eval result not recorded", zap.String("scorer_id", s.ScorerID), zap.Error(err))
	}
}
