// Package pipeline runs one utterance through decode → transcribe → reply →
// synthesize.
//
// Decode and transcription failures are answered with a fixed apology, and
// a reply failure with a fixed failure phrase, so the client always hears
// something. A synthesis failure cannot be masked and is returned to the
// caller as a KindSynthesis error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadzzz/voicegate/internal/audio"
	"github.com/nadzzz/voicegate/internal/history"
	"github.com/nadzzz/voicegate/internal/interpreter"
	"github.com/nadzzz/voicegate/internal/metrics"
	"github.com/nadzzz/voicegate/internal/tts"
)

// Config holds the fixed texts, voice and limits applied to every turn.
type Config struct {
	Persona      string
	ApologyText  string
	FailureText  string
	Voice        string
	Format       string
	Language     string
	StageTimeout time.Duration // zero means no per-stage limit
}

// Processor is stateless and safe for concurrent use.
type Processor struct {
	cfg         Config
	normalizer  *audio.Normalizer
	transcriber interpreter.Transcriber
	replier     interpreter.Replier
	synthesizer tts.Synthesizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics records stage latencies and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// New creates a Processor.
func New(cfg Config, n *audio.Normalizer, tr interpreter.Transcriber, rp interpreter.Replier, sy tts.Synthesizer, opts ...Option) *Processor {
	if n == nil {
		n = audio.NewNormalizer()
	}
	p := &Processor{
		cfg:         cfg,
		normalizer:  n,
		transcriber: tr,
		replier:     rp,
		synthesizer: sy,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Process runs turn through all stages using ctxEntries as the rolling
// context. It mutates turn in place and returns the clip to deliver.
func (p *Processor) Process(ctx context.Context, turn *Turn, ctxEntries []history.Entry) Result[Speech] {
	start := time.Now()
	logger := p.logger.With("seq", turn.Seq)

	text := p.respond(ctx, turn, ctxEntries, logger)
	if err := ctx.Err(); err != nil {
		turn.Status = StatusFailed
		return Fail[Speech](KindTransport, err)
	}

	speech, err := p.Speak(ctx, text)
	if err != nil {
		turn.Status = StatusFailed
		p.metrics.RecordStageFailure(KindSynthesis.String())
		logger.Warn("synthesis failed", "error", err)
		return Fail[Speech](KindSynthesis, err)
	}

	turn.Status = StatusSynthesized
	logger.Debug("turn processed",
		"outcome", turn.Outcome(),
		"audio_bytes", len(speech.Audio),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Ok(speech)
}

// respond runs stages 1-3 and returns the text to synthesize.
func (p *Processor) respond(ctx context.Context, turn *Turn, ctxEntries []history.Entry, logger *slog.Logger) string {
	pcm, err := runStage(ctx, p, "normalize", func(ctx context.Context) (*audio.PCMBuffer, error) {
		return p.normalizer.NormalizeContext(ctx, turn.Audio, turn.Format)
	})
	if err != nil {
		p.mask(turn, KindDecode, err, logger)
		return p.cfg.ApologyText
	}

	transcript, err := runStage(ctx, p, "transcribe", func(ctx context.Context) (string, error) {
		return p.transcriber.Transcribe(ctx, pcm, interpreter.TranscribeOpts{Language: p.cfg.Language})
	})
	if err == nil && strings.TrimSpace(transcript) == "" {
		err = ErrNoSpeech
	}
	if err != nil {
		p.mask(turn, KindTranscription, err, logger)
		return p.cfg.ApologyText
	}
	turn.Transcript = strings.TrimSpace(transcript)
	turn.Status = StatusTranscribed
	logger.Debug("transcribed", "text_length", len(turn.Transcript), "audio_ms", pcm.Duration().Milliseconds())

	reply, err := runStage(ctx, p, "reply", func(ctx context.Context) (string, error) {
		return p.replier.Reply(ctx, interpreter.ReplyRequest{
			Persona:   p.cfg.Persona,
			History:   ctxEntries,
			Utterance: turn.Transcript,
		})
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = interpreter.ErrEmptyReply
	}
	if err != nil {
		p.mask(turn, KindReply, err, logger)
		return p.cfg.FailureText
	}
	turn.Reply = strings.TrimSpace(reply)
	turn.Status = StatusReplied
	turn.replied = true
	return turn.Reply
}

// Speak synthesizes text with the configured voice and format.
func (p *Processor) Speak(ctx context.Context, text string) (Speech, error) {
	res, err := runStage(ctx, p, "synthesize", func(ctx context.Context) (*tts.SynthesizeResult, error) {
		return p.synthesizer.Synthesize(ctx, text, tts.SynthesizeOpts{
			Voice:    p.cfg.Voice,
			Format:   p.cfg.Format,
			Language: p.cfg.Language,
		})
	})
	if err != nil {
		return Speech{}, err
	}
	if len(res.Audio) == 0 {
		return Speech{}, errors.New("synthesizer returned no audio")
	}
	format := res.Format
	if format == "" {
		format = p.cfg.Format
	}
	return Speech{Audio: res.Audio, Format: format}, nil
}

func (p *Processor) mask(turn *Turn, kind Kind, err error, logger *slog.Logger) {
	turn.Masked = append(turn.Masked, &Error{Kind: kind, Err: err})
	p.metrics.RecordStageFailure(kind.String())
	logger.Warn("stage failed, using fixed phrase", "kind", kind.String(), "error", err)
}

// runStage calls fn under the per-stage timeout and records its latency.
func runStage[T any](ctx context.Context, p *Processor, stage string, fn func(context.Context) (T, error)) (T, error) {
	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	v, err := fn(ctx)
	p.metrics.RecordStage(stage, time.Since(start))
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("%s timed out after %s: %w", stage, p.cfg.StageTimeout, err)
	}
	return v, err
}
