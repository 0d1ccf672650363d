// Package narrator rewrites extracted document text as a first-person cat
// narrative by calling a chat-style model once per chunk.
package narrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/chunker"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultModel            = "gpt-3.5-turbo"
	DefaultMaxTokens        = 3000
	DefaultTemperature      = 0.8
	DefaultTopP             = 0.9
	DefaultFrequencyPenalty = 0.1
	DefaultPresencePenalty  = 0.1
	DefaultPacing           = time.Second

	// perChunkEstimate and perGapEstimate feed EstimateProcessingTime only.
	perChunkEstimate = 10 * time.Second
	perGapEstimate   = time.Second
	pingMaxTokens    = 10
)

// Request is one chat round-trip.
type Request struct {
	System           string
	User             string
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// ChatClient is the external text-rewriting capability.
type ChatClient interface {
	// Configured reports missing credentials without a network call.
	Configured() error
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Pacer is consulted before every external call. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config is passed explicitly at construction; nothing is read from the
// environment here.
type Config struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	ChunkSize        int
	Pacing           time.Duration
	Logger           *slog.Logger
}

// DefaultConfig returns the sampling parameters the narrator was tuned with.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		MaxTokens:        DefaultMaxTokens,
		Temperature:      DefaultTemperature,
		TopP:             DefaultTopP,
		FrequencyPenalty: DefaultFrequencyPenalty,
		PresencePenalty:  DefaultPresencePenalty,
		ChunkSize:        chunker.DefaultChunkSize,
		Pacing:           DefaultPacing,
	}
}

func (c *Config) defaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	c.Temperature = min(max(c.Temperature, 0), 2)
	if c.TopP <= 0 || c.TopP > 1 {
		c.TopP = d.TopP
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Pacing <= 0 {
		c.Pacing = d.Pacing
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Narrator is the transformer adapter.
type Narrator struct {
	client ChatClient
	pacer  Pacer
	cfg    Config
}

type Option func(*Narrator)

// WithPacer replaces the default min-interval limiter.
func WithPacer(p Pacer) Option {
	return func(n *Narrator) { n.pacer = p }
}

func New(client ChatClient, cfg Config, opts ...Option) *Narrator {
	cfg.defaults()
	n := &Narrator{
		client: client,
		cfg:    cfg,
		pacer:  NewIntervalPacer(cfg.Pacing),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewIntervalPacer allows one call immediately and then one per interval.
func NewIntervalPacer(interval time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Transform rewrites text chunk by chunk, strictly in sequence. Any failed or
// empty chunk aborts the whole transform.
func (n *Narrator) Transform(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &models.TransformationError{Reason: "input text is empty"}
	}
	if err := n.client.Configured(); err != nil {
		return "", models.Permanent(&models.TransformationError{Reason: "narrator is not configured", Err: err})
	}

	chunks := chunker.SplitIntoChunks(text, n.cfg.ChunkSize)
	logCtx := n.cfg.Logger.With("backend", n.client.Name(), "chunks", len(chunks))
	logCtx.Info("Starting narrative transformation.", "inputLength", len(text))

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := n.pacer.Wait(ctx); err != nil {
			return "", &models.TransformationError{Reason: "pacing interrupted", Err: err}
		}
		out, err := n.client.Complete(ctx, n.request(UserPrompt(chunk), n.cfg.MaxTokens))
		if err != nil {
			return "", &models.TransformationError{Reason: fmt.Sprintf("chunk %d of %d", i+1, len(chunks)), Err: err}
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return "", &models.TransformationError{
				Reason: fmt.Sprintf("narrator returned an empty response for chunk %d of %d", i+1, len(chunks)),
			}
		}
		if isRefusal(out) {
			return "", &models.TransformationError{
				Reason: fmt.Sprintf("narrator refused chunk %d of %d", i+1, len(chunks)),
			}
		}
		parts = append(parts, out)
		logCtx.Debug("Chunk transformed.", "chunk", i+1, "outputLength", len(out))
	}

	result := PostProcess(strings.Join(parts, "\n\n"))
	logCtx.Info("Narrative transformation complete.", "outputLength", len(result))
	return result, nil
}

// EstimateProcessingTime is a user-facing estimate only.
func (n *Narrator) EstimateProcessingTime(text string) time.Duration {
	return EstimateProcessingTime(text, n.cfg.ChunkSize)
}

func EstimateProcessingTime(text string, chunkSize int) time.Duration {
	chunks := len(chunker.SplitIntoChunks(text, chunkSize))
	if chunks == 0 {
		return 0
	}
	return time.Duration(chunks)*perChunkEstimate + time.Duration(chunks-1)*perGapEstimate
}

// Configured reports missing credentials of the backend.
func (n *Narrator) Configured() error {
	return n.client.Configured()
}

// ValidateReadiness checks credentials and makes one tiny round-trip. It
// never returns an error; every failure is logged and reported as false.
func (n *Narrator) ValidateReadiness(ctx context.Context) bool {
	logCtx := n.cfg.Logger.With("backend", n.client.Name())
	if err := n.client.Configured(); err != nil {
		logCtx.Warn("Narrator credentials missing.", "error", err)
		return false
	}
	out, err := n.client.Complete(ctx, n.request(PingPrompt, pingMaxTokens))
	if err != nil {
		logCtx.Warn("Narrator readiness ping failed.", "error", err)
		return false
	}
	if strings.TrimSpace(out) == "" {
		logCtx.Warn("Narrator readiness ping returned nothing.")
		return false
	}
	return true
}

func (n *Narrator) request(user string, maxTokens int) Request {
	return Request{
		System:           SystemPrompt,
		User:             user,
		Model:            n.cfg.Model,
		MaxTokens:        maxTokens,
		Temperature:      n.cfg.Temperature,
		TopP:             n.cfg.TopP,
		FrequencyPenalty: n.cfg.FrequencyPenalty,
		PresencePenalty:  n.cfg.PresencePenalty,
	}
}

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// PostProcess collapses runs of blank lines, trims, and makes sure the text
// ends on terminal punctuation.
func PostProcess(text string) string {
	text = strings.TrimSpace(extraNewlines.ReplaceAllString(text, "\n\n"))
	if text == "" {
		return text
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return text
	}
	return text + "."
}

func isRefusal(text string) bool {
	head := strings.ToLower(text)
	if len(head) > 40 {
		head = head[:40]
	}
	for _, phrase := range refusalPhrases {
		if strings.HasPrefix(head, phrase) {
			return true
		}
	}
	return false
}
