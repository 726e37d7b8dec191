// Package toxicity maps free text onto six toxicity axes by calling an
// external classifier service, and aggregates the resulting score vectors.
// The classifier is a black box: a list of strings in, per-axis score arrays
// in [0,1] out. Every failure degrades to all-zero scores — a broken model
// must never abort a scrape batch.
package toxicity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/resilience"
)

// Axes is the fixed iteration order over toxicity dimensions. The order is a
// policy decision: when two axes tie for the maximum score, the
// earlier-listed axis wins.
var Axes = []string{
	"toxicity",
	"severe_toxicity",
	"obscene",
	"threat",
	"insult",
	"identity_attack",
}

// Scores is one score vector: six named non-negative values in [0,1].
type Scores struct {
	Toxicity       float64 `json:"toxicity"`
	SevereToxicity float64 `json:"severe_toxicity"`
	Obscene        float64 `json:"obscene"`
	Threat         float64 `json:"threat"`
	Insult         float64 `json:"insult"`
	IdentityAttack float64 `json:"identity_attack"`
}

// Axis returns the value for a named axis.
func (s Scores) Axis(name string) float64 {
	switch name {
	case "toxicity":
		return s.Toxicity
	case "severe_toxicity":
		return s.SevereToxicity
	case "obscene":
		return s.Obscene
	case "threat":
		return s.Threat
	case "insult":
		return s.Insult
	case "identity_attack":
		return s.IdentityAttack
	}
	return 0
}

func (s *Scores) setAxis(name string, v float64) {
	switch name {
	case "toxicity":
		s.Toxicity = v
	case "severe_toxicity":
		s.SevereToxicity = v
	case "obscene":
		s.Obscene = v
	case "threat":
		s.Threat = v
	case "insult":
		s.Insult = v
	case "identity_attack":
		s.IdentityAttack = v
	}
}

// WorstItem is the single (text, axis) pair with the highest score across a
// batch, with the full vector for that text.
type WorstItem struct {
	Message   string  `json:"message"`
	Axis      string  `json:"toxicity_axis"`
	Score     float64 `json:"toxicity_score"`
	AllScores Scores  `json:"all_scores"`
}

// Prediction holds per-axis score arrays, index-aligned with the input texts.
type Prediction map[string][]float64

// Scorer is the classifier dependency. The HTTP client below is the real
// implementation; tests substitute a canned one.
type Scorer interface {
	Predict(ctx context.Context, texts []string) (Prediction, error)
}

// Client calls the classifier service in fixed-size batches to bound memory
// on both sides.
type Client struct {
	url        string
	batchSize  int
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewClient creates a classifier client. batchSize <= 0 falls back to 32.
func NewClient(url string, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Client{
		url:       url,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
}

// Predict scores all texts, batching requests to the classifier.
func (c *Client) Predict(ctx context.Context, texts []string) (Prediction, error) {
	combined := Prediction{}
	for _, axis := range Axes {
		combined[axis] = make([]float64, 0, len(texts))
	}

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.predictBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}

		for _, axis := range Axes {
			scores, ok := batch[axis]
			if !ok || len(scores) != end-start {
				return nil, fmt.Errorf("classifier returned %d scores for axis %q, want %d",
					len(scores), axis, end-start)
			}
			combined[axis] = append(combined[axis], scores...)
		}
	}

	return combined, nil
}

func (c *Client) predictBatch(ctx context.Context, texts []string) (Prediction, error) {
	payload, err := json.Marshal(map[string][]string{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal texts: %w", err)
	}

	resp, err := resilience.RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.NewTransientError("toxicity classifier request failed", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewExternalAPIError("toxicity classifier",
			fmt.Errorf("status %d: %.200s", resp.StatusCode, string(body)))
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return pred, nil
}

// Average returns the arithmetic mean per axis across all texts. Empty input
// or classifier failure yields the zero vector.
func Average(ctx context.Context, scorer Scorer, texts []string) Scores {
	if len(texts) == 0 {
		return Scores{}
	}

	pred, err := scorer.Predict(ctx, texts)
	if err != nil {
		slog.Warn("Toxicity analysis failed, defaulting to zero scores", "error", err)
		return Scores{}
	}

	var avg Scores
	for _, axis := range Axes {
		sum := 0.0
		for _, v := range pred[axis] {
			sum += v
		}
		avg.setAxis(axis, sum/float64(len(texts)))
	}
	return avg
}

// FindWorst scans every (text, axis) pair and returns the strictly
// highest-scoring one. Iteration is text-major then axis-minor with a strict
// comparison, so ties keep the earliest text and, within one text, the
// earlier-listed axis. Returns nil on empty input or classifier failure.
func FindWorst(ctx context.Context, scorer Scorer, texts []string) *WorstItem {
	if len(texts) == 0 {
		return nil
	}

	pred, err := scorer.Predict(ctx, texts)
	if err != nil {
		slog.Warn("Finding worst item failed", "error", err)
		return nil
	}

	worstIdx := -1
	worstAxis := ""
	worstScore := 0.0

	for idx := range texts {
		for _, axis := range Axes {
			score := pred[axis][idx]
			if score > worstScore {
				worstScore = score
				worstIdx = idx
				worstAxis = axis
			}
		}
	}

	if worstIdx < 0 {
		return nil
	}

	var all Scores
	for _, axis := range Axes {
		all.setAxis(axis, pred[axis][worstIdx])
	}

	return &WorstItem{
		Message:   texts[worstIdx],
		Axis:      worstAxis,
		Score:     worstScore,
		AllScores: all,
	}
}
