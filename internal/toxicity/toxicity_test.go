package toxicity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedScorer serves fixed per-axis arrays.
type cannedScorer struct {
	pred Prediction
	err  error
}

func (c *cannedScorer) Predict(ctx context.Context, texts []string) (Prediction, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.pred, nil
}

func flatPrediction(values ...float64) Prediction {
	pred := Prediction{}
	for _, axis := range Axes {
		pred[axis] = append([]float64{}, values...)
	}
	return pred
}

func TestAverage(t *testing.T) {
	scorer := &cannedScorer{pred: flatPrediction(0.2, 0.4, 0.6)}

	avg := Average(context.Background(), scorer, []string{"a", "b", "c"})
	assert.InDelta(t, 0.4, avg.Toxicity, 1e-9)
	assert.InDelta(t, 0.4, avg.IdentityAttack, 1e-9)
}

func TestAverageEmptyInput(t *testing.T) {
	scorer := &cannedScorer{pred: flatPrediction()}

	avg := Average(context.Background(), scorer, nil)
	assert.Equal(t, Scores{}, avg)
}

func TestAverageDegradesOnError(t *testing.T) {
	scorer := &cannedScorer{err: fmt.Errorf("model crashed")}

	avg := Average(context.Background(), scorer, []string{"a"})
	assert.Equal(t, Scores{}, avg, "classifier failure yields the zero vector")
}

func TestFindWorst(t *testing.T) {
	pred := flatPrediction(0.1, 0.3)
	pred["insult"] = []float64{0.2, 0.9}
	scorer := &cannedScorer{pred: pred}

	worst := FindWorst(context.Background(), scorer, []string{"first", "second"})
	require.NotNil(t, worst)
	assert.Equal(t, "second", worst.Message)
	assert.Equal(t, "insult", worst.Axis)
	assert.InDelta(t, 0.9, worst.Score, 1e-9)
	assert.InDelta(t, 0.3, worst.AllScores.Toxicity, 1e-9)
}

func TestFindWorstTieKeepsEarliestTextAndAxis(t *testing.T) {
	// Every (text, axis) pair scores the same; the strict comparison keeps
	// the first text and the first-listed axis.
	scorer := &cannedScorer{pred: flatPrediction(0.5, 0.5)}

	worst := FindWorst(context.Background(), scorer, []string{"first", "second"})
	require.NotNil(t, worst)
	assert.Equal(t, "first", worst.Message)
	assert.Equal(t, "toxicity", worst.Axis)
}

func TestFindWorstEmptyInput(t *testing.T) {
	scorer := &cannedScorer{pred: flatPrediction()}
	assert.Nil(t, FindWorst(context.Background(), scorer, nil))
}

func TestFindWorstAllZero(t *testing.T) {
	scorer := &cannedScorer{pred: flatPrediction(0, 0)}
	assert.Nil(t, FindWorst(context.Background(), scorer, []string{"a", "b"}),
		"nothing scores above zero, so there is no worst commit")
}

func TestClientPredictBatches(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		var req map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		texts := req["texts"]
		assert.LessOrEqual(t, len(texts), 2)

		pred := Prediction{}
		for _, axis := range Axes {
			scores := make([]float64, len(texts))
			for i := range scores {
				scores[i] = 0.5
			}
			pred[axis] = scores
		}
		json.NewEncoder(w).Encode(pred)
	}))
	defer server.Close()

	client := NewClient(server.URL, 2)
	pred, err := client.Predict(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, 3, requests, "five texts at batch size two make three calls")
	assert.Len(t, pred["toxicity"], 5)
}

func TestClientPredictBadAxisLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Prediction{"toxicity": {0.1}})
	}))
	defer server.Close()

	client := NewClient(server.URL, 32)
	_, err := client.Predict(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}
