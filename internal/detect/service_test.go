package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzerClientProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewAnalyzerClient(srv.URL)
	assert.True(t, c.Available())
}

func TestAnalyzerClientUnavailable(t *testing.T) {
	assert.False(t, NewAnalyzerClient("").Available())
	assert.False(t, NewAnalyzerClient("http://127.0.0.1:1").Available())
}

func TestAnalyzerClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/analyze":
			var req analyzeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "en", req.Language)
			assert.Equal(t, "email me at a@b.co", req.Text)
			json.NewEncoder(w).Encode([]AnalyzerResult{
				{EntityType: TypeEmail, Start: 12, End: 18, Score: 0.85},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewAnalyzerClient(srv.URL)
	require.True(t, c.Available())

	results, err := c.Analyze(context.Background(), "email me at a@b.co")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, TypeEmail, results[0].EntityType)
	assert.Equal(t, 0.85, results[0].Score)
}

func TestAnalyzerClientAnalyzeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewAnalyzerClient(srv.URL)
	_, err := c.Analyze(context.Background(), "text")
	assert.Error(t, err)
}

func TestServiceDetectionMergesWithHigherPriority(t *testing.T) {
	// The service scores the same span at equal confidence as the pattern
	// method; the service result must win the tie.
	text := "reach me at jane@co.com"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode([]AnalyzerResult{
			{EntityType: TypeEmail, Start: 12, End: 23, Score: 0.9},
		})
	}))
	defer srv.Close()

	d := MustNewDetector(WithAnalyzer(NewAnalyzerClient(srv.URL)))
	assert.True(t, d.Status()["service"])

	findings := d.Detect(context.Background(), text)
	require.Len(t, findings, 1)
	assert.Equal(t, MethodService, findings[0].Method)
	assert.Equal(t, TypeEmail, findings[0].EntityType)
}
