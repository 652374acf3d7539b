package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// Generator produces plaintext password candidates. Returning fewer
// candidates than requested (including none) signals exhaustion.
type Generator interface {
	Generate(ctx context.Context, count int) ([]string, error)
}

// HTTPGenerator calls the external generation service
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGenerator creates a client for the generation service
func NewHTTPGenerator(baseURL string) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	Count int `json:"count"`
}

type generateResponse struct {
	Passwords []string `json:"passwords"`
}

// Generate requests a batch of candidates from the service
func (g *HTTPGenerator) Generate(ctx context.Context, count int) ([]string, error) {
	body, err := json.Marshal(generateRequest{Count: count})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generator returned status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode generator response: %w", err)
	}

	return parsed.Passwords, nil
}

// Stream adapts a Generator into a lazily refilled candidate sequence.
// Batches are requested only as the consumer drains them, bounding how
// far generation runs ahead of the cracking tool.
type Stream struct {
	ctx       context.Context
	gen       Generator
	batchSize int
	remaining int
	buf       []string
	pos       int
	exhausted bool
}

// NewStream creates a bounded-prefetch stream over a generator. The
// stream yields at most total candidates in batches of batchSize.
func NewStream(ctx context.Context, gen Generator, total, batchSize int) *Stream {
	if total < 0 {
		total = 0
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Stream{
		ctx:       ctx,
		gen:       gen,
		batchSize: batchSize,
		remaining: total,
	}
}

// Next yields the next candidate, requesting a fresh batch when the
// buffer runs dry. A short or empty batch marks the stream exhausted.
func (s *Stream) Next() (string, bool) {
	for {
		if s.pos < len(s.buf) {
			candidate := s.buf[s.pos]
			s.pos++
			if candidate == "" {
				continue
			}
			return candidate, true
		}

		if s.exhausted || s.remaining <= 0 {
			return "", false
		}

		count := s.batchSize
		if count > s.remaining {
			count = s.remaining
		}

		batch, err := s.gen.Generate(s.ctx, count)
		if err != nil {
			debug.Warning("Candidate generator failed, ending stream: %v", err)
			s.exhausted = true
			return "", false
		}
		if len(batch) < count {
			s.exhausted = true
		}
		if len(batch) == 0 {
			return "", false
		}

		s.remaining -= len(batch)
		s.buf = batch
		s.pos = 0
	}
}
