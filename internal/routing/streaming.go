package routing

import (
	"context"
	"strings"
	"sync"
	"time"
)

// StreamToken is one chunk of a streamed response.
type StreamToken struct {
	Text string
	Done bool
}

// StreamingRuntime is a LocalRuntime variant that can stream raw tokens.
type StreamingRuntime interface {
	LocalRuntime
	ExecuteStream(ctx context.Context, req Request) (<-chan StreamToken, error)
}

// Progress is the get_progress() snapshot exposed during a streaming
// route (spec §4.9).
type Progress struct {
	Tokens       int
	ElapsedMs    int64
	Route        Route
	Label        string
	Model        string
	CreditsSpent *float64
}

// StreamSession tracks one in-flight streaming route so callers can poll
// get_progress() concurrently with consuming the token channel.
type StreamSession struct {
	mu       sync.Mutex
	progress Progress
	start    time.Time
}

func newStreamSession(route Route, label, model string) *StreamSession {
	return &StreamSession{
		progress: Progress{Route: route, Label: label, Model: model},
		start:    time.Now(),
	}
}

// GetProgress returns the current snapshot.
func (s *StreamSession) GetProgress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	p.ElapsedMs = time.Since(s.start).Milliseconds()
	return p
}

func (s *StreamSession) recordToken() {
	s.mu.Lock()
	s.progress.Tokens++
	s.mu.Unlock()
}

func (s *StreamSession) setCredits(credits float64) {
	s.mu.Lock()
	s.progress.CreditsSpent = &credits
	s.mu.Unlock()
}

// RouteStream determines the route with the same predicates as Route,
// then either streams raw tokens from local inference or synthesizes a
// single-chunk stream from the non-streaming waterfall (spec §4.9).
func (e *Engine) RouteStream(ctx context.Context, req Request) (<-chan StreamToken, *StreamSession, error) {
	bleReady := false
	if e.bleProxy != nil {
		if st, err := e.bleProxy.Status(ctx); err == nil && (st.Connected || st.CentralCount > 0) {
			bleReady = true
		}
	}
	if sr, ok := e.local.(StreamingRuntime); ok && !bleReady && e.localInferenceViable(ctx) {
		session := newStreamSession(RouteLocalInference, "local", req.Model)
		tokens, err := sr.ExecuteStream(ctx, req)
		if err == nil {
			e.active.Add(1)
			out := make(chan StreamToken)
			go func() {
				defer e.active.Add(-1)
				defer close(out)
				start := time.Now()
				for tok := range tokens {
					session.recordToken()
					out <- tok
				}
				e.latency.Record(float64(time.Since(start).Milliseconds()))
			}()
			return out, session, nil
		}
	}

	result, err := e.Route(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	session := newStreamSession(result.Route, result.Label, result.Model)
	if result.CreditsSpent != nil {
		session.setCredits(*result.CreditsSpent)
	}
	session.progress.Tokens = len(strings.Fields(result.Output))

	out := make(chan StreamToken, 1)
	out <- StreamToken{Text: result.Output, Done: true}
	close(out)
	return out, session, nil
}

func (e *Engine) localInferenceViable(ctx context.Context) bool {
	if e.local == nil {
		return false
	}
	if e.active.Load() >= e.limits.ConcurrencyCap {
		return false
	}
	if e.latency.Samples() > 0 && e.latency.P95Estimate() > float64(e.limits.LatencyThreshold.Milliseconds()) {
		return false
	}
	return e.local.Healthy(ctx)
}
