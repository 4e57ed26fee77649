// Package quality implements the per-peer connection quality monitor
// (spec §4.3): a rolling RSSI/success signal producing a 0-100 score, and
// a circuit-breaker-backed should_blacklist decision.
//
// The teacher (kernel/core/mesh/coordinator.go) hand-rolled a
// CircuitBreaker despite kernel/go.mod already carrying
// github.com/sony/gobreaker unused; per spec §9's open question ("pick
// one canonical site"), this package wires the real library instead of
// hand-rolling another copy.
package quality

import (
	"math"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Config tunes the scoring weights and the circuit breaker used for
// should_blacklist.
type Config struct {
	// RSSIWeight is α in score = clamp(100 + α·(avg_rssi+60) + β·success_ratio, 0, 100).
	RSSIWeight float64
	// SuccessWeight is β in the same formula.
	SuccessWeight float64
	// RSSIWindow bounds how many recent RSSI samples are averaged.
	RSSIWindow int
	// BreakerFailureThreshold is consecutive-failure count that opens a
	// peer's breaker (blacklists it for routing).
	BreakerFailureThreshold uint32
	// BreakerResetTimeout is how long a breaker stays open before
	// probing the peer again (half-open).
	BreakerResetTimeout time.Duration
	// DecayHalfLife is how long a silent peer (no RSSI samples or
	// outcomes recorded) takes for its score to decay halfway back
	// toward the neutral default of 100. Zero disables decay.
	DecayHalfLife time.Duration
}

// neutralRSSI is the assumed average RSSI for a peer with no samples yet;
// paired with a zero success-ratio default, it makes the score formula
// evaluate to exactly 100 for a silent peer without a special case.
const neutralRSSI = -60.0

// DefaultConfig matches the weights implied by spec §4.3: a silent peer
// with no RSSI samples and no recorded outcomes returns exactly 100.
func DefaultConfig() Config {
	return Config{
		RSSIWeight:              0.5,
		SuccessWeight:           20,
		RSSIWindow:              20,
		BreakerFailureThreshold: 5,
		BreakerResetTimeout:     30 * time.Second,
		DecayHalfLife:           5 * time.Minute,
	}
}

// Monitor tracks connection quality across many peers.
type Monitor struct {
	mu     sync.RWMutex
	config Config
	peers  map[string]*peerState
}

type peerState struct {
	rssiSamples []float64
	successes   uint64
	failures    uint64
	lastUpdated time.Time
	breaker     *gobreaker.CircuitBreaker
}

// New creates a connection quality monitor.
func New(config Config) *Monitor {
	return &Monitor{config: config, peers: make(map[string]*peerState)}
}

func (m *Monitor) getOrCreate(peerID string) *peerState {
	if st, ok := m.peers[peerID]; ok {
		return st
	}
	st := &peerState{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        peerID,
			MaxRequests: 1,
			Timeout:     m.config.BreakerResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= m.config.BreakerFailureThreshold
			},
		}),
	}
	m.peers[peerID] = st
	return st
}

// RecordRSSI folds one RSSI sample (dBm) into the peer's rolling window.
func (m *Monitor) RecordRSSI(peerID string, rssi float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.getOrCreate(peerID)
	st.rssiSamples = append(st.rssiSamples, rssi)
	if len(st.rssiSamples) > m.config.RSSIWindow {
		st.rssiSamples = st.rssiSamples[len(st.rssiSamples)-m.config.RSSIWindow:]
	}
	st.lastUpdated = time.Now()
}

// RecordOutcome records a task success or failure for the peer, feeding
// both the success-ratio score term and the should_blacklist breaker.
func (m *Monitor) RecordOutcome(peerID string, success bool) {
	m.mu.Lock()
	st := m.getOrCreate(peerID)
	if success {
		st.successes++
	} else {
		st.failures++
	}
	st.lastUpdated = time.Now()
	m.mu.Unlock()

	// Drive the breaker's consecutive-failure counter via a no-op probe
	// whose result mirrors the reported outcome.
	_, _ = st.breaker.Execute(func() (interface{}, error) {
		if success {
			return nil, nil
		}
		return nil, errOutcomeFailed
	})
}

// Score returns the peer's connection quality in [0, 100]. A peer with
// no recorded samples returns exactly 100 (spec §4.3).
func (m *Monitor) Score(peerID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.peers[peerID]
	if !ok {
		return 100
	}

	avgRSSI := neutralRSSI
	if len(st.rssiSamples) > 0 {
		sum := 0.0
		for _, s := range st.rssiSamples {
			sum += s
		}
		avgRSSI = sum / float64(len(st.rssiSamples))
	}

	successRatio := 0.0
	total := st.successes + st.failures
	if total > 0 {
		successRatio = float64(st.successes) / float64(total)
	}

	score := 100 + m.config.RSSIWeight*(avgRSSI-neutralRSSI) + m.config.SuccessWeight*successRatio
	score = m.decayTowardNeutral(score, st.lastUpdated)
	return clamp(score, 0, 100)
}

// decayTowardNeutral blends score back toward the neutral default of 100
// as time passes since the peer's last recorded signal, so a peer that
// goes silent gradually stops being penalized (or credited) for stale
// RSSI/outcome history instead of freezing at its last value. Grounded on
// the teacher's ReputationManager.applyDecay half-life blend
// (score = default + (score-default)*0.5^(elapsed/halfLife)).
func (m *Monitor) decayTowardNeutral(score float64, lastUpdated time.Time) float64 {
	if m.config.DecayHalfLife <= 0 || lastUpdated.IsZero() {
		return score
	}
	elapsed := time.Since(lastUpdated)
	if elapsed <= 0 {
		return score
	}
	halfLives := elapsed.Seconds() / m.config.DecayHalfLife.Seconds()
	decay := math.Pow(0.5, halfLives)
	return 100 + (score-100)*decay
}

// FailRatio returns the peer's observed failure ratio, used by the BLE
// router's reliability_penalty term (spec §4.5).
func (m *Monitor) FailRatio(peerID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.peers[peerID]
	if !ok {
		return 0
	}
	total := st.successes + st.failures
	if total == 0 {
		return 0
	}
	return float64(st.failures) / float64(total)
}

// ShouldBlacklist reports whether the peer's circuit breaker is open
// (routing should avoid it). A half-open breaker (still probing) reports
// false.
func (m *Monitor) ShouldBlacklist(peerID string) bool {
	m.mu.RLock()
	st, ok := m.peers[peerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return st.breaker.State() == gobreaker.StateOpen
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var errOutcomeFailed = errOutcome{}

type errOutcome struct{}

func (errOutcome) Error() string { return "quality: peer task failed" }
