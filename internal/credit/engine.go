package credit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// TransactionType enumerates the credit transaction kinds (spec §3).
type TransactionType string

const (
	TxEarn     TransactionType = "earn"
	TxSpend    TransactionType = "spend"
	TxFaucet   TransactionType = "faucet"
	TxTransfer TransactionType = "transfer"
)

// ErrDuplicateReport is returned when a report_id has already been
// accepted (spec §4.11 step 1).
var ErrDuplicateReport = errors.New("duplicate_contribution_report")

// ErrNegativeBalance is returned when an adjustment would drive a
// balance negative outside of an explicit spend (spec §4.11).
var ErrNegativeBalance = errors.New("credit: balance may not go negative")

// ContributionReport is one agent's reported work (spec §3).
type ContributionReport struct {
	ReportID      string
	AgentID       string
	TaskID        string
	ResourceClass ResourceClass
	CPUSeconds    float64
	GPUSeconds    float64
	Success       bool
	QualityScore  float64
	TimestampMs   int64
}

// Transaction is one entry in the append-only credit ledger (spec §3).
type Transaction struct {
	TxID           string
	AccountID      string
	Credits        float64
	Type           TransactionType
	SourceReportID string
	TimestampMs    int64
}

// LoadSnapshot is the mesh load state used to compute load_multiplier
// (spec §4.11).
type LoadSnapshot struct {
	QueuedTasks  int
	ActiveAgents int
}

// Pressure returns queued_tasks / max(1, active_agents).
func (l LoadSnapshot) Pressure() float64 {
	denom := l.ActiveAgents
	if denom < 1 {
		denom = 1
	}
	return float64(l.QueuedTasks) / float64(denom)
}

// Engine is the stateless credit accrual function plus its history log
// (spec §4.11), grounded on the teacher's economic_hooks.go EconomicLedger.
type Engine struct {
	mu sync.Mutex

	seenReports map[string]struct{}
	history     []Transaction
	balances    map[string]float64

	nextTxID uint64
}

// NewEngine creates an empty credit engine.
func NewEngine() *Engine {
	return &Engine{
		seenReports: make(map[string]struct{}),
		balances:    make(map[string]float64),
	}
}

// Accrue processes one contribution report: rejects duplicates, computes
// credits, and appends an earn transaction.
func (e *Engine) Accrue(report ContributionReport, load LoadSnapshot) (Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, seen := e.seenReports[report.ReportID]; seen {
		return Transaction{}, ErrDuplicateReport
	}

	seconds := report.CPUSeconds
	if report.ResourceClass == ResourceGPU {
		seconds = report.GPUSeconds
	}

	credits := seconds * BaseRate(report.ResourceClass) * ClampQualityScore(report.QualityScore) * LoadMultiplier(load.Pressure())

	e.nextTxID++
	tx := Transaction{
		TxID:           fmt.Sprintf("tx-%d", e.nextTxID),
		AccountID:      report.AgentID,
		Credits:        credits,
		Type:           TxEarn,
		SourceReportID: report.ReportID,
		TimestampMs:    report.TimestampMs,
	}

	e.seenReports[report.ReportID] = struct{}{}
	e.history = append(e.history, tx)
	e.balances[report.AgentID] += credits

	return tx, nil
}

// Adjust applies a manual balance correction (faucet or otherwise). A
// negative delta may not drive the balance below zero unless reason is
// "spend" (spec §4.11).
func (e *Engine) Adjust(account string, delta float64, reason string) (Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newBalance := e.balances[account] + delta
	if newBalance < 0 && reason != "spend" {
		return Transaction{}, ErrNegativeBalance
	}

	e.nextTxID++
	txType := TxFaucet
	if reason == "spend" {
		txType = TxSpend
	}
	tx := Transaction{
		TxID:        fmt.Sprintf("tx-%d", e.nextTxID),
		AccountID:   account,
		Credits:     delta,
		Type:        txType,
		TimestampMs: time.Now().UnixMilli(),
	}

	e.balances[account] = newBalance
	e.history = append(e.history, tx)
	return tx, nil
}

// Balance returns the account's running sum of credit transactions.
func (e *Engine) Balance(account string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[account]
}

// History returns a snapshot of all accepted transactions, in
// acceptance order.
func (e *Engine) History() []Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Transaction, len(e.history))
	copy(out, e.history)
	return out
}
