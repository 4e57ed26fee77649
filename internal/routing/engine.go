// Package routing implements C9, the request routing waterfall:
// Bluetooth-local proxy, local inference, swarm coordinator, and a
// deterministic offline stub, grounded on the teacher's
// kernel/core/mesh/coordinator.go active-job-counter idiom
// (incrementActiveJobs/decrementActiveJobs) applied to routing steps
// instead of chunk distribution.
package routing

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edgecoder/mesh/internal/latency"
)

// Route identifies which waterfall step served a request.
type Route string

const (
	RouteBluetoothLocal Route = "bluetooth_local"
	RouteLocalInference Route = "local_inference"
	RouteSwarm          Route = "swarm"
	RouteOffline        Route = "offline_stub"
)

// DeviceClass selects the concurrency cap and latency threshold that
// apply to local inference (spec §4.9, §5).
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
)

// Limits bundles the per-device-class tunables.
type Limits struct {
	ConcurrencyCap   int32
	LatencyThreshold time.Duration
}

// DefaultLimits returns the spec's default caps for a device class.
func DefaultLimits(class DeviceClass) Limits {
	if class == DeviceMobile {
		return Limits{ConcurrencyCap: 1, LatencyThreshold: 15 * time.Second}
	}
	return Limits{ConcurrencyCap: 2, LatencyThreshold: 8 * time.Second}
}

// BLEProxyStatus reports the local Bluetooth proxy's state (spec §4.9
// step 1).
type BLEProxyStatus struct {
	Connected    bool
	CentralCount int
}

// BLEProxy forwards a request to the local BLE proxy when connected.
type BLEProxy interface {
	Status(ctx context.Context) (BLEProxyStatus, error)
	Forward(ctx context.Context, req Request) (Result, error)
}

// LocalRuntime is the opaque on-device inference backend (spec §1: "the
// specific on-device inference runtime... treated as a black-box
// generator").
type LocalRuntime interface {
	Healthy(ctx context.Context) bool
	Execute(ctx context.Context, req Request) (Result, error)
}

// SwarmClient submits a task descriptor to the swarm coordinator and
// polls for its result (spec §4.9 step 3, §6).
type SwarmClient interface {
	Submit(ctx context.Context, req Request) (taskID string, err error)
	Poll(ctx context.Context, taskID string) (result Result, pending bool, err error)
}

// Request is one inference request entering the waterfall.
type Request struct {
	Prompt   string
	Language string
	Model    string
}

// Result is the outcome of a successfully routed request.
type Result struct {
	Output       string
	Route        Route
	Label        string
	Model        string
	CreditsSpent *float64
	TaskID       string
}

// Engine runs the routing waterfall for one device.
type Engine struct {
	class  DeviceClass
	limits Limits

	bleProxy BLEProxy
	local    LocalRuntime
	swarm    SwarmClient

	hasMeshToken bool

	latency *latency.Tracker
	active  atomic.Int32

	logger *slog.Logger
}

// Config wires an engine's collaborators.
type Config struct {
	Class        DeviceClass
	BLEProxy     BLEProxy
	LocalRuntime LocalRuntime
	SwarmClient  SwarmClient
	HasMeshToken bool
	Logger       *slog.Logger
}

// SwarmPollInterval is how often the swarm step polls for a result.
const SwarmPollInterval = 2 * time.Second

// SwarmPollDeadline bounds the total time spent waiting on swarm.
const SwarmPollDeadline = 90 * time.Second

// New creates a routing engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		class:        cfg.Class,
		limits:       DefaultLimits(cfg.Class),
		bleProxy:     cfg.BLEProxy,
		local:        cfg.LocalRuntime,
		swarm:        cfg.SwarmClient,
		hasMeshToken: cfg.HasMeshToken,
		latency:      latency.New(),
		logger:       logger.With("component", "routing"),
	}
}

// Route runs the waterfall once for req.
func (e *Engine) Route(ctx context.Context, req Request) (Result, error) {
	if res, ok, err := e.tryBluetoothLocal(ctx, req); ok {
		return res, err
	}
	if res, ok, err := e.tryLocalInference(ctx, req); ok {
		return res, err
	}
	if res, ok, err := e.trySwarm(ctx, req); ok {
		return res, err
	}
	return e.offlineStub(req), nil
}

func (e *Engine) tryBluetoothLocal(ctx context.Context, req Request) (Result, bool, error) {
	if e.bleProxy == nil {
		return Result{}, false, nil
	}
	status, err := e.bleProxy.Status(ctx)
	if err != nil || !(status.Connected || status.CentralCount > 0) {
		return Result{}, false, nil
	}
	res, err := e.bleProxy.Forward(ctx, req)
	if err != nil {
		return Result{}, false, nil
	}
	res.Route = RouteBluetoothLocal
	res.Label = "bluetooth"
	return res, true, nil
}

func (e *Engine) tryLocalInference(ctx context.Context, req Request) (Result, bool, error) {
	if e.local == nil {
		return Result{}, false, nil
	}
	if e.active.Load() >= e.limits.ConcurrencyCap {
		return Result{}, false, nil
	}
	if e.latency.P95Estimate() > float64(e.limits.LatencyThreshold.Milliseconds()) && e.latency.Samples() > 0 {
		return Result{}, false, nil
	}
	if !e.local.Healthy(ctx) {
		return Result{}, false, nil
	}

	e.active.Add(1)
	defer e.active.Add(-1)

	start := time.Now()
	res, err := e.local.Execute(ctx, req)
	e.latency.Record(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return Result{}, false, nil
	}
	res.Route = RouteLocalInference
	res.Label = "local"
	return res, true, nil
}

func (e *Engine) trySwarm(ctx context.Context, req Request) (Result, bool, error) {
	if e.swarm == nil || !e.hasMeshToken {
		return Result{}, false, nil
	}
	taskID, err := e.swarm.Submit(ctx, req)
	if err != nil {
		return Result{}, false, nil
	}

	deadline := time.Now().Add(SwarmPollDeadline)
	ticker := time.NewTicker(SwarmPollInterval)
	defer ticker.Stop()

	for {
		result, pending, err := e.swarm.Poll(ctx, taskID)
		if err == nil && !pending {
			result.Route = RouteSwarm
			result.Label = "swarm"
			result.TaskID = taskID
			return result, true, nil
		}
		if err != nil {
			return Result{}, false, nil
		}
		if time.Now().After(deadline) {
			e.logger.Warn("swarm poll deadline exceeded", "task_id", taskID)
			return Result{}, false, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) offlineStub(req Request) Result {
	return Result{
		Output: "I'm currently offline and running in a degraded mode, but here's a canned response to keep things moving.",
		Route:  RouteOffline,
		Label:  "offline",
		Model:  req.Model,
	}
}
