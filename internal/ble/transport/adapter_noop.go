package transport

import (
	"context"
	"errors"

	"github.com/edgecoder/mesh/internal/ble/common"
)

// NoopAdapter is a null-object Adapter: it advertises and discovers
// nothing. cmd/edgecoder wires it in on deployments with no native
// Bluetooth hardware bridge compiled in, so the rest of the BLE stack
// (C4-C7) still constructs and runs rather than needing a nil check at
// every call site.
type NoopAdapter struct{}

func (NoopAdapter) Advertise(ctx context.Context, identity common.Identity) error { return nil }

func (NoopAdapter) Scan(ctx context.Context) ([]PeerHandle, error) { return nil, nil }

func (NoopAdapter) ReadIdentity(ctx context.Context, h PeerHandle) (common.Identity, error) {
	return common.Identity{}, errors.New("ble: noop adapter has no peers")
}

func (NoopAdapter) ReadCapabilities(ctx context.Context, h PeerHandle) (common.PeerCapability, error) {
	return common.PeerCapability{}, errors.New("ble: noop adapter has no peers")
}

func (NoopAdapter) WriteChunk(ctx context.Context, h PeerHandle, chunk []byte) error {
	return errors.New("ble: noop adapter cannot write")
}

func (NoopAdapter) Notifications(ctx context.Context, h PeerHandle) (<-chan []byte, error) {
	return nil, errors.New("ble: noop adapter has no notifications")
}
