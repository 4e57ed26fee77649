package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/edgecoder/mesh/internal/ble/common"
	"github.com/edgecoder/mesh/internal/codec"
	"github.com/stretchr/testify/require"
)

type mockAdapter struct {
	handles      []PeerHandle
	identities   map[string]common.Identity
	capabilities map[string]common.PeerCapability
	identityReads map[string]int
	response     common.TaskResponse
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		identities:    make(map[string]common.Identity),
		capabilities:  make(map[string]common.PeerCapability),
		identityReads: make(map[string]int),
	}
}

func (m *mockAdapter) Advertise(ctx context.Context, identity common.Identity) error { return nil }

func (m *mockAdapter) Scan(ctx context.Context) ([]PeerHandle, error) { return m.handles, nil }

func (m *mockAdapter) ReadIdentity(ctx context.Context, h PeerHandle) (common.Identity, error) {
	m.identityReads[h.ID]++
	return m.identities[h.ID], nil
}

func (m *mockAdapter) ReadCapabilities(ctx context.Context, h PeerHandle) (common.PeerCapability, error) {
	return m.capabilities[h.ID], nil
}

func (m *mockAdapter) WriteChunk(ctx context.Context, h PeerHandle, chunk []byte) error { return nil }

func (m *mockAdapter) Notifications(ctx context.Context, h PeerHandle) (<-chan []byte, error) {
	payload, _ := json.Marshal(m.response)
	frames, _ := codec.EncodeStream(payload, codec.DefaultMTU)
	ch := make(chan []byte, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch, nil
}

func TestRefreshPeersReadsIdentityOnce(t *testing.T) {
	adapter := newMockAdapter()
	adapter.handles = []PeerHandle{{ID: "peer-a", RSSI: -40}}
	adapter.identities["peer-a"] = common.Identity{AgentID: "peer-a", Model: "llama"}
	adapter.capabilities["peer-a"] = common.PeerCapability{DeviceType: common.DevicePhone}

	tr := New(adapter, nil)
	require.NoError(t, tr.RefreshPeers(context.Background()))
	require.NoError(t, tr.RefreshPeers(context.Background()))

	require.Equal(t, 1, adapter.identityReads["peer-a"])
	peers := tr.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, "peer-a", peers[0].Capability.AgentID)
}

func TestRefreshPeersEvictsStale(t *testing.T) {
	adapter := newMockAdapter()
	adapter.handles = []PeerHandle{{ID: "peer-b"}}
	adapter.identities["peer-b"] = common.Identity{AgentID: "peer-b"}

	tr := New(adapter, nil)
	require.NoError(t, tr.RefreshPeers(context.Background()))
	require.Len(t, tr.Peers(), 1)

	tr.mu.Lock()
	tr.peers["peer-b"].LastSeen = time.Now().Add(-2 * common.StaleAfter)
	tr.mu.Unlock()

	adapter.handles = nil
	require.NoError(t, tr.RefreshPeers(context.Background()))
	require.Len(t, tr.Peers(), 0)
}

func TestSendTaskRoundTrip(t *testing.T) {
	adapter := newMockAdapter()
	adapter.response = common.TaskResponse{Status: "completed", Output: "42", CPUSeconds: 1.5}

	tr := New(adapter, nil)
	resp, err := tr.SendTask(context.Background(), PeerHandle{ID: "peer-c"}, common.TaskRequest{TaskID: "t1", Kind: "exec"})
	require.NoError(t, err)
	require.Equal(t, "completed", resp.Status)
	require.Equal(t, "42", resp.Output)
}
