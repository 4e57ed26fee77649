package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgecoder/mesh/internal/routing"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		PeerID:      "node-test",
		ListenAddr:  ":0",
		DataDir:     t.TempDir(),
		DeviceClass: "desktop",
	}
}

func TestBuildNodeWiresEveryComponent(t *testing.T) {
	n, err := buildNode(testConfig(t))
	require.NoError(t, err)
	defer n.Close()

	require.NotNil(t, n.gossip)
	require.NotNil(t, n.bleMgr)
	require.NotNil(t, n.routing)
	require.NotNil(t, n.swarm)
	require.NotNil(t, n.credit)
	require.NotNil(t, n.blackls)
	require.NotNil(t, n.anomalyB)
	require.NotNil(t, n.events)
	require.NotNil(t, n.metrics)
}

func TestBuildNodeRejectsMissingPeerID(t *testing.T) {
	cfg := testConfig(t)
	cfg.PeerID = ""
	_, err := buildNode(cfg)
	require.Error(t, err)

	var ec *exitCodeErr
	require.ErrorAs(t, err, &ec)
	require.Equal(t, 1, ec.code)
}

func TestStatusEndpointReturnsSwarmAndPeerSummary(t *testing.T) {
	n, err := buildNode(testConfig(t))
	require.NoError(t, err)
	defer n.Close()

	server := httptest.NewServer(n.httpRouter())
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, "node-test", status.PeerID)
}

func TestRouteEndpointDrivesWaterfallToOfflineStub(t *testing.T) {
	n, err := buildNode(testConfig(t))
	require.NoError(t, err)
	defer n.Close()

	server := httptest.NewServer(n.httpRouter())
	defer server.Close()

	body, err := json.Marshal(routeRequest{Prompt: "hello", Language: "en", Model: "test-model"})
	require.NoError(t, err)

	resp, err := server.Client().Post(server.URL+"/route", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var result routing.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, routing.RouteOffline, result.Route)
	require.NotEmpty(t, result.Output)
}

func TestMeshTokenHashIsDeterministicAndEmptyForNoToken(t *testing.T) {
	require.Empty(t, meshTokenHash(""))
	require.Equal(t, meshTokenHash("shared-secret"), meshTokenHash("shared-secret"))
	require.NotEqual(t, meshTokenHash("a"), meshTokenHash("b"))
}
