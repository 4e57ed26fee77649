package obsmetrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := New()
	reg.TasksRouted.WithLabelValues("swarm").Inc()
	reg.GossipPeers.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "edgecoder_routing_tasks_routed_total")
	require.Contains(t, body, "edgecoder_gossip_known_peers 3")
}
