package eventstream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopicMatchesWildcardRules(t *testing.T) {
	require.True(t, topicMatches(map[string]struct{}{}, "peer.joined"))
	require.True(t, topicMatches(map[string]struct{}{"*": {}}, "peer.joined"))
	require.True(t, topicMatches(map[string]struct{}{"peer.*": {}}, "peer.joined"))
	require.False(t, topicMatches(map[string]struct{}{"peer.*": {}}, "credit.settled"))
	require.True(t, topicMatches(map[string]struct{}{"credit.settled": {}}, "credit.settled"))
}

func dialHub(t *testing.T, server *httptest.Server, topics string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	if topics != "" {
		url += "?topics=" + topics
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server, "peer.*")
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish("peer.joined", "evt-1", map[string]string{"peer_id": "p1"}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, "peer.joined", got.Topic)
	require.Equal(t, "evt-1", got.ID)
}

func TestPublishSkipsNonMatchingSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server, "credit.*")
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish("peer.joined", "evt-1", nil))

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err) // read timeout, nothing delivered
}

func TestUnregisterOnDisconnectDropsSubscriberCount(t *testing.T) {
	hub := NewHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server, "")
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}
