// ABOUTME: End-to-end tests for the control server and client
// ABOUTME: Runs a real websocket over httptest against an in-memory registry
package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/internal/metrics"
	"github.com/Resonate-Protocol/hound/internal/protocol"
	"github.com/Resonate-Protocol/hound/internal/version"
	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

var stereo16 = audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingS16LE}

func newTestServer(t *testing.T, cfg Config) (*Server, *hound.Registry, string) {
	t.Helper()
	r := hound.NewRegistry()
	require.NoError(t, r.AddSource(hound.NewSource("mic", stereo16, nil)))
	require.NoError(t, r.AddSource(hound.NewSource("tone", stereo16, nil)))
	require.NoError(t, r.AddSink(hound.NewSink("speakers", audio.Format{}, nil)))

	s := New(cfg, r, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, r, strings.TrimPrefix(ts.URL, "http://")
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServerInfo(t *testing.T) {
	s, _, addr := newTestServer(t, Config{Name: "test-hound"})
	c := dial(t, addr)

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-hound", info.Name)
	assert.Equal(t, s.ServerID(), info.ServerID)
	assert.Equal(t, protocol.Version, info.Version)
	assert.Equal(t, version.Version, info.SoftwareVersion)
}

func TestListAndConnect(t *testing.T) {
	_, r, addr := newTestServer(t, Config{Name: "test"})
	c := dial(t, addr)
	ctx := context.Background()

	sources, err := c.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mic", "tone"}, sources)

	sinks, err := c.Sinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"speakers"}, sinks)

	conn, err := c.Connect(ctx, "tone", "default")
	require.NoError(t, err)
	assert.Equal(t, "tone", conn.Source)
	assert.Equal(t, "speakers", conn.Sink)
	_, err = c.Connect(ctx, "mic", "speakers")
	require.NoError(t, err)

	conns, err := c.Connections(ctx)
	require.NoError(t, err)
	assert.Len(t, conns, 2)
	assert.Len(t, r.ListConnections(), 2)

	g, err := c.Graph(ctx)
	require.NoError(t, err)
	require.Len(t, g.Sinks, 1)
	assert.Equal(t, stereo16, g.Sinks[0].Format)
	assert.Equal(t, 2, g.Sinks[0].Connections)

	n, err := c.DisconnectPair(ctx, "mic", "speakers")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Disconnect(ctx, "", "speakers")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, r.ListConnections())
}

func TestRemoteErrors(t *testing.T) {
	_, _, addr := newTestServer(t, Config{})
	c := dial(t, addr)
	ctx := context.Background()

	_, err := c.Connect(ctx, "nope", "speakers")
	require.Error(t, err)
	assert.ErrorIs(t, err, hound.ErrNotFound)
	assert.Equal(t, hound.KindNotFound, hound.KindOf(err))

	_, err = c.DisconnectPair(ctx, "mic", "speakers")
	assert.ErrorIs(t, err, hound.ErrNotFound)

	_, err = c.Do(ctx, protocol.Request{Type: "volume/set"})
	assert.ErrorIs(t, err, hound.ErrInvalidArgument)

	// the connection stays usable after errors
	_, err = c.Sources(ctx)
	assert.NoError(t, err)
}

func TestMalformedRequest(t *testing.T) {
	_, _, addr := newTestServer(t, Config{})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+Path, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var resp protocol.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.OK)
	assert.Equal(t, "invalid_argument", resp.Kind)

	require.NoError(t, conn.WriteJSON(protocol.Request{ID: "x", Type: protocol.TypeListSinks}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "x", resp.ID)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sinks":["speakers"]`)
}

func TestClientCountAndClose(t *testing.T) {
	s, _, addr := newTestServer(t, Config{})
	c := dial(t, addr)
	_, err := c.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.ClientCount())

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.FramesMixed("speakers", 10)
	_, _, addr := newTestServer(t, Config{Metrics: m.Handler()})

	resp, err := http.Get("http://" + addr + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hound_mixer_frames_total")
}

func TestMetricsDisabled(t *testing.T) {
	_, _, addr := newTestServer(t, Config{})
	resp, err := http.Get("http://" + addr + MetricsPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
