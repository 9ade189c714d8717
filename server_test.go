package visionstream

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/visionstream/internal/serve"
	"github.com/lanikai/visionstream/internal/stream"
	"github.com/lanikai/visionstream/internal/transport"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	s, err := NewServer(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { s.Close() })
	return s, srv
}

func do(t *testing.T, method, url, body string, out interface{}) int {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func grayFrame(width, height int) stream.ImageFrame {
	return stream.ImageFrame{
		Width:  width,
		Height: height,
		Format: stream.Gray8,
		Pix:    bytes.Repeat([]byte{0x80}, width*height),
	}
}

func TestServerListStreams(t *testing.T) {
	_, srv := newTestServer(t, DefaultConfig())

	var all map[string]map[string]interface{}
	require.Equal(t, http.StatusOK, do(t, "GET", srv.URL+"/api/streams", "", &all))
	require.Len(t, all, 3)
	assert.Equal(t, "native", all["h264"]["resolution"])
	assert.Equal(t, float64(stream.DefaultFPS), all["raw"]["fps"])
	assert.Equal(t, true, all["result"]["enabled"])
	assert.Equal(t, "disabled", all["raw"]["state"])
}

func TestServerUpdateResolution(t *testing.T) {
	s, srv := newTestServer(t, DefaultConfig())
	var restarted []stream.StreamType
	s.OnRestart = func(st stream.StreamType) { restarted = append(restarted, st) }

	var resp map[string]interface{}
	require.Equal(t, http.StatusOK, do(t, "PATCH", srv.URL+"/api/streams/raw", `{"resolution": "720p"}`, &resp))
	assert.Equal(t, true, resp["restartRequired"])
	assert.Equal(t, "720p", resp["resolution"])
	assert.Equal(t, []stream.StreamType{stream.Raw}, restarted)
	assert.Equal(t, stream.R720p, s.Manager.GetResolution(stream.Raw))

	require.Equal(t, http.StatusOK, do(t, "PATCH", srv.URL+"/api/streams/raw", `{"fps": 5, "enabled": false}`, &resp))
	assert.Equal(t, false, resp["restartRequired"])
	assert.Equal(t, stream.Config{Enabled: false, FPS: 5, Resolution: stream.R720p}, s.Manager.Config(stream.Raw))
	assert.Len(t, restarted, 1)
}

func TestServerRejectsInvalidUpdate(t *testing.T) {
	s, srv := newTestServer(t, DefaultConfig())

	var resp errorResponse
	require.Equal(t, http.StatusBadRequest, do(t, "PATCH", srv.URL+"/api/streams/result", `{"resolution": "4k", "fps": 1}`, &resp))
	assert.Contains(t, resp.Error, "invalid resolution")
	assert.Equal(t, stream.DefaultConfig(), s.Manager.Config(stream.Result))

	require.Equal(t, http.StatusBadRequest, do(t, "PATCH", srv.URL+"/api/streams/raw", `{"fps": 2000000000}`, &resp))
	assert.Contains(t, resp.Error, "fps out of range")
	assert.Equal(t, stream.DefaultConfig(), s.Manager.Config(stream.Raw))

	assert.Equal(t, http.StatusBadRequest, do(t, "PATCH", srv.URL+"/api/streams/result", `not json`, nil))
	assert.Equal(t, http.StatusNotFound, do(t, "GET", srv.URL+"/api/streams/depth", "", nil))
}

func TestServerSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotDir = t.TempDir()
	s, srv := newTestServer(t, cfg)

	var failure errorResponse
	require.Equal(t, http.StatusConflict, do(t, "POST", srv.URL+"/api/streams/raw/snapshot", "", &failure))
	assert.Contains(t, failure.Error, "no frame available")

	require.NoError(t, s.Manager.UpdateRaw(grayFrame(8, 8)))

	var created snapshotResponse
	require.Equal(t, http.StatusCreated, do(t, "POST", srv.URL+"/api/streams/raw/snapshot", "", &created))
	data, err := os.ReadFile(created.Location)
	require.NoError(t, err)
	_, err = jpeg.DecodeConfig(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestServerSnapshotsDisabled(t *testing.T) {
	s, srv := newTestServer(t, DefaultConfig())
	require.NoError(t, s.Manager.UpdateRaw(grayFrame(8, 8)))
	assert.Equal(t, http.StatusNotImplemented, do(t, "POST", srv.URL+"/api/streams/raw/snapshot", "", nil))
}

func TestServerStats(t *testing.T) {
	s, srv := newTestServer(t, DefaultConfig())
	require.NoError(t, s.Manager.UpdateEncoded(stream.EncodedFrame{Data: []byte{0, 0, 1, 0x65, 0x88}, PTS: 10}))
	assert.Error(t, s.Manager.UpdateEncoded(stream.EncodedFrame{Data: []byte{0, 0, 1, 0x41, 0x9a}, PTS: 5}))

	var stats stream.Stats
	require.Equal(t, http.StatusOK, do(t, "GET", srv.URL+"/api/streams/h264/stats", "", &stats))
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, int64(10), stats.LastPTS)
}

func TestServerStreamsToViewers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Streams = map[string]stream.Params{
		"result": stream.Params{}.WithFPS(50).WithResolution("720p"),
	}
	s, srv := newTestServer(t, cfg)
	require.NoError(t, s.Start())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/result"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.Viewers(stream.Result) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Manager.UpdateResult(grayFrame(64, 36)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	hdr, payload, err := transport.ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, stream.Result, hdr.Type)
	assert.Equal(t, uint64(1), hdr.Seq)

	img, err := jpeg.DecodeConfig(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Width)
	assert.Equal(t, 720, img.Height)

	assert.Eventually(t, func() bool { return s.loop.State(stream.Result) == serve.Serving }, 2*time.Second, 5*time.Millisecond)
}
