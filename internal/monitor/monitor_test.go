package monitor

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-lab/go/testingx"
	"github.com/m-lab/shapebench/internal/plan"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + spec.MonitorPath
	dialer := websocket.Dialer{Subprotocols: []string{spec.SecWebSocketProtocol}}
	conn, _, err := dialer.Dial(u, nil)
	testingx.Must(t, err, "cannot dial monitor")
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Event {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev Event
	testingx.Must(t, conn.ReadJSON(&ev), "cannot read event")
	return ev
}

func TestBroadcaster(t *testing.T) {
	b := New()
	mux := http.NewServeMux()
	mux.Handle(spec.MonitorPath, b)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sweeps, err := plan.Default().Sweeps()
	testingx.Must(t, err, "cannot build sweeps")
	b.OnSweepStart(sweeps[1])

	conn := dial(t, srv)
	defer conn.Close()

	ev := read(t, conn)
	if ev.Type != EventSweepStart || ev.Group != model.GroupBandwidth || ev.Points != 6 {
		t.Errorf("unexpected replayed event: %+v", ev)
	}

	b.OnRecord(model.TestRecord{TestID: 7, Point: sweeps[1].Points[1],
		Status: model.StatusSuccess, DurationMS: 901})
	b.OnError(errors.New("boom"))
	b.OnDebug("not sent")
	b.OnSummary([]model.TestRecord{{Status: model.StatusSuccess}, {Status: model.StatusTimeout}})

	ev = read(t, conn)
	if ev.Type != EventRecord || ev.Record == nil || ev.Record.TestID != 7 || ev.Record.DurationMS != 901 {
		t.Errorf("unexpected record event: %+v", ev)
	}
	ev = read(t, conn)
	if ev.Type != EventError || ev.Error != "boom" {
		t.Errorf("unexpected error event: %+v", ev)
	}
	ev = read(t, conn)
	if ev.Type != EventSummary || ev.Transfers != 2 || ev.Failed != 1 {
		t.Errorf("unexpected summary event: %+v", ev)
	}

	b.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}
	if b.Observers() != 0 {
		t.Errorf("observers still registered after Close")
	}
}

func TestUpgrade_RequiresSubprotocol(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	testingx.Must(t, err, "cannot GET")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
