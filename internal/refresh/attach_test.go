package refresh

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/timetable/internal/model"
	"github.com/dukerupert/timetable/internal/schedule"
	"github.com/dukerupert/timetable/internal/websocket"
)

func TestAttachedSurfaceSeesCurrentStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)

	l := &fakeLister{blocks: []model.Block{
		{ID: 1, Subject: "Math", StartTime: "09:00", EndTime: "09:50", DayOfWeek: 1},
	}}
	r := New(l, func(st schedule.Status) {
		hub.BroadcastRetained(websocket.Message{Type: "status_updated", Entity: "status", Action: "updated", Data: st})
	}, hub.Attached, time.UTC, logger)

	var clock atomic.Pointer[time.Time]
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	clock.Store(&at)
	r.now = func() time.Time { return *clock.Load() }

	hub.OnAttach(func() {
		_, err := r.Refresh()
		assert.NoError(t, err)
	})

	// Retain a status computed at 09:00, then let the clock move on.
	blocks, _ := l.List()
	r.Notify(blocks)
	later := at.Add(3 * time.Hour)
	clock.Store(&later)

	srv := httptest.NewServer(websocket.HandleWebSocket(hub, nil, logger))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg struct {
		Type string          `json:"type"`
		Data schedule.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "status_updated", msg.Type)
	assert.Equal(t, "12:00", msg.Data.Clock)
	assert.Nil(t, msg.Data.Active, "Math ended at 09:50")

	conn.Close(ws.StatusNormalClosure, "")
}
