package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dukerupert/timetable/internal/config"
	"github.com/dukerupert/timetable/internal/database"
	ws "github.com/dukerupert/timetable/internal/websocket"
)

func setupServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize config: %v", err)
	}

	srv := New(db, cfg, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealth(t *testing.T) {
	_, ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRoutes(t *testing.T) {
	_, ts := setupServer(t)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/blocks", "", http.StatusOK},
		{"POST", "/api/blocks", `{"subject":"Math","start_time":"09:00","end_time":"10:00","day_of_week":1}`, http.StatusCreated},
		{"GET", "/api/blocks/1", "", http.StatusOK},
		{"PUT", "/api/blocks/1", `{"subject":"Math","start_time":"09:00","end_time":"10:30","day_of_week":1}`, http.StatusOK},
		{"DELETE", "/api/blocks/1", "", http.StatusNoContent},
		{"DELETE", "/api/blocks", "", http.StatusOK},
		{"GET", "/api/now", "", http.StatusOK},
		{"POST", "/api/status/refresh", "", http.StatusOK},
		{"POST", "/api/display/refresh", "", http.StatusNotFound},
		{"POST", "/api/imports/nope/accept", "", http.StatusNotFound},
		{"PATCH", "/api/blocks/1", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestImportThroughRouter(t *testing.T) {
	srv, ts := setupServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "week.csv")
	fw.Write([]byte("Subject,StartTime,EndTime,DayOfWeek\nMath,09:00,09:50,1\nArt,10:00,10:50,2\n"))
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/imports", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var p struct {
		ID     string            `json:"id"`
		Blocks []json.RawMessage `json:"blocks"`
	}
	json.NewDecoder(resp.Body).Decode(&p)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || len(p.Blocks) != 2 {
		t.Fatalf("upload status = %d, blocks = %d", resp.StatusCode, len(p.Blocks))
	}

	resp, err = http.Post(ts.URL+"/api/imports/"+p.ID+"/accept", "", nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if out["imported"] != float64(2) {
		t.Errorf("imported = %v, want 2", out["imported"])
	}

	blocks, err := srv.BlockStore().List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(blocks) != 2 {
		t.Errorf("stored %d blocks, want 2", len(blocks))
	}
}

func TestUploadRateLimited(t *testing.T) {
	_, ts := setupServer(t)

	var last int
	for i := 0; i <= uploadLimit; i++ {
		req, _ := http.NewRequest("POST", ts.URL+"/api/imports", strings.NewReader("x"))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after limit = %d, want 429", last)
	}
}

func TestDataChangePushesStatus(t *testing.T) {
	_, ts := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Give the hub a moment to register the client.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/blocks", "application/json",
		strings.NewReader(`{"subject":"Math","start_time":"00:00","end_time":"23:59","day_of_week":1}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()

	seen := map[string]bool{}
	for !seen["status_updated"] || !seen["block_created"] {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		seen[msg.Type] = true
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestAttachReceivesStatusImmediately(t *testing.T) {
	_, ts := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "status_updated" {
		t.Errorf("first message type = %q, want status_updated", msg.Type)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
