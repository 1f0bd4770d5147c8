package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"songforge/internal/app"
	"songforge/internal/catalog"
	"songforge/internal/credits"
	"songforge/internal/ratelimit"
	"songforge/internal/sim"
	"songforge/pkg/domain"
)

func newTestServer(t *testing.T, startingCredits int, failureRate float64, limiter ratelimit.Limiter) (*httptest.Server, *app.App) {
	t.Helper()
	store := catalog.NewMemoryStore()
	if err := catalog.SeedSamples(store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	a, err := app.New(app.Config{
		StartingCredits: startingCredits,
		GenerationCost:  20,
		Stagger:         time.Millisecond,
		Sim: sim.Config{
			FailureRate:  failureRate,
			BaseInterval: time.Millisecond,
		},
		Catalog: store,
		Ledger:  credits.NewMemoryLedger(startingCredits),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: a, Limiter: limiter})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, a
}

func dialSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd domain.Command) {
	t.Helper()
	data, err := domain.EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateGeneration(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)

	body := bytes.NewBufferString(`{"prompt":"uplifting orchestral theme music"}`)
	resp, err := http.Post(ts.URL+"/api/generate", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var g domain.Generation
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.ID == "" || g.Title == "" || g.Status != domain.StatusPending {
		t.Fatalf("draft = %+v", g)
	}

	listResp, err := http.Get(ts.URL + "/api/generate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer listResp.Body.Close()
	var listed struct {
		Generations []domain.Generation `json:"generations"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Generations) != 1 || listed.Generations[0].ID != g.ID {
		t.Fatalf("list = %+v", listed.Generations)
	}
}

func TestCreateGenerationRejectsEmptyPrompt(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	resp, err := http.Post(ts.URL+"/api/generate", "application/json", bytes.NewBufferString(`{"prompt":"   "}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateGenerationRateLimited(t *testing.T) {
	limiter, err := ratelimit.NewMemoryFixedWindow(1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	ts, _ := newTestServer(t, 120, 0, limiter)

	first, err := http.Post(ts.URL+"/api/generate", "application/json", bytes.NewBufferString(`{"prompt":"calm piano nocturne piece"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d", first.StatusCode)
	}

	second, err := http.Post(ts.URL+"/api/generate", "application/json", bytes.NewBufferString(`{"prompt":"calm piano nocturne piece"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
}

func TestProfile(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	resp, err := http.Get(ts.URL + "/api/profile")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var p domain.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Username == "" || p.Credits != 120 || p.MaxCredits != 120 {
		t.Fatalf("profile = %+v", p)
	}
}

func TestCatalogListsSeededTracks(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	resp, err := http.Get(ts.URL + "/api/catalog")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Tracks []domain.Generation `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tracks) != 4 {
		t.Fatalf("tracks = %d, want 4 seeded", len(body.Tracks))
	}
	for _, g := range body.Tracks {
		if g.Status != domain.StatusCompleted || len(g.Versions) == 0 {
			t.Fatalf("seeded track = %+v", g)
		}
	}
}

func TestSocketPairedGenerationFlow(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	conn := dialSocket(t, ts)

	first := readEvent(t, conn)
	cu, ok := first.(*domain.CreditsUpdated)
	if !ok || cu.Credits != 120 {
		t.Fatalf("first event = %#v, want credits 120", first)
	}

	sendCommand(t, conn, &domain.StartPaired{GroupID: "grp_ws", Prompt: "driving synthwave with heavy bass"})

	started, ok := readEvent(t, conn).(*domain.PairedStarted)
	if !ok {
		t.Fatalf("expected paired-started")
	}
	if len(started.GenerationIDs) != 2 {
		t.Fatalf("paired ids = %v", started.GenerationIDs)
	}

	completes := 0
	var debited *domain.CreditsUpdated
	progressSeen := map[string]int{}
	for completes < 2 || debited == nil {
		switch ev := readEvent(t, conn).(type) {
		case *domain.Progress:
			if ev.Progress < progressSeen[ev.GenerationID] {
				t.Fatalf("progress went backwards for %s: %d -> %d", ev.GenerationID, progressSeen[ev.GenerationID], ev.Progress)
			}
			progressSeen[ev.GenerationID] = ev.Progress
		case *domain.Complete:
			if ev.Duration < 180 || ev.Duration > 300 {
				t.Fatalf("duration = %d", ev.Duration)
			}
			if len(ev.WaveformData) != 50 {
				t.Fatalf("waveform points = %d", len(ev.WaveformData))
			}
			completes++
		case *domain.Failed:
			t.Fatalf("unexpected failure: %+v", ev)
		case *domain.CreditsUpdated:
			debited = ev
		}
	}
	if debited.Credits != 100 {
		t.Fatalf("credits after group = %d, want 100", debited.Credits)
	}

	// Both finished takes are queryable over REST.
	resp, err := http.Get(ts.URL + "/api/catalog")
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Tracks []domain.Generation `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tracks) != 6 {
		t.Fatalf("tracks = %d, want 4 seeded + 2 new", len(body.Tracks))
	}
}

func TestSocketInsufficientCredits(t *testing.T) {
	ts, _ := newTestServer(t, 20, 0, nil)
	conn := dialSocket(t, ts)

	if cu, ok := readEvent(t, conn).(*domain.CreditsUpdated); !ok || cu.Credits != 20 {
		t.Fatalf("expected starting credits 20")
	}

	sendCommand(t, conn, &domain.StartPaired{GroupID: "grp_1", Prompt: "first group burns the balance"})
	sawZero := false
	for !sawZero {
		if cu, ok := readEvent(t, conn).(*domain.CreditsUpdated); ok && cu.Credits == 0 {
			sawZero = true
		}
	}

	sendCommand(t, conn, &domain.StartPaired{GroupID: "grp_2", Prompt: "this one cannot be paid for"})
	for {
		ev := readEvent(t, conn)
		if ic, ok := ev.(*domain.InsufficientCredits); ok {
			if ic.Prompt != "this one cannot be paid for" {
				t.Fatalf("prompt = %q", ic.Prompt)
			}
			return
		}
		// Late events from the first group may still be in flight.
		if p, ok := ev.(*domain.Progress); ok && strings.HasPrefix(p.GenerationID, "grp_2") {
			t.Fatalf("second group should not have started: %+v", p)
		}
	}
}

func TestSocketInvalidPromptFailsImmediately(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	conn := dialSocket(t, ts)
	readEvent(t, conn) // starting credits

	sendCommand(t, conn, &domain.StartPaired{GroupID: "grp_bad", Prompt: "invalid"})
	if _, ok := readEvent(t, conn).(*domain.PairedStarted); !ok {
		t.Fatalf("expected paired-started")
	}
	for i := 0; i < 2; i++ {
		f, ok := readEvent(t, conn).(*domain.Failed)
		if !ok {
			t.Fatalf("expected failed event")
		}
		if f.Error != "Invalid prompt provided." {
			t.Fatalf("error = %q", f.Error)
		}
	}
}

func TestSocketIgnoresUnknownFrames(t *testing.T) {
	ts, _ := newTestServer(t, 120, 0, nil)
	conn := dialSocket(t, ts)
	readEvent(t, conn) // starting credits

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus","payload":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The connection stays usable.
	sendCommand(t, conn, &domain.StartSingle{GenerationID: "gen_ok", Prompt: "still works after junk frames"})
	if _, ok := readEvent(t, conn).(*domain.GenerationStarted); !ok {
		t.Fatalf("expected generation-started after junk frames")
	}
}

func TestSocketRetryAfterFailure(t *testing.T) {
	ts, _ := newTestServer(t, 120, 1, nil)
	conn := dialSocket(t, ts)
	readEvent(t, conn) // starting credits

	sendCommand(t, conn, &domain.StartSingle{GenerationID: "gen_r", Prompt: "always fails then retries"})
	for {
		if _, ok := readEvent(t, conn).(*domain.Failed); ok {
			break
		}
	}

	sendCommand(t, conn, &domain.Retry{GenerationID: "gen_r"})
	p, ok := readEvent(t, conn).(*domain.Progress)
	if !ok || p.Progress != 0 {
		t.Fatalf("expected retry to reset progress to 0, got %#v", p)
	}
	for {
		if _, ok := readEvent(t, conn).(*domain.Failed); ok {
			return
		}
	}
}
