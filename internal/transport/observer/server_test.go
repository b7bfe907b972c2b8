package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/catalogs"
	"fluxgrid.ai/internal/sim/grid"
	"fluxgrid.ai/internal/sim/tuning"
)

const (
	opRoot    = grid.Principal("op_root")
	opSponsor = grid.Principal("op_sponsor")
)

func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	cats := &catalogs.Catalogs{
		Consumers: catalogs.ConsumerCatalog{Defs: map[string]catalogs.ConsumerDef{
			"TURRET": {ID: "TURRET", Kind: "DEFENSE", RequiredUnits: 10},
		}},
		Fuels: catalogs.FuelCatalog{Defs: map[string]catalogs.FuelDef{
			"REFINED_OIL": {ID: "REFINED_OIL"},
		}},
		Sources: catalogs.SourceCatalog{Defs: map[string]catalogs.SourceDef{
			"MICRO_REACTOR": {ID: "MICRO_REACTOR", MaxProduction: 100, FuelCapacity: 100},
		}},
	}
	g := grid.New(grid.Config{ID: "feedtest", BurnRateBaseMs: 1000}, cats, grid.NewAuthority(opRoot))
	if err := g.AddSponsor(opRoot, opSponsor); err != nil {
		t.Fatalf("add sponsor: %v", err)
	}
	return g
}

// powerUp generates journal activity: an anchored, producing source.
func powerUp(t *testing.T, g *grid.Grid, key string) (grid.Handle, *grid.OwnershipToken) {
	t.Helper()
	h, tok, err := g.AnchorSource(opSponsor, "world1", key, "MICRO_REACTOR")
	if err != nil {
		t.Fatalf("anchor source: %v", err)
	}
	if err := g.StartProduction(tok, h); err != nil {
		t.Fatalf("start production: %v", err)
	}
	if err := g.SourceOnline(tok, h); err != nil {
		t.Fatalf("source online: %v", err)
	}
	return h, tok
}

func TestBootstrapHandler(t *testing.T) {
	g := testGrid(t)
	powerUp(t, g, "reactor1")
	srv := NewServer(g, tuning.Default().Feed, "digest123", nil)

	ts := httptest.NewServer(srv.BootstrapHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var boot protocol.BootstrapMsg
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.Type != protocol.TypeBootstrap || boot.ProtocolVersion != protocol.Version {
		t.Fatalf("bootstrap = %+v", boot)
	}
	if boot.GridID != "feedtest" || boot.Seq != g.CurrentSeq() || boot.CatalogsDigest != "digest123" {
		t.Fatalf("bootstrap = %+v", boot)
	}
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestFeedReplaysBacklogThenStreamsLive(t *testing.T) {
	g := testGrid(t)
	src, tok := powerUp(t, g, "reactor1")
	srv := NewServer(g, tuning.FeedLimits{BatchMax: 2}, "", nil)

	ts := httptest.NewServer(srv.WSHandler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var boot protocol.BootstrapMsg
	if err := conn.ReadJSON(&boot); err != nil {
		t.Fatalf("read bootstrap: %v", err)
	}
	if boot.Seq != g.CurrentSeq() {
		t.Fatalf("bootstrap seq = %d, want %d", boot.Seq, g.CurrentSeq())
	}

	// Backlog pages until the cursor reaches the bootstrap seq. BatchMax
	// is 2 so the anchor/start/online events need more than one page.
	cursor := uint64(0)
	for cursor < boot.Seq {
		var batch protocol.EventBatchMsg
		if err := conn.ReadJSON(&batch); err != nil {
			t.Fatalf("read backlog batch: %v", err)
		}
		if batch.Type != protocol.TypeEventBatch {
			t.Fatalf("type = %q", batch.Type)
		}
		if len(batch.Events) == 0 || len(batch.Events) > 2 {
			t.Fatalf("batch size = %d", len(batch.Events))
		}
		for _, it := range batch.Events {
			if it.Cursor <= cursor {
				t.Fatalf("cursor went backwards: %d after %d", it.Cursor, cursor)
			}
			cursor = it.Cursor
		}
	}

	// New activity arrives over the live stream, past the backlog.
	if err := g.SourceOffline(tok, src); err != nil {
		t.Fatalf("source offline: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	sawStopped := false
	for !sawStopped && time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var batch protocol.EventBatchMsg
		if err := conn.ReadJSON(&batch); err != nil {
			t.Fatalf("read live batch: %v", err)
		}
		for _, it := range batch.Events {
			if it.Cursor <= cursor {
				t.Fatalf("live event replayed backlog cursor %d", it.Cursor)
			}
			cursor = it.Cursor
			if it.Event["type"] == protocol.EvSourceStopped {
				sawStopped = true
			}
		}
	}
	if !sawStopped {
		t.Fatalf("SOURCE_STOPPED never arrived on the live stream")
	}
}

func TestFeedRejectsBadHandshake(t *testing.T) {
	g := testGrid(t)
	srv := NewServer(g, tuning.Default().Feed, "", nil)

	ts := httptest.NewServer(srv.WSHandler())
	defer ts.Close()

	payloads := [][]byte{
		[]byte(`{"type":"NOT_SUBSCRIBE","protocol_version":"` + protocol.Version + `"}`),
		[]byte(`{"type":"SUBSCRIBE","protocol_version":"0.0"}`),
		[]byte(`not json at all`),
	}
	for _, payload := range payloads {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Fatalf("%s: expected close after bad handshake", payload)
		} else if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("%s: close err = %v, want policy violation", payload, err)
		}
		conn.Close()
	}
}
