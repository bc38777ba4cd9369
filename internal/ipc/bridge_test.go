package ipc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markettraveler/internal/widget"
)

// bridgeHandler is a scripted in-process bridge plugin.
type bridgeHandler func(method string, params json.RawMessage) (any, error)

func newTestBridge(t *testing.T, handle bridgeHandler) *Bridge {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := response{ID: req.ID, OK: true}
			result, err := handle(req.Method, req.Params)
			if err != nil {
				resp.OK = false
				resp.Error = err.Error()
			} else if result != nil {
				resp.Result, _ = json.Marshal(result)
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	b := NewBridge(url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(b.Shutdown)
	return b
}

func TestBridgeCatalogRoundTrip(t *testing.T) {
	b := newTestBridge(t, func(method string, params json.RawMessage) (any, error) {
		switch method {
		case "catalog.item_name":
			var p itemParams
			require.NoError(t, json.Unmarshal(params, &p))
			assert.Equal(t, uint32(5106), p.ItemID)
			return "Copper Ore", nil
		case "catalog.count_owned":
			return 42, nil
		case "catalog.result_item_id":
			return uint32(5106), nil
		}
		t.Fatalf("unexpected method %s", method)
		return nil, nil
	})

	cat := b.Catalog(nil)
	assert.Equal(t, "Copper Ore", cat.ItemName(5106))
	assert.Equal(t, 42, cat.CountOwned(5106))
	assert.Equal(t, uint32(5106), cat.ResultItemID())
	assert.True(t, b.Connected())
}

func TestBridgeCatalogNameFallback(t *testing.T) {
	b := newTestBridge(t, func(method string, params json.RawMessage) (any, error) {
		return "", nil
	})

	cat := b.Catalog(map[uint32]string{7: "Fire Shard"})
	assert.Equal(t, "Fire Shard", cat.ItemName(7))
	assert.Equal(t, "", cat.ItemName(8))
}

func TestBridgeProbeReadsWindow(t *testing.T) {
	b := newTestBridge(t, func(method string, params json.RawMessage) (any, error) {
		switch method {
		case "widget.exists":
			var p handleParams
			require.NoError(t, json.Unmarshal(params, &p))
			return p.Window == widget.AddonItemSearch, nil
		case "widget.visible", "widget.loaded":
			return true, nil
		case "widget.list_length":
			return 3, nil
		case "widget.list_text":
			var p struct {
				Node  int `json:"node"`
				Index int `json:"index"`
				Child int `json:"child"`
			}
			require.NoError(t, json.Unmarshal(params, &p))
			if p.Child == widget.PriceChildID {
				return "1,250 gil", nil
			}
			return "Copper Ore", nil
		case "widget.fire_event", "widget.close":
			return nil, nil
		}
		t.Fatalf("unexpected method %s", method)
		return nil, nil
	})

	probe := b.Probe()

	h, ok := probe.Find(widget.AddonItemSearch)
	require.True(t, ok)
	assert.True(t, probe.IsVisible(h))
	assert.True(t, probe.IsLoaded(h))
	assert.Equal(t, 3, probe.ListLength(h, widget.SearchListNode))
	assert.Equal(t, "1,250 gil", probe.ListText(h, widget.ResultListNode, 0, widget.PriceChildID))

	_, ok = probe.Find(widget.AddonSelectYesno)
	assert.False(t, ok)
}

func TestBridgeErrorResponseDegrades(t *testing.T) {
	b := newTestBridge(t, func(method string, params json.RawMessage) (any, error) {
		return nil, assert.AnError
	})

	gs := b.GameState()
	_, ok := gs.BoardPosition()
	assert.False(t, ok)
	assert.Equal(t, "", gs.CurrentWorld())
	assert.False(t, b.Relocation().ChangeWorld("Cactuar"))
}

func TestBridgeUnreachableReturnsSafeDefaults(t *testing.T) {
	b := NewBridge("ws://127.0.0.1:1/bridge", slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Reads collapse to zero values.
	_, ok := b.Probe().Find(widget.AddonItemSearch)
	assert.False(t, ok)
	assert.Equal(t, 0, b.Catalog(nil).CountOwned(7))

	// Travel surfaces must read as busy or in transit, not idle, so the
	// machines hold instead of spamming commands.
	assert.True(t, b.Relocation().IsBusy())
	assert.True(t, b.GameState().BetweenAreas())

	assert.False(t, b.Connected())
	assert.NotEmpty(t, b.LastError())
}

func TestWorldsByDatacenter(t *testing.T) {
	b := newTestBridge(t, func(method string, params json.RawMessage) (any, error) {
		require.Equal(t, "worlds.by_datacenter", method)
		var p struct {
			Datacenter string `json:"datacenter"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		if p.Datacenter == "Aether" {
			return []string{"Adamantoise", "Cactuar", "Faerie"}, nil
		}
		return []string{}, nil
	})

	worlds, err := b.WorldsByDatacenter("Aether")
	require.NoError(t, err)
	assert.Equal(t, []string{"Adamantoise", "Cactuar", "Faerie"}, worlds)

	_, err = b.WorldsByDatacenter("Unknown")
	assert.Error(t, err)
}
