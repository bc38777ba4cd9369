package main

import (
	"fmt"
	"log/slog"

	"markettraveler/internal/game"
	"markettraveler/internal/market"
	"markettraveler/internal/widget"
)

// dryHarness simulates the game side of the bridge on top of a scripted
// widget fake, so a full run can be exercised end to end without a client.
// Every relocation succeeds instantly, the market has unlimited cheap stock
// and window reactions are played back on the next tick.
// dryStockQty is the quantity every simulated listing carries.
const dryStockQty = 99

type dryHarness struct {
	probe  *widget.Fake
	names  map[uint32]string
	owned  map[uint32]int
	logger *slog.Logger

	world      string
	zone       uint32
	pos        game.Position
	resultItem uint32
	processed  int
}

func newDryHarness(names map[uint32]string, logger *slog.Logger) *dryHarness {
	return &dryHarness{
		probe:  widget.NewFake(),
		names:  names,
		owned:  map[uint32]int{},
		logger: logger,
	}
}

// Catalog.

func (h *dryHarness) ItemName(id uint32) string { return h.names[id] }
func (h *dryHarness) CountOwned(id uint32) int  { return h.owned[id] }
func (h *dryHarness) ResultItemID() uint32      { return h.resultItem }

// Relocation.

func (h *dryHarness) IsBusy() bool { return false }

func (h *dryHarness) ChangeWorld(name string) bool {
	h.world = name
	return true
}

func (h *dryHarness) Teleport(aetheryte uint32, sub byte) bool {
	h.zone = 129
	return true
}

func (h *dryHarness) AethernetTeleport(destination string) bool { return true }

// Pathing.

func (h *dryHarness) IsReady() bool   { return true }
func (h *dryHarness) IsRunning() bool { return false }

func (h *dryHarness) MoveTo(pos game.Position, fly bool) bool {
	h.pos = pos
	return true
}

func (h *dryHarness) Stop() {}

// GameState.

func (h *dryHarness) CurrentWorld() string { return h.world }
func (h *dryHarness) BetweenAreas() bool   { return false }

func (h *dryHarness) InZone(zone uint32) bool { return zone == h.zone }

func (h *dryHarness) PlayerPosition() (game.Position, bool) { return h.pos, true }

func (h *dryHarness) BoardPosition() (game.Position, bool) {
	return game.Position{X: 10}, true
}

func (h *dryHarness) InteractWithBoard() bool {
	h.probe.Show(widget.AddonItemSearch)
	return true
}

// tick replays window reactions for any events injected since the last tick.
func (h *dryHarness) tick() {
	events := h.probe.Events()
	for _, e := range events[h.processed:] {
		h.react(e)
	}
	h.processed = len(events)
}

func (h *dryHarness) react(e widget.FiredEvent) {
	switch e.Window {
	case widget.AddonItemSearch:
		if len(e.Values) == 8 {
			// Text search submitted: the queried name is always found.
			name := e.Values[3].Str
			h.probe.SetList(widget.AddonItemSearch, widget.SearchListNode, widget.FakeRow{Text: name})
			return
		}
		if len(e.Values) >= 2 && e.Values[0].Int == widget.OpSelectSearchResult {
			h.openResultWindow()
		}
	case widget.AddonItemSearchResult:
		if len(e.Values) >= 2 && e.Values[0].Int == widget.OpSelectListing {
			h.probe.Show(widget.AddonSelectYesno)
		}
	case widget.AddonSelectYesno:
		if len(e.Values) >= 1 && e.Values[0].Int == widget.OpConfirmYes {
			h.owned[h.resultItem] += dryStockQty
			h.probe.Remove(widget.AddonSelectYesno)
		}
	}
}

func (h *dryHarness) openResultWindow() {
	// Resolve which item the search list shows so the result window reports
	// a matching id.
	text := h.probe.ListText(widget.Handle(widget.AddonItemSearch), widget.SearchListNode, 0, 0)
	for id, name := range h.names {
		if market.CleanDisplayName(text) == name {
			h.resultItem = id
			break
		}
	}

	h.probe.SetList(widget.AddonItemSearchResult, widget.ResultListNode, widget.FakeRow{
		Children: map[int]string{
			widget.PriceChildID:    "1 gil",
			widget.QuantityChildID: fmt.Sprintf("%d", dryStockQty),
		},
	})
}
