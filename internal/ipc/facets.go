package ipc

import (
	"log/slog"

	"markettraveler/internal/game"
	"markettraveler/internal/widget"
)

// Probe returns the widget surface backed by this bridge.
func (b *Bridge) Probe() widget.Probe {
	return probeFacet{b}
}

// Catalog returns the item catalog backed by this bridge. fallbackNames is
// consulted when the bridge cannot resolve an item name, so a configured run
// can still type its search text while the bridge is degraded.
func (b *Bridge) Catalog(fallbackNames map[uint32]string) *Catalog {
	return &Catalog{b: b, fallback: fallbackNames}
}

// Relocation returns the world and aetheryte travel surface.
func (b *Bridge) Relocation() RelocationFacet {
	return RelocationFacet{b}
}

// Pathing returns the navigation surface.
func (b *Bridge) Pathing() PathingFacet {
	return PathingFacet{b}
}

// GameState returns the player and world observation surface.
func (b *Bridge) GameState() GameStateFacet {
	return GameStateFacet{b}
}

type probeFacet struct {
	b *Bridge
}

type handleParams struct {
	Window string `json:"window"`
}

func (p probeFacet) Find(name string) (widget.Handle, bool) {
	var found bool
	if err := p.b.call("widget.exists", handleParams{Window: name}, &found); err != nil || !found {
		return "", false
	}
	return widget.Handle(name), true
}

func (p probeFacet) IsVisible(h widget.Handle) bool {
	var visible bool
	if err := p.b.call("widget.visible", handleParams{Window: string(h)}, &visible); err != nil {
		return false
	}
	return visible
}

func (p probeFacet) IsLoaded(h widget.Handle) bool {
	var loaded bool
	if err := p.b.call("widget.loaded", handleParams{Window: string(h)}, &loaded); err != nil {
		return false
	}
	return loaded
}

func (p probeFacet) ListLength(h widget.Handle, nodeID int) int {
	var length int
	params := struct {
		Window string `json:"window"`
		Node   int    `json:"node"`
	}{string(h), nodeID}
	if err := p.b.call("widget.list_length", params, &length); err != nil {
		return 0
	}
	return length
}

func (p probeFacet) ListText(h widget.Handle, nodeID, index, childID int) string {
	var text string
	params := struct {
		Window string `json:"window"`
		Node   int    `json:"node"`
		Index  int    `json:"index"`
		Child  int    `json:"child"`
	}{string(h), nodeID, index, childID}
	if err := p.b.call("widget.list_text", params, &text); err != nil {
		return ""
	}
	return text
}

func (p probeFacet) FireEvent(h widget.Handle, values ...widget.Value) {
	type wireValue struct {
		Type int    `json:"type"`
		Int  int    `json:"int,omitempty"`
		Str  string `json:"str,omitempty"`
	}
	params := struct {
		Window string      `json:"window"`
		Values []wireValue `json:"values"`
	}{Window: string(h), Values: make([]wireValue, 0, len(values))}
	for _, v := range values {
		params.Values = append(params.Values, wireValue{Type: int(v.Type), Int: v.Int, Str: v.Str})
	}
	if err := p.b.call("widget.fire_event", params, nil); err != nil {
		p.b.logger.Debug("Event injection failed", slog.String("window", string(h)), slog.Any("error", err))
	}
}

func (p probeFacet) Close(h widget.Handle) {
	if err := p.b.call("widget.close", handleParams{Window: string(h)}, nil); err != nil {
		p.b.logger.Debug("Window close failed", slog.String("window", string(h)), slog.Any("error", err))
	}
}

// Catalog resolves item data through the bridge with a configured fallback
// for names.
type Catalog struct {
	b        *Bridge
	fallback map[uint32]string
}

type itemParams struct {
	ItemID uint32 `json:"item_id"`
}

func (c *Catalog) ItemName(itemID uint32) string {
	var name string
	if err := c.b.call("catalog.item_name", itemParams{ItemID: itemID}, &name); err == nil && name != "" {
		return name
	}
	return c.fallback[itemID]
}

func (c *Catalog) CountOwned(itemID uint32) int {
	var count int
	if err := c.b.call("catalog.count_owned", itemParams{ItemID: itemID}, &count); err != nil {
		return 0
	}
	return count
}

func (c *Catalog) ResultItemID() uint32 {
	var id uint32
	if err := c.b.call("catalog.result_item_id", nil, &id); err != nil {
		return 0
	}
	return id
}

type RelocationFacet struct {
	b *Bridge
}

func (r RelocationFacet) IsBusy() bool {
	var busy bool
	if err := r.b.call("reloc.is_busy", nil, &busy); err != nil {
		// An unreachable bridge must not look idle, or the machines would
		// keep firing travel commands into the void.
		return true
	}
	return busy
}

func (r RelocationFacet) ChangeWorld(name string) bool {
	var accepted bool
	params := struct {
		World string `json:"world"`
	}{name}
	if err := r.b.call("reloc.change_world", params, &accepted); err != nil {
		return false
	}
	return accepted
}

func (r RelocationFacet) Teleport(aetheryte uint32, sub byte) bool {
	var accepted bool
	params := struct {
		Aetheryte uint32 `json:"aetheryte"`
		Sub       byte   `json:"sub"`
	}{aetheryte, sub}
	if err := r.b.call("reloc.teleport", params, &accepted); err != nil {
		return false
	}
	return accepted
}

func (r RelocationFacet) AethernetTeleport(destination string) bool {
	var accepted bool
	params := struct {
		Destination string `json:"destination"`
	}{destination}
	if err := r.b.call("reloc.aethernet", params, &accepted); err != nil {
		return false
	}
	return accepted
}

type PathingFacet struct {
	b *Bridge
}

func (p PathingFacet) IsReady() bool {
	var ready bool
	if err := p.b.call("path.is_ready", nil, &ready); err != nil {
		return false
	}
	return ready
}

func (p PathingFacet) IsRunning() bool {
	var running bool
	if err := p.b.call("path.is_running", nil, &running); err != nil {
		return false
	}
	return running
}

func (p PathingFacet) MoveTo(pos game.Position, fly bool) bool {
	var accepted bool
	params := struct {
		Pos game.Position `json:"pos"`
		Fly bool          `json:"fly"`
	}{pos, fly}
	if err := p.b.call("path.move_to", params, &accepted); err != nil {
		return false
	}
	return accepted
}

func (p PathingFacet) Stop() {
	if err := p.b.call("path.stop", nil, nil); err != nil {
		p.b.logger.Debug("Pather stop failed", slog.Any("error", err))
	}
}

type GameStateFacet struct {
	b *Bridge
}

func (g GameStateFacet) CurrentWorld() string {
	var world string
	if err := g.b.call("game.current_world", nil, &world); err != nil {
		return ""
	}
	return world
}

func (g GameStateFacet) BetweenAreas() bool {
	var between bool
	if err := g.b.call("game.between_areas", nil, &between); err != nil {
		// Same reasoning as IsBusy: treat a degraded bridge as "in transit".
		return true
	}
	return between
}

func (g GameStateFacet) InZone(zone uint32) bool {
	var in bool
	params := struct {
		Zone uint32 `json:"zone"`
	}{zone}
	if err := g.b.call("game.in_zone", params, &in); err != nil {
		return false
	}
	return in
}

func (g GameStateFacet) PlayerPosition() (game.Position, bool) {
	var pos game.Position
	if err := g.b.call("game.player_position", nil, &pos); err != nil {
		return game.Position{}, false
	}
	return pos, true
}

func (g GameStateFacet) BoardPosition() (game.Position, bool) {
	var pos game.Position
	if err := g.b.call("game.board_position", nil, &pos); err != nil {
		return game.Position{}, false
	}
	return pos, true
}

func (g GameStateFacet) InteractWithBoard() bool {
	var ok bool
	if err := g.b.call("game.interact_board", nil, &ok); err != nil {
		return false
	}
	return ok
}
