package traveler

import (
	"log/slog"
	"time"

	"markettraveler/internal/event"
	"markettraveler/internal/game"
	"markettraveler/internal/market"
	"markettraveler/internal/widget"
)

// Hub constants of the marketplace the machine shops at. The hub zone holds
// a market board reachable from the arrival aetheryte via one intra-city
// aethernet hop.
const (
	hubZone          uint32 = 129
	hubAetheryte     uint32 = 8
	hubAetheryteSub  byte   = 0
	hubAethernetName        = "Hawkers' Alley"

	// boardMoveThreshold is how close the pather needs to bring us before we
	// stop issuing move commands; boardInteractRange is the maximum distance
	// at which the board interaction is accepted by the client.
	boardMoveThreshold = 5.0
	boardInteractRange = 6.0
)

const (
	// maxTravelTime bounds one world relocation; a destination exceeding it
	// is considered congested and blacklisted for the rest of the run.
	maxTravelTime = 30 * time.Second
	// actionDelay is the minimum cadence between orchestration actions,
	// independent of the shopper's own pacing.
	actionDelay = 2 * time.Second
)

// blockingDialogs are force-closed when a stuck relocation is abandoned.
var blockingDialogs = []string{
	widget.AddonSelectString,
	widget.AddonSelectOk,
	widget.AddonCrossWorldLobby,
}

// ShoppingItem is one entry of the run's shopping list. PurchasedQty is
// accumulated by the Controller only, after each completed shopper sub-run.
type ShoppingItem struct {
	ItemID       uint32
	TargetQty    int
	MaxUnitPrice int
	PurchasedQty int

	// Filter optionally narrows eligible listings beyond the price ceiling.
	Filter *market.ListingFilter
}

// Remaining is how many units are still needed.
func (i *ShoppingItem) Remaining() int {
	return i.TargetQty - i.PurchasedQty
}

// State is the travel state machine's current phase.
type State int

const (
	StateIdle State = iota
	StateTraveling
	StateTeleportingToHub
	StateMovingToBoard
	StateShopping
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTraveling:
		return "Traveling"
	case StateTeleportingToHub:
		return "TeleportingToHub"
	case StateMovingToBoard:
		return "MovingToBoard"
	case StateShopping:
		return "Shopping"
	case StateFinished:
		return "Finished"
	}
	return "Unknown"
}

// Relocation moves the player between worlds and within a world. Every call
// is best-effort: false means "not accepted right now", never a fatal
// condition.
type Relocation interface {
	IsBusy() bool
	ChangeWorld(name string) bool
	Teleport(aetheryte uint32, sub byte) bool
	AethernetTeleport(destination string) bool
}

// Pathing walks the player toward a position.
type Pathing interface {
	IsReady() bool
	IsRunning() bool
	MoveTo(pos game.Position, fly bool) bool
	Stop()
}

// GameState exposes the player and world observations the controller needs.
type GameState interface {
	CurrentWorld() string
	BetweenAreas() bool
	InZone(zone uint32) bool
	PlayerPosition() (game.Position, bool)
	// BoardPosition locates the market board object in the current zone.
	BoardPosition() (game.Position, bool)
	// InteractWithBoard targets and interacts with the market board object.
	InteractWithBoard() bool
}

// Shopper is the per-item purchasing machine the controller delegates to
// while in the Shopping state.
type Shopper interface {
	StartBuying(itemID uint32, totalNeeded, maxUnitPrice int, opts ...market.BuyOption)
	Stop()
	ForceDone()
	IsDone() bool
	SessionPurchased() int
}

// Controller visits a queue of worlds and, on each, runs the Shopper once
// per shopping list entry that still has remaining need. Advanced by Update
// once per scheduler tick; all waiting is time- or condition-based, never
// blocking.
type Controller struct {
	shopper Shopper
	reloc   Relocation
	pathing Pathing
	gs      GameState
	probe   widget.Probe
	logger  *slog.Logger

	now func() time.Time

	state          State
	currentWorld   string
	worldQueue     []string
	shoppingList   []*ShoppingItem
	itemIndex      int
	blacklist      map[string]struct{}
	lastActionTime time.Time
	stateEnterTime time.Time
	boughtOnWorld  int
}

func NewController(shopper Shopper, reloc Relocation, pathing Pathing, gs GameState, probe widget.Probe, logger *slog.Logger) *Controller {
	return &Controller{
		shopper:   shopper,
		reloc:     reloc,
		pathing:   pathing,
		gs:        gs,
		probe:     probe,
		logger:    logger,
		now:       time.Now,
		state:     StateIdle,
		blacklist: map[string]struct{}{},
	}
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) StateName() string {
	return c.state.String()
}

// IsRunning reports whether a run is in progress.
func (c *Controller) IsRunning() bool {
	return c.state != StateIdle && c.state != StateFinished
}

// CurrentWorld is the destination currently being processed.
func (c *Controller) CurrentWorld() string {
	return c.currentWorld
}

// CurrentActiveItem is a read-only projection of the list entry the run is
// currently working on, nil when inactive. Exposed for observability only.
func (c *Controller) CurrentActiveItem() *ShoppingItem {
	if c.state == StateIdle || c.state == StateFinished {
		return nil
	}
	if c.itemIndex >= len(c.shoppingList) {
		return nil
	}
	return c.shoppingList[c.itemIndex]
}

// Start begins a run over the given items and worlds. No-op unless Idle.
// Worlds blacklisted during this run are dropped up front; if nothing
// remains the run does not start.
func (c *Controller) Start(items []*ShoppingItem, worlds []string) {
	if c.state != StateIdle {
		return
	}

	c.shoppingList = items
	c.worldQueue = c.worldQueue[:0]

	skipped := 0
	for _, w := range worlds {
		if _, blacklisted := c.blacklist[w]; blacklisted {
			skipped++
			continue
		}
		c.worldQueue = append(c.worldQueue, w)
	}

	c.logger.Info("Starting market run",
		slog.Int("items", len(c.shoppingList)),
		slog.Int("worlds", len(c.worldQueue)),
		slog.Int("skippedBlacklisted", skipped))

	if len(c.worldQueue) == 0 {
		c.logger.Error("All requested worlds are blacklisted for this run; stop to clear the blacklist")
		event.Send(event.RunFinished(event.Text("All requested worlds are blacklisted"), event.FinishedError))
		return
	}

	event.Send(event.RunStarted(event.Text("Market run started"), len(c.shoppingList), len(c.worldQueue)))

	c.processNextWorld()
}

// Stop forces the machine to Idle, clears the run blacklist and halts both
// the pather and the shopper. Safe to call at any time.
func (c *Controller) Stop() {
	c.state = StateIdle
	c.blacklist = map[string]struct{}{}

	c.pathing.Stop()
	c.shopper.Stop()
	c.logger.Info("Market run stopped, blacklist cleared")
}

func (c *Controller) processNextWorld() {
	c.itemIndex = 0
	c.boughtOnWorld = 0

	if len(c.worldQueue) == 0 {
		c.state = StateFinished
		c.logger.Info("World queue fully completed")
		event.Send(event.RunFinished(event.Text("World queue fully completed"), event.FinishedOK))
		c.Stop()
		return
	}

	c.currentWorld = c.worldQueue[0]
	c.worldQueue = c.worldQueue[1:]
	c.logger.Info("Traveling to next world", slog.String("world", c.currentWorld))

	c.state = StateTraveling
	c.stateEnterTime = c.now()
}

// Update advances the machine by at most one bounded action. Single
// goroutine, once per scheduler tick.
func (c *Controller) Update() {
	if c.state == StateIdle || c.state == StateFinished {
		return
	}
	now := c.now()
	if now.Sub(c.lastActionTime) < actionDelay {
		return
	}

	switch c.state {
	case StateTraveling:
		c.updateTraveling(now)
	case StateTeleportingToHub:
		c.updateTeleportingToHub(now)
	case StateMovingToBoard:
		c.updateMovingToBoard(now)
	case StateShopping:
		c.updateShopping(now)
	}
}

func (c *Controller) updateTraveling(now time.Time) {
	if now.Sub(c.stateEnterTime) > maxTravelTime {
		// A stuck relocation (congestion, login queue) is recoverable: drop
		// the world for this run and move on.
		c.logger.Warn("World relocation timed out, blacklisting for this run",
			slog.String("world", c.currentWorld))
		c.blacklist[c.currentWorld] = struct{}{}
		event.Send(event.WorldSkipped(event.Text("Skipping "+c.currentWorld+" due to congestion"), c.currentWorld))

		c.closeBlockingDialogs()

		c.processNextWorld()
		c.lastActionTime = now
		return
	}

	if c.gs.CurrentWorld() == c.currentWorld {
		if c.gs.BetweenAreas() || c.reloc.IsBusy() {
			return
		}

		c.state = StateTeleportingToHub
		c.stateEnterTime = now
		c.teleportToHub()
		c.lastActionTime = now
		return
	}

	if !c.reloc.IsBusy() {
		if c.reloc.ChangeWorld(c.currentWorld) {
			c.logger.Debug("World change requested", slog.String("world", c.currentWorld))
		} else {
			c.logger.Warn("World change not accepted, will retry",
				slog.String("world", c.currentWorld))
		}
		c.lastActionTime = now
	}
}

func (c *Controller) updateTeleportingToHub(now time.Time) {
	if c.gs.InZone(hubZone) {
		if c.gs.BetweenAreas() {
			return
		}
		c.state = StateMovingToBoard
		c.stateEnterTime = now
		c.moveToBoard()
		c.lastActionTime = now
		return
	}

	if !c.reloc.IsBusy() {
		c.teleportToHub()
		c.lastActionTime = now
	}
}

func (c *Controller) updateMovingToBoard(now time.Time) {
	// The search window already being open means the board was interacted
	// with (by us or manually); shopping can begin immediately.
	if _, ok := c.probe.Find(widget.AddonItemSearch); ok {
		c.state = StateShopping
		c.stateEnterTime = now
		c.startNextItem()
		c.lastActionTime = now
		return
	}

	c.moveToBoard()
	if c.interactWithBoard() {
		// The pather's job is done; it must not keep moving while a UI
		// driven state owns the client.
		c.pathing.Stop()
		c.lastActionTime = now
	}
}

func (c *Controller) updateShopping(now time.Time) {
	if !c.shopper.IsDone() {
		return
	}

	purchased := c.shopper.SessionPurchased()
	if item := c.CurrentActiveItem(); item != nil {
		item.PurchasedQty += purchased
		if purchased > 0 {
			event.Send(event.ItemPurchased(event.Text("Purchased items"), c.currentWorld, item.ItemID, purchased))
		}
	}
	c.boughtOnWorld += purchased

	c.itemIndex++

	if c.itemIndex >= len(c.shoppingList) {
		c.logger.Info("Leaving world",
			slog.String("world", c.currentWorld),
			slog.Int("purchased", c.boughtOnWorld))
		event.Send(event.WorldSummary(
			event.Text("Leaving "+c.currentWorld), c.currentWorld, c.boughtOnWorld))

		if h, ok := c.probe.Find(widget.AddonItemSearch); ok && c.probe.IsVisible(h) {
			c.probe.FireEvent(h, widget.Int(widget.OpClose))
		}

		c.processNextWorld()
		c.lastActionTime = now
		return
	}

	c.startNextItem()
	c.lastActionTime = now
}

func (c *Controller) startNextItem() {
	item := c.shoppingList[c.itemIndex]

	needed := item.Remaining()
	if needed <= 0 {
		c.logger.Info("Item already satisfied, skipping",
			slog.Uint64("itemId", uint64(item.ItemID)))
		c.shopper.ForceDone()
		return
	}

	c.shopper.StartBuying(item.ItemID, needed, item.MaxUnitPrice,
		market.WithListingFilter(item.Filter))
}

func (c *Controller) teleportToHub() {
	if c.gs.InZone(hubZone) {
		return
	}
	if !c.reloc.IsBusy() {
		c.reloc.Teleport(hubAetheryte, hubAetheryteSub)
	}
}

func (c *Controller) moveToBoard() {
	if !c.gs.InZone(hubZone) {
		return
	}

	if board, ok := c.gs.BoardPosition(); ok {
		player, havePlayer := c.gs.PlayerPosition()
		if havePlayer && game.Distance(player, board) < boardMoveThreshold {
			return
		}
		if c.pathing.IsReady() {
			c.pathing.MoveTo(board, false)
		}
		return
	}

	// Board not loaded yet: hop through the aethernet toward it.
	if !c.pathing.IsRunning() && !c.reloc.IsBusy() {
		c.reloc.AethernetTeleport(hubAethernetName)
	}
}

func (c *Controller) interactWithBoard() bool {
	board, ok := c.gs.BoardPosition()
	if !ok {
		return false
	}
	player, haveTarget := c.gs.PlayerPosition()
	if !haveTarget || game.Distance(player, board) > boardInteractRange {
		return false
	}
	return c.gs.InteractWithBoard()
}

func (c *Controller) closeBlockingDialogs() {
	for _, name := range blockingDialogs {
		if h, ok := c.probe.Find(name); ok {
			c.probe.FireEvent(h, widget.Int(widget.OpClose))
			c.probe.Close(h)
		}
	}
}
