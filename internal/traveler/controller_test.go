package traveler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markettraveler/internal/event"
	"markettraveler/internal/game"
	"markettraveler/internal/market"
	"markettraveler/internal/widget"
)

type startCall struct {
	itemID   uint32
	needed   int
	maxPrice int
}

type fakeShopper struct {
	started    []startCall
	done       bool
	purchased  int
	stopped    bool
	forceCount int
}

func (f *fakeShopper) StartBuying(itemID uint32, totalNeeded, maxUnitPrice int, opts ...market.BuyOption) {
	f.started = append(f.started, startCall{itemID: itemID, needed: totalNeeded, maxPrice: maxUnitPrice})
	f.done = false
	f.purchased = 0
}

func (f *fakeShopper) Stop() {
	f.stopped = true
	f.done = true
}

func (f *fakeShopper) ForceDone() {
	f.forceCount++
	f.done = true
	f.purchased = 0
}

func (f *fakeShopper) IsDone() bool          { return f.done }
func (f *fakeShopper) SessionPurchased() int { return f.purchased }

// complete simulates the shopper finishing its current item with the given
// purchase quantity.
func (f *fakeShopper) complete(qty int) {
	f.done = true
	f.purchased = qty
}

type fakeReloc struct {
	busy           bool
	worldChanges   []string
	teleports      []uint32
	aethernetHops  []string
	acceptRequests bool
}

func (f *fakeReloc) IsBusy() bool { return f.busy }

func (f *fakeReloc) ChangeWorld(name string) bool {
	f.worldChanges = append(f.worldChanges, name)
	return f.acceptRequests
}

func (f *fakeReloc) Teleport(aetheryte uint32, sub byte) bool {
	f.teleports = append(f.teleports, aetheryte)
	return f.acceptRequests
}

func (f *fakeReloc) AethernetTeleport(destination string) bool {
	f.aethernetHops = append(f.aethernetHops, destination)
	return f.acceptRequests
}

type fakePathing struct {
	ready     bool
	running   bool
	moves     []game.Position
	stopCount int
}

func (f *fakePathing) IsReady() bool   { return f.ready }
func (f *fakePathing) IsRunning() bool { return f.running }

func (f *fakePathing) MoveTo(pos game.Position, fly bool) bool {
	f.moves = append(f.moves, pos)
	return true
}

func (f *fakePathing) Stop() { f.stopCount++ }

type fakeGameState struct {
	world        string
	betweenAreas bool
	zone         uint32
	playerPos    game.Position
	havePlayer   bool
	boardPos     game.Position
	haveBoard    bool
	interacted   int
}

func (f *fakeGameState) CurrentWorld() string { return f.world }
func (f *fakeGameState) BetweenAreas() bool   { return f.betweenAreas }

func (f *fakeGameState) InZone(zone uint32) bool { return f.zone == zone }

func (f *fakeGameState) PlayerPosition() (game.Position, bool) {
	return f.playerPos, f.havePlayer
}

func (f *fakeGameState) BoardPosition() (game.Position, bool) {
	return f.boardPos, f.haveBoard
}

func (f *fakeGameState) InteractWithBoard() bool {
	f.interacted++
	return true
}

type controllerFixture struct {
	c       *Controller
	shopper *fakeShopper
	reloc   *fakeReloc
	pathing *fakePathing
	gs      *fakeGameState
	probe   *widget.Fake
	clk     *fakeClock
	events  *[]event.Event
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) *controllerFixture {
	t.Helper()

	event.Reset()
	var events []event.Event
	event.Subscribe(func(e event.Event) {
		events = append(events, e)
	})
	t.Cleanup(event.Reset)

	shopper := &fakeShopper{}
	reloc := &fakeReloc{acceptRequests: true}
	pathing := &fakePathing{ready: true}
	gs := &fakeGameState{world: "Home", havePlayer: true}
	probe := widget.NewFake()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(shopper, reloc, pathing, gs, probe, logger)
	c.now = clk.Now

	return &controllerFixture{
		c:       c,
		shopper: shopper,
		reloc:   reloc,
		pathing: pathing,
		gs:      gs,
		probe:   probe,
		clk:     clk,
		events:  &events,
	}
}

// step advances simulated time past the action cadence and ticks once.
func (f *controllerFixture) step() {
	f.clk.Advance(2100 * time.Millisecond)
	f.c.Update()
}

func oneItem(target, maxPrice int) []*ShoppingItem {
	return []*ShoppingItem{{ItemID: 7, TargetQty: target, MaxUnitPrice: maxPrice}}
}

func TestControllerBlacklistsUnreachableWorld(t *testing.T) {
	f := newFixture(t)

	f.probe.Show(widget.AddonSelectString)
	f.probe.Show(widget.AddonCrossWorldLobby)

	f.c.Start(oneItem(5, 100), []string{"A", "B"})
	require.Equal(t, StateTraveling, f.c.State())
	require.Equal(t, "A", f.c.CurrentWorld())

	// A never becomes reachable: the relocation service accepts requests
	// but the world never changes. 30 seconds of ticks pass.
	for i := 0; i < 16; i++ {
		f.step()
	}

	assert.Contains(t, f.c.blacklist, "A")
	assert.Equal(t, "B", f.c.CurrentWorld())
	assert.Equal(t, StateTraveling, f.c.State())

	// Blocking dialogs were force-closed on the way out.
	assert.Contains(t, f.probe.Closed(), widget.AddonSelectString)
	assert.Contains(t, f.probe.Closed(), widget.AddonCrossWorldLobby)

	var skipped []string
	for _, e := range *f.events {
		if ws, ok := e.(event.WorldSkippedEvent); ok {
			skipped = append(skipped, ws.World)
		}
	}
	assert.Equal(t, []string{"A"}, skipped)

	// B is reachable and processes normally.
	f.gs.world = "B"
	f.step()
	assert.Equal(t, StateTeleportingToHub, f.c.State())
}

func TestControllerStartDropsBlacklistedWorlds(t *testing.T) {
	f := newFixture(t)

	f.c.blacklist["A"] = struct{}{}

	f.c.Start(oneItem(5, 100), []string{"A", "B"})
	assert.Equal(t, "B", f.c.CurrentWorld())
	assert.Equal(t, StateTraveling, f.c.State())
}

func TestControllerStartRefusesWhenAllBlacklisted(t *testing.T) {
	f := newFixture(t)

	f.c.blacklist["A"] = struct{}{}

	f.c.Start(oneItem(5, 100), []string{"A"})
	assert.Equal(t, StateIdle, f.c.State())
	assert.False(t, f.c.IsRunning())

	require.Len(t, *f.events, 1)
	finished, ok := (*f.events)[0].(event.RunFinishedEvent)
	require.True(t, ok)
	assert.Equal(t, event.FinishedError, finished.Reason)
}

func TestControllerStartNoOpWhileRunning(t *testing.T) {
	f := newFixture(t)

	f.c.Start(oneItem(5, 100), []string{"A"})
	require.Equal(t, "A", f.c.CurrentWorld())

	f.c.Start(oneItem(5, 100), []string{"C"})
	assert.Equal(t, "A", f.c.CurrentWorld())
}

func TestControllerStopClearsBlacklistAndHaltsServices(t *testing.T) {
	f := newFixture(t)

	f.c.Start(oneItem(5, 100), []string{"A"})
	f.c.blacklist["A"] = struct{}{}

	f.c.Stop()

	assert.Equal(t, StateIdle, f.c.State())
	assert.Empty(t, f.c.blacklist)
	assert.True(t, f.shopper.stopped)
	assert.Equal(t, 1, f.pathing.stopCount)
}

func TestControllerFullRunOnOneWorld(t *testing.T) {
	f := newFixture(t)

	items := oneItem(5, 100)
	f.c.Start(items, []string{"A"})
	require.Equal(t, StateTraveling, f.c.State())

	// Not there yet: a world change is requested.
	f.step()
	assert.Equal(t, []string{"A"}, f.reloc.worldChanges)

	// Arrived on the world, outside the hub zone: teleport to the hub.
	f.gs.world = "A"
	f.step()
	require.Equal(t, StateTeleportingToHub, f.c.State())
	assert.Equal(t, []uint32{8}, f.reloc.teleports)

	// Inside the hub zone: start moving to the board.
	f.gs.zone = 129
	f.gs.haveBoard = true
	f.gs.boardPos = game.Position{X: 50}
	f.step()
	require.Equal(t, StateMovingToBoard, f.c.State())
	assert.NotEmpty(t, f.pathing.moves)

	// In interaction range: interact and halt the pather.
	f.gs.playerPos = game.Position{X: 46}
	f.step()
	assert.Equal(t, 1, f.gs.interacted)
	assert.Equal(t, 1, f.pathing.stopCount)

	// The search window opened: shopping starts for the first item.
	f.probe.Show(widget.AddonItemSearch)
	f.step()
	require.Equal(t, StateShopping, f.c.State())
	require.Equal(t, []startCall{{itemID: 7, needed: 5, maxPrice: 100}}, f.shopper.started)
	require.NotNil(t, f.c.CurrentActiveItem())

	// Shopper still working: nothing to do.
	f.step()
	require.Equal(t, StateShopping, f.c.State())

	// Shopper finished with 3 bought; the list is exhausted and so is the
	// queue, ending the run.
	f.shopper.complete(3)
	f.step()

	assert.Equal(t, 3, items[0].PurchasedQty)
	assert.Equal(t, StateIdle, f.c.State())
	assert.Empty(t, f.c.blacklist)

	// The search window was closed on the way out.
	closeEvents := f.probe.EventsFor(widget.AddonItemSearch)
	require.NotEmpty(t, closeEvents)
	assert.Equal(t, widget.OpClose, closeEvents[len(closeEvents)-1].Values[0].Int)

	var summary *event.WorldSummaryEvent
	var finished *event.RunFinishedEvent
	for _, e := range *f.events {
		switch ev := e.(type) {
		case event.WorldSummaryEvent:
			summary = &ev
		case event.RunFinishedEvent:
			finished = &ev
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, "A", summary.World)
	assert.Equal(t, 3, summary.Purchased)
	require.NotNil(t, finished)
	assert.Equal(t, event.FinishedOK, finished.Reason)
}

func TestControllerSkipsSatisfiedItems(t *testing.T) {
	f := newFixture(t)

	items := []*ShoppingItem{
		{ItemID: 7, TargetQty: 5, MaxUnitPrice: 100, PurchasedQty: 5},
		{ItemID: 8, TargetQty: 2, MaxUnitPrice: 50},
	}

	driveToShopping(t, f, items, "A")

	// The first item is already satisfied: the shopper is never started for
	// it, only force-completed so the cursor advances.
	require.Empty(t, f.shopper.started)
	require.Equal(t, 1, f.shopper.forceCount)

	f.step()
	require.Equal(t, []startCall{{itemID: 8, needed: 2, maxPrice: 50}}, f.shopper.started)
}

func TestControllerAccumulatesAcrossWorlds(t *testing.T) {
	f := newFixture(t)

	items := oneItem(10, 100)
	driveToShopping(t, f, items, "A", "B")
	require.Equal(t, []startCall{{itemID: 7, needed: 10, maxPrice: 100}}, f.shopper.started)

	// 4 bought on A; the run moves on to B.
	f.shopper.complete(4)
	f.step()
	assert.Equal(t, 4, items[0].PurchasedQty)
	require.Equal(t, StateTraveling, f.c.State())
	require.Equal(t, "B", f.c.CurrentWorld())

	// Arrive on B and shop again: only the remaining need is requested.
	f.gs.world = "B"
	f.step()
	f.step()
	f.probe.Show(widget.AddonItemSearch)
	f.step()
	require.Equal(t, StateShopping, f.c.State())
	require.Len(t, f.shopper.started, 2)
	assert.Equal(t, startCall{itemID: 7, needed: 6, maxPrice: 100}, f.shopper.started[1])

	f.shopper.complete(6)
	f.step()
	assert.Equal(t, 10, items[0].PurchasedQty)
	assert.Equal(t, StateIdle, f.c.State())
}

func TestControllerActionCadence(t *testing.T) {
	f := newFixture(t)

	f.c.Start(oneItem(5, 100), []string{"A"})

	// Two immediate ticks within the cadence window issue only one request.
	f.clk.Advance(2100 * time.Millisecond)
	f.c.Update()
	f.clk.Advance(100 * time.Millisecond)
	f.c.Update()

	assert.Len(t, f.reloc.worldChanges, 1)
}

func TestControllerCurrentActiveItemProjection(t *testing.T) {
	f := newFixture(t)

	assert.Nil(t, f.c.CurrentActiveItem())

	items := oneItem(5, 100)
	driveToShopping(t, f, items, "A")

	active := f.c.CurrentActiveItem()
	require.NotNil(t, active)
	assert.Same(t, items[0], active)
}

// driveToShopping walks the controller from Start to the Shopping state on
// the first world of the queue.
func driveToShopping(t *testing.T, f *controllerFixture, items []*ShoppingItem, worlds ...string) {
	t.Helper()

	f.c.Start(items, worlds)
	require.Equal(t, StateTraveling, f.c.State())

	f.gs.world = worlds[0]
	f.gs.zone = 0
	f.step()
	require.Equal(t, StateTeleportingToHub, f.c.State())

	f.gs.zone = 129
	f.gs.haveBoard = true
	f.gs.boardPos = game.Position{X: 50}
	f.gs.playerPos = game.Position{X: 46}
	f.step()
	require.Equal(t, StateMovingToBoard, f.c.State())

	f.probe.Show(widget.AddonItemSearch)
	f.step()
	require.Equal(t, StateShopping, f.c.State())
}
