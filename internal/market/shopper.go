package market

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"markettraveler/internal/widget"
)

// maxListingRows caps how many rows of the result window are ever scanned.
// The window renders more, but rows past the tenth are stale often enough
// that acting on them risks buying at a price that no longer exists.
const maxListingRows = 10

// State is the shopping state machine's current phase. The machine is linear
// with a single loop-back edge from WaitAfterPurchase to WaitForResultWindow.
type State int

const (
	StateIdle State = iota
	StateWaitForSearchWindow
	StateWaitAfterTextSearch
	StateWaitForResultWindow
	StateProcessResultWindow
	StateWaitForConfirmWindow
	StateProcessConfirmWindow
	StateCleanUpConfirmWindow
	StateWaitAfterPurchase
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWaitForSearchWindow:
		return "WaitForSearchWindow"
	case StateWaitAfterTextSearch:
		return "WaitAfterTextSearch"
	case StateWaitForResultWindow:
		return "WaitForResultWindow"
	case StateProcessResultWindow:
		return "ProcessResultWindow"
	case StateWaitForConfirmWindow:
		return "WaitForConfirmWindow"
	case StateProcessConfirmWindow:
		return "ProcessConfirmWindow"
	case StateCleanUpConfirmWindow:
		return "CleanUpConfirmWindow"
	case StateWaitAfterPurchase:
		return "WaitAfterPurchase"
	case StateDone:
		return "Done"
	}
	return "Unknown"
}

// Timings holds the tuned delays of the machine. Every value encodes an
// empirically discovered latency of the remote server or the client
// renderer; shortening them trades reliability for speed.
type Timings struct {
	// SearchOpenSettle is applied after StartBuying before the first poll of
	// the search window.
	SearchOpenSettle time.Duration
	// TextSearchSettle covers the server round-trip for search results after
	// the text query is submitted.
	TextSearchSettle time.Duration
	// ResultOpenSettle is applied after selecting a search candidate.
	ResultOpenSettle time.Duration
	// PriceSettle covers server-side price propagation into the result rows.
	PriceSettle time.Duration
	// ConfirmOpenSettle is applied after selecting a listing row.
	ConfirmOpenSettle time.Duration
	// ConfirmReadSettle is applied between the confirm window appearing and
	// the yes event being fired.
	ConfirmReadSettle time.Duration
	// PurchaseCommitSettle is the wait after confirming a purchase, sized to
	// the server-side purchase commit. Acting sooner risks the next action
	// being rejected as "transaction in progress".
	PurchaseCommitSettle time.Duration
	// CleanupSettle is applied after force-closing a lingering confirm
	// window.
	CleanupSettle time.Duration

	// RetryInterval spaces out re-scans of the result window when no row is
	// eligible.
	RetryInterval time.Duration
	// MaxRetries bounds those re-scans before the item is given up.
	MaxRetries int

	// ItemTimeout bounds one whole item run.
	ItemTimeout time.Duration
	// PurchaseTimeout re-arms the timeout after each confirmed purchase.
	PurchaseTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		SearchOpenSettle:     250 * time.Millisecond,
		TextSearchSettle:     800 * time.Millisecond,
		ResultOpenSettle:     500 * time.Millisecond,
		PriceSettle:          500 * time.Millisecond,
		ConfirmOpenSettle:    400 * time.Millisecond,
		ConfirmReadSettle:    200 * time.Millisecond,
		PurchaseCommitSettle: 800 * time.Millisecond,
		CleanupSettle:        250 * time.Millisecond,
		RetryInterval:        800 * time.Millisecond,
		MaxRetries:           3,
		ItemTimeout:          45 * time.Second,
		PurchaseTimeout:      20 * time.Second,
	}
}

// Catalog resolves item metadata and inventory state from the host.
type Catalog interface {
	// ItemName resolves the display name for an item id. The text search has
	// no id-based API, so an empty name makes the search unable to match.
	ItemName(id uint32) string
	// CountOwned reports how many units of the item the player currently
	// holds.
	CountOwned(id uint32) int
	// ResultItemID reports which item the result window currently displays,
	// or 0 when unknown.
	ResultItemID() uint32
}

// BuyOption tweaks a single StartBuying run.
type BuyOption func(*buyOpts)

type buyOpts struct {
	filter *ListingFilter
}

// WithListingFilter applies an additional per-listing predicate on top of
// the price ceiling. A nil filter is a no-op.
func WithListingFilter(f *ListingFilter) BuyOption {
	return func(o *buyOpts) {
		o.filter = f
	}
}

// Shopper buys one item up to a target quantity under a unit price ceiling
// by driving the search, result and confirmation windows through a Probe.
// It is advanced by Update once per scheduler tick and never blocks; all
// waiting is expressed as a not-before timestamp.
type Shopper struct {
	probe   widget.Probe
	catalog Catalog
	logger  *slog.Logger
	timings Timings

	// stepMode disables the timers entirely: the machine advances one tick
	// per RequestStep call and the timeout guard is off. Debugging aid.
	stepMode bool

	now func() time.Time

	state         State
	targetItemID  uint32
	targetName    string
	maxUnitPrice  int
	targetQty     int
	pendingQty    int
	retryCount    int
	purchased     int
	done          bool
	stepRequested bool
	filter        *ListingFilter

	nextActionTime time.Time
	timeoutTime    time.Time
}

func NewShopper(probe widget.Probe, catalog Catalog, logger *slog.Logger, timings Timings, stepMode bool) *Shopper {
	return &Shopper{
		probe:    probe,
		catalog:  catalog,
		logger:   logger,
		timings:  timings,
		stepMode: stepMode,
		now:      time.Now,
		state:    StateIdle,
	}
}

// IsDone reports whether the current item run has ended, by success, by
// exhaustion or by abort.
func (s *Shopper) IsDone() bool {
	return s.done
}

// SessionPurchased is the quantity bought during the current item run.
func (s *Shopper) SessionPurchased() int {
	return s.purchased
}

func (s *Shopper) State() State {
	return s.state
}

func (s *Shopper) StateName() string {
	return s.state.String()
}

// RequestStep arms a single state machine advance in step mode.
func (s *Shopper) RequestStep() {
	s.stepRequested = true
}

// StartBuying begins a run for one item. It is a no-op while a run for the
// same item id is still active, so repeated calls cannot restart a run in
// flight.
func (s *Shopper) StartBuying(itemID uint32, totalNeeded, maxUnitPrice int, opts ...BuyOption) {
	if !s.done && s.targetItemID == itemID && s.state != StateIdle && s.state != StateDone {
		return
	}

	var o buyOpts
	for _, opt := range opts {
		opt(&o)
	}

	s.targetItemID = itemID
	s.targetQty = totalNeeded
	s.maxUnitPrice = maxUnitPrice
	s.targetName = s.catalog.ItemName(itemID)
	s.filter = o.filter

	s.purchased = 0
	s.pendingQty = 0
	s.retryCount = 0
	s.done = false
	s.stepRequested = false

	s.timeoutTime = s.now().Add(s.timings.ItemTimeout)

	s.logger.Info("Shopper started",
		slog.String("item", s.targetName),
		slog.Uint64("itemId", uint64(itemID)),
		slog.Int("need", totalNeeded),
		slog.Int("maxUnitPrice", maxUnitPrice),
	)

	s.changeState(StateWaitForSearchWindow, s.timings.SearchOpenSettle)
}

// Stop ends the run immediately, leaving the purchase counter as is.
func (s *Shopper) Stop() {
	s.logger.Info("Shopper manually stopped")
	s.changeState(StateIdle, 0)
	s.done = true
}

// ForceDone aborts the current item, discarding its session counter. Used
// when the item cannot be bought here (no exact match, timeout) so the
// caller moves on without crediting anything.
func (s *Shopper) ForceDone() {
	s.logger.Info("Shopper forced to complete current item")
	s.purchased = 0
	s.done = true
	s.changeState(StateIdle, 0)
}

// Update advances the machine by at most one bounded action. It must be
// called from a single goroutine, once per scheduler tick.
func (s *Shopper) Update() {
	if s.state == StateIdle || s.state == StateDone {
		return
	}

	if s.stepMode {
		if !s.stepRequested {
			return
		}
		s.stepRequested = false
	} else {
		now := s.now()
		if now.After(s.timeoutTime) {
			s.logger.Error("Shopper stuck in state for too long, aborting item",
				slog.String("state", s.state.String()))
			s.ForceDone()
			return
		}
		if now.Before(s.nextActionTime) {
			return
		}
	}

	switch s.state {
	case StateWaitForSearchWindow:
		s.waitForSearchWindow()
	case StateWaitAfterTextSearch:
		s.waitAfterTextSearch()
	case StateWaitForResultWindow:
		s.waitForResultWindow()
	case StateProcessResultWindow:
		s.processResultWindow()
	case StateWaitForConfirmWindow:
		s.waitForConfirmWindow()
	case StateProcessConfirmWindow:
		s.processConfirmWindow()
	case StateCleanUpConfirmWindow:
		s.cleanUpConfirmWindow()
	case StateWaitAfterPurchase:
		s.changeState(StateWaitForResultWindow, 0)
	}
}

func (s *Shopper) changeState(newState State, settle time.Duration) {
	if s.state != newState {
		s.logger.Debug("Shopper state transition",
			slog.String("from", s.state.String()),
			slog.String("to", newState.String()))
		s.state = newState
	}
	if settle > 0 {
		s.nextActionTime = s.now().Add(settle)
	}
}

// readyWindow returns the named window only when it exists, is visible and
// fully loaded. Anything else is transient-not-ready, not an error.
func (s *Shopper) readyWindow(name string) (widget.Handle, bool) {
	h, ok := s.probe.Find(name)
	if !ok {
		return "", false
	}
	if !s.probe.IsVisible(h) || !s.probe.IsLoaded(h) {
		return "", false
	}
	return h, true
}

func (s *Shopper) waitForSearchWindow() {
	h, ok := s.readyWindow(widget.AddonItemSearch)
	if !ok {
		return
	}

	s.logger.Debug("Search window loaded, submitting text search",
		slog.String("item", s.targetName))

	// The window's callback expects the full eight-argument search form; the
	// duplicated name and trailing constants mirror what the client itself
	// submits when a user types a query.
	s.probe.FireEvent(h,
		widget.Int(0),
		widget.Int(-1),
		widget.Int(0),
		widget.String(s.targetName),
		widget.String(s.targetName),
		widget.Int(100),
		widget.Int(100),
		widget.Int(40),
	)

	s.changeState(StateWaitAfterTextSearch, s.timings.TextSearchSettle)
}

func (s *Shopper) waitAfterTextSearch() {
	h, ok := s.readyWindow(widget.AddonItemSearch)
	if !ok {
		return
	}

	length := s.probe.ListLength(h, widget.SearchListNode)
	if length == 0 {
		// Results not populated yet, keep polling.
		return
	}

	cleanTarget := CleanDisplayName(s.targetName)

	matchIndex := -1
	closest := ""
	closestDist := math.MaxInt
	for i := 0; i < length; i++ {
		name := CleanDisplayName(s.probe.ListText(h, widget.SearchListNode, i, 0))
		if strings.EqualFold(name, cleanTarget) {
			matchIndex = i
			break
		}
		if d := levenshtein.ComputeDistance(name, cleanTarget); d < closestDist {
			closest = name
			closestDist = d
		}
	}

	if matchIndex == -1 {
		// A fuzzy or partial match is never substituted: buying the wrong
		// item is worse than buying nothing.
		s.logger.Warn("No exact match in search results, aborting item",
			slog.String("target", cleanTarget),
			slog.String("closestCandidate", closest))
		s.ForceDone()
		return
	}

	s.logger.Debug("Exact match found, selecting",
		slog.String("item", s.targetName),
		slog.Int("index", matchIndex))

	s.probe.FireEvent(h, widget.Int(widget.OpSelectSearchResult), widget.Int(matchIndex))

	s.changeState(StateWaitForResultWindow, s.timings.ResultOpenSettle)
}

func (s *Shopper) waitForResultWindow() {
	h, ok := s.readyWindow(widget.AddonItemSearchResult)
	if !ok {
		return
	}

	if s.probe.ListLength(h, widget.ResultListNode) == 0 {
		return
	}

	s.logger.Debug("Result window fully loaded, processing listings")
	s.changeState(StateProcessResultWindow, s.timings.PriceSettle)
}

func (s *Shopper) processResultWindow() {
	h, ok := s.readyWindow(widget.AddonItemSearchResult)
	if !ok {
		return
	}

	// The result window can lag behind the search selection and still show
	// the previous item. Acting on a stale window would buy the wrong item.
	if displayed := s.catalog.ResultItemID(); displayed != 0 && displayed != s.targetItemID {
		s.logger.Debug("Result window shows a different item, finishing",
			slog.Uint64("displayed", uint64(displayed)))
		s.finishShopping(h)
		return
	}

	// The target can be satisfied by means other than this machine
	// (retainers, crafting, another purchase path) while the run is going.
	if owned := s.catalog.CountOwned(s.targetItemID); owned >= s.targetQty {
		s.logger.Info("Target quantity reached, wrapping up",
			slog.Int("owned", owned),
			slog.Int("target", s.targetQty))
		s.finishShopping(h)
		return
	}

	index, quantity := s.pickListing(h)
	if index == -1 {
		if s.retryCount < s.timings.MaxRetries {
			s.retryCount++
			s.logger.Debug("No suitable listings, retrying",
				slog.Int("retry", s.retryCount),
				slog.Int("maxRetries", s.timings.MaxRetries))
			s.changeState(s.state, s.timings.RetryInterval)
			return
		}
		s.logger.Info("All retries exhausted, no listings under price ceiling")
		s.finishShopping(h)
		return
	}

	s.pendingQty = quantity
	s.logger.Debug("Selecting listing",
		slog.Int("index", index),
		slog.Int("quantity", quantity))

	s.probe.FireEvent(h, widget.Int(widget.OpSelectListing), widget.Int(index))

	s.changeState(StateWaitForConfirmWindow, s.timings.ConfirmOpenSettle)
}

// pickListing scans the first maxListingRows rows and returns the first
// eligible one in display order, or -1. The client sorts listings
// cheapest-first, so the first eligible row is assumed to be the cheapest;
// that assumption is inherited from the client's own sort and deliberately
// not re-verified by comparing prices across rows.
func (s *Shopper) pickListing(h widget.Handle) (index, quantity int) {
	length := s.probe.ListLength(h, widget.ResultListNode)
	if length > maxListingRows {
		length = maxListingRows
	}

	for i := 0; i < length; i++ {
		unitPrice := s.listingPrice(h, i)
		qty := s.listingQuantity(h, i)
		if unitPrice == math.MaxInt || unitPrice == 0 || qty == 0 {
			continue
		}
		if unitPrice > s.maxUnitPrice {
			continue
		}
		if !s.filter.Match(unitPrice, qty) {
			continue
		}
		return i, qty
	}

	return -1, 0
}

// listingPrice reads the rendered unit price of a result row. Any failure
// yields MaxInt so the row can never pass a price ceiling.
func (s *Shopper) listingPrice(h widget.Handle, index int) int {
	text := s.probe.ListText(h, widget.ResultListNode, index, widget.PriceChildID)
	price, ok := parseDigits(text)
	if !ok {
		return math.MaxInt
	}
	return price
}

// listingQuantity reads the rendered quantity of a result row, 0 on failure.
func (s *Shopper) listingQuantity(h widget.Handle, index int) int {
	text := s.probe.ListText(h, widget.ResultListNode, index, widget.QuantityChildID)
	qty, ok := parseDigits(text)
	if !ok {
		return 0
	}
	return qty
}

func (s *Shopper) waitForConfirmWindow() {
	_, ok := s.readyWindow(widget.AddonSelectYesno)
	if !ok {
		return
	}

	s.changeState(StateProcessConfirmWindow, s.timings.ConfirmReadSettle)
}

func (s *Shopper) processConfirmWindow() {
	h, ok := s.readyWindow(widget.AddonSelectYesno)
	if !ok {
		return
	}

	s.logger.Debug("Confirming purchase", slog.Int("quantity", s.pendingQty))

	s.probe.FireEvent(h, widget.Int(widget.OpConfirmYes))

	s.purchased += s.pendingQty
	s.retryCount = 0
	// Purchase confirmation is the highest-risk step; give the server a
	// fresh window before declaring the machine stuck.
	s.timeoutTime = s.now().Add(s.timings.PurchaseTimeout)

	s.changeState(StateCleanUpConfirmWindow, s.timings.PurchaseCommitSettle)
}

func (s *Shopper) cleanUpConfirmWindow() {
	// The confirm window sometimes lingers or reopens with a follow-up
	// prompt. Best effort: failing to close it is tolerated.
	if h, ok := s.probe.Find(widget.AddonSelectYesno); ok && s.probe.IsVisible(h) {
		s.logger.Debug("Closing lingering confirm dialog")
		s.probe.FireEvent(h, widget.Int(widget.OpClose))
		s.probe.Close(h)
	}

	s.changeState(StateWaitAfterPurchase, s.timings.CleanupSettle)
}

// finishShopping is the regular exit path: close the result window and mark
// the run done so the caller can collect SessionPurchased.
func (s *Shopper) finishShopping(h widget.Handle) {
	s.logger.Info("Closing market board UI, item run finished",
		slog.Int("purchased", s.purchased))
	s.probe.FireEvent(h, widget.Int(widget.OpClose))
	s.changeState(StateDone, 0)
	s.done = true
}
