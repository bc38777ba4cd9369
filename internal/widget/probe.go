package widget

// Window names of the host UI layout driven by this module. These are part
// of a versioned binary layout owned by the game client and may shift
// between patches.
const (
	AddonItemSearch       = "ItemSearch"
	AddonItemSearchResult = "ItemSearchResult"
	AddonSelectYesno      = "SelectYesno"

	// Dialogs known to block world travel when a destination is congested.
	AddonSelectString    = "SelectString"
	AddonSelectOk        = "SelectOk"
	AddonCrossWorldLobby = "CrossWorldTravelLobby"
)

// Node and child ids inside the search and result windows.
const (
	SearchListNode  = 139
	ResultListNode  = 26
	PriceChildID    = 5
	QuantityChildID = 6
)

// Event opcodes accepted by the windows above.
const (
	OpSelectSearchResult = 5
	OpSelectListing      = 2
	OpConfirmYes         = 0
	OpClose              = -1
)

// Handle identifies a window found by a Probe. Handles are transient: they
// are only meaningful until the next UI refresh and must be re-acquired via
// Find on every tick.
type Handle string

// ValueType tags a Value passed to FireEvent.
type ValueType int

const (
	ValueInt ValueType = iota
	ValueString
)

// Value is one typed argument of a synthetic UI event, mirroring the host's
// callback argument array.
type Value struct {
	Type ValueType
	Int  int
	Str  string
}

func Int(v int) Value {
	return Value{Type: ValueInt, Int: v}
}

func String(s string) Value {
	return Value{Type: ValueString, Str: s}
}

// Probe reads transient host UI windows and injects synthetic events into
// them. All reads are best-effort snapshots of an external mutable surface:
// a window that exists on this tick can be gone on the next one, and event
// injection is fire-and-forget with no acknowledgment beyond observed state
// change on a later tick.
type Probe interface {
	// Find returns a handle for the named window, or false if it does not
	// currently exist.
	Find(name string) (Handle, bool)
	IsVisible(h Handle) bool
	IsLoaded(h Handle) bool
	// ListLength reports the number of populated rows of the list component
	// at nodeID, or 0 if the node is absent.
	ListLength(h Handle, nodeID int) int
	// ListText reads the rendered text of a list row. childID 0 addresses
	// the row's own renderer text, any other value a child text node.
	ListText(h Handle, nodeID, index, childID int) string
	FireEvent(h Handle, values ...Value)
	Close(h Handle)
}
