package remote

import (
	"fmt"

	"markettraveler/internal/event"
)

// Format renders an event as a chat notification, empty for events not worth
// notifying about.
func Format(e event.Event) string {
	switch ev := e.(type) {
	case event.RunStartedEvent:
		return fmt.Sprintf("🛒 Run started: %d items across %d worlds", ev.Items, ev.Worlds)
	case event.RunFinishedEvent:
		switch ev.Reason {
		case event.FinishedOK:
			return "✅ " + ev.Message()
		case event.FinishedStopped:
			return "⏹️ " + ev.Message()
		default:
			return "❌ " + ev.Message()
		}
	case event.WorldSkippedEvent:
		return "⚠️ " + ev.Message()
	case event.WorldSummaryEvent:
		return fmt.Sprintf("🌍 %s: bought %d items", ev.World, ev.Purchased)
	case event.ItemPurchasedEvent:
		return fmt.Sprintf("💰 Bought %dx item %d on %s", ev.Quantity, ev.ItemID, ev.World)
	}
	return ""
}
