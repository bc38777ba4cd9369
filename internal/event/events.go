package event

import (
	"time"
)

// FinishReason classifies how a run ended.
type FinishReason string

const (
	FinishedOK      FinishReason = "ok"
	FinishedError   FinishReason = "error"
	FinishedStopped FinishReason = "stopped"
)

// Event is something notable that happened during a run, carrying a human
// readable message for notifier sinks.
type Event interface {
	Message() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	message    string
	occurredAt time.Time
}

func (b BaseEvent) Message() string {
	return b.message
}

func (b BaseEvent) OccurredAt() time.Time {
	return b.occurredAt
}

func Text(message string) BaseEvent {
	return BaseEvent{message: message, occurredAt: time.Now()}
}

type RunStartedEvent struct {
	BaseEvent
	Items  int
	Worlds int
}

func RunStarted(be BaseEvent, items, worlds int) RunStartedEvent {
	return RunStartedEvent{BaseEvent: be, Items: items, Worlds: worlds}
}

type RunFinishedEvent struct {
	BaseEvent
	Reason FinishReason
}

func RunFinished(be BaseEvent, reason FinishReason) RunFinishedEvent {
	return RunFinishedEvent{BaseEvent: be, Reason: reason}
}

// WorldSkippedEvent is sent when a destination is blacklisted after a travel
// timeout and dropped for the rest of the run.
type WorldSkippedEvent struct {
	BaseEvent
	World string
}

func WorldSkipped(be BaseEvent, world string) WorldSkippedEvent {
	return WorldSkippedEvent{BaseEvent: be, World: world}
}

// WorldSummaryEvent is sent when all items were attempted on a world, before
// moving on.
type WorldSummaryEvent struct {
	BaseEvent
	World     string
	Purchased int
}

func WorldSummary(be BaseEvent, world string, purchased int) WorldSummaryEvent {
	return WorldSummaryEvent{BaseEvent: be, World: world, Purchased: purchased}
}

// ItemPurchasedEvent is sent once per completed item sub-run with a non-zero
// purchase.
type ItemPurchasedEvent struct {
	BaseEvent
	World    string
	ItemID   uint32
	Quantity int
}

func ItemPurchased(be BaseEvent, world string, itemID uint32, quantity int) ItemPurchasedEvent {
	return ItemPurchasedEvent{BaseEvent: be, World: world, ItemID: itemID, Quantity: quantity}
}
