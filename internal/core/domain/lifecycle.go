package domain

import "fmt"

// LifecycleEvent drives an item from one status to the next
type LifecycleEvent string

const (
	// EventSubmit starts processing of a freshly uploaded item
	EventSubmit LifecycleEvent = "submit"
	// EventRetry restarts processing from UPLOADED or ERROR
	EventRetry LifecycleEvent = "retry"
	// EventExtracted marks successful extraction, chunking follows
	EventExtracted LifecycleEvent = "extracted"
	// EventIndexed marks all chunks persisted and indexed
	EventIndexed LifecycleEvent = "indexed"
	// EventTabularReady finishes a tabular item without chunking
	EventTabularReady LifecycleEvent = "tabular_ready"
	// EventFail records an unrecoverable failure
	EventFail LifecycleEvent = "fail"
	// EventCancel records an observed cooperative cancellation
	EventCancel LifecycleEvent = "cancel"
)

// Effects lists the side effects a transition requires from its caller
type Effects struct {
	// Cleanup deletes processed text, chunks and index entries. Raw data is never touched.
	Cleanup bool
	// SetError records an error message on the item
	SetError bool
	// ClearError clears any previous error message
	ClearError bool
	// Activate makes the item visible to retrieval
	Activate bool
	// Embedded is the value of the item's embedded marker on activation
	Embedded bool
}

// Transition is the outcome of a legal lifecycle event
type Transition struct {
	From    ItemStatus
	To      ItemStatus
	Event   LifecycleEvent
	Effects Effects
}

type transitionKey struct {
	from  ItemStatus
	event LifecycleEvent
}

type transitionRule struct {
	to      ItemStatus
	effects Effects
}

var lifecycleRules = map[transitionKey]transitionRule{
	{ItemStatusUploaded, EventSubmit}: {to: ItemStatusProcessing},

	{ItemStatusUploaded, EventRetry}: {to: ItemStatusProcessing, effects: Effects{Cleanup: true, ClearError: true}},
	{ItemStatusError, EventRetry}:    {to: ItemStatusProcessing, effects: Effects{Cleanup: true, ClearError: true}},

	{ItemStatusProcessing, EventExtracted}: {to: ItemStatusEmbedding},

	{ItemStatusEmbedding, EventIndexed}: {to: ItemStatusReady, effects: Effects{Activate: true, Embedded: true}},

	{ItemStatusProcessing, EventTabularReady}: {to: ItemStatusReady, effects: Effects{Activate: true, Embedded: false}},

	{ItemStatusProcessing, EventFail}: {to: ItemStatusError, effects: Effects{Cleanup: true, SetError: true}},
	{ItemStatusEmbedding, EventFail}:  {to: ItemStatusError, effects: Effects{Cleanup: true, SetError: true}},

	{ItemStatusProcessing, EventCancel}: {to: ItemStatusUploaded, effects: Effects{Cleanup: true, ClearError: true}},
	{ItemStatusEmbedding, EventCancel}:  {to: ItemStatusUploaded, effects: Effects{Cleanup: true, ClearError: true}},
}

// Next returns the transition for event from status, or ErrIllegalTransition.
// It has no side effects; callers perform the effects it lists.
func Next(from ItemStatus, event LifecycleEvent) (Transition, error) {
	rule, ok := lifecycleRules[transitionKey{from: from, event: event}]
	if !ok {
		return Transition{From: from, Event: event}, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, event, from)
	}
	return Transition{
		From:    from,
		To:      rule.to,
		Event:   event,
		Effects: rule.effects,
	}, nil
}

// CanApply reports whether event is legal from status
func CanApply(from ItemStatus, event LifecycleEvent) bool {
	_, ok := lifecycleRules[transitionKey{from: from, event: event}]
	return ok
}
