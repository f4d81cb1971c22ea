package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind identifies the source format of an ingestion item
type ItemKind string

const (
	ItemKindPDF          ItemKind = "pdf"
	ItemKindDOCX         ItemKind = "docx"
	ItemKindPresentation ItemKind = "presentation"
	ItemKindImage        ItemKind = "image"
	ItemKindAudio        ItemKind = "audio"
	ItemKindTabular      ItemKind = "tabular"
	ItemKindLink         ItemKind = "link"
	ItemKindVideoLink    ItemKind = "video_link"
	ItemKindText         ItemKind = "text"
	ItemKindResearch     ItemKind = "research"
	ItemKindDatabase     ItemKind = "database"
)

// AllItemKinds returns every supported kind. Extractor registries are
// validated against this list at startup.
func AllItemKinds() []ItemKind {
	return []ItemKind{
		ItemKindPDF,
		ItemKindDOCX,
		ItemKindPresentation,
		ItemKindImage,
		ItemKindAudio,
		ItemKindTabular,
		ItemKindLink,
		ItemKindVideoLink,
		ItemKindText,
		ItemKindResearch,
		ItemKindDatabase,
	}
}

// Valid reports whether k is a known kind
func (k ItemKind) Valid() bool {
	for _, known := range AllItemKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseItemKind parses a kind name, case-insensitively
func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// ItemStatus is the lifecycle status of an item
type ItemStatus string

const (
	ItemStatusUploaded   ItemStatus = "uploaded"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusEmbedding  ItemStatus = "embedding"
	ItemStatusReady      ItemStatus = "ready"
	ItemStatusError      ItemStatus = "error"
)

// Retryable reports whether a retry may be requested from this status
func (s ItemStatus) Retryable() bool {
	return s == ItemStatusUploaded || s == ItemStatusError
}

// Cancellable reports whether processing may be cancelled from this status
func (s ItemStatus) Cancellable() bool {
	return s == ItemStatusProcessing || s == ItemStatusEmbedding
}

// InFlight reports whether a pipeline run owns the item
func (s ItemStatus) InFlight() bool {
	return s.Cancellable()
}

// Item is one ingestion unit (document, URL, pasted text, audio file, ...)
type Item struct {
	ID         string     `json:"id"`
	OwnerScope string     `json:"owner_scope"`
	Kind       ItemKind   `json:"kind"`
	Status     ItemStatus `json:"status"`

	// RawLocation points at the immutable source bytes. Pipeline operations
	// never clear it.
	RawLocation string `json:"raw_location"`

	// ProcessedLocation points at the normalized text, empty until extraction completes
	ProcessedLocation string `json:"processed_location,omitempty"`

	TokenCount   int    `json:"token_count"`
	PageCount    int    `json:"page_count"`
	ErrorMessage string `json:"error_message,omitempty"`

	// IsActive gates retrieval; only READY items are active
	IsActive bool `json:"is_active"`

	// Embedded is false for items that reached READY without chunking (tabular)
	Embedded bool `json:"embedded"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewItem creates an item in the UPLOADED status
func NewItem(id, ownerScope string, kind ItemKind, rawLocation string) *Item {
	now := time.Now()
	return &Item{
		ID:          id,
		OwnerScope:  ownerScope,
		Kind:        kind,
		Status:      ItemStatusUploaded,
		RawLocation: rawLocation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply runs the lifecycle state machine for event and mutates the item
// accordingly. message is recorded only for the Fail event.
func (i *Item) Apply(event LifecycleEvent, message string) (Transition, error) {
	tr, err := Next(i.Status, event)
	if err != nil {
		return tr, err
	}

	i.Status = tr.To
	i.UpdatedAt = time.Now()

	if tr.Effects.Cleanup {
		i.ProcessedLocation = ""
		i.TokenCount = 0
		i.PageCount = 0
		i.IsActive = false
		i.Embedded = false
	}

	switch {
	case tr.Effects.SetError:
		i.ErrorMessage = message
	case tr.Effects.ClearError:
		i.ErrorMessage = ""
	}

	if tr.Effects.Activate {
		i.IsActive = true
		i.Embedded = tr.Effects.Embedded
	}

	return tr, nil
}

// RetryResult reports the outcome of a retry request
type RetryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`
}
