package extractors

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry implements ExtractorRegistry keyed by item kind.
// Registering an extractor replaces any previous one for the same kinds.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.ItemKind]driven.Extractor
}

// NewRegistry creates an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[domain.ItemKind]driven.Extractor),
	}
}

// Register registers extractor for every kind it reports.
func (r *Registry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kind := range extractor.Kinds() {
		r.extractors[kind] = extractor
	}
}

// Get returns the extractor for kind.
func (r *Registry) Get(kind domain.ItemKind) (driven.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.extractors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoExtractor, kind)
	}
	return e, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []domain.ItemKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.ItemKind, 0, len(r.extractors))
	for k := range r.extractors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Validate checks that every known item kind has an extractor.
// The error names all missing kinds.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, kind := range domain.AllItemKinds() {
		if _, ok := r.extractors[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrNoExtractor, strings.Join(missing, ", "))
	}
	return nil
}

// Config selects how kinds without a built-in extractor are served.
type Config struct {
	// RemoteURL is the base URL of the extraction service. Empty disables it.
	RemoteURL string
	// RateLimit is the sustained request rate to the extraction service (req/s)
	RateLimit float64
	// Burst is the maximum burst of requests to the extraction service
	Burst int
}

// DefaultRegistry creates a registry covering every item kind.
// TEXT, RESEARCH, LINK and TABULAR are handled in-process; the remaining
// kinds go to the remote extraction service, or fail with a clear message
// when none is configured.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()

	r.Register(NewPlaintextExtractor())
	r.Register(NewHTMLExtractor())
	r.Register(NewTabularExtractor())

	if cfg.RemoteURL != "" {
		r.Register(NewRemoteExtractor(RemoteConfig{
			BaseURL:   cfg.RemoteURL,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			Kinds:     RemoteKinds(),
		}))
	} else {
		r.Register(NewUnavailableExtractor(RemoteKinds()...))
	}

	return r
}

// RemoteKinds returns the kinds delegated to the extraction service.
func RemoteKinds() []domain.ItemKind {
	return []domain.ItemKind{
		domain.ItemKindPDF,
		domain.ItemKindDOCX,
		domain.ItemKindPresentation,
		domain.ItemKindImage,
		domain.ItemKindAudio,
		domain.ItemKindVideoLink,
		domain.ItemKindDatabase,
	}
}
