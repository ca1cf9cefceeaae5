package directory

import (
	"context"
	"strings"
	"sync"
)

// Repository is the persistence boundary for listings and categories.
// Find methods report found=false, with no error, when nothing matches.
type Repository interface {
	FindByExternalID(ctx context.Context, externalID string) (id int64, found bool, err error)
	FindByTitle(ctx context.Context, title string) (id int64, found bool, err error)
	Create(ctx context.Context, l Listing) (int64, error)
	Update(ctx context.Context, id int64, l Listing) error
	EnsureCategory(ctx context.Context, name string) error
	CategoryExists(ctx context.Context, name string) (bool, error)

	// HasImage reports whether the listing already has a stored image.
	HasImage(ctx context.Context, id int64) (bool, error)
	SetImage(ctx context.Context, id int64, ref MediaRef) error
}

// MemoryRepository is a process-local Repository used when no database is
// configured, and in tests.
type MemoryRepository struct {
	mu         sync.Mutex
	nextID     int64
	listings   map[int64]Listing
	categories map[string]string // lowercased name -> display name
	images     map[int64]MediaRef
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		listings:   make(map[int64]Listing),
		categories: make(map[string]string),
		images:     make(map[int64]MediaRef),
	}
}

func (r *MemoryRepository) FindByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.findLocked(func(l Listing) bool { return l.ExternalID == externalID })
}

func (r *MemoryRepository) FindByTitle(ctx context.Context, title string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.findLocked(func(l Listing) bool { return l.Title == title })
}

// findLocked returns the lowest matching id so lookups are deterministic.
func (r *MemoryRepository) findLocked(match func(Listing) bool) (int64, bool, error) {
	var best int64
	for id, l := range r.listings {
		if match(l) && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0, nil
}

func (r *MemoryRepository) Create(ctx context.Context, l Listing) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	l.ID = r.nextID
	l.Categories = append([]string(nil), l.Categories...)
	r.listings[l.ID] = l
	return l.ID, nil
}

func (r *MemoryRepository) Update(ctx context.Context, id int64, l Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return ErrListingNotFound
	}
	l.ID = id
	l.Categories = append([]string(nil), l.Categories...)
	r.listings[id] = l
	return nil
}

func (r *MemoryRepository) EnsureCategory(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := r.categories[key]; !ok {
		r.categories[key] = name
	}
	return nil
}

func (r *MemoryRepository) CategoryExists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.categories[strings.ToLower(name)]
	return ok, nil
}

func (r *MemoryRepository) HasImage(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return false, ErrListingNotFound
	}
	_, ok := r.images[id]
	return ok, nil
}

func (r *MemoryRepository) SetImage(ctx context.Context, id int64, ref MediaRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return ErrListingNotFound
	}
	r.images[id] = ref
	return nil
}

// Image returns the stored image of a listing.
func (r *MemoryRepository) Image(id int64) (MediaRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.images[id]
	return ref, ok
}

// Listing returns a stored listing by id.
func (r *MemoryRepository) Listing(id int64) (Listing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	return l, ok
}

// Count returns the number of stored listings.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listings)
}
