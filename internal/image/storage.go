package image

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hurricanerix/ocrchat/internal/logging"
)

const (
	// MaxImages is the maximum number of uploads to keep for previews
	MaxImages = 100
	// MaxAge is the maximum age of an upload before cleanup
	MaxAge = 1 * time.Hour
	// CleanupInterval is how often cleanup runs
	CleanupInterval = 10 * time.Minute
)

var (
	// ErrNotFound indicates the requested image does not exist
	ErrNotFound = errors.New("image not found")
	// ErrInvalidID indicates the provided image ID is invalid
	ErrInvalidID = errors.New("invalid image ID")
)

// Stored is an upload kept for preview.
type Stored struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

type storedImage struct {
	Stored
	CreatedAt  time.Time
	AccessedAt time.Time
}

// Storage provides thread-safe in-memory storage of uploaded images so the
// page can preview them after the upload request has finished.
type Storage struct {
	mu     sync.RWMutex
	images map[string]*storedImage
	now    func() time.Time
}

// NewStorage creates a new image storage
func NewStorage() *Storage {
	return &Storage{
		images: make(map[string]*storedImage),
		now:    time.Now,
	}
}

// Store keeps a validated upload and returns a unique ID for it.
func (s *Storage) Store(u *Upload) (string, error) {
	if u == nil || len(u.Data) == 0 {
		return "", ErrEmptyUpload
	}
	if len(u.Data) > MaxUploadSize {
		return "", ErrImageTooLarge
	}
	if u.Width <= 0 || u.Height <= 0 {
		return "", ErrInvalidDimensions
	}

	id := uuid.New().String()

	now := s.now()
	s.mu.Lock()
	s.images[id] = &storedImage{
		Stored: Stored{
			Data:        u.Data,
			ContentType: u.ContentType,
			Width:       u.Width,
			Height:      u.Height,
		},
		CreatedAt:  now,
		AccessedAt: now,
	}
	s.mu.Unlock()

	return id, nil
}

// Get returns a copy of the stored image, or ErrNotFound.
func (s *Storage) Get(id string) (Stored, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Stored{}, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img, exists := s.images[id]
	if !exists {
		return Stored{}, ErrNotFound
	}
	img.AccessedAt = s.now()

	out := img.Stored
	out.Data = make([]byte, len(img.Data))
	copy(out.Data, img.Data)
	return out, nil
}

// Count returns number of stored images
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Delete removes an image by ID. Returns true if image was deleted.
func (s *Storage) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.images[id]
	delete(s.images, id)
	return exists
}

// StartCleanup starts a background goroutine that periodically removes
// images older than MaxAge and enforces the MaxImages limit via LRU.
// The goroutine runs until ctx is cancelled.
func (s *Storage) StartCleanup(ctx context.Context, logger *logging.Logger) {
	ticker := time.NewTicker(CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("Image cleanup goroutine stopping")
				return
			case <-ticker.C:
				s.cleanup(logger)
			}
		}
	}()
}

// cleanup removes images older than MaxAge and enforces MaxImages limit
func (s *Storage) cleanup(logger *logging.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	initialCount := len(s.images)

	for id, img := range s.images {
		if now.Sub(img.CreatedAt) > MaxAge {
			delete(s.images, id)
		}
	}

	if excess := len(s.images) - MaxImages; excess > 0 {
		ids := make([]string, 0, len(s.images))
		for id := range s.images {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return s.images[ids[i]].AccessedAt.Before(s.images[ids[j]].AccessedAt)
		})
		for _, id := range ids[:excess] {
			delete(s.images, id)
		}
		logger.Debug("LRU eviction removed %d images (limit: %d)", excess, MaxImages)
	}

	if finalCount := len(s.images); initialCount != finalCount {
		logger.Debug("Image cleanup complete: %d -> %d images", initialCount, finalCount)
	}
}
