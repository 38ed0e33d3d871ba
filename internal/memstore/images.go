package memstore

import (
	"context"
	"sync"
)

type photo struct {
	image, thumbnail []byte
}

// Images keeps item photos next to a Store.
type Images struct {
	store  *Store
	mu     sync.RWMutex
	photos map[string]photo
}

// NewImages returns an image store for items held in s. Photos of purged
// items are dropped.
func NewImages(s *Store) *Images {
	im := &Images{store: s, photos: make(map[string]photo)}
	s.notifyPurge(im.forget)
	return im
}

func (im *Images) forget(itemID string) {
	im.mu.Lock()
	delete(im.photos, itemID)
	im.mu.Unlock()
}

// SetItemImage replaces a live item's photo and records its MIME type.
func (im *Images) SetItemImage(_ context.Context, itemID string, image, thumbnail []byte, mime string) error {
	rec := im.store.lookup(itemID)
	if rec == nil {
		return notFound(itemID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged || rec.item.Archived() {
		return notFound(itemID)
	}

	im.mu.Lock()
	im.photos[itemID] = photo{image: image, thumbnail: thumbnail}
	im.mu.Unlock()
	rec.item.ImageMIME = mime
	return nil
}

// GetItemImage returns an item's photo or thumbnail. A missing image yields
// nil data and no error.
func (im *Images) GetItemImage(_ context.Context, itemID string, thumbnail bool) ([]byte, string, error) {
	im.mu.RLock()
	p, ok := im.photos[itemID]
	im.mu.RUnlock()
	if !ok {
		return nil, "", nil
	}
	rec := im.store.lookup(itemID)
	if rec == nil {
		return nil, "", nil
	}
	rec.mu.Lock()
	mime := rec.item.ImageMIME
	rec.mu.Unlock()
	if thumbnail {
		return p.thumbnail, mime, nil
	}
	return p.image, mime, nil
}
