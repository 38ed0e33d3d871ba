package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/ledger/ledgertest"
	"github.com/erazemk/makerledger/internal/model"
)

func TestRepository(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Repository { return New() })
}

func TestImages(t *testing.T) {
	s := New()
	images := NewImages(s)
	ctx := context.Background()
	item, err := ledger.New(s).Add(ctx, ledgertest.NewItem("PLA", "1", "0"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := images.SetItemImage(ctx, item.ID, []byte("full"), []byte("thumb"), "image/jpeg"); err != nil {
		t.Fatalf("SetItemImage: %v", err)
	}
	data, mime, _ := images.GetItemImage(ctx, item.ID, false)
	if string(data) != "full" || mime != "image/jpeg" {
		t.Errorf("unexpected image %q %q", data, mime)
	}
	got, _ := s.Get(ctx, item.ID)
	if got.ImageMIME != "image/jpeg" {
		t.Errorf("expected item to record mime, got %q", got.ImageMIME)
	}
	if err := images.SetItemImage(ctx, "nope", nil, nil, "image/jpeg"); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestPurgeDropsImage(t *testing.T) {
	s := New()
	images := NewImages(s)
	ctx := context.Background()
	l := ledger.New(s)

	purged, err := l.Add(ctx, ledgertest.NewItem("PETG", "1", "0"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	kept, err := l.Add(ctx, ledgertest.NewItem("TPU", "1", "0"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, id := range []string{purged.ID, kept.ID} {
		if err := images.SetItemImage(ctx, id, []byte("full"), []byte("thumb"), "image/png"); err != nil {
			t.Fatalf("SetItemImage: %v", err)
		}
	}

	outcome, err := l.Delete(ctx, purged.ID)
	if err != nil || outcome != model.DeletePurged {
		t.Fatalf("Delete = %q, %v; want purged", outcome, err)
	}

	images.mu.RLock()
	_, stillThere := images.photos[purged.ID]
	_, keptThere := images.photos[kept.ID]
	images.mu.RUnlock()
	if stillThere {
		t.Error("expected purged item's photo to be dropped")
	}
	if !keptThere {
		t.Error("expected other item's photo to remain")
	}
	if data, _, _ := images.GetItemImage(ctx, purged.ID, false); data != nil {
		t.Errorf("expected no image for purged item, got %q", data)
	}
}
