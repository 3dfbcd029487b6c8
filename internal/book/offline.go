package book

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yuanying/epubview/internal/epub"
)

// ErrNoOfflineStore is returned by StoreOffline without Options.OfflineStore.
var ErrNoOfflineStore = errors.New("no offline store configured")

// StoreOffline copies the package document and every manifest asset into
// the offline store and tokens the book key. With Options.Offline set,
// resources are read from the store from then on.
func (b *Book) StoreOffline(ctx context.Context) error {
	s := b.opts.OfflineStore
	if s == nil {
		return ErrNoOfflineStore
	}
	if b.pkg == nil || b.archive == nil {
		return ErrNotOpen
	}

	paths := []string{"META-INF/container.xml", b.archive.PackagePath()}
	for _, id := range b.pkg.ManifestOrder {
		paths = append(paths, b.pkg.Manifest[id].URL)
	}
	assets := make([]epub.Asset, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := b.archive.ReadFile(p)
		if errors.Is(err, epub.ErrNotFound) {
			b.log.Warn("Skipping missing asset", zap.String("path", p))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		assets = append(assets, epub.Asset{Path: p, Data: data})
	}
	if err := s.Put(assets); err != nil {
		return fmt.Errorf("failed to store assets: %w", err)
	}
	if err := s.Token(b.key, "true"); err != nil {
		return fmt.Errorf("failed to token book: %w", err)
	}
	b.log.Debug("Stored book offline", zap.String("key", b.key), zap.Int("assets", len(assets)))

	b.useOfflineStore()
	return nil
}
