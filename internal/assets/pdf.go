package assets

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/reelcomposer/internal/source"
)

// ImageSink receives decoded images under a reference, e.g. source.Loader.
type ImageSink interface {
	Put(ref string, img image.Image)
}

// ImportPages renders every page of a multi-page document and registers the
// rasters with sink. Pages render on up to workers goroutines; the returned
// assets keep page order.
func ImportPages(ctx context.Context, doc source.PageSource, path string, dpi, workers int, sink ImageSink) ([]ImageAsset, error) {
	count := doc.PageCount()
	if count == 0 {
		return nil, fmt.Errorf("%s contains no pages", path)
	}
	if workers <= 0 || workers > count {
		workers = count
	}

	refs := make([]ImageAsset, count)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := doc.RenderPage(i, dpi)
			if err != nil {
				return fmt.Errorf("render page %d: %w", i+1, err)
			}
			ref := source.PageRef(path, i)
			sink.Put(ref, img)
			refs[i] = ImageAsset{Ref: ref}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}
