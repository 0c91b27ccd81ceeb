package assets

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ivlev/reelcomposer/internal/source"
)

// LoadOptions controls how a folder manifest becomes a registry.
type LoadOptions struct {
	PDFDPI  int
	Workers int
	// QRSize > 0 adds a QR code image for every text record whose CTA is a link.
	QRSize int
	// OpenPDF defaults to source.NewFitzPDFSource.
	OpenPDF func(path string) (source.PageSource, error)
}

// Build turns a manifest into asset lists. PDF pages are rendered into sink;
// a document that fails to open or render is logged and skipped.
func Build(ctx context.Context, m Manifest, opts LoadOptions, sink ImageSink, log zerolog.Logger) ([]ImageAsset, []TextAsset, []AudioAsset) {
	images := append([]ImageAsset(nil), m.Images...)

	openPDF := opts.OpenPDF
	if openPDF == nil {
		openPDF = func(path string) (source.PageSource, error) {
			return source.NewFitzPDFSource(path)
		}
	}
	for _, path := range m.PDFs {
		doc, err := openPDF(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping pdf")
			continue
		}
		pages, err := ImportPages(ctx, doc, path, opts.PDFDPI, opts.Workers, sink)
		doc.Close()
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping pdf")
			continue
		}
		log.Info().Str("path", path).Int("pages", len(pages)).Msg("pdf imported")
		images = append(images, pages...)
	}

	if opts.QRSize > 0 {
		for _, t := range m.Texts {
			if !IsLink(t.CTA) {
				continue
			}
			qr, err := QRCodeAsset(t.CTA, opts.QRSize)
			if err != nil {
				log.Warn().Err(err).Str("cta", t.CTA).Msg("qr code skipped")
				continue
			}
			images = append(images, qr)
		}
	}

	return images, m.Texts, m.Audios
}

// LoadDir scans dir and builds a registry from it.
func LoadDir(ctx context.Context, dir string, opts LoadOptions, sink ImageSink, log zerolog.Logger) (*Registry, error) {
	m, err := ScanDir(dir)
	if err != nil {
		return nil, err
	}
	images, texts, audios := Build(ctx, m, opts, sink, log)
	log.Info().
		Str("dir", dir).
		Int("images", len(images)).
		Int("texts", len(texts)).
		Int("audios", len(audios)).
		Msg("assets loaded")
	return NewRegistry(images, texts, audios), nil
}
