// Package assets holds the externally supplied material a composition is
// built from: image references, text snippets and audio handles. The registry
// is read-only for the editor; it hands out drag payloads.
package assets

import (
	"sync"

	"github.com/ivlev/reelcomposer/internal/timeline"
)

// TemplateHeadline is the text of the generic text drag source.
const TemplateHeadline = "Headline"

// Kind of a draggable asset.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Track is the timeline lane an asset of this kind may be dropped on.
func (k Kind) Track() timeline.Track {
	switch k {
	case KindImage:
		return timeline.TrackVideo
	case KindText:
		return timeline.TrackText
	case KindAudio:
		return timeline.TrackAudio
	default:
		return ""
	}
}

type ImageAsset struct {
	Ref string `yaml:"ref" json:"ref"`
}

type TextAsset struct {
	Headline string `yaml:"headline" json:"headline"`
	Body     string `yaml:"body" json:"body"`
	CTA      string `yaml:"cta" json:"cta"`
}

type AudioAsset struct {
	DisplayName string `yaml:"display_name" json:"display_name"`
	Source      string `yaml:"source" json:"source"`
}

// Payload is what travels with a drag gesture from the registry to a track.
type Payload struct {
	Kind        Kind
	Ref         string // image or audio source
	Text        string
	DisplayName string
}

// Registry is a concurrency-safe, replaceable view of the current assets.
type Registry struct {
	mu     sync.RWMutex
	images []ImageAsset
	texts  []TextAsset
	audios []AudioAsset
}

func NewRegistry(images []ImageAsset, texts []TextAsset, audios []AudioAsset) *Registry {
	r := &Registry{}
	r.Replace(images, texts, audios)
	return r
}

// Replace swaps the whole asset set, e.g. after a rescan.
func (r *Registry) Replace(images []ImageAsset, texts []TextAsset, audios []AudioAsset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append([]ImageAsset(nil), images...)
	r.texts = append([]TextAsset(nil), texts...)
	r.audios = append([]AudioAsset(nil), audios...)
}

func (r *Registry) Images() []ImageAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ImageAsset(nil), r.images...)
}

func (r *Registry) Texts() []TextAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TextAsset(nil), r.texts...)
}

func (r *Registry) Audios() []AudioAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]AudioAsset(nil), r.audios...)
}

// ImagePayload is the drag source for the i-th image.
func (r *Registry) ImagePayload(i int) (Payload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.images) {
		return Payload{}, false
	}
	return Payload{Kind: KindImage, Ref: r.images[i].Ref}, true
}

// TextPayload is the drag source for the i-th text record. Only the headline
// is carried; an empty headline falls back to the template text.
func (r *Registry) TextPayload(i int) (Payload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.texts) {
		return Payload{}, false
	}
	text := r.texts[i].Headline
	if text == "" {
		text = TemplateHeadline
	}
	return Payload{Kind: KindText, Text: text}, true
}

// TemplatePayload is the generic text drag source.
func TemplatePayload() Payload {
	return Payload{Kind: KindText, Text: TemplateHeadline}
}

// AudioPayload is the drag source for the i-th audio asset.
func (r *Registry) AudioPayload(i int) (Payload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.audios) {
		return Payload{}, false
	}
	a := r.audios[i]
	return Payload{Kind: KindAudio, Ref: a.Source, DisplayName: a.DisplayName}, true
}

// Lookup resolves a payload by kind and index.
func (r *Registry) Lookup(kind Kind, i int) (Payload, bool) {
	switch kind {
	case KindImage:
		return r.ImagePayload(i)
	case KindText:
		return r.TextPayload(i)
	case KindAudio:
		return r.AudioPayload(i)
	default:
		return Payload{}, false
	}
}
