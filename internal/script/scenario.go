// Package script reads and writes composition scripts: YAML descriptions of
// a timeline that are replayed through the editor's own drop and edit paths.
package script

import "github.com/ivlev/reelcomposer/internal/timeline"

// Version is written into every script.
const Version = "1.0"

// Script is a complete composition.
type Script struct {
	Version string `yaml:"version"`
	Aspect  string `yaml:"aspect,omitempty"`
	// Assets is the asset folder that Entry.Asset indexes refer to,
	// relative to the script file.
	Assets string  `yaml:"assets,omitempty"`
	Clips  []Entry `yaml:"clips"`
}

// Entry places one asset on a track. The asset is either picked from the
// registry by index or given inline with Source or Text.
type Entry struct {
	Track  timeline.Track `yaml:"track"`
	At     float64        `yaml:"at"`
	Asset  *int           `yaml:"asset,omitempty"`
	Source string         `yaml:"source,omitempty"`
	Text   string         `yaml:"text,omitempty"`
	Name   string         `yaml:"name,omitempty"`
	// Set is applied to the clip after it was dropped.
	Set timeline.Patch `yaml:"set,omitempty"`
}
