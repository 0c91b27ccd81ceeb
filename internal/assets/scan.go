package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TextsFile is the name of the text records file inside an asset folder.
const TextsFile = "texts.yaml"

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	pdfExtensions   = []string{".pdf"}
)

// Manifest is the content of an asset folder, oldest file first.
type Manifest struct {
	Images []ImageAsset
	Texts  []TextAsset
	Audios []AudioAsset
	PDFs   []string
}

// ScanDir lists the assets found directly inside dir.
func ScanDir(dir string) (Manifest, error) {
	var m Manifest

	images, err := findByExt(dir, imageExtensions)
	if err != nil {
		return m, err
	}
	for _, p := range images {
		m.Images = append(m.Images, ImageAsset{Ref: p})
	}

	audios, err := findByExt(dir, audioExtensions)
	if err != nil {
		return m, err
	}
	for _, p := range audios {
		m.Audios = append(m.Audios, AudioAsset{DisplayName: displayName(p), Source: p})
	}

	if m.PDFs, err = findByExt(dir, pdfExtensions); err != nil {
		return m, err
	}

	if m.Texts, err = ReadTexts(filepath.Join(dir, TextsFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return m, err
	}
	return m, nil
}

// ReadTexts parses a YAML list of {headline, body, cta} records.
func ReadTexts(path string) ([]TextAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var texts []TextAsset
	if err := yaml.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return texts, nil
}

// WriteTexts stores text records in the format ReadTexts accepts.
func WriteTexts(path string, texts []TextAsset) error {
	data, err := yaml.Marshal(texts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type fileEntry struct {
	path string
	mod  time.Time
}

func findByExt(dir string, extensions []string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var found []fileEntry
	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), extensions) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		found = append(found, fileEntry{path: filepath.Join(dir, f.Name()), mod: info.ModTime()})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].mod.Equal(found[j].mod) {
			return found[i].path < found[j].path
		}
		return found[i].mod.Before(found[j].mod)
	})

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

func hasExt(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func displayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
