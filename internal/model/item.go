// Package model defines the values that flow through a drop: items, options,
// payloads and operations.
package model

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// ItemKind is the kind of a dropped input.
type ItemKind string

const (
	KindFile      ItemKind = "file"
	KindDirectory ItemKind = "directory"
	KindBlob      ItemKind = "blob"
	KindString    ItemKind = "string"
	KindURL       ItemKind = "url"
)

// Item is one dropped input. Only the fields of its Kind are meaningful.
type Item struct {
	Kind ItemKind `yaml:"kind" json:"kind"`

	// file, directory
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	Size     int64     `yaml:"size,omitempty" json:"size,omitempty"`
	Modified time.Time `yaml:"modified,omitempty" json:"modified,omitempty"`

	// blob
	MIME     string `yaml:"mime,omitempty" json:"mime,omitempty"`
	Contents []byte `yaml:"-" json:"-"`

	// string
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	// url
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// FileItem returns a file item for path.
func FileItem(path string, size int64, modified time.Time) Item {
	return Item{Kind: KindFile, Path: path, Size: size, Modified: modified}
}

// DirectoryItem returns a directory item for path.
func DirectoryItem(path string) Item {
	return Item{Kind: KindDirectory, Path: path}
}

// BlobItem returns a blob item. An empty mime is sniffed from contents.
func BlobItem(contents []byte, mime string) Item {
	if mime == "" {
		mime = mimetype.Detect(contents).String()
	}
	return Item{Kind: KindBlob, MIME: mime, Contents: contents}
}

// StringItem returns a string item. Type defaults to text/plain.
func StringItem(text, typ string) Item {
	if typ == "" {
		typ = "text/plain"
	}
	return Item{Kind: KindString, Text: text, Type: typ}
}

// URLItem returns a url item.
func URLItem(raw string) Item {
	return Item{Kind: KindURL, URL: raw}
}

// Basename returns the last path element of a file or directory item.
func (i Item) Basename() string {
	if i.Path == "" {
		return ""
	}
	return filepath.Base(i.Path)
}

// Extension returns the lower-cased extension without the dot.
func (i Item) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(i.Path)), ".")
}

// ParsedURL parses a url item.
func (i Item) ParsedURL() (*url.URL, error) {
	u, err := url.Parse(i.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", i.URL, err)
	}
	return u, nil
}

// Value returns the primary value of the item: a path, text, url or the
// blob contents as text.
func (i Item) Value() string {
	switch i.Kind {
	case KindFile, KindDirectory:
		return i.Path
	case KindString:
		return i.Text
	case KindURL:
		return i.URL
	case KindBlob:
		return string(i.Contents)
	default:
		return ""
	}
}

func (i Item) String() string {
	switch i.Kind {
	case KindFile:
		return fmt.Sprintf("file %s (%s)", i.Path, humanize.Bytes(uint64(max(i.Size, 0))))
	case KindDirectory:
		return "directory " + i.Path
	case KindBlob:
		return fmt.Sprintf("blob %s (%s)", i.MIME, humanize.Bytes(uint64(len(i.Contents))))
	case KindString:
		text := i.Text
		if r := []rune(text); len(r) > 40 {
			text = string(r[:37]) + "..."
		}
		return fmt.Sprintf("string %s %q", i.Type, text)
	case KindURL:
		return "url " + i.URL
	default:
		return fmt.Sprintf("item(%s)", i.Kind)
	}
}
