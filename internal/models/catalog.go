package models

import "strings"

// Kind classifies the content of a category: live, series, movie or unknown.
type Kind string

const (
	KindLive    Kind = "live"
	KindSeries  Kind = "series"
	KindMovie   Kind = "movie"
	KindUnknown Kind = "unknown"
)

// ParseKind validates a kind string coming from user input (query params).
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindLive, KindSeries, KindMovie, KindUnknown:
		return Kind(s), true
	}
	return "", false
}

// KindFromLocation infers the kind from the path of a stream URL.
// Xtream-style servers encode the content class as a path segment.
func KindFromLocation(location string) Kind {
	switch {
	case strings.Contains(location, "/live/"):
		return KindLive
	case strings.Contains(location, "/series/"):
		return KindSeries
	case strings.Contains(location, "/movie/"):
		return KindMovie
	}
	return KindUnknown
}

// Item is a single playable entry inside a category.
type Item struct {
	ID         int64   `json:"id,omitempty"`
	Name       string  `json:"name"`
	Logo       *string `json:"logo,omitempty"`
	URL        string  `json:"url"`
	CategoryID int64   `json:"category_id,omitempty"`
}

// Category groups items that share a group-title. Kind is fixed when the
// category is first seen and never recomputed from later entries.
type Category struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Kind  Kind   `json:"type"`
	Items []Item `json:"items,omitempty"`
}

// RawEntry is one parsed playlist entry before categorization: the stream
// location plus its EXTINF attribute block. Never persisted.
type RawEntry struct {
	Location   string
	Attributes map[string]string
}
