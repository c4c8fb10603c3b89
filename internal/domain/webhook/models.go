package webhook

import "encoding/json"

// Object values sent in the top-level "object" field.
const (
	ObjectInstagram = "instagram"
	ObjectPage      = "page"
)

// ChangeKind is a change resolved from its (object, field) pair.
type ChangeKind int

const (
	UnknownChange ChangeKind = iota
	CommentChange
	MediaChange
	PageFeedChange
)

func (k ChangeKind) String() string {
	switch k {
	case CommentChange:
		return "comment"
	case MediaChange:
		return "media"
	case PageFeedChange:
		return "page_feed"
	default:
		return "unknown"
	}
}

// Classify resolves an object and field to a ChangeKind. Unrecognised pairs
// are UnknownChange so new fields never break delivery.
func Classify(object, field string) ChangeKind {
	switch object {
	case ObjectInstagram:
		switch field {
		case "comments":
			return CommentChange
		case "media":
			return MediaChange
		}
	case ObjectPage:
		if field == "feed" {
			return PageFeedChange
		}
	}
	return UnknownChange
}

// Change is one field-scoped change from a delivery, in delivery order.
type Change struct {
	Kind    ChangeKind
	Object  string
	EntryID string
	Time    int64
	Field   string
	Value   json.RawMessage
}

// Event is a parsed delivery.
type Event struct {
	Object  string
	Entries int
	Changes []Change
}

// CommentValue is the part of a comments change value the service reads.
type CommentValue struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}

type envelope struct {
	Object json.RawMessage `json:"object"`
	Entry  json.RawMessage `json:"entry"`
}

// entry and change keep every field raw so a stray type in one of them
// never fails the whole delivery.
type entry struct {
	ID      json.RawMessage `json:"id"`
	Time    json.RawMessage `json:"time"`
	Changes json.RawMessage `json:"changes"`
}

type change struct {
	Field json.RawMessage `json:"field"`
	Value json.RawMessage `json:"value"`
}
