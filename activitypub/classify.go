package activitypub

import (
	"time"
)

// Kind is the closed set of handling strategies for inbound activities.
// Remote servers send arbitrary type strings, so classification always
// lands somewhere; KindUnknown is a real destination, not an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreate
	KindFollow
	KindAccept
	KindUndo
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "Create"
	case KindFollow:
		return "Follow"
	case KindAccept:
		return "Accept"
	case KindUndo:
		return "Undo"
	default:
		return "Unknown"
	}
}

// A Classification is the normalised reading of a raw activity payload.
// Which fields are populated depends on Kind: Object for Create, Target
// for Follow, Ref for Accept and Undo. RawKind always preserves the
// type string as received, including for recognised kinds.
type Classification struct {
	Kind      Kind
	RawKind   string
	ID        string
	Actor     string
	Object    map[string]any
	Target    string
	Ref       string
	To        []string
	CC        []string
	Published time.Time
}

// Classify maps a raw activity payload to its handling strategy. It is
// pure and total: malformed or partially missing payloads degrade to
// KindUnknown so the processor can still archive what was received.
func Classify(body map[string]any) Classification {
	c := Classification{
		RawKind:   stringFromAny(body["type"]),
		ID:        stringFromAny(body["id"]),
		Actor:     stringFromAny(body["actor"]),
		To:        stringsFromAny(body["to"]),
		CC:        stringsFromAny(body["cc"]),
		Published: timeFromAnyOrNow(body["published"]),
	}
	switch c.RawKind {
	case "Create":
		obj := mapFromAny(body["object"])
		if obj == nil {
			return c
		}
		c.Kind = KindCreate
		c.Object = obj
	case "Follow":
		target := objectID(body["object"])
		if target == "" {
			return c
		}
		c.Kind = KindFollow
		c.Target = target
	case "Accept":
		ref := objectID(body["object"])
		if ref == "" {
			return c
		}
		c.Kind = KindAccept
		c.Ref = ref
	case "Undo":
		ref := objectID(body["object"])
		if ref == "" {
			return c
		}
		c.Kind = KindUndo
		c.Ref = ref
	}
	return c
}
