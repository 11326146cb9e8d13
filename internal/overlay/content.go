package overlay

import "fmt"

// Kind records whether content was supplied as text or as raw bytes.
type Kind int

const (
	KindText Kind = iota
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "text" or "binary".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return KindText, nil
	case "binary":
		return KindBinary, nil
	default:
		return 0, fmt.Errorf("unknown content kind %q", s)
	}
}

// Content is a pending edit or a resolved entry body.
type Content struct {
	Kind Kind
	text string
	data []byte
}

func Text(s string) Content {
	return Content{Kind: KindText, text: s}
}

func Binary(b []byte) Content {
	return Content{Kind: KindBinary, data: b}
}

// Bytes returns the content as bytes regardless of kind.
func (c Content) Bytes() []byte {
	if c.Kind == KindText {
		return []byte(c.text)
	}
	return c.data
}

// String returns the content as text regardless of kind.
func (c Content) String() string {
	if c.Kind == KindText {
		return c.text
	}
	return string(c.data)
}

func (c Content) Len() int {
	if c.Kind == KindText {
		return len(c.text)
	}
	return len(c.data)
}
