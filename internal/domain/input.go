package domain

// InputKind discriminates the Input variants.
type InputKind int

const (
	// InputText is a single raw string.
	InputText InputKind = iota
	// InputDocuments is an ordered list of documents.
	InputDocuments
)

func (k InputKind) String() string {
	switch k {
	case InputText:
		return "text"
	case InputDocuments:
		return "documents"
	default:
		return "unknown"
	}
}

// Input is what callers hand to the chunker and the retriever:
// either one raw string or a list of documents.
type Input struct {
	kind InputKind
	text string
	docs []Document
}

// TextInput wraps a raw string.
func TextInput(text string) Input {
	return Input{kind: InputText, text: text}
}

// DocumentsInput wraps a list of documents.
func DocumentsInput(docs ...Document) Input {
	return Input{kind: InputDocuments, docs: docs}
}

// Kind reports which variant the input holds.
func (in Input) Kind() InputKind { return in.kind }

// Text returns the raw string of a text input.
func (in Input) Text() string { return in.text }

// Documents returns the input as documents. A text input becomes a single
// document without metadata; an empty text input yields none.
func (in Input) Documents() []Document {
	if in.kind == InputText {
		if in.text == "" {
			return nil
		}
		return []Document{{Content: in.text}}
	}
	return in.docs
}

// IsEmpty reports whether the input carries no content at all.
func (in Input) IsEmpty() bool {
	for _, d := range in.Documents() {
		if d.Content != "" {
			return false
		}
	}
	return true
}
