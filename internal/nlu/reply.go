package nlu

// ReplyKind discriminates the two shapes a composed reply can take.
type ReplyKind int

const (
	// KindPlainText is a free-form answer to send verbatim.
	KindPlainText ReplyKind = iota
	// KindDirective instructs the conversation engine to open a scripted
	// flow step instead of sending text.
	KindDirective
)

// Directive steps the model may request.
const (
	StepBrowse   = "browse"
	StepQuestion = "question"
)

// Directive carries a structured next step extracted from a model response.
type Directive struct {
	Step     string `json:"step"`
	Category string `json:"category,omitempty"`
}

// Reply is the tagged variant returned by the composer: either plain text
// or a directive, never both.
type Reply struct {
	Kind      ReplyKind
	Text      string
	Directive *Directive
}

// PlainText wraps a string reply.
func PlainText(text string) *Reply {
	return &Reply{Kind: KindPlainText, Text: text}
}

// Directed wraps a structured directive reply.
func Directed(d Directive) *Reply {
	return &Reply{Kind: KindDirective, Directive: &d}
}
