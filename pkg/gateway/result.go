package gateway

import (
	"github.com/goccy/go-json"
)

// ResultKind tags the arm of a Result.
type ResultKind int

const (
	// KindContent is plain generated text.
	KindContent ResultKind = iota + 1
	// KindStructured carries a responseType discriminator.
	KindStructured
	// KindRaw is a parsed reply in no recognized shape.
	KindRaw
)

func (k ResultKind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindStructured:
		return "structured"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ResponseType is the discriminator of a structured reply.
type ResponseType string

const (
	ResponseSummaryUpdate ResponseType = "summary_update"
	ResponseDocUpdate     ResponseType = "doc_update"
	ResponseChatOnly      ResponseType = "chat_only"
)

// UpdatesDocument reports whether the reply type asks for the Document to be
// replaced.
func (t ResponseType) UpdatesDocument() bool {
	return t == ResponseSummaryUpdate || t == ResponseDocUpdate
}

// Result is a normalized reply. Failures are returned as errors, never as a
// Result.
type Result struct {
	Kind ResultKind

	// KindContent
	Content string

	// KindStructured
	ResponseType  ResponseType
	ChatMessage   *string
	SummaryUpdate *string
	SystemMessage *string

	// KindRaw
	Raw any
}

func Content(text string) Result {
	return Result{Kind: KindContent, Content: text}
}

// textFields are probed, in order, when extracting text from a raw reply.
var textFields = []string{"output", "content", "text", "message", "chatMessage"}

// Text returns the plain text of a content reply, or a best-effort extraction
// from a raw one. Structured replies have no single text.
func (r Result) Text() (string, bool) {
	switch r.Kind {
	case KindContent:
		return r.Content, true
	case KindRaw:
		return extractText(r.Raw)
	default:
		return "", false
	}
}

func extractText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case map[string]any:
		for _, field := range textFields {
			if text, ok := v[field].(string); ok {
				return text, true
			}
		}
	case []any:
		if len(v) > 0 {
			return extractText(v[0])
		}
	}

	return "", false
}

// Normalize classifies a reply body. The first matching rule wins:
//
//	a. object with responseType               -> structured
//	b. [ {output: {responseType ...}} ]       -> structured, unwrapped
//	c. [ {output: "text"} ]                   -> content
//	d. {output: "text"}                       -> content
//	e. anything else that parses              -> raw
//
// A body that is not JSON is the generated text itself.
func Normalize(body []byte) Result {
	var parsed any

	err := json.Unmarshal(body, &parsed)
	if err != nil {
		return Content(string(body))
	}

	if result, ok := structured(parsed); ok {
		return result
	}

	if items, ok := parsed.([]any); ok && len(items) > 0 {
		if element, ok := items[0].(map[string]any); ok {
			if result, ok := structured(element["output"]); ok {
				return result
			}

			if output, ok := element["output"].(string); ok {
				return Content(output)
			}
		}
	}

	if object, ok := parsed.(map[string]any); ok {
		if output, ok := object["output"].(string); ok {
			return Content(output)
		}
	}

	return Result{Kind: KindRaw, Raw: parsed}
}

func structured(value any) (Result, bool) {
	object, ok := value.(map[string]any)
	if !ok {
		return Result{}, false
	}

	responseType, ok := object["responseType"].(string)
	if !ok {
		return Result{}, false
	}

	return Result{
		Kind:          KindStructured,
		ResponseType:  ResponseType(responseType),
		ChatMessage:   optionalString(object, "chatMessage"),
		SummaryUpdate: optionalString(object, "summaryUpdate"),
		SystemMessage: optionalString(object, "systemMessage"),
	}, true
}

func optionalString(object map[string]any, key string) *string {
	value, ok := object[key].(string)
	if !ok {
		return nil
	}

	return &value
}
