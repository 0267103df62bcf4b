// Package settings validates candidate credentials through the intermediary
// service before they are persisted.
package settings

import (
	"strings"

	"github.com/dukex/flowscribe/pkg/credentials"
)

// Field is a settings input as the user sees it. A field loaded from storage
// shows the masked string and is not Edited; only an Edit makes its value
// eligible for validation or persistence.
type Field struct {
	Value  string
	Edited bool
}

// Viewing returns the display-only field for a stored value.
func Viewing(stored string) Field {
	if stored == "" {
		return Field{}
	}

	return Field{Value: credentials.Mask(stored)}
}

// Edit returns a field carrying a value the user actually typed.
func Edit(value string) Field {
	return Field{Value: value, Edited: true}
}

// Sendable reports whether the value may leave the client.
func (f Field) Sendable() bool {
	return f.Edited && strings.TrimSpace(f.Value) != "" && !credentials.IsMasked(f.Value)
}

func (f Field) value() string {
	return strings.TrimSpace(f.Value)
}

// Candidates is one settings submission. Zero-value fields mean "unchanged".
type Candidates struct {
	N8nBaseURL Field
	N8nAPIKey  Field
	LLMKey     Field
	LLMModel   Field
}
