package velesql

import (
	"fmt"

	"github.com/velesdb/veles/pkg/veles"
)

// newParseError builds a structured parse error, reusing veles.Error with
// Kind: ParseError, a nested ParseErrorKind detail, and the source rune
// offset, per §4.H "Structured ParseError{Kind, Message, Hint, Details}".
// Most call sites are plain syntax errors; newParseErrorKind lets callers
// that know better (an unknown collection name, say) refine the subkind.
func newParseError(message string, pos int) error {
	return newParseErrorKind(veles.ParseSyntaxError, message, pos)
}

func newParseErrorf(pos int, format string, args ...any) error {
	return newParseError(fmt.Sprintf(format, args...), pos)
}

func newParseErrorKind(kind veles.ParseErrorKind, message string, pos int) error {
	return veles.New(veles.KindParseError, message).
		WithDetail("kind", string(kind)).
		WithDetail("pos", fmt.Sprintf("%d", pos))
}
