// Package identifier formats public registry identifiers for facilities.
//
// An identifier is a fixed prefix followed by the facility's numeric id,
// zero-padded to a minimum width (prefix "HF", width 6, id 42 -> "HF000042").
// The numeric part is the facility's unique unit id, so two facilities can
// never share an identifier. Ids wider than the pad width are kept whole.
package identifier

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	DefaultPrefix = "HF"
	DefaultWidth  = 6
)

// Generator formats and parses registry identifiers.
type Generator struct {
	prefix string
	width  int
}

// New creates a Generator. The prefix must be non-empty and must not end in a
// digit, otherwise the numeric part could not be recovered by Parse.
func New(prefix string, width int) (*Generator, error) {
	if prefix == "" {
		return nil, fmt.Errorf("identifier prefix must not be empty")
	}
	if unicode.IsDigit(rune(prefix[len(prefix)-1])) {
		return nil, fmt.Errorf("identifier prefix %q must not end in a digit", prefix)
	}
	if width < 1 {
		return nil, fmt.Errorf("identifier width must be >= 1, got %d", width)
	}
	return &Generator{prefix: prefix, width: width}, nil
}

// Default returns a Generator with DefaultPrefix and DefaultWidth.
func Default() *Generator {
	return &Generator{prefix: DefaultPrefix, width: DefaultWidth}
}

// Prefix returns the configured prefix.
func (g *Generator) Prefix() string { return g.prefix }

// Generate returns the identifier for the given facility id.
func (g *Generator) Generate(id uint) (string, error) {
	if id == 0 {
		return "", fmt.Errorf("cannot generate identifier for zero id")
	}
	return fmt.Sprintf("%s%0*d", g.prefix, g.width, id), nil
}

// Parse returns the facility id encoded in identifier.
func (g *Generator) Parse(identifier string) (uint, error) {
	digits, ok := strings.CutPrefix(identifier, g.prefix)
	if !ok || len(digits) < g.width {
		return 0, fmt.Errorf("malformed identifier %q", identifier)
	}
	n, err := strconv.ParseUint(digits, 10, 0)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("malformed identifier %q", identifier)
	}
	return uint(n), nil
}
