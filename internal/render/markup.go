// Package render turns reply text into typed display lines.
//
// The markup is line oriented: a line wrapped in "**" is bold, a line that
// starts with the bullet glyph is a list item, a line wrapped in single "*" is
// italic and everything else is shown verbatim. Lines() followed by Join()
// reproduces the input byte for byte, so rendering is idempotent.
package render

import "strings"

// Kind classifies a display line.
type Kind string

const (
	Plain  Kind = "plain"
	Bold   Kind = "bold"
	Italic Kind = "italic"
	Bullet Kind = "bullet"
)

// BulletGlyph prefixes list items in reply templates.
const BulletGlyph = "• "

// Line is one rendered line. Text has the markup removed.
type Line struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Markup returns the source form of the line.
func (l Line) Markup() string {
	switch l.Kind {
	case Bold:
		return "**" + l.Text + "**"
	case Italic:
		return "*" + l.Text + "*"
	case Bullet:
		return BulletGlyph + l.Text
	default:
		return l.Text
	}
}

// Classify applies the markup rules to a single line. A bold line needs at
// least one character between its markers, so "**" and "***" stay plain and
// Join can restore them.
func Classify(line string) Line {
	switch {
	case len(line) >= 4 && strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**"):
		return Line{Kind: Bold, Text: line[2 : len(line)-2]}
	case strings.HasPrefix(line, BulletGlyph):
		return Line{Kind: Bullet, Text: strings.TrimPrefix(line, BulletGlyph)}
	case len(line) >= 2 && !strings.HasPrefix(line, "**") &&
		strings.HasPrefix(line, "*") && strings.HasSuffix(line, "*"):
		return Line{Kind: Italic, Text: line[1 : len(line)-1]}
	default:
		return Line{Kind: Plain, Text: line}
	}
}

// Lines splits text on line breaks and classifies every line.
func Lines(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, len(raw))
	for i, line := range raw {
		lines[i] = Classify(line)
	}
	return lines
}

// Join rebuilds the source text from rendered lines.
func Join(lines []Line) string {
	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = line.Markup()
	}
	return strings.Join(parts, "\n")
}
