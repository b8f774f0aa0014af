// Package langdetect classifies short chat messages into one of two
// configured languages by the script their letters belong to. It never
// calls out anywhere and never fails; text that mixes both scripts or
// contains no letters at all is reported as ambiguous.
package langdetect

import "unicode"

// Tag is a closed language code. The empty tag means the classifier could
// not commit to either side of the pair.
type Tag string

const (
	TagRussian Tag = "ru"
	TagEnglish Tag = "en"
	Ambiguous  Tag = ""
)

// Script pairs a language tag with a rune membership test for its letters.
type Script struct {
	Tag    Tag
	Member func(r rune) bool
}

// Classifier detects which side of a two-language pair a text belongs to.
type Classifier struct {
	a Script
	b Script
}

// New builds a classifier for an explicit script pair.
func New(a, b Script) *Classifier {
	return &Classifier{a: a, b: b}
}

// NewRussianEnglish builds the default Cyrillic/Latin pair.
func NewRussianEnglish() *Classifier {
	return New(
		Script{Tag: TagRussian, Member: func(r rune) bool { return unicode.Is(unicode.Cyrillic, r) }},
		Script{Tag: TagEnglish, Member: func(r rune) bool { return unicode.Is(unicode.Latin, r) }},
	)
}

// Classify returns the tag of the single script whose letters appear in
// text, or Ambiguous when letters from both scripts (or from neither)
// are present.
func (c *Classifier) Classify(text string) Tag {
	var sawA, sawB bool
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		switch {
		case c.a.Member(r):
			sawA = true
		case c.b.Member(r):
			sawB = true
		}
		if sawA && sawB {
			return Ambiguous
		}
	}
	switch {
	case sawA && !sawB:
		return c.a.Tag
	case sawB && !sawA:
		return c.b.Tag
	default:
		return Ambiguous
	}
}

// Known reports whether tag is one of the pair's two languages.
func (c *Classifier) Known(tag Tag) bool {
	return tag == c.a.Tag || tag == c.b.Tag
}

// LetterRatio returns the share of runes in text that are letters of the
// given language's script, over all runes. It returns -1 when the tag is
// not part of the pair or the text is empty.
func (c *Classifier) LetterRatio(text string, tag Tag) float64 {
	var member func(rune) bool
	switch tag {
	case c.a.Tag:
		member = c.a.Member
	case c.b.Tag:
		member = c.b.Member
	default:
		return -1
	}

	total := 0
	letters := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) && member(r) {
			letters++
		}
	}
	if total == 0 {
		return -1
	}
	return float64(letters) / float64(total)
}
