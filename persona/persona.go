// Package persona holds the character registry and builds the generation
// system prompt for a (character, language) pair. The registry is a closed
// YAML document compiled into the binary; deployments may override it with
// their own file. Build output is deterministic: the same pair always
// produces the same prompt.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/essket/pixorbi-bot/internal/prompttmpl"
)

//go:embed assets/personas.yaml
var embeddedRegistry []byte

type Character struct {
	Name         string            `yaml:"name"`
	Prompts      map[string]string `yaml:"prompts"`
	Placeholders map[string]string `yaml:"placeholders"`
}

type document struct {
	DefaultCharacter string               `yaml:"default_character"`
	Characters       map[string]Character `yaml:"characters"`
	Generic          map[string]string    `yaml:"generic"`
	Placeholders     map[string]string    `yaml:"placeholders"`
}

type Registry struct {
	doc document
}

// Default returns the registry compiled into the binary.
func Default() *Registry {
	r, err := parse(embeddedRegistry)
	if err != nil {
		panic(fmt.Sprintf("embedded persona registry is invalid: %v", err))
	}
	return r
}

// LoadFile reads a registry override from disk.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona registry: %w", err)
	}
	r, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse persona registry %s: %w", path, err)
	}
	return r, nil
}

func parse(raw []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Generic) == 0 {
		return nil, fmt.Errorf("registry has no generic templates")
	}
	if doc.DefaultCharacter == "" {
		return nil, fmt.Errorf("registry has no default_character")
	}
	return &Registry{doc: doc}, nil
}

// DefaultCharacter is the persona assigned to sessions that never picked one.
func (r *Registry) DefaultCharacter() string {
	return r.doc.DefaultCharacter
}

// Has reports whether id names a registered character.
func (r *Registry) Has(id string) bool {
	_, ok := r.doc.Characters[id]
	return ok
}

// Characters lists registered character ids in an unspecified order.
func (r *Registry) Characters() []string {
	out := make([]string, 0, len(r.doc.Characters))
	for id := range r.doc.Characters {
		out = append(out, id)
	}
	return out
}

// DisplayName returns the character's human name, or the id itself for
// unknown characters.
func (r *Registry) DisplayName(id string) string {
	if c, ok := r.doc.Characters[id]; ok && strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return id
}

var genericLanguageClause = prompttmpl.MustParse("language_clause", strings.TrimSpace(`
Always answer in {{ .Language }} only, even if the user writes in another
language. If the user switches to a different language, answer in
{{ .Language }} anyway and briefly remind them that this chat is in
{{ .Language }}.`))

var languageClauses = map[string]string{
	"ru": "Всегда отвечай только на русском языке, даже если собеседник пишет " +
		"на другом языке. Если он переходит на другой язык, всё равно отвечай " +
		"по-русски и мягко напомни, что вы договорились общаться на русском.",
	"en": "Always answer in English only, even if the user writes in another " +
		"language. If the user switches to a different language, answer in " +
		"English anyway and briefly remind them that this chat is in English.",
}

var consistencyRules = []string{
	"Never contradict facts already established earlier in this conversation.",
	"Keep one single, stable persona; never switch characters or invent new lead characters.",
	"Do not write stage directions in brackets or asterisks.",
	"Do not mix in filler words from other languages.",
}

type exchange struct {
	User  string
	Reply string
}

// Two fixed tone examples per language: a kiss and a hold exchange. They
// illustrate sentence length and warmth, not content.
var styleExamples = map[string][]exchange{
	"ru": {
		{User: "поцелуй меня", Reply: "Я тянусь к тебе и нежно целую. Не отпускай меня сегодня."},
		{User: "обними меня", Reply: "Иди сюда. Я обнимаю тебя крепко-крепко и глажу по волосам."},
	},
	"en": {
		{User: "kiss me", Reply: "I lean in and kiss you softly. Don't let go of me tonight."},
		{User: "hold me", Reply: "Come here. I wrap my arms around you and hold you close."},
	},
}

// Build composes the system prompt for a (character, language) pair:
// character instructions (or the generic fallback), the hard language
// clause, the consistency rules and the fixed tone examples, in that order.
func (r *Registry) Build(character, language string) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(r.characterPrompt(character, language)))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(r.languageClause(language)))

	b.WriteString("\n\nRules:\n")
	for _, rule := range consistencyRules {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}

	name := r.DisplayName(character)
	examples, ok := styleExamples[language]
	if !ok {
		examples = styleExamples["en"]
	}
	b.WriteString("\nTone examples:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "User: %s\n%s: %s\n", ex.User, name, ex.Reply)
	}

	return strings.TrimSpace(b.String())
}

func (r *Registry) characterPrompt(character, language string) string {
	if c, ok := r.doc.Characters[character]; ok {
		if p, ok := c.Prompts[language]; ok && strings.TrimSpace(p) != "" {
			return p
		}
	}
	if g, ok := r.doc.Generic[language]; ok {
		return prompttmpl.MustRender(prompttmpl.MustParse("generic", g),
			map[string]string{"Name": r.DisplayName(character)})
	}
	// Unknown language: fall back to the english generic template.
	return prompttmpl.MustRender(prompttmpl.MustParse("generic", r.doc.Generic["en"]),
		map[string]string{"Name": r.DisplayName(character)})
}

func (r *Registry) languageClause(language string) string {
	if clause, ok := languageClauses[language]; ok {
		return clause
	}
	return prompttmpl.MustRender(genericLanguageClause, map[string]string{"Language": language})
}

// Placeholder returns the fixed in-character line sent when both providers
// are unavailable.
func (r *Registry) Placeholder(character, language string) string {
	if c, ok := r.doc.Characters[character]; ok {
		if p, ok := c.Placeholders[language]; ok && strings.TrimSpace(p) != "" {
			return p
		}
	}
	if p, ok := r.doc.Placeholders[language]; ok && strings.TrimSpace(p) != "" {
		return p
	}
	return r.doc.Placeholders["en"]
}
