// Package prompttmpl wraps text/template for prompt assembly. Templates
// are parsed with missingkey=error so a typo in a prompt source fails
// loudly instead of rendering "<no value>".
package prompttmpl

import (
	"bytes"
	"text/template"
)

func Parse(name, source string) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(source)
}

func MustParse(name, source string) *template.Template {
	t, err := Parse(name, source)
	if err != nil {
		panic(err)
	}
	return t
}

func Render(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// MustRender renders a template that is expected to be total over its
// data; prompt sources are static and validated at init time.
func MustRender(t *template.Template, data any) string {
	s, err := Render(t, data)
	if err != nil {
		panic(err)
	}
	return s
}
