// Package sanitize cleans generated replies and flags degenerate output.
// The cleaning pipeline is lexical only: it strips filler, normalizes
// whitespace and punctuation runs, softens a fixed set of crude terms and
// caps the reply at a few non-repeating sentences. It never judges meaning.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

const DefaultMaxSentences = 6

// Filler tokens removed regardless of the reply language. Matching is
// whole-word and case-insensitive; attached punctuation goes with the word.
var fillerTokens = map[string]bool{
	"um":   true,
	"uh":   true,
	"erm":  true,
	"hmm":  true,
	"hmmm": true,
	"эм":   true,
	"эмм":  true,
	"ммм":  true,
	"кхм":  true,
	"эээ":  true,
	"ну-у": true,
}

// Crude-term softening applied after punctuation normalization. Replacement
// cores must not themselves appear as keys, or the pipeline would stop
// being idempotent.
var softenTokens = map[string]string{
	"чёрт":     "ох",
	"черт":     "ох",
	"блин":     "ой",
	"дурак":    "глупыш",
	"дура":     "глупышка",
	"заткнись": "тише",
	"damn":     "goodness",
	"dammit":   "goodness",
	"hell":     "heck",
	"crap":     "nonsense",
	"stupid":   "silly",
	"idiot":    "silly",
}

var (
	hspaceRunRE    = regexp.MustCompile(`[ \t]{2,}`)
	spacePunctRE   = regexp.MustCompile(`[ \t]+([,.!?;:])`)
	dotRunRE       = regexp.MustCompile(`\.{4,}`)
	bangRunRE      = regexp.MustCompile(`!{4,}`)
	questionRunRE  = regexp.MustCompile(`\?{4,}`)
	ellipsisRunRE  = regexp.MustCompile(`…{4,}`)
	nonLetterKeyRE = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Sanitize cleans raw generated text. maxSentences <= 0 selects the
// default cap. The result is stable under repeated application.
func Sanitize(raw string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}

	s := mapTokens(raw, func(core string) (string, bool) {
		if fillerTokens[strings.ToLower(core)] {
			return "", false
		}
		return core, true
	})

	s = hspaceRunRE.ReplaceAllString(s, " ")
	s = spacePunctRE.ReplaceAllString(s, "$1")
	s = dotRunRE.ReplaceAllString(s, "...")
	s = bangRunRE.ReplaceAllString(s, "!!")
	s = questionRunRE.ReplaceAllString(s, "??")
	s = ellipsisRunRE.ReplaceAllString(s, "……")

	s = mapTokens(s, func(core string) (string, bool) {
		if repl, ok := softenTokens[strings.ToLower(core)]; ok {
			return matchCapitalization(core, repl), true
		}
		return core, true
	})

	s = limitSentences(s, maxSentences)
	return strings.TrimSpace(s)
}

// IsLowQuality reports whether cleaned text looks garbled or written in the
// wrong script. scriptRatio is the share of target-script letters over all
// runes as computed by the caller; a negative value means the target
// language is unknown and the ratio check is skipped. minRatio <= 0 selects
// the 0.25 default. The check is advisory: it never evaluates content, only
// shape.
func IsLowQuality(cleaned string, scriptRatio, minRatio float64) bool {
	if minRatio <= 0 {
		minRatio = 0.25
	}

	runes := []rune(strings.TrimSpace(cleaned))
	if len(runes) < 4 {
		return true
	}

	letters := 0
	distinct := make(map[rune]bool, len(runes))
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
		}
		distinct[r] = true
	}
	if len(runes) >= 10 && letters == 0 {
		return true
	}
	if len(runes) >= 8 && len(distinct) < 3 {
		return true
	}
	if scriptRatio >= 0 && scriptRatio < minRatio {
		return true
	}
	return false
}

// mapTokens rewrites text word by word, preserving line breaks. Each
// whitespace-separated token is split into surrounding punctuation and a
// letter core; fn may rewrite the core or drop the token entirely.
func mapTokens(text string, fn func(core string) (string, bool)) string {
	lines := strings.Split(text, "\n")
	for li, line := range lines {
		fields := strings.Fields(line)
		out := fields[:0]
		for _, tok := range fields {
			lead, core, tail := splitToken(tok)
			if core == "" {
				out = append(out, tok)
				continue
			}
			repl, keep := fn(core)
			if !keep {
				continue
			}
			out = append(out, lead+repl+tail)
		}
		lines[li] = strings.Join(out, " ")
	}
	return strings.Join(lines, "\n")
}

func splitToken(tok string) (lead, core, tail string) {
	runes := []rune(tok)
	start := 0
	for start < len(runes) && !isCoreRune(runes[start]) {
		start++
	}
	end := len(runes)
	for end > start && !isCoreRune(runes[end-1]) {
		end--
	}
	return string(runes[:start]), string(runes[start:end]), string(runes[end:])
}

func isCoreRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
}

func matchCapitalization(src, repl string) string {
	sr := []rune(src)
	rr := []rune(repl)
	if len(sr) == 0 || len(rr) == 0 || !unicode.IsUpper(sr[0]) {
		return repl
	}
	rr[0] = unicode.ToUpper(rr[0])
	return string(rr)
}

// limitSentences drops repeated sentences and truncates to the cap.
// Sentences are compared by their punctuation-stripped, case-folded form.
func limitSentences(text string, maxSentences int) string {
	sentences := splitSentences(text)
	seen := make(map[string]bool, len(sentences))
	kept := make([]string, 0, len(sentences))
	for _, s := range sentences {
		key := strings.ToLower(nonLetterKeyRE.ReplaceAllString(s, ""))
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, s)
		if len(kept) >= maxSentences {
			break
		}
	}
	return strings.Join(kept, " ")
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if !isTerminator(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminator(runes[i+1]) {
			i++
			b.WriteRune(runes[i])
		}
		if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
