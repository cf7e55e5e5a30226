package tts

import (
	"regexp"
	"strings"
)

// Pause markers use the SSML break tag understood by ElevenLabs.
const (
	shortBreak = `<break time="200ms"/>`
	longBreak  = `<break time="400ms"/>`
)

var (
	breakTag    = regexp.MustCompile(`\s*<break time="[0-9.]+m?s"\s*/>\s*`)
	spaces      = regexp.MustCompile(`\s+`)
	percent     = regexp.MustCompile(`(\d)\s*%`)
	currency    = regexp.MustCompile(`\$\s?(\d+(?:[.,]\d+)*)`)
	unitAmount  = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s?(km|kg|mb|gb|tb|kb|ms|mph|hrs|hr|mins|min|secs|sec|cm|mm)\b`)
	allCaps     = regexp.MustCompile(`\b[A-Z]{2,5}s?\b`)
	sentenceEnd = regexp.MustCompile(`([.?!])\s+`)
	clauseEnd   = regexp.MustCompile(`([,;:])\s+`)
)

var units = map[string]string{
	"km": "kilometers", "kg": "kilograms", "mb": "megabytes", "gb": "gigabytes",
	"tb": "terabytes", "kb": "kilobytes", "ms": "milliseconds", "mph": "miles per hour",
	"hrs": "hours", "hr": "hours", "mins": "minutes", "min": "minutes",
	"secs": "seconds", "sec": "seconds", "cm": "centimeters", "mm": "millimeters",
}

// Phrase replacements applied before anything else. Outputs contain no
// punctuation the pause pass would react to, which keeps the whole
// transformation idempotent.
var phrases = strings.NewReplacer(
	"e.g.", "for example",
	"i.e.", "that is",
	"etc.", "et cetera",
	"vs.", "versus",
	"approx.", "approximately",
	"C++", "C plus plus",
	"C#", "C sharp",
	".NET", " dot net",
	"Node.js", "Node J S",
	" & ", " and ",
)

// Acronyms with a conventional spoken form; anything else in capitals is
// spelled out letter by letter.
var spokenAcronyms = map[string]string{
	"JSON": "jay son", "SQL": "sequel", "GUI": "gooey",
	"NASA": "NASA", "SCRUM": "scrum", "REST": "rest", "CRUD": "crud", "JIRA": "jira",
	"AJAX": "ajax", "LINQ": "link", "YAML": "yaml", "WASM": "wasm",
}

// PrepareForSpeech rewrites text for a speech engine: technical labels become
// pronounceable, units and abbreviations are expanded and pause markers are
// placed at punctuation. It is deterministic and idempotent.
func PrepareForSpeech(text string) string {
	t := breakTag.ReplaceAllString(text, " ")
	t = strings.TrimSpace(spaces.ReplaceAllString(t, " "))
	if t == "" {
		return ""
	}
	t = phrases.Replace(t)
	t = percent.ReplaceAllString(t, "$1 percent")
	t = currency.ReplaceAllString(t, "$1 dollars")
	t = unitAmount.ReplaceAllStringFunc(t, func(m string) string {
		sub := unitAmount.FindStringSubmatch(m)
		return sub[1] + " " + units[strings.ToLower(sub[2])]
	})
	t = allCaps.ReplaceAllStringFunc(t, spellAcronym)
	t = sentenceEnd.ReplaceAllString(t, "$1 "+longBreak+" ")
	t = clauseEnd.ReplaceAllString(t, "$1 "+shortBreak+" ")
	return strings.TrimSpace(spaces.ReplaceAllString(t, " "))
}

func spellAcronym(word string) string {
	if spoken, ok := spokenAcronyms[word]; ok {
		return spoken
	}
	plural := ""
	if strings.HasSuffix(word, "s") {
		word, plural = word[:len(word)-1], "s"
	}
	if spoken, ok := spokenAcronyms[word]; ok {
		return spoken + plural
	}
	letters := strings.Split(word, "")
	return strings.Join(letters, " ") + plural
}

// StripBreaks removes pause markers for engines that would read them aloud.
func StripBreaks(text string) string {
	t := breakTag.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(t, " "))
}
