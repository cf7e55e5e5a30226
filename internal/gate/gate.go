// Package gate rejects degenerate answers before they reach the scoring service.
package gate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Reason says why an answer was rejected.
type Reason int

const (
	Accepted Reason = iota
	TooShort
	RepeatedChars
	KeyboardMash
	NoWords
	TooManyDigits
	TooManySymbols
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case TooShort:
		return "too_short"
	case RepeatedChars:
		return "repeated_chars"
	case KeyboardMash:
		return "keyboard_mash"
	case NoWords:
		return "no_words"
	case TooManyDigits:
		return "too_many_digits"
	case TooManySymbols:
		return "too_many_symbols"
	}
	return "unknown"
}

// Result is the gate's verdict. Message is shown to the candidate on rejection.
type Result struct {
	Accepted bool
	Reason   Reason
	Message  string
}

var messages = map[Reason]string{
	TooShort:       "Please provide an answer before submitting.",
	RepeatedChars:  "That answer looks like repeated characters, so I'll treat this question as skipped.",
	KeyboardMash:   "That answer looks like random keystrokes, so I'll treat this question as skipped.",
	NoWords:        "I couldn't find any words in that answer, so I'll treat this question as skipped.",
	TooManyDigits:  "That answer is mostly digits without context, so I'll treat this question as skipped.",
	TooManySymbols: "That answer is mostly symbols, so I'll treat this question as skipped.",
}

func reject(r Reason) Result { return Result{Reason: r, Message: messages[r]} }

var accept = Result{Accepted: true, Reason: Accepted}

const (
	minLength          = 2
	repeatRun          = 5
	mashRun            = 10
	mashContextLength  = 15
	minMeaningfulShare = 0.4
	maxDigitShare      = 0.5
	maxSymbolShare     = 0.5
)

var (
	numericPattern = regexp.MustCompile(`^[-+]?\d+(?:[.,]\d+)*$`)
	// Digits with a currency, percentage or unit next to them.
	unitPattern = regexp.MustCompile(`(?i)[$€£¥₹]\s?\d|\d\s?(?:%|°|percent|dollars?|rupees?|euros?|pounds?|years?|yrs?|months?|weeks?|days?|hours?|hrs?|minutes?|mins?|seconds?|secs?|ms|km|kms|kilometers?|miles?|meters?|metres?|cm|mm|kg|kgs|grams?|g|lbs?|mb|gb|tb|kb|x)\b`)
)

// meaningfulSymbols legitimize an answer on their own.
const meaningfulSymbols = "$€£¥₹%°"

// punctuation that counts as ordinary prose.
const prosePunctuation = ".,!?;:'\"-()/&"

var commonShortAnswers = map[string]bool{
	"yes": true, "no": true, "yeah": true, "yep": true, "nope": true, "ok": true, "okay": true,
	"sure": true, "true": true, "false": true, "maybe": true, "none": true, "both": true,
	"go": true, "java": true, "python": true, "rust": true, "sql": true, "git": true,
	"aws": true, "gcp": true, "linux": true, "react": true, "node": true, "html": true, "css": true,
	"math": true, "maths": true, "physics": true, "chemistry": true, "biology": true, "english": true,
	"history": true, "o(1)": true, "o(n)": true, "o(log n)": true, "o(n^2)": true,
}

// Check applies the rules in order; the first one that matches decides.
func Check(answer string) Result {
	a := strings.TrimSpace(answer)
	n := utf8.RuneCountInString(a)

	if n < minLength {
		return reject(TooShort)
	}
	if numericPattern.MatchString(a) || commonShortAnswers[strings.ToLower(a)] {
		return accept
	}
	if strings.ContainsAny(a, meaningfulSymbols) {
		return accept
	}

	hasDigit := strings.IndexFunc(a, unicode.IsDigit) >= 0

	if n > repeatRun && longestRepeat(a) >= repeatRun {
		return reject(RepeatedChars)
	}
	if !hasDigit {
		if start, end := longestKeyboardRun(a); end-start >= mashRun && n-(end-start) < mashContextLength {
			return reject(KeyboardMash)
		}
	}

	var meaningful, digits, symbols, spaces int
	for _, r := range a {
		switch {
		case unicode.IsDigit(r):
			digits++
			meaningful++
		case unicode.IsSpace(r):
			spaces++
			meaningful++
		case unicode.IsLetter(r):
			meaningful++
		case strings.ContainsRune(prosePunctuation, r):
			meaningful++
		default:
			symbols++
		}
	}
	total := float64(n)
	if float64(meaningful)/total < minMeaningfulShare {
		return reject(NoWords)
	}
	// Spaces between numbers do not dilute the digit share.
	if n < mashContextLength && float64(digits)/float64(n-spaces) >= maxDigitShare && !unitPattern.MatchString(a) {
		return reject(TooManyDigits)
	}
	if float64(symbols)/total > maxSymbolShare {
		return reject(TooManySymbols)
	}
	return accept
}

// longestRepeat returns the longest run of one repeated character.
func longestRepeat(s string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if unicode.ToLower(r) == prev {
			run++
		} else {
			prev, run = unicode.ToLower(r), 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

var keyboardRows = []string{"qwertyuiop", "asdfghjkl", "zxcvbnm"}

type keyPos struct{ row, col int }

var keyboard = func() map[rune]keyPos {
	m := map[rune]keyPos{}
	for ri, row := range keyboardRows {
		for ci, r := range row {
			m[r] = keyPos{ri, ci}
		}
	}
	return m
}()

// adjacentKeys reports whether b sits next to a on the same QWERTY row, or
// starts the next row right after a ends one.
func adjacentKeys(a, b rune) bool {
	pa, okA := keyboard[a]
	pb, okB := keyboard[b]
	if !okA || !okB {
		return false
	}
	if pa.row == pb.row {
		return pa.col-pb.col == 1 || pb.col-pa.col == 1
	}
	return pb.row == pa.row+1 && pa.col == len(keyboardRows[pa.row])-1 && pb.col == 0
}

// longestKeyboardRun finds the longest stretch of letters typed by sliding
// along keyboard rows, returned as a rune range.
func longestKeyboardRun(s string) (int, int) {
	rs := []rune(strings.ToLower(s))
	bestStart, bestEnd := 0, 0
	start := 0
	for i := range rs {
		if i > 0 && adjacentKeys(rs[i-1], rs[i]) {
			if i+1-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i+1
			}
			continue
		}
		start = i
	}
	return bestStart, bestEnd
}
