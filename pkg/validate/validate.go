// Package validate decides whether a batch made things worse.
package validate

import (
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/probe"
)

// Verdict is the batch-level quality decision
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictOK
	VerdictRegressed
)

// String returns a string representation of Verdict
func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictRegressed:
		return "regressed"
	default:
		return "unknown"
	}
}

// Validate compares before/after issue counts. A probe failure after a known
// good baseline is suspicious, not neutral, and counts as a regression.
func Validate(before, after int) Verdict {
	if before == probe.UnknownTotal {
		return VerdictUnknown
	}
	if after == probe.UnknownTotal {
		return VerdictRegressed
	}
	if after > before {
		return VerdictRegressed
	}
	return VerdictOK
}

// pairs tracked by the corruption heuristic
var brackets = [][2]rune{
	{'{', '}'},
	{'(', ')'},
	{'[', ']'},
}

// CheckCorruption is a cheap structural sanity check on a rewrite: the
// open/close bracket deltas and backtick parity of the content must not
// change. It catches the classic corrupted-codemod failure where a regex
// eats a brace, without pretending to be a parser.
func CheckCorruption(before, after string) error {
	for _, pair := range brackets {
		beforeDelta := strings.Count(before, string(pair[0])) - strings.Count(before, string(pair[1]))
		afterDelta := strings.Count(after, string(pair[0])) - strings.Count(after, string(pair[1]))
		if beforeDelta != afterDelta {
			return errors.Errorf("bracket balance changed for %c%c: %d -> %d",
				pair[0], pair[1], beforeDelta, afterDelta)
		}
	}

	if strings.Count(before, "`")%2 != strings.Count(after, "`")%2 {
		return errors.Errorf("backtick parity changed")
	}

	return nil
}
