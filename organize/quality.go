package organize

import (
	"strings"
	"unicode"
)

// ScoreText grades a text candidate. Deterministic, heuristic:
//
//	Excellent: ≥50 words, ≥3 sentence terminators, 200..50000 chars,
//	           low replacement-character ratio
//	Good:      ≥20 words and ≥1 terminator
//	Fair:      ≥10 words and ≥50 chars
//	Poor:      shorter, or noisy (>1% replacement chars or >10%
//	           non-alphanumeric/punctuation)
//	Failed:    <10 chars of substantive content
//
// OCR-derived text is downgraded one tier by the caller.
func ScoreText(text string) Quality {
	substantive := 0
	replacements := 0
	weird := 0
	runes := 0
	for _, r := range text {
		runes++
		if !unicode.IsSpace(r) {
			substantive++
		}
		if r == '�' {
			replacements++
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && !unicode.IsPunct(r) {
			weird++
		}
	}

	if substantive < 10 {
		return QualityFailed
	}

	noisy := false
	if runes > 0 {
		if float64(replacements)/float64(runes) > 0.01 {
			noisy = true
		}
		if float64(weird)/float64(runes) > 0.10 {
			noisy = true
		}
	}
	if noisy {
		return QualityPoor
	}

	words := len(strings.Fields(text))
	terminators := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	length := len(text)

	switch {
	case words >= 50 && terminators >= 3 && length >= 200 && length <= 50000:
		return QualityExcellent
	case words >= 20 && terminators >= 1:
		return QualityGood
	case words >= 10 && length >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}
