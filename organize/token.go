package organize

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the byte-length heuristic used when no exact
// tokenizer exists for the model.
const charsPerToken = 4

// TruncateToBudget trims text so its token count fits the budget.
// Exact tokenizer counting is used when the model is known to
// tiktoken; otherwise a byte-length heuristic at 0.9× target applies.
func TruncateToBudget(text, model string, budget int) string {
	if budget <= 0 || text == "" {
		return text
	}

	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= budget {
			return text
		}
		out := enc.Decode(tokens[:budget])
		sub("token").Debug("truncated exactly", "model", model, "tokens", len(tokens), "budget", budget)
		return out
	}

	// Heuristic fallback: stay 10% under the byte estimate.
	maxBytes := int(float64(budget) * charsPerToken * 0.9)
	if len(text) <= maxBytes {
		return text
	}
	out := text[:maxBytes]
	// Do not cut a UTF-8 sequence in half: drop bytes until the text
	// ends on a rune boundary.
	for len(out) > 0 {
		if r, size := utf8.DecodeLastRuneInString(out); r != utf8.RuneError || size > 1 {
			break
		}
		out = out[:len(out)-1]
	}
	sub("token").Debug("truncated heuristically", "model", model, "bytes", len(text), "kept", len(out))
	return out
}

// tokenCount estimates the token count of text for the given model.
func tokenCount(text, model string) int {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / charsPerToken
}
