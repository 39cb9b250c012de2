package organize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreText_Failed(t *testing.T) {
	assert.Equal(t, QualityFailed, ScoreText(""))
	assert.Equal(t, QualityFailed, ScoreText("   \n\t "))
	assert.Equal(t, QualityFailed, ScoreText("ab cd ef"))
}

func TestScoreText_Excellent(t *testing.T) {
	text := strings.Repeat("The quarterly report covers revenue. ", 20)
	assert.Equal(t, QualityExcellent, ScoreText(text))
}

func TestScoreText_Good(t *testing.T) {
	text := "This invoice covers all of the consulting work performed during March " +
		"including the travel costs and materials for the client site visit."
	assert.Equal(t, QualityGood, ScoreText(text))
}

func TestScoreText_Fair(t *testing.T) {
	// ≥10 words, ≥50 chars, but no sentence terminator.
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet"
	assert.Equal(t, QualityFair, ScoreText(text))
}

func TestScoreText_Poor_Short(t *testing.T) {
	assert.Equal(t, QualityPoor, ScoreText("meeting notes"))
}

func TestScoreText_Poor_ReplacementChars(t *testing.T) {
	text := strings.Repeat("valid words here ", 20) + strings.Repeat("�", 10)
	assert.Equal(t, QualityPoor, ScoreText(text))
}

func TestScoreText_Poor_BinaryNoise(t *testing.T) {
	text := "some text " + strings.Repeat("\x01\x02\x03", 20)
	assert.Equal(t, QualityPoor, ScoreText(text))
}

func TestScoreText_OversizeNotExcellent(t *testing.T) {
	text := strings.Repeat("Words and more words in sentences. ", 2000)
	got := ScoreText(text)
	assert.NotEqual(t, QualityExcellent, got)
	assert.Equal(t, QualityGood, got)
}

func TestQuality_Downgrade(t *testing.T) {
	assert.Equal(t, QualityGood, QualityExcellent.downgrade())
	assert.Equal(t, QualityFair, QualityGood.downgrade())
	assert.Equal(t, QualityPoor, QualityFair.downgrade())
	assert.Equal(t, QualityFailed, QualityPoor.downgrade())
	assert.Equal(t, QualityFailed, QualityFailed.downgrade())
}
