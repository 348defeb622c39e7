// Package sentiment scores text on a VADER-style compound scale in [-1, 1].
// It is a cheap pre-filter: posts that do not read negative enough never
// reach the LLM classifier.
package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// valence holds the base lexicon. Scores follow the VADER convention of
// roughly [-4, 4] per token before normalization. The word list is biased
// toward the vocabulary of frustrated technical posts.
var valence = map[string]float64{
	// negative
	"angry": -2.3, "annoyed": -1.8, "annoying": -1.9, "awful": -2.9,
	"bad": -2.5, "broke": -1.6, "broken": -2.1, "bug": -1.4, "buggy": -1.9,
	"confused": -1.3, "confusing": -1.6, "crash": -2.0, "crashes": -2.0,
	"crashing": -2.0, "desperate": -2.4, "difficult": -1.5, "disappointed": -2.1,
	"disaster": -3.1, "error": -1.4, "errors": -1.4, "fail": -2.3,
	"failed": -2.3, "failing": -2.3, "fails": -2.3, "failure": -2.4,
	"frustrated": -2.4, "frustrating": -2.4, "frustration": -2.3,
	"garbage": -2.5, "hard": -1.2, "hate": -2.7, "helpless": -2.1,
	"horrible": -2.8, "hopeless": -2.5, "impossible": -2.0, "issue": -1.1,
	"issues": -1.1, "lost": -1.3, "mess": -1.9, "miserable": -2.6,
	"nightmare": -2.8, "overwhelmed": -1.9, "pain": -2.0, "painful": -2.1,
	"problem": -1.4, "problems": -1.4, "sick": -1.8, "slow": -1.2,
	"struggle": -1.9, "struggling": -2.0, "stuck": -1.7, "stupid": -2.2,
	"terrible": -2.9, "tired": -1.4, "ugh": -1.7, "unusable": -2.4,
	"useless": -2.3, "waste": -2.0, "wasted": -2.1, "worst": -3.1,
	"wrong": -1.6, "wtf": -2.4,

	// positive
	"amazing": 2.8, "awesome": 3.1, "best": 3.2, "better": 1.9,
	"easy": 1.9, "excellent": 2.7, "fantastic": 2.6, "fast": 1.3,
	"fixed": 1.6, "glad": 2.0, "good": 1.9, "great": 3.1, "happy": 2.7,
	"helpful": 1.8, "like": 1.5, "love": 3.2, "nice": 1.8, "perfect": 2.7,
	"reliable": 1.9, "smooth": 1.5, "solid": 1.5, "solved": 1.7,
	"thanks": 1.9, "wonderful": 2.7, "works": 1.4,
}

// negations invert the valence of the following sentiment token.
var negations = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true, "nor": true,
	"cannot": true, "cant": true, "can't": true, "dont": true, "don't": true,
	"doesnt": true, "doesn't": true, "didnt": true, "didn't": true,
	"wont": true, "won't": true, "isnt": true, "isn't": true,
	"wasnt": true, "wasn't": true, "without": true, "nothing": true,
}

// boosters shift the magnitude of the following sentiment token.
var boosters = map[string]float64{
	"absolutely": 0.293, "completely": 0.293, "extremely": 0.293,
	"incredibly": 0.293, "really": 0.267, "so": 0.293, "totally": 0.267,
	"utterly": 0.293, "very": 0.293,
	"barely": -0.293, "hardly": -0.293, "kinda": -0.293,
	"slightly": -0.293, "somewhat": -0.293,
}

const (
	negationScalar  = -0.74
	capsEmphasis    = 0.733
	exclamEmphasis  = 0.292
	maxExclamations = 4
	normalizationK  = 15.0
)

// Score returns the compound sentiment of text in [-1, 1]. Zero means
// neutral or empty input.
func Score(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var sum float64
	for i, tok := range tokens {
		v, ok := valence[tok.word]
		if !ok {
			continue
		}
		if tok.caps {
			if v > 0 {
				v += capsEmphasis
			} else {
				v -= capsEmphasis
			}
		}
		// Look back up to three tokens for boosters and negations, the
		// nearer the stronger.
		for dist := 1; dist <= 3 && i-dist >= 0; dist++ {
			prev := tokens[i-dist].word
			if b, ok := boosters[prev]; ok {
				scaled := b
				if dist == 2 {
					scaled *= 0.95
				} else if dist == 3 {
					scaled *= 0.9
				}
				if v > 0 {
					v += scaled
				} else {
					v -= scaled
				}
			}
			if negations[prev] {
				v *= negationScalar
			}
		}
		sum += v
	}
	if sum == 0 {
		return 0
	}

	// Trailing exclamation marks amplify whichever direction the text leans.
	excl := countExclamations(text)
	amp := float64(excl) * exclamEmphasis
	if sum > 0 {
		sum += amp
	} else {
		sum -= amp
	}

	return clamp(sum / math.Sqrt(sum*sum+normalizationK))
}

// Passes reports whether a compound score reads negative enough to
// warrant LLM classification. Lower scores are more negative.
func Passes(score, threshold float64) bool {
	return score <= threshold
}

type token struct {
	word string
	caps bool
}

func tokenize(text string) []token {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		caps := len(f) > 1 && f == strings.ToUpper(f) && f != strings.ToLower(f)
		tokens = append(tokens, token{word: strings.ToLower(f), caps: caps})
	}
	return tokens
}

func countExclamations(text string) int {
	n := strings.Count(text, "!")
	if n > maxExclamations {
		return maxExclamations
	}
	return n
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
