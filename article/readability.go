package article

import "strings"

// Readability returns the Flesch reading-ease score of the article text.
// Higher is easier; typical web copy lands between 50 and 70. Syllables are
// estimated by vowel-group counting, which is stable and deterministic even
// where it is linguistically approximate.
func (a *Article) Readability() float64 {
	text := a.Text()
	words := strings.Fields(text)
	sentences := SplitSentences(text)
	if len(words) == 0 || len(sentences) == 0 {
		return 0
	}

	syllables := 0
	for _, w := range words {
		syllables += syllableCount(w)
	}

	wordsPerSentence := float64(len(words)) / float64(len(sentences))
	syllablesPerWord := float64(syllables) / float64(len(words))
	return 206.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord
}

func syllableCount(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	// Trailing silent e.
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
