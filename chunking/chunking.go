// Package chunking is the thin text-chunking collaborator: it splits raw
// text into a flat list of sentences and writes them in the single-column
// CSV format the dataset loader expects. It is deliberately simple; the
// core pipeline only requires that sentence order is stable.
package chunking

import (
	"encoding/csv"
	"io"
	"regexp"
	"strings"
)

// sentenceEnd matches a terminator (with optional closing quote or
// bracket) followed by whitespace.
var sentenceEnd = regexp.MustCompile(`([.!?]["')\]]*)\s+`)

// SplitSentences splits text into sentences on terminal punctuation.
// Whitespace-only fragments are dropped.
func SplitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	var sentences []string
	for _, s := range strings.Split(marked, "\x00") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// WriteCSV writes sentences one per row with a "sentence" header.
func WriteCSV(w io.Writer, sentences []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sentence"}); err != nil {
		return err
	}
	for _, s := range sentences {
		if err := cw.Write([]string{s}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
