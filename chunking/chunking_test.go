package chunking

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain sentences",
			text: "First sentence. Second sentence! Third one?",
			want: []string{"First sentence.", "Second sentence!", "Third one?"},
		},
		{
			name: "closing quote after terminator",
			text: `He said "stop." Then he left.`,
			want: []string{`He said "stop."`, "Then he left."},
		},
		{
			name: "newlines between sentences",
			text: "One.\nTwo.\n\nThree.",
			want: []string{"One.", "Two.", "Three."},
		},
		{
			name: "no terminal punctuation",
			text: "just a fragment",
			want: []string{"just a fragment"},
		},
		{
			name: "whitespace only",
			text: "   \n\t  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf strings.Builder
	if err := WriteCSV(&buf, []string{"plain", `has "quotes"`, "has, comma"}); err != nil {
		t.Fatalf("writing csv: %v", err)
	}

	want := "sentence\nplain\n\"has \"\"quotes\"\"\"\n\"has, comma\"\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
