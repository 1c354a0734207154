package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		stopwords bool
		want      string
	}{
		{"collapses whitespace", "a  b\n\n c", false, "a b c"},
		{"strips symbols", "price: $100 #tag", false, "price: 100 tag"},
		{"keeps punctuation", "Hello, world! (really?)", false, "Hello, world! (really?)"},
		{"drops stopwords", "The cat is on the mat", true, "cat mat"},
		{"keeps cyrillic", "Привет мир", false, "Привет мир"},
		{"drops russian stopwords", "кот и собака", true, "кот собака"},
		{"empty", "   ", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in, tt.stopwords))
		})
	}
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "hello", Fingerprint("HELLO world", 5))
	assert.Equal(t, "short", Fingerprint("Short", 100))
	assert.Equal(t, "приве", Fingerprint("Привет", 5))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"go", "is", "fun", "v2"}, Tokenize("Go is fun! a v2"))
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"install", "docker", "linux"}, Terms("How do I install Docker on Linux? Install docker."))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("The"))
	assert.True(t, IsStopword("and,"))
	assert.False(t, IsStopword("kubernetes"))
}
