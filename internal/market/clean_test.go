package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain name", input: "Fire Shard", want: "Fire Shard"},
		{name: "icon prefix", input: "HIFire Shard", want: "Fire Shard"},
		{name: "icon suffix", input: "Fire ShardIH", want: "Fire Shard"},
		{name: "both artifacts", input: "HIFire ShardIH", want: "Fire Shard"},
		{name: "punctuation stripped", input: "Rarefied Annite+", want: "Rarefied Annite"},
		{name: "glyph runes stripped", input: "Grade 8 Tincture", want: "Grade 8 Tincture"},
		{name: "surrounding whitespace", input: "  Copper Ore  ", want: "Copper Ore"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
		{name: "lowercase hi suffix kept", input: "Fire Shardhi", want: "Fire Shardhi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDisplayName(tt.input))
		})
	}
}

func TestCleanDisplayNameIdempotent(t *testing.T) {
	names := []string{
		"Fire Shard",
		"HIFire ShardIH",
		"Rarefied Annite+",
		"Grade 8 Tincture of Strength",
		"  Copper Ore  ",
		"",
	}

	for _, name := range names {
		once := CleanDisplayName(name)
		assert.Equal(t, once, CleanDisplayName(once), "cleaning %q twice changed the result", name)
	}
}

func TestParseDigits(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{input: "1,234", want: 1234, wantOK: true},
		{input: "95 gil", want: 95, wantOK: true},
		{input: "1,234,567", want: 1234567, wantOK: true},
		{input: "42", want: 42, wantOK: true},
		{input: "", wantOK: false},
		{input: "gil", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := parseDigits(tt.input)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.input)
		if tt.wantOK {
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		}
	}
}
