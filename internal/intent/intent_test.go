package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	k := NewKeywords()
	tests := []struct {
		name string
		text string
		want Result
	}{
		{"plain yes", "Yes", Result{Affirmative: true}},
		{"ready phrase", "I'm ready to go", Result{Affirmative: true}},
		{"full day", "Got a full day today", Result{Affirmative: true}},
		{"digits count as yes", "about 3 hours", Result{Affirmative: true}},
		{"plain no", "no", Result{Negative: true}},
		{"cant", "I can't right now", Result{Negative: true}},
		{"curly apostrophe", "I can’t today", Result{Negative: true}},
		{"not today", "Not today, sorry", Result{Negative: true}},
		{"tie resolves yes", "no wait, yes", Result{Affirmative: true}},
		{"neither resolves yes", "I need pricing approval", Result{Affirmative: true, Ambiguous: true}},
		{"empty resolves yes", "", Result{Affirmative: true, Ambiguous: true}},
		{"no inside word ignored", "I know the numbers", Result{Affirmative: true, Ambiguous: true}},
		{"help flag", "I'm stuck on comps", Result{Affirmative: true, Ambiguous: true, HelpNeeded: true}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, k.Classify(tt.text, Hints{}))
		})
	}
}

func TestClassifyHints(t *testing.T) {
	t.Parallel()

	k := NewKeywords()
	hints := Hints{Negative: []string{"nothing", "i'm good", "all good"}}

	got := k.Classify("nothing, I'm good", hints)
	assert.True(t, got.Negative)
	assert.False(t, got.Affirmative)

	got = k.Classify("nothing, I'm good", Hints{})
	assert.True(t, got.Affirmative)
	assert.True(t, got.Ambiguous)
}

func TestClassifyIsExclusive(t *testing.T) {
	t.Parallel()

	k := NewKeywords()
	for _, text := range []string{"yes", "no", "maybe", "no 2", "help", "nope nope"} {
		got := k.Classify(text, Hints{})
		assert.NotEqual(t, got.Affirmative, got.Negative, text)
	}
}

func TestMatchAny(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchAny("Let's GO", "go"))
	assert.False(t, MatchAny("good morning", "go"))
	assert.True(t, MatchAny("start the deals", "begin", "deal", "deals"))
	assert.True(t, MatchAny("call agents", "call"))
	assert.False(t, MatchAny("anything", "no", "thing"))
	assert.False(t, MatchAny("anything"))
}

func TestCommand(t *testing.T) {
	t.Parallel()

	assert.True(t, Command("  Next ", "next", "n"))
	assert.True(t, Command("n", "next", "n"))
	assert.True(t, Command("next!", "next", "n"))
	assert.False(t, Command("next one please", "next", "n"))
	assert.False(t, Command("no", "next", "n"))
}
