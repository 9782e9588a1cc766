package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedSplits feeds doc to a fresh extractor in chunks of n bytes and returns
// the concatenated deltas.
func feedSplits(t *testing.T, doc string, n int) string {
	t.Helper()
	ex := New("current_situation")
	var got string
	for i := 0; i < len(doc); i += n {
		end := i + n
		if end > len(doc) {
			end = len(doc)
		}
		got += ex.Feed(doc[i:end])
	}
	assert.Equal(t, doc, ex.Raw())
	assert.Equal(t, got, ex.Value())
	return got
}

// fieldValue decodes doc as JSON and returns the target field, as ground
// truth for what the extractor must reassemble.
func fieldValue(t *testing.T, doc string) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	v, ok := m["current_situation"].(string)
	require.True(t, ok)
	return v
}

func TestFragmentationInvariance(t *testing.T) {
	docs := []string{
		`{"day": 1, "current_situation": "A plain morning.", "options": ["wait"]}`,
		`{"current_situation": "Quotes \"inside\" and a\nline break\tplus tab."}`,
		`{"before": "noise", "current_situation": "Unicode: é ☃ café", "after": 2}`,
		`{"current_situation": "Astral: 😀 and raw emoji 😀 and 雪 falls."}`,
		`{"current_situation": "Backslash \\\\ and solidus \/ survive."}`,
		`{"current_situation": ""}`,
		"{\n  \"day\": 3,\n  \"current_situation\" :  \"Spaced colon and quote.\"\n}",
	}
	for _, doc := range docs {
		want := fieldValue(t, doc)
		for _, n := range []int{1, 2, 3, 5, 7, len(doc)} {
			got := feedSplits(t, doc, n)
			assert.Equal(t, want, got, "doc %q split every %d bytes", doc, n)
		}
	}
}

func TestThreeFragmentScenario(t *testing.T) {
	ex := New("current_situation")

	d1 := ex.Feed(`{"day": 3, "time": "dawn", "current_situ`)
	assert.Empty(t, d1)
	assert.False(t, ex.Found())

	d2 := ex.Feed(`ation": "Hello \"wor`)
	d3 := ex.Feed(`ld\"!", "options": []}`)
	assert.Equal(t, `Hello "world"!`, d2+d3)
	assert.True(t, ex.Done())
}

func TestDeltasStopAfterClosingQuote(t *testing.T) {
	ex := New("current_situation")
	delta := ex.Feed(`{"current_situation": "done."`)
	assert.Equal(t, "done.", delta)

	assert.Empty(t, ex.Feed(`, "options": ["a", "b"]}`))
	assert.Equal(t, `{"current_situation": "done.", "options": ["a", "b"]}`, ex.Raw())
	assert.Equal(t, "done.", ex.Value())
}

func TestKeyAbsent(t *testing.T) {
	ex := New("current_situation")
	doc := `{"day": 9, "options": ["north", "south"]}`
	assert.Empty(t, ex.Feed(doc))
	assert.False(t, ex.Found())
	assert.False(t, ex.Done())
	assert.Equal(t, doc, ex.Raw())
}

func TestEscapeSplitAcrossFragments(t *testing.T) {
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": "line\`)
	got += ex.Feed(`nnext"}`)
	assert.Equal(t, "line\nnext", got)
}

func TestUnicodeEscapeSplitAcrossFragments(t *testing.T) {
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": "caf\u0`)
	// The incomplete escape is held back; the text before it is not.
	assert.Equal(t, "caf", got)
	got += ex.Feed(`0e9!"}`)
	assert.Equal(t, "café!", got)
}

func TestSurrogatePairSplitBetweenHalves(t *testing.T) {
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": "smile \ud83d`)
	got += ex.Feed(`\ude00 end"}`)
	assert.Equal(t, "smile 😀 end", got)
}

func TestRuneSplitMidByte(t *testing.T) {
	// The snowman is three UTF-8 bytes; feed them one at a time.
	doc := `{"current_situation": "snow ☃ falls"}`
	got := feedSplits(t, doc, 1)
	assert.Equal(t, "snow ☃ falls", got)
}

func TestUnpairedHighSurrogate(t *testing.T) {
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": "bad \ud83d end"}`)
	assert.Equal(t, "bad � end", got)
	assert.True(t, ex.Done())
}

func TestInvalidUnicodeEscapeFallsBackToRawText(t *testing.T) {
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": "x\uZZy"}`)
	// The escape is undecodable; its raw text passes through and the value
	// still terminates on the real closing quote.
	assert.Equal(t, `x\uZZy`, got)
	assert.True(t, ex.Done())
}

func TestUnknownEscapePassesThrough(t *testing.T) {
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": "odd \q here"}`)
	assert.Equal(t, `odd \q here`, got)
}

func TestKeySplitAcrossManyFragments(t *testing.T) {
	doc := `{"current_situation": "split key"}`
	for n := 1; n <= 4; n++ {
		assert.Equal(t, "split key", feedSplits(t, doc, n))
	}
}

func TestLookalikeKeyInOtherPosition(t *testing.T) {
	// A non-string value after the key must not start extraction.
	ex := New("current_situation")
	got := ex.Feed(`{"current_situation": 7, "current_situation": "real"}`)
	assert.Equal(t, "real", got)
}
