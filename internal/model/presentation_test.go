package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	assert.Equal(t, LanguageSpanish, ParseLanguage(" ES "))
	assert.Equal(t, LanguageCatalan, ParseLanguage("ca"))
	assert.Equal(t, LanguageCatalan, ParseLanguage("fr"))
	assert.Equal(t, "SPANISH", LanguageSpanish.DisplayName())
	assert.Equal(t, "CATALAN", LanguageCatalan.DisplayName())
}

func TestNewPresentationID_SortsByTime(t *testing.T) {
	early := NewPresentationID(time.Date(2024, 1, 2, 9, 0, 0, 5e6, time.UTC))
	late := NewPresentationID(time.Date(2024, 1, 10, 8, 0, 0, 0, time.FixedZone("CET", 3600)))

	assert.Equal(t, "2024-01-02T09:00:00.005Z", early)
	assert.Equal(t, "2024-01-10T07:00:00.000Z", late)
	assert.Less(t, early, late)
}

func TestNewShellAndClone(t *testing.T) {
	drafts := []SlideDraft{
		{Title: "Un", Content: "u", ImagePrompt: "one"},
		{Title: "Dos", Content: "d", ImagePrompt: "two"},
	}
	p := NewShell("id", "tema", Styles[0], LanguageCatalan, drafts)
	require.Len(t, p.Slides, 2)
	assert.Equal(t, 2, p.MissingImages())
	assert.Equal(t, "Dos", p.Slides[1].Title)

	cp := p.Clone()
	cp.Slides[0].ImageURL = "data:image/png;base64,AA=="
	assert.False(t, p.Slides[0].HasImage())
	assert.Equal(t, 1, cp.MissingImages())

	var nilP *Presentation
	assert.Nil(t, nilP.Clone())
}

func TestDataURL(t *testing.T) {
	u := EncodeDataURL("image/jpeg", []byte{0xff, 0xd8, 0xff})
	assert.Equal(t, "data:image/jpeg;base64,/9j/", u)

	data, mime, err := DecodeDataURL(u)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	for _, bad := range []string{"", "http://x/y.png", "data:image/png,raw", "data:image/png;base64", "data:image/png;base64,%%%"} {
		_, _, err := DecodeDataURL(bad)
		assert.ErrorIs(t, err, ErrInvalidDataURL, bad)
	}
}

func TestFindStyle(t *testing.T) {
	s, ok := FindStyle("  fotografia realista ")
	require.True(t, ok)
	assert.Equal(t, "Fotografia Realista", s.Name)
	assert.Contains(t, s.Prompt, "DSLR")

	_, ok = FindStyle("Cubisme")
	assert.False(t, ok)
	assert.Len(t, Styles, 10)
}

func TestFindAgeBand(t *testing.T) {
	young := FindAgeBand("6-8")
	assert.Equal(t, 5, young.MinSlides)
	assert.Equal(t, 6, young.MaxSlides)

	assert.Equal(t, DefaultAgeBand, FindAgeBand("").Name)
	assert.Equal(t, DefaultAgeBand, FindAgeBand("13-16").Name)
}
