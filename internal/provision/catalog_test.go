package provision

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/limimin/internal/stamp"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>Stamps</title></head>
<body>
  <img src="https://static.wikia.nocookie.net/unisonleague/images/a/ab/Stamp_026_Icon.png/revision/latest/scale-to-width-down/80?cb=1" data-image-key="Stamp_026_Icon.png">
  <img src="data:image/gif;base64,R0lGODlhAQABAIABAAAAAP" data-src="/images/Stamp_027_Icon.png/scale-to-width-down/80" data-image-key="Stamp_027_Icon.png">
  <img src="//cdn.example.org/Stamp_028_Icon.png" data-image-key="Stamp_028_Icon.png">
  <img src="/first/Stamp_029_Icon.png" data-image-key="Stamp_029_Icon.png">
  <img src="/second/Stamp_029_Icon.png" data-image-key="Stamp_029_Icon.png">
  <img src="/no-key.png">
  <img data-image-key="Stamp_030_Icon.png">
</body></html>`

func parseSample(t *testing.T) Catalog {
	t.Helper()
	base, err := url.Parse("http://wiki.example.org/wiki/Stamps")
	require.NoError(t, err)

	cat, err := ParseCatalog(strings.NewReader(samplePage), base)
	require.NoError(t, err)
	return cat
}

func TestParseCatalog(t *testing.T) {
	cat := parseSample(t)

	assert.Equal(t,
		"https://static.wikia.nocookie.net/unisonleague/images/a/ab/Stamp_026_Icon.png/revision/latest/scale-to-width-down/80?cb=1",
		cat["Stamp_026_Icon.png"])

	// lazy-loaded placeholder falls back to data-src, resolved against the page
	assert.Equal(t, "http://wiki.example.org/images/Stamp_027_Icon.png/scale-to-width-down/80", cat["Stamp_027_Icon.png"])

	// protocol-relative URLs inherit the page scheme
	assert.Equal(t, "http://cdn.example.org/Stamp_028_Icon.png", cat["Stamp_028_Icon.png"])

	// first image wins
	assert.Equal(t, "http://wiki.example.org/first/Stamp_029_Icon.png", cat["Stamp_029_Icon.png"])

	// no usable source
	_, ok := cat["Stamp_030_Icon.png"]
	assert.False(t, ok)

	assert.Len(t, cat, 4)
}

func TestCatalogImageURL(t *testing.T) {
	cat := parseSample(t)

	small, err := cat.ImageURL("Stamp_026_Icon.png", stamp.Small)
	require.NoError(t, err)
	assert.Contains(t, small, "/scale-to-width-down/80")

	large, err := cat.ImageURL("Stamp_026_Icon.png", stamp.Large)
	require.NoError(t, err)
	assert.Equal(t,
		"https://static.wikia.nocookie.net/unisonleague/images/a/ab/Stamp_026_Icon.png/revision/latest?cb=1",
		large)

	_, err = cat.ImageURL("Stamp_031_Icon.png", stamp.Small)
	assert.Error(t, err)
}

func TestParseCatalog_EmptyPage(t *testing.T) {
	cat, err := ParseCatalog(strings.NewReader(""), nil)
	require.NoError(t, err)
	assert.Empty(t, cat)
}
