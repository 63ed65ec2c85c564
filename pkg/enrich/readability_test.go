package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReadablePrefersArticle(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>p{}</style></head>
	<body>
	<nav><p>Home | News | About</p></nav>
	<article>
		<p>The central   bank held rates
		steady on Tuesday.</p>
		<p>Officials cited cooling inflation.</p>
	</article>
	<footer><p>Copyright</p></footer>
	</body></html>`

	got := ExtractReadable(html)
	assert.Equal(t, "The central bank held rates steady on Tuesday.\n\nOfficials cited cooling inflation.", got)
}

func TestExtractReadableContentClasses(t *testing.T) {
	html := `<body>
	<div class="sidebar"><p>Trending now</p></div>
	<div class="article-body"><p>Quake hits the coast.</p></div>
	</body>`

	assert.Equal(t, "Quake hits the coast.", ExtractReadable(html))
}

func TestExtractReadableRoleMain(t *testing.T) {
	html := `<body><div role="main"><p>Main content here.</p></div><p>elsewhere</p></body>`
	assert.Equal(t, "Main content here.", ExtractReadable(html))
}

func TestExtractReadableFallbackParagraphs(t *testing.T) {
	html := `<body><div><p>First block.</p><p>Second block.</p></div></body>`
	assert.Equal(t, "First block.\n\nSecond block.", ExtractReadable(html))
}

func TestExtractReadableStripsScripts(t *testing.T) {
	html := `<body><article><p>Real text.</p><script>console.log("noise")</script></article></body>`
	assert.Equal(t, "Real text.", ExtractReadable(html))
}

func TestExtractReadableEmpty(t *testing.T) {
	assert.Empty(t, ExtractReadable(`<body><script>only()</script></body>`))
	assert.Empty(t, ExtractReadable(``))
}

func TestExtractReadableNoParagraphsUsesText(t *testing.T) {
	html := `<body><article>Bare text without paragraph tags.</article></body>`
	assert.Equal(t, "Bare text without paragraph tags.", ExtractReadable(html))
}
