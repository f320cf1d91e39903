package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
)

func okFetch(body string) model.FetchResult {
	return model.FetchResult{
		URL:    "https://riverbendclay.com/about",
		Status: model.FetchOK,
		Body:   []byte(body),
	}
}

var contentPage = `<!DOCTYPE html>
<html><head><title>Riverbend Clay Supply — About</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "LocalBusiness",
  "name": "Riverbend Clay Supply",
  "telephone": "(406) 555-0142",
  "email": "orders@riverbendclay.com",
  "url": "https://riverbendclay.com",
  "priceRange": "$$",
  "address": {
    "@type": "PostalAddress",
    "streetAddress": "318 River Rd",
    "addressLocality": "Missoula",
    "addressRegion": "MT"
  }
}
</script>
</head><body>
<nav><a href="/">Home</a><a href="/shop">Shop</a><a href="/contact">Contact</a></nav>
<article>
<h1>About Riverbend Clay Supply</h1>
<p>` + strings.Repeat("Riverbend has supplied stoneware and earthenware clay bodies to studios across the Northwest since 1987. ", 15) + `</p>
<p>Visit our warehouse at 318 River Rd or call during business hours.</p>
</article>
<footer>© Riverbend Clay Supply</footer>
</body></html>`

func TestExtract_ContentPage(t *testing.T) {
	doc, err := Extract(okFetch(contentPage))
	require.NoError(t, err)

	assert.Equal(t, "Riverbend Clay Supply — About", doc.Title)
	assert.Equal(t, StrategyJSONLD, doc.Strategy, "structured data supplied the fields")
	assert.Contains(t, doc.CleanText, "stoneware and earthenware")
	assert.NotContains(t, doc.CleanText, "Home", "nav chrome must be stripped")

	assert.Equal(t, "Riverbend Clay Supply", doc.Fields[model.FieldName])
	assert.Equal(t, "(406) 555-0142", doc.Fields[model.FieldPhone])
	assert.Equal(t, "orders@riverbendclay.com", doc.Fields[model.FieldEmail])
	assert.Equal(t, "318 River Rd", doc.Fields[model.FieldAddress])
	assert.Equal(t, "Missoula", doc.Fields[model.FieldCity])
	assert.Equal(t, "MT", doc.Fields[model.FieldRegion])

	assert.GreaterOrEqual(t, doc.QualityScore, MinUsableQuality)
}

func TestExtract_JSONLDGraphAndArrays(t *testing.T) {
	page := `<html><head><title>x</title>
<script type="application/ld+json">
{"@graph":[{"@type":"WebSite","name":"ignored"},{"@type":["Thing","Organization"],"name":"Granite Peak Tooling","telephone":"406-555-0188"}]}
</script></head><body><p>hello</p></body></html>`

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, "Granite Peak Tooling", doc.Fields[model.FieldName])
	assert.Equal(t, "406-555-0188", doc.Fields[model.FieldPhone])
}

func TestExtract_MalformedJSONLDIsSkipped(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{"@type": "LocalBusiness", "name": </script>
<script type="application/ld+json">{"@type":"LocalBusiness","name":"Second Block Wins"}</script>
</head><body><p>text</p></body></html>`

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, "Second Block Wins", doc.Fields[model.FieldName])
}

func TestExtract_StructuredFieldsWinOverText(t *testing.T) {
	page := `<html><head><title>x</title>
<script type="application/ld+json">{"@type":"LocalBusiness","name":"Shop","email":"real@shop.example.com"}</script>
</head><body><article><p>` +
		strings.Repeat("Plenty of prose here to make the article the densest block. ", 10) +
		`Contact someoneelse@other.example.com for wholesale.</p></article></body></html>`

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, "real@shop.example.com", doc.Fields[model.FieldEmail])
}

func TestExtract_TextBackfillsContactFields(t *testing.T) {
	page := `<html><head><title>Contact</title></head><body><article><p>` +
		strings.Repeat("Our shop serves the valley with quality hardwood lumber and milling. ", 10) +
		`Reach us at sales@valleylumber.example.com or (406) 555-0101.</p></article></body></html>`

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, "sales@valleylumber.example.com", doc.Fields[model.FieldEmail])
	assert.Equal(t, "(406) 555-0101", doc.Fields[model.FieldPhone])
}

func TestExtract_PrefersFocusedStrategyOverFullStrip(t *testing.T) {
	// The full strip yields more raw text (nav, footer, sidebar), but the
	// extra volume is chrome; the focused extraction must still win.
	page := `<html><head><title>Granite Peak Tooling</title></head><body>
<nav>` + strings.Repeat(`<a href="/x">Catalog Section Link</a> `, 10) + `</nav>
<article><h1>Granite Peak Tooling</h1><p>` +
		strings.Repeat("Carbide end mills, lathe inserts, and tool grinding for shops across the region. ", 25) +
		`</p></article>
<footer>` + strings.Repeat(`<a href="/y">Footer Link</a> `, 5) + `</footer>
</body></html>`

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, StrategyMainContent, doc.Strategy)
	assert.Contains(t, doc.CleanText, "Carbide end mills")
	assert.NotContains(t, doc.CleanText, "Catalog Section Link")
	assert.NotContains(t, doc.CleanText, "Footer Link")
}

func TestExtract_FallsBackToStripTags(t *testing.T) {
	page := `<html><head><title>Tiny</title></head><body><span>just a few words here</span></body></html>`

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, StrategyStripTags, doc.Strategy)
	assert.Contains(t, doc.CleanText, "just a few words")
	assert.Less(t, doc.QualityScore, MinUsableQuality, "thin pages score as noise")
}

func TestExtract_LinkFarmScoresLow(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><head><title>Directory</title></head><body><div>`)
	for range 80 {
		b.WriteString(`<a href="/x">Some Business Listing Name</a> `)
	}
	b.WriteString(`</div></body></html>`)

	doc, err := Extract(okFetch(b.String()))
	require.NoError(t, err)
	assert.Less(t, doc.QualityScore, 0.5)
}

func TestExtract_RejectsNonOKFetch(t *testing.T) {
	_, err := Extract(model.FetchResult{URL: "https://x.example.com", Status: model.FetchBlocked})
	require.Error(t, err)

	_, err = Extract(model.FetchResult{URL: "https://x.example.com", Status: model.FetchOK})
	require.Error(t, err, "empty body")
}

func TestExtract_NormalizesUnicode(t *testing.T) {
	// "é" as combining sequence (U+0065 U+0301) must come out precomposed.
	page := "<html><head><title>Café Luna</title></head><body><p>Café Luna serves Missoula.</p></body></html>"

	doc, err := Extract(okFetch(page))
	require.NoError(t, err)
	assert.Equal(t, "Café Luna", doc.Title)
	assert.Contains(t, doc.CleanText, "Café Luna")
}
