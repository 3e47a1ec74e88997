package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title>Leilão</title>
<script>var extrajudicial = true;</script>
<style>.extrajudicial{}</style></head>
<body>
  <nav><a href="#top">Topo</a><a href="javascript:void(0)">menu</a><a href="mailto:x@y.z">mail</a></nav>
  <div class="card"><span>R$ 100.000,00</span>
    <a href="/evento/detalhes/1">  Leilão
       Bradesco </a>
  </div>
  <a href="">empty</a>
  <p>Venda Judicial</p>
  <div id="placeholder" data-ajax-url="/Agenda/pesquisarEventos?x=1"></div>
  <span data-ajax-url="  "></span>
</body></html>`

func TestParseHTML_Anchors(t *testing.T) {
	p, err := ParseHTML([]byte(samplePage), "text/html; charset=utf-8", "https://site.test/agenda")
	require.NoError(t, err)

	anchors := p.Anchors()
	require.Len(t, anchors, 1)
	assert.Equal(t, "/evento/detalhes/1", anchors[0].Href)
	assert.Equal(t, "Leilão Bradesco", anchors[0].Text)
	assert.Equal(t, "R$ 100.000,00 Leilão Bradesco", anchors[0].Context)
}

func TestParseHTML_Latin1(t *testing.T) {
	// "Leilão" encoded as ISO-8859-1.
	body := []byte("<html><body><p>Leil\xe3o</p></body></html>")
	p, err := ParseHTML(body, "text/html; charset=iso-8859-1", "https://site.test/")
	require.NoError(t, err)
	assert.Equal(t, "Leilão", p.VisibleText())
}

func TestVisibleText_SkipsScripts(t *testing.T) {
	p, err := ParseHTML([]byte(samplePage), "text/html", "https://site.test/")
	require.NoError(t, err)

	text := p.VisibleText()
	assert.False(t, ContainsFold(text, "extrajudicial"))
	assert.Contains(t, text, "Venda Judicial")

	// The clone leaves the document intact.
	assert.Equal(t, 1, p.Find("script").Length())
}

func TestAttrValues(t *testing.T) {
	p, err := ParseHTML([]byte(samplePage), "", "https://site.test/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/Agenda/pesquisarEventos?x=1"}, p.AttrValues("data-ajax-url"))
}

func TestCollapse(t *testing.T) {
	assert.Equal(t, "a b c", Collapse("  a \n\t b   c "))
	assert.Equal(t, "", Collapse(" \n "))
}
