package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLotID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.leilaovip.com.br/evento/anuncio/apartamento-123", "apartamento-123"},
		{"https://www.leilaovip.com.br/evento/anuncio/apartamento-123/", "apartamento-123"},
		{"https://www.leilaovip.com.br/imovel/42?ref=home", "42"},
		{"https://www.leilaovip.com.br/", "lot"},
		{"https://www.leilaovip.com.br", "lot"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LotID(tt.url))
		})
	}
}

func TestLotRef_ID(t *testing.T) {
	lot := LotRef{URL: "https://site.test/lote/casa-7", Event: EventRef{URL: "https://site.test/evento/1"}}
	assert.Equal(t, "casa-7", lot.ID())
}

func TestRunStatusValues(t *testing.T) {
	assert.Equal(t, "running", string(RunStatusRunning))
	assert.Equal(t, "complete", string(RunStatusComplete))
	assert.Equal(t, "failed", string(RunStatusFailed))
}

func TestRunResult_Paths(t *testing.T) {
	r := &RunResult{Documents: []DocumentRecord{
		{Path: "pdfs/leilao_vip/bradesco_a.pdf"},
		{Path: "pdfs/leilao_vip/bradesco_b.pdf"},
	}}
	assert.Equal(t, []string{"pdfs/leilao_vip/bradesco_a.pdf", "pdfs/leilao_vip/bradesco_b.pdf"}, r.Paths())

	empty := &RunResult{}
	assert.Empty(t, empty.Paths())
	assert.NotNil(t, empty.Paths())
}
