package archive

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/auction-docs/internal/model"
)

func TestPath(t *testing.T) {
	a := New("pdfs", "leilao_vip", "pdf")
	lotID := model.LotID("https://www.leilaovip.com.br/evento/anuncio/apartamento-123")

	assert.Equal(t, filepath.Join("pdfs", "leilao_vip", "bradesco_apartamento-123.pdf"), a.Path("bradesco", lotID))
}

func TestNew_Defaults(t *testing.T) {
	a := New("out", "", ".pdf")
	assert.Equal(t, filepath.Join("out", "leilao_vip", "bv_7.pdf"), a.Path("bv", "7"))
	assert.Equal(t, "out", a.Root())
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"apartamento-123": "apartamento-123",
		"casa 12":         "casa_12",
		"lote?id=5":       "lote_id_5",
		"..":              "lot",
		"":                "lot",
		"matrícula":       "matr_cula",
		"banco_pan":       "banco_pan",
	}
	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestWrite_NoClobber(t *testing.T) {
	a := New(t.TempDir(), "leilao_vip", "pdf")
	path := a.Path("bradesco", "lote-a")

	assert.False(t, a.Exists(path))

	n, err := a.Write(path, []byte("%PDF-1.4 first"))
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
	assert.True(t, a.Exists(path))

	_, err = a.Write(path, []byte("%PDF-1.4 second"))
	assert.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 first", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(a.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWrite_ConcurrentWritersOneWins(t *testing.T) {
	a := New(t.TempDir(), "leilao_vip", "pdf")
	path := a.Path("bv", "lote-1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Write(path, []byte("doc")); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrExists)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestList(t *testing.T) {
	root := t.TempDir()
	vip := New(root, "leilao_vip", "pdf")
	other := New(root, "outro", "pdf")

	_, err := vip.Write(vip.Path("bradesco", "b"), []byte("bb"))
	require.NoError(t, err)
	_, err = vip.Write(vip.Path("bradesco", "a"), []byte("a"))
	require.NoError(t, err)
	_, err = other.Write(other.Path("bv", "z"), []byte("zzz"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(vip.Dir(), tempPrefix+"x"), []byte("x"), 0o644))

	files, err := vip.List()
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "bradesco_a.pdf", files[0].Name)
	assert.Equal(t, "leilao_vip", files[0].Source)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, "bradesco_b.pdf", files[1].Name)
	assert.Equal(t, "bv_z.pdf", files[2].Name)
	assert.Equal(t, "outro", files[2].Source)
	assert.False(t, files[2].CreatedAt.IsZero())
}

func TestList_MissingRoot(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "nope"), "leilao_vip", "pdf")
	files, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}
