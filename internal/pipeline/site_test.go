package pipeline

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sells-group/auction-docs/internal/config"
	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/model"
)

// site is a fake auction portal that counts requests per path.
type site struct {
	mux *http.ServeMux
	srv *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{mux: http.NewServeMux(), hits: make(map[string]int)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		s.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) url(path string) string { return s.srv.URL + path }

func (s *site) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// html registers a static HTML page.
func (s *site) html(path, body string) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		writeHTML(w, body)
	})
}

// pdf registers a document download.
func (s *site) pdf(path, body string) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(body))
	})
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Leilão VIP</title></head><body>%s</body></html>`, body)
}

const asyncIndex = `
<nav><a href="/agenda">Agenda</a> <a href="/login">Entrar</a></nav>
<div id="placeholder" data-ajax-url="/Agenda/PesquisarEventos"></div>`

func eventCard(href, title string) string {
	return fmt.Sprintf(`<div class="card-evento"><a href="%s">%s</a><span>Lotes disponíveis</span></div>`, href, title)
}

func selectOptions(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<select id="lote"><option value="">Selecione o lote</option>`)
	for _, s := range slugs {
		fmt.Fprintf(&b, `<option value="%s">Lote %s</option>`, s, s)
	}
	b.WriteString(`</select>`)
	return b.String()
}

func lotPage(docHref string) string {
	return fmt.Sprintf(`<h1>Apartamento em São Paulo</h1>
<p>Modalidade: Venda Extrajudicial</p>
<a href="%s">Matrícula do imóvel</a>
<a href="/agenda">Voltar para agenda</a>`, docHref)
}

// auctionSite serves one institution with one event whose lots are listed
// in a select. Lot pages can be made to fail or drop the keyword.
type auctionSite struct {
	*site
	slugs     []string
	failing   map[string]bool
	noKeyword map[string]bool
	onLot     func(slug string)
}

func newAuctionSite(t *testing.T, slugs ...string) *auctionSite {
	t.Helper()
	a := &auctionSite{
		site:      newSite(t),
		slugs:     slugs,
		failing:   make(map[string]bool),
		noKeyword: make(map[string]bool),
	}
	a.html("/agenda", asyncIndex)
	a.mux.HandleFunc("/Agenda/PesquisarEventos", func(w http.ResponseWriter, _ *http.Request) {
		writeHTML(w, eventCard("/evento/detalhes/101", "Leilão Extrajudicial Bradesco"))
	})
	a.mux.HandleFunc("/evento/detalhes/101", func(w http.ResponseWriter, _ *http.Request) {
		writeHTML(w, `<h2>Leilão 101</h2>`+selectOptions(a.slugs...))
	})
	a.mux.HandleFunc("/evento/anuncio/{slug}", func(w http.ResponseWriter, r *http.Request) {
		slug := r.PathValue("slug")
		if a.onLot != nil {
			a.onLot(slug)
		}
		switch {
		case a.failing[slug]:
			http.Error(w, "erro interno", http.StatusInternalServerError)
		case a.noKeyword[slug]:
			writeHTML(w, `<p>Venda Judicial</p><a href="/docs/`+slug+`.pdf">Matrícula</a><script>var modalidade = "Extrajudicial";</script>`)
		default:
			writeHTML(w, lotPage("/docs/"+slug+".pdf"))
		}
	})
	a.mux.HandleFunc("/docs/{file}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 " + r.PathValue("file")))
	})
	return a
}

func (a *auctionSite) institution(name string) model.Institution {
	return model.Institution{Name: name, IndexURL: a.url("/agenda?Filtro.ComitenteId=abc")}
}

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		Retry:      fetcher.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	})
}

func testConfig(insts ...model.Institution) *config.Config {
	return &config.Config{
		Institutions: insts,
		Pipeline:     config.PipelineConfig{LotWorkers: 1},
	}
}
