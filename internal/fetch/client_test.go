package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *HTTPClient {
	t.Helper()
	c, err := NewHTTP(Options{UserAgent: "test-agent"})
	require.NoError(t, err)
	return c
}

func TestHTTPClient_Get_SendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	c := newClient(t)
	page, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "test-agent", gotUA)
	assert.True(t, strings.HasPrefix(gotLang, "fr-FR"))
}

func TestHTTPClient_Get_NonOKIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("blocked"))
	}))
	defer srv.Close()

	c := newClient(t)
	page, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, page.StatusCode)
	assert.Equal(t, "blocked", string(page.Body))
}

func TestHTTPClient_Get_TransportErrorIsAnError(t *testing.T) {
	c := newClient(t)
	_, err := c.Get(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
}

func TestHTTPClient_SetUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := newClient(t)
	c.SetUserAgent("rotated-agent")
	_, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "rotated-agent", gotUA)
}

func TestHTTPClient_KeepsCookiesAcrossRequests(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		default:
			if c, err := r.Cookie("session"); err == nil {
				gotCookie = c.Value
			}
		}
	}))
	defer srv.Close()

	c := newClient(t)
	_, err := c.Get(context.Background(), srv.URL+"/set")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), srv.URL+"/check")
	require.NoError(t, err)
	assert.Equal(t, "abc", gotCookie)
}

func TestPage_Document(t *testing.T) {
	p := &Page{
		URL:  "http://example.test",
		Body: []byte(`<html><body><div class="name">Boulangerie Martin</div></body></html>`),
	}
	doc, err := p.Document()
	require.NoError(t, err)
	assert.Equal(t, "Boulangerie Martin", doc.Find("div.name").Text())
}

func TestRandomUserAgent_FromPool(t *testing.T) {
	ua := RandomUserAgent()
	assert.Contains(t, strings.Join(userAgents, "\n"), ua)
}
