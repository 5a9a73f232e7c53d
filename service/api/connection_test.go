package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	ex "urs/data/extensions"
	m "urs/data/models"
)

func Test_ClientHost_RequestHitsConfiguredHost(t *testing.T) {
	var gotPath, gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSymbol = r.URL.Query().Get("symbol")
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := ClientFactory(srv.URL, "key", time.Second, 0)

	endpoint := &url.URL{Path: "query", RawQuery: url.Values{"symbol": {"AAPL"}}.Encode()}
	res, err := c.Connection.Request(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	ex.AssertAreEqual(t, "body", "ok", string(body))
	ex.AssertAreEqual(t, "path", "/query", gotPath)
	ex.AssertAreEqual(t, "symbol", "AAPL", gotSymbol)
}

func Test_ClientHost_NonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := ClientFactory(srv.URL, "key", time.Second, 0)
	if _, err := c.Connection.Request(context.Background(), &url.URL{Path: "/query"}); err == nil {
		t.Fatalf("expected an error for a 429 response")
	}
}

func Test_ClientHost_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// one request per minute, the second call cannot get a token before the deadline
	c := ClientFactory(srv.URL, "key", time.Second, 1)

	res, err := c.Connection.Request(context.Background(), &url.URL{Path: "/query"})
	if err != nil {
		t.Fatalf("first request should not wait: %s", err)
	}
	res.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Connection.Request(ctx, &url.URL{Path: "/query"}); err == nil {
		t.Fatalf("expected the limiter to give up when the context expires")
	}
}

func Test_ClientFactory_BareHostDefaultsToHttps(t *testing.T) {
	c := ClientFactory("www.alphavantage.co", "key", time.Second, 0)
	host := c.Connection.(*ClientHost)
	ex.AssertAreEqual(t, "scheme", "https", host.scheme)
	ex.AssertAreEqual(t, "host", "www.alphavantage.co", host.host)
}

func Test_InRange_FiltersAndSorts(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	points := []m.PricePoint{
		{Date: d(5), AdjustedClose: null.NewFloat(5, true)},
		{Date: d(1), AdjustedClose: null.NewFloat(1, true)},
		{Date: d(3), AdjustedClose: null.NewFloat(3, true)},
		{Date: d(2), AdjustedClose: null.NewFloat(2, true)},
	}

	res := InRange(points, d(2), d(5))
	ex.AssertAreEqual(t, "count", 2, len(res))
	ex.AssertAreEqual(t, "first", d(2), res[0].Date)
	ex.AssertAreEqual(t, "second", d(3), res[1].Date)
}
