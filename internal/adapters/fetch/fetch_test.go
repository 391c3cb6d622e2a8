package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/okian/watchtower/internal/adapters/fetch"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Example</title>
  <item>
    <title>First post</title>
    <link>https://example.substack.com/p/first</link>
    <guid>post-1</guid>
    <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
    <dc:creator>Ann</dc:creator>
  </item>
  <item>
    <title>Second post</title>
    <link>https://example.substack.com/p/second</link>
  </item>
  <item>
    <description>no identity at all</description>
  </item>
</channel>
</rss>`

func upstream() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/42", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"42","question":"Will it rain?","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.6\",\"0.4\"]","clobTokenIds":"[\"tok-yes\",\"tok-no\"]","volume":"1000.5","ignored":"x"}`)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slug") != "election" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[{"id":"e1","slug":"election","markets":[
			{"id":"m1","question":"A?","clobTokenIds":"[\"a1\",\"a2\"]"},
			{"id":"m2","question":"B?","clobTokenIds":"[\"b1\"]"},
			{"id":"m3","question":"C?","clobTokenIds":"[\"c1\"]"},
			{"question":"no id"}]}]`)
	})
	mux.HandleFunc("/prices-history", func(w http.ResponseWriter, r *http.Request) {
		last := "0.5"
		if r.URL.Query().Get("market") == "tok-yes" {
			last = "0.6"
		}
		fmt.Fprintf(w, `{"history":[{"t":1,"p":0.5},{"t":2,"p":%s}]}`, last)
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	})
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "rate cut" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, feedXML)
	})
	mux.HandleFunc("/api/list", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `[{"id":7,"name":"seven"},{"slug":"eight"},{"name":"anonymous"},3]`)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title> Status </title><script>var x = 1;</script></head>
<body><h1>All   systems</h1><p>operational</p><style>p{}</style></body></html>`)
	})
	mux.HandleFunc("/long.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "a"+strings.Repeat("é", 40_000))
	})
	mux.HandleFunc("/long.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>a"+strings.Repeat("é", 40_000)+"</p></body></html>")
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return httptest.NewServer(mux)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	srv := upstream()
	defer srv.Close()

	reg := fetch.NewRegistry(
		fetch.WithHTTPClient(srv.Client()),
		fetch.WithPolymarketURLs(srv.URL, srv.URL+"/"),
		fetch.WithGoogleNewsURL(srv.URL+"/news"),
	)

	Convey("Given a Polymarket market target", t, func() {
		p, err := reg.Fetch(ctx, model.PolymarketMarket{MarketID: "42"})

		Convey("Then the market is one item with decoded list fields", func() {
			So(err, ShouldBeNil)
			So(p.Items, ShouldHaveLength, 1)
			item := p.Items[0]
			So(item.SourceID, ShouldEqual, "polymarket")
			So(item.ExternalID, ShouldEqual, "42")
			So(item.Data["outcomes"], ShouldResemble, []any{"Yes", "No"})
			So(item.Data["volume"], ShouldEqual, "1000.5")
			So(item.Data, ShouldNotContainKey, "ignored")
		})

		Convey("Then every outcome token has a price history", func() {
			So(p.Prices, ShouldHaveLength, 2)
			So(p.Prices[0].TokenID, ShouldEqual, "tok-yes")
			So(p.Prices[0].History, ShouldResemble, []model.PricePoint{{Timestamp: 1, Price: 0.5}, {Timestamp: 2, Price: 0.6}})
		})
	})

	Convey("Given a Polymarket event target", t, func() {
		p, err := reg.Fetch(ctx, model.PolymarketEvent{Slug: "election"})

		Convey("Then markets with ids become items and histories are bounded", func() {
			So(err, ShouldBeNil)
			So(p.Items, ShouldHaveLength, 3)
			So(p.Prices, ShouldHaveLength, 2)
			So(p.Prices[0].TokenID, ShouldEqual, "a1")
			So(p.Prices[1].TokenID, ShouldEqual, "b1")
		})
	})

	Convey("Given a Substack feed target", t, func() {
		p, err := reg.Fetch(ctx, model.SubstackFeed{URL: srv.URL + "/feed"})

		Convey("Then items are keyed by guid or link", func() {
			So(err, ShouldBeNil)
			So(p.Items, ShouldHaveLength, 2)
			So(p.Items[0].ExternalID, ShouldEqual, "post-1")
			So(p.Items[0].Data["author"], ShouldEqual, "Ann")
			So(p.Items[1].ExternalID, ShouldEqual, "https://example.substack.com/p/second")
			So(p.Items[0].SourceID, ShouldStartWith, "substackFeed:")
			So(p.Prices, ShouldBeEmpty)
		})
	})

	Convey("Given a Google News search target", t, func() {
		p, err := reg.Fetch(ctx, model.GoogleNewsRSSSearch{Query: "rate cut"})

		Convey("Then the query is sent and items are parsed", func() {
			So(err, ShouldBeNil)
			So(p.Items, ShouldHaveLength, 2)
			So(p.Items[0].SourceID, ShouldEqual, "googleNewsRssSearch:rate cut")
		})
	})

	Convey("Given an HTTP source returning a JSON array", t, func() {
		p, err := reg.Fetch(ctx, model.HTTPSource{URL: srv.URL + "/api/list", Headers: map[string]string{"X-Token": "secret"}})

		Convey("Then each element is an item keyed by its id field", func() {
			So(err, ShouldBeNil)
			So(p.Items, ShouldHaveLength, 4)
			So(p.Items[0].ExternalID, ShouldEqual, "7")
			So(p.Items[1].ExternalID, ShouldEqual, "eight")
			So(p.Items[2].ExternalID, ShouldHaveLength, 64)
			So(p.Items[3].Data["value"], ShouldNotBeNil)
		})
	})

	Convey("Given an HTTP source returning HTML", t, func() {
		p, err := reg.Fetch(ctx, model.HTTPSource{URL: srv.URL + "/page"})

		Convey("Then title and visible text are extracted", func() {
			So(err, ShouldBeNil)
			So(p.Items, ShouldHaveLength, 1)
			So(p.Items[0].Data["title"], ShouldEqual, "Status")
			So(p.Items[0].Data["text"], ShouldEqual, "All systems operational")
		})
	})

	Convey("Given HTTP sources longer than the text limit", t, func() {
		plain, err := reg.Fetch(ctx, model.HTTPSource{URL: srv.URL + "/long.txt"})
		So(err, ShouldBeNil)
		page, err := reg.Fetch(ctx, model.HTTPSource{URL: srv.URL + "/long.html"})
		So(err, ShouldBeNil)

		Convey("Then the text is cut on a rune boundary", func() {
			body := plain.Items[0].Data["body"].(string)
			So(utf8.ValidString(body), ShouldBeTrue)
			So(len(body), ShouldEqual, 64<<10-1)

			text := page.Items[0].Data["text"].(string)
			So(utf8.ValidString(text), ShouldBeTrue)
			So(len(text), ShouldEqual, 64<<10-1)
		})
	})

	Convey("Given an upstream failure", t, func() {
		_, err := reg.Fetch(ctx, model.HTTPSource{URL: srv.URL + "/broken"})

		Convey("Then a status error is returned", func() {
			So(errors.Is(err, fetch.ErrUpstreamStatus), ShouldBeTrue)
			var se *fetch.StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.StatusCode, ShouldEqual, http.StatusInternalServerError)
		})
	})

	Convey("Given a composite target", t, func() {
		composite := model.Composite{Targets: []model.Target{
			model.SubstackFeed{URL: srv.URL + "/feed"},
			model.PolymarketMarket{MarketID: "42"},
		}}

		Convey("When every child succeeds", func() {
			p, err := reg.Fetch(ctx, composite)

			Convey("Then payloads are concatenated in child order", func() {
				So(err, ShouldBeNil)
				So(p.Items, ShouldHaveLength, 3)
				So(p.Items[0].ExternalID, ShouldEqual, "post-1")
				So(p.Items[2].ExternalID, ShouldEqual, "42")
				So(p.Prices, ShouldHaveLength, 2)
			})
		})

		Convey("When a child fails", func() {
			composite.Targets = append(composite.Targets, model.HTTPSource{URL: srv.URL + "/broken"})
			_, err := reg.Fetch(ctx, composite)

			Convey("Then the whole fetch fails", func() {
				So(errors.Is(err, fetch.ErrUpstreamStatus), ShouldBeTrue)
				So(strings.Contains(err.Error(), "child 2"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a nil target", t, func() {
		_, err := reg.Fetch(ctx, nil)

		Convey("Then it is unsupported", func() {
			So(errors.Is(err, fetch.ErrUnsupportedTarget), ShouldBeTrue)
		})
	})
}
