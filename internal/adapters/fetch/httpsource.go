package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/okian/watchtower/internal/domain/fingerprint"
	"github.com/okian/watchtower/internal/domain/model"
)

// Keys tried, in order, for the identity of an element of a JSON array.
var idKeys = []string{"id", "guid", "uuid", "slug", "url"} //nolint:gochecknoglobals // fixed key order

const maxTextBytes = 64 << 10

func (r *Registry) fetchHTTP(ctx context.Context, s model.HTTPSource) (Payload, error) {
	body, contentType, err := r.get(ctx, s.Method, s.URL, s.Headers)
	if err != nil {
		return Payload{}, err
	}
	sourceID := model.TargetKind(s) + ":" + s.URL

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return jsonPayload(sourceID, s.URL, body)
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return htmlPayload(sourceID, s.URL, body)
	default:
		text := truncate(string(body), maxTextBytes)
		return Payload{Items: []RawItem{{SourceID: sourceID, ExternalID: s.URL, Data: map[string]any{"body": text}}}}, nil
	}
}

// jsonPayload maps an object body to a single item and an array body to one
// item per element.
func jsonPayload(sourceID, u string, body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, fmt.Errorf("%w: json %s: %w", ErrDecode, u, err)
	}

	switch v := doc.(type) {
	case map[string]any:
		return Payload{Items: []RawItem{{SourceID: sourceID, ExternalID: u, Data: v}}}, nil
	case []any:
		p := Payload{Items: make([]RawItem, 0, len(v))}
		for _, elem := range v {
			data, ok := elem.(map[string]any)
			if !ok {
				data = map[string]any{"value": elem}
			}
			p.Items = append(p.Items, RawItem{SourceID: sourceID, ExternalID: elementID(data), Data: data})
		}
		return p, nil
	default:
		return Payload{Items: []RawItem{{SourceID: sourceID, ExternalID: u, Data: map[string]any{"value": v}}}}, nil
	}
}

// elementID falls back to the content fingerprint when no id key is present,
// so an edited element reads as removed plus added.
func elementID(data map[string]any) string {
	for _, k := range idKeys {
		if id := asString(data[k]); id != "" {
			return id
		}
	}
	return fingerprint.Of(data)
}

func htmlPayload(sourceID, u string, body []byte) (Payload, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: html %s: %w", ErrDecode, u, err)
	}
	title, text := extractHTML(doc)
	text = truncate(text, maxTextBytes)
	return Payload{Items: []RawItem{{
		SourceID:   sourceID,
		ExternalID: u,
		Data:       map[string]any{"title": title, "text": text},
	}}}, nil
}

// extractHTML returns the document title and its visible text with
// whitespace collapsed.
func extractHTML(doc *html.Node) (string, string) {
	var (
		title string
		words []string
		walk  func(*html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, strings.Join(words, " ")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
