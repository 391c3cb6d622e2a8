package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Source      string `xml:"source"`
}

func (r *Registry) googleNewsSearchURL(query string) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")
	return r.googleNewsURL + "?" + q.Encode()
}

// fetchFeed reads an RSS 2.0 feed. Items are keyed by guid, then link, then
// title; items with none of them are skipped.
func (r *Registry) fetchFeed(ctx context.Context, sourceID, feedURL string) (Payload, error) {
	body, _, err := r.get(ctx, "", feedURL, nil)
	if err != nil {
		return Payload{}, err
	}
	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return Payload{}, fmt.Errorf("%w: rss %s: %w", ErrDecode, feedURL, err)
	}

	p := Payload{Items: make([]RawItem, 0, len(doc.Channel.Items))}
	for _, it := range doc.Channel.Items {
		id := firstNonEmpty(it.GUID, it.Link, it.Title)
		if id == "" {
			continue
		}
		data := map[string]any{
			"title": strings.TrimSpace(it.Title),
			"link":  strings.TrimSpace(it.Link),
		}
		if it.PubDate != "" {
			data["published"] = strings.TrimSpace(it.PubDate)
		}
		if it.Description != "" {
			data["description"] = strings.TrimSpace(it.Description)
		}
		if it.Creator != "" {
			data["author"] = strings.TrimSpace(it.Creator)
		}
		if it.Source != "" {
			data["source"] = strings.TrimSpace(it.Source)
		}
		p.Items = append(p.Items, RawItem{SourceID: sourceID, ExternalID: strings.TrimSpace(id), Data: data})
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
