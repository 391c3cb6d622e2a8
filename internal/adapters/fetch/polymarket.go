package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/okian/watchtower/internal/domain/model"
)

const polymarketSource = "polymarket"

// Gamma fields copied into a market item.
var marketFields = []string{ //nolint:gochecknoglobals // fixed field list
	"question", "slug", "outcomes", "outcomePrices", "volume", "liquidity",
	"active", "closed", "endDate", "bestBid", "bestAsk", "lastTradePrice",
}

type gammaEvent struct {
	ID      string           `json:"id"`
	Slug    string           `json:"slug"`
	Title   string           `json:"title"`
	Markets []map[string]any `json:"markets"`
}

type clobHistory struct {
	History []model.PricePoint `json:"history"`
}

func (r *Registry) fetchMarket(ctx context.Context, m model.PolymarketMarket) (Payload, error) {
	body, _, err := r.get(ctx, "", r.gammaURL+"/markets/"+url.PathEscape(m.MarketID), nil)
	if err != nil {
		return Payload{}, err
	}
	var market map[string]any
	if err := json.Unmarshal(body, &market); err != nil {
		return Payload{}, fmt.Errorf("%w: gamma market %s: %w", ErrDecode, m.MarketID, err)
	}

	item := marketItem(market, m.MarketID)
	p := Payload{Items: []RawItem{item}}
	for _, token := range stringList(market["clobTokenIds"]) {
		h, err := r.priceHistory(ctx, token)
		if err != nil {
			return Payload{}, err
		}
		p.Prices = append(p.Prices, h)
	}
	return p, nil
}

func (r *Registry) fetchEvent(ctx context.Context, e model.PolymarketEvent) (Payload, error) {
	body, _, err := r.get(ctx, "", r.gammaURL+"/events?slug="+url.QueryEscape(e.Slug), nil)
	if err != nil {
		return Payload{}, err
	}
	var events []gammaEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return Payload{}, fmt.Errorf("%w: gamma event %s: %w", ErrDecode, e.Slug, err)
	}

	var p Payload
	for _, ev := range events {
		for _, market := range ev.Markets {
			id := asString(market["id"])
			if id == "" {
				continue
			}
			p.Items = append(p.Items, marketItem(market, id))
			if len(p.Prices) >= r.maxEventHistories {
				continue
			}
			tokens := stringList(market["clobTokenIds"])
			if len(tokens) == 0 {
				continue
			}
			h, err := r.priceHistory(ctx, tokens[0])
			if err != nil {
				return Payload{}, err
			}
			p.Prices = append(p.Prices, h)
		}
	}
	return p, nil
}

func (r *Registry) priceHistory(ctx context.Context, tokenID string) (model.PriceHistory, error) {
	q := url.Values{}
	q.Set("market", tokenID)
	q.Set("interval", r.priceInterval)
	q.Set("fidelity", strconv.Itoa(r.priceFidelity))
	body, _, err := r.get(ctx, "", r.clobURL+"/prices-history?"+q.Encode(), nil)
	if err != nil {
		return model.PriceHistory{}, err
	}
	var h clobHistory
	if err := json.Unmarshal(body, &h); err != nil {
		return model.PriceHistory{}, fmt.Errorf("%w: prices-history %s: %w", ErrDecode, tokenID, err)
	}
	return model.PriceHistory{TokenID: tokenID, History: h.History}, nil
}

func marketItem(market map[string]any, id string) RawItem {
	data := make(map[string]any, len(marketFields))
	for _, f := range marketFields {
		v, ok := market[f]
		if !ok {
			continue
		}
		// Gamma encodes list fields as JSON strings.
		if f == "outcomes" || f == "outcomePrices" {
			list := stringList(v)
			items := make([]any, len(list))
			for i, s := range list {
				items[i] = s
			}
			v = items
		}
		data[f] = v
	}
	return RawItem{SourceID: polymarketSource, ExternalID: id, Data: data}
}

// stringList accepts a JSON array or a string holding a JSON array.
func stringList(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, asString(e))
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(x), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}
