package model

// PricePoint is one observation of a token price.
type PricePoint struct {
	Timestamp int64   `json:"t"`
	Price     float64 `json:"p"`
}

// PriceHistory is a price series ordered by timestamp ascending.
type PriceHistory struct {
	TokenID string       `json:"token_id"`
	History []PricePoint `json:"history"`
}
