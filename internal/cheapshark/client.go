// Package cheapshark is the price source client. It talks to the CheapShark API
// and normalizes its responses into model.Offer values.
package cheapshark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"game-price-tracker/internal/config"
	"game-price-tracker/internal/model"
)

// Client errors.
var (
	ErrNotFound       = errors.New("cheapshark: not found")
	ErrUpstream       = errors.New("cheapshark: upstream error")
	ErrMissingBaseURL = errors.New("cheapshark: base url is required")
)

// maxPageSize is the largest page the deals endpoint accepts.
const maxPageSize = 60

// Client is a CheapShark API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	redirectURL string
	httpClient  *http.Client
	maxRetries  int
	newBackOff  func() backoff.BackOff
	stores      *storeCache
}

// New creates a client from configuration.
func New(cfg config.CheapSharkConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		baseURL:     base,
		redirectURL: cfg.RedirectURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: retries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	c.stores = newStoreCache(cfg.StoreCacheTTL, c.fetchStores)
	return c, nil
}

// upstream payloads; CheapShark encodes most numbers as strings

type searchResult struct {
	GameID         string `json:"gameID"`
	Cheapest       string `json:"cheapest"`
	CheapestDealID string `json:"cheapestDealID"`
	External       string `json:"external"`
	Thumb          string `json:"thumb"`
}

type gameDetails struct {
	Info struct {
		Title string `json:"title"`
		Thumb string `json:"thumb"`
	} `json:"info"`
	Deals []struct {
		StoreID     string `json:"storeID"`
		DealID      string `json:"dealID"`
		Price       string `json:"price"`
		RetailPrice string `json:"retailPrice"`
		Savings     string `json:"savings"`
	} `json:"deals"`
}

type dealDetails struct {
	GameInfo struct {
		StoreID     string `json:"storeID"`
		GameID      string `json:"gameID"`
		Name        string `json:"name"`
		SalePrice   string `json:"salePrice"`
		RetailPrice string `json:"retailPrice"`
		Thumb       string `json:"thumb"`
	} `json:"gameInfo"`
}

type dealListItem struct {
	Title       string `json:"title"`
	DealID      string `json:"dealID"`
	StoreID     string `json:"storeID"`
	GameID      string `json:"gameID"`
	SalePrice   string `json:"salePrice"`
	NormalPrice string `json:"normalPrice"`
	Savings     string `json:"savings"`
	Thumb       string `json:"thumb"`
}

type storeItem struct {
	StoreID   string `json:"storeID"`
	StoreName string `json:"storeName"`
	IsActive  int    `json:"isActive"`
}

// SearchGames searches games by title. Each result carries the cheapest known deal.
func (c *Client) SearchGames(ctx context.Context, title string, limit int) ([]model.Offer, error) {
	params := url.Values{}
	params.Set("title", title)
	params.Set("limit", strconv.Itoa(limit))

	var results []searchResult
	if err := c.getJSON(ctx, "/games", params, &results); err != nil {
		return nil, err
	}

	offers := make([]model.Offer, 0, len(results))
	for _, r := range results {
		price := parseFloat(r.Cheapest)
		offers = append(offers, model.Offer{
			Title:    r.External,
			GameID:   r.GameID,
			DealID:   r.CheapestDealID,
			Price:    price,
			URL:      c.dealURL(r.CheapestDealID),
			ImageURL: r.Thumb,
		})
	}
	return offers, nil
}

// GetGameOffers returns every store offer for a CheapShark game id.
func (c *Client) GetGameOffers(ctx context.Context, gameID string) (*model.GameOffers, error) {
	params := url.Values{}
	params.Set("id", gameID)

	var details gameDetails
	if err := c.getObject(ctx, "/games", params, &details); err != nil {
		return nil, err
	}

	out := &model.GameOffers{
		Title:    details.Info.Title,
		ImageURL: details.Info.Thumb,
		Offers:   make([]model.Offer, 0, len(details.Deals)),
	}
	for _, d := range details.Deals {
		price := parseFloat(d.Price)
		retail := parseFloat(d.RetailPrice)
		savings := model.Round2(parseFloat(d.Savings))
		out.Offers = append(out.Offers, model.Offer{
			Title:              details.Info.Title,
			GameID:             gameID,
			DealID:             d.DealID,
			StoreID:            d.StoreID,
			StoreName:          c.stores.name(ctx, d.StoreID),
			Price:              price,
			OriginalPrice:      model.Ptr(retail),
			DiscountPercentage: savings,
			URL:                c.dealURL(d.DealID),
			ImageURL:           details.Info.Thumb,
			IsOnSale:           savings > 0,
		})
	}
	return out, nil
}

// GetDeal returns a single offer by its deal id.
func (c *Client) GetDeal(ctx context.Context, dealID string) (*model.Offer, error) {
	params := url.Values{}
	params.Set("id", dealID)

	var details dealDetails
	if err := c.getObject(ctx, "/deals", params, &details); err != nil {
		return nil, err
	}
	info := details.GameInfo
	if info.Name == "" {
		return nil, ErrNotFound
	}

	sale := parseFloat(info.SalePrice)
	retail := parseFloat(info.RetailPrice)
	var savings float64
	if retail > 0 {
		savings = (retail - sale) / retail * 100
	}
	savings = model.Round2(savings)

	return &model.Offer{
		Title:              info.Name,
		GameID:             info.GameID,
		DealID:             dealID,
		StoreID:            info.StoreID,
		StoreName:          c.stores.name(ctx, info.StoreID),
		Price:              sale,
		OriginalPrice:      model.Ptr(retail),
		DiscountPercentage: savings,
		URL:                c.dealURL(dealID),
		ImageURL:           info.Thumb,
		IsOnSale:           savings > 0,
	}, nil
}

// ListDeals returns the current deals feed filtered by q.
func (c *Client) ListDeals(ctx context.Context, q model.DealsQuery) ([]model.Offer, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("lowerPrice", "0")
	if q.StoreID != "" {
		params.Set("storeID", q.StoreID)
	}
	if q.MaxPrice != nil {
		params.Set("upperPrice", strconv.FormatFloat(*q.MaxPrice, 'f', 2, 64))
	}
	if q.MinDiscount > 0 {
		params.Set("onSale", "1")
	}

	var items []dealListItem
	if err := c.getJSON(ctx, "/deals", params, &items); err != nil {
		return nil, err
	}

	offers := make([]model.Offer, 0, len(items))
	for _, it := range items {
		savings := model.Round2(parseFloat(it.Savings))
		if savings < float64(q.MinDiscount) {
			continue
		}
		offers = append(offers, model.Offer{
			Title:              it.Title,
			GameID:             it.GameID,
			DealID:             it.DealID,
			StoreID:            it.StoreID,
			StoreName:          c.stores.name(ctx, it.StoreID),
			Price:              parseFloat(it.SalePrice),
			OriginalPrice:      model.Ptr(parseFloat(it.NormalPrice)),
			DiscountPercentage: savings,
			URL:                c.dealURL(it.DealID),
			ImageURL:           it.Thumb,
			IsOnSale:           true,
		})
	}
	return offers, nil
}

// ListStores returns all upstream stores.
func (c *Client) ListStores(ctx context.Context) ([]model.Store, error) {
	return c.fetchStores(ctx)
}

func (c *Client) fetchStores(ctx context.Context) ([]model.Store, error) {
	var items []storeItem
	if err := c.getJSON(ctx, "/stores", nil, &items); err != nil {
		return nil, err
	}
	stores := make([]model.Store, 0, len(items))
	for _, it := range items {
		stores = append(stores, model.Store{ID: it.StoreID, Name: it.StoreName, IsActive: it.IsActive == 1})
	}
	return stores, nil
}

func (c *Client) dealURL(dealID string) string {
	if dealID == "" {
		return ""
	}
	return c.redirectURL + dealID
}

// getJSON performs a GET and decodes the JSON body into out.
// Network errors, 429 and 5xx are retried up to maxRetries times with exponential backoff.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Int("attempts", attempt).Msg("CheapShark request failed")
		return err
	}
	return nil
}

// getObject is getJSON for endpoints that answer an empty array for unknown ids.
func (c *Client) getObject(ctx context.Context, path string, params url.Values, out any) error {
	var raw json.RawMessage
	if err := c.getJSON(ctx, path, params, &raw); err != nil {
		return err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
