package wildberries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wb-products-bot/internal/domain"
	"wb-products-bot/internal/infra/metrics"
)

const (
	// DefaultDiscountsURL: приватный фид цен и скидок продавца.
	DefaultDiscountsURL = "https://discounts-prices-api.wildberries.ru"
	// DefaultCardsURL: публичный фид карточек.
	DefaultCardsURL = "https://card.wb.ru"

	// PageLimit: максимальный размер страницы фида цен.
	PageLimit = 1000
	// BatchSize: сколько nmID запрашивается в одном обращении к карточкам.
	BatchSize = 1000
	// MaxPages ограничивает обход фида цен.
	MaxPages = 100

	maxErrorBody = 200
	browserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Client выгружает каталог продавца из API WB.
type Client struct {
	discountsURL string
	cardsURL     string
	httpClient   *http.Client
	limiter      *rate.Limiter
	batchSize    int
	maxPages     int
}

// Option настраивает клиента.
type Option func(*Client)

// WithHTTPClient подменяет HTTP клиента.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут запросов.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit ограничивает частоту запросов. rps <= 0 снимает ограничение.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithBatchSize меняет размер пачки nmID.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxPages меняет ограничение обхода фида цен.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// New создаёт клиента. Пустые адреса заменяются адресами по умолчанию.
func New(discountsURL, cardsURL string, opts ...Option) *Client {
	if discountsURL == "" {
		discountsURL = DefaultDiscountsURL
	}
	if cardsURL == "" {
		cardsURL = DefaultCardsURL
	}
	c := &Client{
		discountsURL: strings.TrimSuffix(discountsURL, "/"),
		cardsURL:     strings.TrimSuffix(cardsURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		batchSize:    BatchSize,
		maxPages:     MaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type goodsResponse struct {
	Data struct {
		ListGoods []struct {
			NmID     int64   `json:"nmID"`
			Discount float64 `json:"discount"`
		} `json:"listGoods"`
	} `json:"data"`
}

// FetchSellerListing выгружает все товары продавца постранично.
func (c *Client) FetchSellerListing(ctx context.Context, cred domain.Credential) ([]domain.SellerListing, error) {
	var out []domain.SellerListing
	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(PageLimit))
		q.Set("offset", strconv.Itoa(page*PageLimit))
		endpoint := c.discountsURL + "/api/v2/list/goods/filter?" + q.Encode()

		var resp goodsResponse
		err := c.get(ctx, "list_goods", endpoint, func(req *http.Request) {
			req.Header.Set("Authorization", cred.Secret)
			req.Header.Set("Content-Type", "application/json")
		}, &resp)
		if err != nil {
			return nil, err
		}
		for _, g := range resp.Data.ListGoods {
			out = append(out, domain.SellerListing{ProductID: g.NmID, SellerDiscount: g.Discount})
		}
		if len(resp.Data.ListGoods) < PageLimit {
			break
		}
	}
	return out, nil
}

// price хранит цены в копейках. Basic отсутствует у части карточек, тогда базовой считается цена на сайте.
type price struct {
	Basic   *int64 `json:"basic"`
	Product int64  `json:"product"`
	Total   int64  `json:"total"`
}

type cardsResponse struct {
	Data struct {
		Products []struct {
			ID              int64  `json:"id"`
			Entity          string `json:"entity"`
			Brand           string `json:"brand"`
			Name            string `json:"name"`
			SubjectID       int64  `json:"subjectId"`
			SubjectParentID int64  `json:"subjectParentId"`
			Sizes           []struct {
				Price *price `json:"price"`
			} `json:"sizes"`
		} `json:"products"`
	} `json:"data"`
}

// FetchDetails запрашивает карточки пачками. Отсутствие части карточек ошибкой не считается.
func (c *Client) FetchDetails(ctx context.Context, productIDs []int64) ([]domain.CatalogueDetail, error) {
	var out []domain.CatalogueDetail
	for start := 0; start < len(productIDs); start += c.batchSize {
		end := min(start+c.batchSize, len(productIDs))
		batch, err := c.fetchBatch(ctx, productIDs[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) fetchBatch(ctx context.Context, ids []int64) ([]domain.CatalogueDetail, error) {
	nm := make([]string, len(ids))
	for i, id := range ids {
		nm[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{}
	q.Set("appType", "1")
	q.Set("curr", "rub")
	q.Set("dest", "-1257786")
	q.Set("spp", "30")
	q.Set("nm", strings.Join(nm, ";"))
	endpoint := c.cardsURL + "/cards/v2/detail?" + q.Encode()

	var resp cardsResponse
	err := c.get(ctx, "cards_detail", endpoint, func(req *http.Request) {
		req.Header.Set("User-Agent", browserAgent)
		req.Header.Set("Accept", "*/*")
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CatalogueDetail, 0, len(resp.Data.Products))
	for _, p := range resp.Data.Products {
		var pr price
		if len(p.Sizes) > 0 && p.Sizes[0].Price != nil {
			pr = *p.Sizes[0].Price
		}
		site := pr.Product
		if site == 0 {
			site = pr.Total
		}
		if site <= 0 {
			continue
		}
		basic := site
		if pr.Basic != nil {
			basic = *pr.Basic
		}
		out = append(out, domain.CatalogueDetail{
			ProductID:       p.ID,
			SubjectID:       p.SubjectID,
			SubjectParentID: p.SubjectParentID,
			SubjectName:     p.Entity,
			Brand:           p.Brand,
			DisplayName:     p.Name,
			BasicPriceMinor: basic,
			SitePriceMinor:  site,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, op, endpoint string, decorate func(*http.Request), out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.FetchError{Op: op, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.FetchError{Op: op, Err: err}
	}
	decorate(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("wildberries", op, req.URL.Host, start, err)
		return &domain.FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		ferr := &domain.FetchError{Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		metrics.ObserveNetworkRequest("wildberries", op, req.URL.Host, start, ferr)
		return ferr
	}
	err = json.NewDecoder(resp.Body).Decode(out)
	metrics.ObserveNetworkRequest("wildberries", op, req.URL.Host, start, err)
	if err != nil {
		return &domain.FetchError{Op: op, Message: fmt.Sprintf("некорректный ответ: %v", err)}
	}
	return nil
}
