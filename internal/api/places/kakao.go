package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const (
	defaultKakaoBaseURL = "https://dapi.kakao.com"
	kakaoKeywordPath    = "/v2/local/search/keyword.json"
	kakaoMaxPageSize    = 15
	kakaoMaxRadius      = 20000
)

var _ Provider = (*KakaoProvider)(nil)

type KakaoConfig struct {
	BaseURL                 string
	APIKey                  string
	PageSize                int
	RequestsPerSecond       float64
	Burst                   int
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
}

// KakaoProvider searches the Kakao Local keyword API.
type KakaoProvider struct {
	logger   *slog.Logger
	client   *http.Client
	baseURL  string
	apiKey   string
	pageSize int
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]types.PlaceCandidate]
}

func NewKakaoProvider(cfg KakaoConfig, logger *slog.Logger) *KakaoProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultKakaoBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > kakaoMaxPageSize {
		cfg.PageSize = kakaoMaxPageSize
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &KakaoProvider{
		logger:   logger,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		limiter:  rate.NewLimiter(limit, burst),
	}

	threshold := cfg.BreakerFailureThreshold
	p.breaker = gobreaker.NewCircuitBreaker[[]types.PlaceCandidate](gobreaker.Settings{
		Name:        "kakao-local",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller-side problems do not say anything about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrAuth) ||
				errors.Is(err, ErrRateLimited) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Place search circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return p
}

type kakaoDocument struct {
	ID              string `json:"id"`
	PlaceName       string `json:"place_name"`
	CategoryName    string `json:"category_name"`
	Phone           string `json:"phone"`
	AddressName     string `json:"address_name"`
	RoadAddressName string `json:"road_address_name"`
	X               string `json:"x"`
	Y               string `json:"y"`
	PlaceURL        string `json:"place_url"`
	Distance        string `json:"distance"`
}

type kakaoResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

type kakaoErrorBody struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

func (p *KakaoProvider) Search(ctx context.Context, keyword string, bias *types.GeoBias) ([]types.PlaceCandidate, error) {
	ctx, span := otel.Tracer("PlaceSearch").Start(ctx, "KakaoProvider.Search", trace.WithAttributes(
		attribute.String("search.keyword", keyword),
	))
	defer span.End()

	if p.apiKey == "" {
		err := &ProviderError{Kind: ErrAuth, Keyword: keyword, Err: errors.New("no API key configured")}
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing api key")
		return nil, err
	}

	docs, err := p.breaker.Execute(func() ([]types.PlaceCandidate, error) {
		return p.search(ctx, keyword, bias)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &ProviderError{Kind: ErrUnavailable, Keyword: keyword, Err: err}
		}
		p.logger.DebugContext(ctx, "Place search failed",
			slog.String("query", keyword),
			slog.String("kind", KindLabel(err)),
			slog.Any("error", err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, KindLabel(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("search.results", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

func (p *KakaoProvider) search(ctx context.Context, keyword string, bias *types.GeoBias) ([]types.PlaceCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Kind: ErrTimeout, Keyword: keyword, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.buildURL(keyword, bias), nil)
	if err != nil {
		return nil, &ProviderError{Kind: ErrUnavailable, Keyword: keyword, Err: err}
	}
	req.Header.Set("Authorization", "KakaoAK "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(keyword, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, classifyTransportError(keyword, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(keyword, resp.StatusCode, body)
	}

	var parsed kakaoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Kind: ErrUnavailable, Keyword: keyword, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	out := make([]types.PlaceCandidate, 0, len(parsed.Documents))
	for _, d := range parsed.Documents {
		name := strings.TrimSpace(d.PlaceName)
		if name == "" {
			continue
		}
		address := strings.TrimSpace(d.AddressName)
		if address == "" {
			address = strings.TrimSpace(d.RoadAddressName)
		}
		c := types.PlaceCandidate{
			ExternalID:       d.ID,
			RawName:          name,
			RawAddress:       address,
			RawCategoryLabel: d.CategoryName,
			Phone:            d.Phone,
		}
		if meters, err := strconv.Atoi(d.Distance); err == nil && d.Distance != "" {
			c.ProviderDistanceHint = &meters
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *KakaoProvider) buildURL(keyword string, bias *types.GeoBias) string {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("size", strconv.Itoa(p.pageSize))
	if bias != nil {
		q.Set("x", strconv.FormatFloat(bias.Longitude, 'f', -1, 64))
		q.Set("y", strconv.FormatFloat(bias.Latitude, 'f', -1, 64))
		if bias.RadiusMeters > 0 {
			q.Set("radius", strconv.Itoa(min(bias.RadiusMeters, kakaoMaxRadius)))
		}
	}
	return p.baseURL + kakaoKeywordPath + "?" + q.Encode()
}

func classifyStatus(keyword string, status int, body []byte) error {
	var eb kakaoErrorBody
	detail := errors.New(http.StatusText(status))
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		detail = fmt.Errorf("%s: %s", eb.ErrorType, eb.Message)
	}

	kind := ErrUnavailable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrAuth
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = ErrTimeout
	}
	return &ProviderError{Kind: kind, Keyword: keyword, Status: status, Err: detail}
}

func classifyTransportError(keyword string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &ProviderError{Kind: ErrTimeout, Keyword: keyword, Err: err}
	}
	return &ProviderError{Kind: ErrUnavailable, Keyword: keyword, Err: err}
}
