package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
)

const DefaultUpbitRestURL = "https://api.upbit.com"

type upbitMarket struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

// UpbitSymbolSource 拉取 Upbit 指定计价货币(默认 KRW)的全部市场
type UpbitSymbolSource struct {
	baseURL string
	quote   string
	client  *http.Client
}

func NewUpbitSymbolSource(baseURL, quote string) *UpbitSymbolSource {
	if baseURL == "" {
		baseURL = DefaultUpbitRestURL
	}
	if quote == "" {
		quote = "KRW"
	}
	return &UpbitSymbolSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		quote:   strings.ToUpper(quote),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *UpbitSymbolSource) Exchange() Exchange {
	return Upbit
}

func (s *UpbitSymbolSource) FetchNames(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/market/all?isDetails=false", nil)
	if err != nil {
		return nil, fmt.Errorf("upbit: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upbit: fetch markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upbit: unexpected status code: %d", resp.StatusCode)
	}

	var markets []upbitMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("upbit: decode markets: %w", err)
	}

	prefix := s.quote + "-"
	markets = lo.Filter(markets, func(item upbitMarket, index int) bool {
		return strings.HasPrefix(item.Market, prefix)
	})
	return lo.SliceToMap(markets, func(item upbitMarket) (string, string) {
		if item.KoreanName == "" {
			return item.Market, item.EnglishName
		}
		return item.Market, item.KoreanName
	}), nil
}
