package market

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/samber/lo"
)

// BinanceFuturesSymbolSource lists the USDⓈ-M perpetual contracts that are
// currently trading.
type BinanceFuturesSymbolSource struct {
	cli   *futures.Client
	quote string
}

func NewBinanceFuturesSymbolSource(cli *futures.Client, quote string) *BinanceFuturesSymbolSource {
	if quote == "" {
		quote = "USDT"
	}
	return &BinanceFuturesSymbolSource{
		cli:   cli,
		quote: strings.ToUpper(quote),
	}
}

func (s *BinanceFuturesSymbolSource) Exchange() Exchange {
	return BinanceFutures
}

func (s *BinanceFuturesSymbolSource) FetchNames(ctx context.Context) (map[string]string, error) {
	info, err := s.cli.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}

	symbols := lo.Filter(info.Symbols, func(item futures.Symbol, index int) bool {
		return string(item.Status) == "TRADING" &&
			string(item.ContractType) == "PERPETUAL" &&
			item.QuoteAsset == s.quote
	})
	return lo.SliceToMap(symbols, func(item futures.Symbol) (string, string) {
		// 合约没有本地化名称, 用 BTC/USDT 形式展示
		return item.Symbol, item.BaseAsset + "/" + item.QuoteAsset
	}), nil
}
