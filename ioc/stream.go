package ioc

import (
	"strings"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/internal/service/monitor"
	"github.com/KNICEX/trade-alert/internal/service/stream"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/spf13/viper"
)

type exchangeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	WsURL     string `mapstructure:"ws_url"`
	RestURL   string `mapstructure:"rest_url"`
	Quote     string `mapstructure:"quote"`
	MarkPrice bool   `mapstructure:"mark_price"`
	// Symbols 非空时不拉取交易所列表, 直接使用固定表. 格式 "KRW-BTC" 或 "KRW-BTC=비트코인"
	Symbols []string `mapstructure:"symbols"`
}

// staticNames 解析固定币种表, viper 会把 map key 转成小写所以这里用列表
func staticNames(symbols []string) map[string]string {
	names := make(map[string]string, len(symbols))
	for _, item := range symbols {
		symbol, name, _ := strings.Cut(item, "=")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = symbol
		}
		names[symbol] = name
	}
	return names
}

func loadExchangeConfig(key string, def exchangeConfig) exchangeConfig {
	if err := viper.UnmarshalKey(key, &def); err != nil {
		panic(err)
	}
	return def
}

func upbitConfig() exchangeConfig {
	return loadExchangeConfig("exchange.upbit", exchangeConfig{
		Enabled: true,
		WsURL:   stream.DefaultUpbitURL,
		RestURL: market.DefaultUpbitRestURL,
		Quote:   "KRW",
	})
}

func binanceConfig() exchangeConfig {
	return loadExchangeConfig("exchange.binance_futures", exchangeConfig{
		WsURL:     stream.DefaultBinanceFuturesURL,
		Quote:     "USDT",
		MarkPrice: true,
	})
}

// InitUniverse builds the symbol universe from every enabled exchange.
func InitUniverse(cli *futures.Client) *market.Universe {
	var (
		sources []market.SymbolSource
		seeds   = map[market.Exchange]map[string]string{}
	)
	if cfg := upbitConfig(); cfg.Enabled {
		if len(cfg.Symbols) > 0 {
			seeds[market.Upbit] = staticNames(cfg.Symbols)
		} else {
			sources = append(sources, market.NewUpbitSymbolSource(cfg.RestURL, cfg.Quote))
		}
	}
	if cfg := binanceConfig(); cfg.Enabled {
		if len(cfg.Symbols) > 0 {
			seeds[market.BinanceFutures] = staticNames(cfg.Symbols)
		} else {
			sources = append(sources, market.NewBinanceFuturesSymbolSource(cli, cfg.Quote))
		}
	}

	u := market.NewUniverse(sources...)
	for ex, names := range seeds {
		u.Seed(ex, names)
	}
	return u
}

func InitConnectors() []monitor.Connector {
	cfg := stream.DefaultConfig()
	if err := viper.UnmarshalKey("stream", &cfg); err != nil {
		panic(err)
	}

	var res []monitor.Connector
	if ex := upbitConfig(); ex.Enabled {
		res = append(res, stream.NewConnector(stream.NewUpbitFeed(ex.WsURL), cfg))
	}
	if ex := binanceConfig(); ex.Enabled {
		feed := stream.NewBinanceFuturesFeed(ex.WsURL, stream.WithMarkPrice(ex.MarkPrice))
		res = append(res, stream.NewConnector(feed, cfg))
	}
	return res
}
