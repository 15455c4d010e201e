package policy

import (
	"strconv"
	"strings"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
	DirectionMark Direction = "Mark"
)

func directionOf(side market.Side) Direction {
	if side == market.Sell {
		return DirectionSell
	}
	return DirectionBuy
}

// CandidateAlert 触发阈值的候选告警, 经过去重后才会发送
type CandidateAlert struct {
	Key        string
	Exchange   market.Exchange
	Symbol     string
	Direction  Direction
	Metric     Metric
	Rule       string
	Magnitude  decimal.Decimal
	Text       string
	ProducedAt time.Time
}

// DedupKey digests only the fields that make two alerts the same event:
// exchange, symbol, metric, direction and the magnitude bucket. Rendered text
// is deliberately left out because it carries the live change percentage.
func DedupKey(ex market.Exchange, symbol string, metric Metric, dir Direction, bucket int64) string {
	var sb strings.Builder
	sb.WriteString(string(ex))
	sb.WriteByte('|')
	sb.WriteString(symbol)
	sb.WriteByte('|')
	sb.WriteString(string(metric))
	sb.WriteByte('|')
	sb.WriteString(string(dir))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(bucket, 10))
	return strconv.FormatUint(xxhash.Sum64String(sb.String()), 16)
}
