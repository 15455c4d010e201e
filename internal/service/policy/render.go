package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/KNICEX/trade-alert/internal/service/market"
	"github.com/KNICEX/trade-alert/pkg/decimalx"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Korean)

const timeLayout = "2006-01-02 15:04:05"

// formatAmount 原币种金额, KRW 取整显示, 其余保留两位小数
func formatAmount(ex market.Exchange, d decimal.Decimal) string {
	if ex == market.Upbit {
		return printer.Sprintf("%d 원", d.Round(0).IntPart())
	}
	r := d.Round(2)
	intPart := r.IntPart()
	frac := r.Sub(decimal.NewFromInt(intPart)).Abs().Shift(2).IntPart()
	return printer.Sprintf("%d.%02d USDT", intPart, frac)
}

func formatCount(d decimal.Decimal) string {
	return printer.Sprintf("%d", d.Floor().IntPart())
}

func directionLabel(dir Direction) string {
	switch dir {
	case DirectionSell:
		return "매도"
	case DirectionMark:
		return "마크 가격"
	default:
		return "매수"
	}
}

func (p *Policy) title(dir Direction, ex market.Exchange, symbol string) string {
	name, ok := p.names.DisplayName(ex, symbol)
	if !ok {
		return fmt.Sprintf("%s 알림: %s", directionLabel(dir), symbol)
	}
	return fmt.Sprintf("%s 알림: %s (%s)", directionLabel(dir), symbol, name)
}

func (p *Policy) changeLine(ex market.Exchange, symbol string, price decimal.Decimal, prevClose decimal.NullDecimal) string {
	if !prevClose.Valid {
		prevClose = p.refs.PrevClose(ex, symbol)
	}
	pct, ok := market.ChangePercent(price, prevClose)
	if !ok {
		return fmt.Sprintf("현재 가격: %s", formatAmount(ex, price))
	}
	return fmt.Sprintf("현재 가격: %s, 전일 대비: %s%%", formatAmount(ex, price), decimalx.Round2(pct))
}

func (p *Policy) timeLine(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return "시각: " + ts.In(p.loc).Format(timeLayout)
}

func (p *Policy) renderTrade(t market.Trade, rule Rule, dir Direction) string {
	lines := []string{
		p.title(dir, t.Exchange, t.Symbol),
		fmt.Sprintf("체결 금액 %s 으로 %s 체결되었습니다. (기준 %s 이상)",
			formatAmount(t.Exchange, t.Notional()), directionLabel(dir), formatAmount(t.Exchange, rule.MinValue)),
		fmt.Sprintf("체결 가격: %s, 수량: %s", formatAmount(t.Exchange, t.Price), t.Quantity.String()),
		p.changeLine(t.Exchange, t.Symbol, t.Price, t.PrevClose),
		p.timeLine(t.Timestamp),
	}
	return joinLines(lines)
}

func (p *Policy) renderDepth(d market.Depth, rule Rule, dir Direction, size decimal.Decimal) string {
	label := directionLabel(dir)
	lines := []string{
		p.title(dir, d.Exchange, d.Symbol),
		fmt.Sprintf("%s 호가 수량: %s개 (기준 %s개 이상)", label, formatCount(size), formatCount(rule.MinValue)),
		p.timeLine(d.Timestamp),
	}
	return joinLines(lines)
}

func (p *Policy) renderMark(t market.Ticker, rule Rule) string {
	lines := []string{
		p.title(DirectionMark, t.Exchange, t.Symbol),
		fmt.Sprintf("마크 가격: %s (기준 %s 이상)", formatAmount(t.Exchange, t.Price), formatAmount(t.Exchange, rule.MinValue)),
		p.changeLine(t.Exchange, t.Symbol, t.Price, t.PrevClose),
		p.timeLine(t.Timestamp),
	}
	return joinLines(lines)
}

func joinLines(lines []string) string {
	var sb strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l)
	}
	return sb.String()
}
