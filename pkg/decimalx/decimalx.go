package decimalx

import (
	"github.com/shopspring/decimal"
)

// Bucket 把数值按 size 分档, 返回向下取整后的档位序号
// size <= 0 时不分档, 直接返回取整后的数值
func Bucket(d, size decimal.Decimal) int64 {
	if !size.IsPositive() {
		return d.Floor().IntPart()
	}
	return d.Div(size).Floor().IntPart()
}

// Round2 用于展示, 保留两位小数
func Round2(d decimal.Decimal) string {
	return d.StringFixed(2)
}
