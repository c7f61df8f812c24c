package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// OrderStats aggregates totalPrice over paid orders.
type OrderStats struct {
	TotalSales        decimal.Decimal `db:"total_sales" json:"totalSales"`
	OrderCount        int             `db:"order_count" json:"orderCount"`
	AverageOrderValue decimal.Decimal `db:"average_order_value" json:"averageOrderValue"`
	MinOrderValue     decimal.Decimal `db:"min_order_value" json:"minOrderValue"`
	MaxOrderValue     decimal.Decimal `db:"max_order_value" json:"maxOrderValue"`
}

// MonthlySales is the paid-order total of one calendar month.
type MonthlySales struct {
	Year       int             `db:"year" json:"year"`
	Month      int             `db:"month" json:"month"`
	TotalSales decimal.Decimal `db:"total_sales" json:"totalSales"`
	OrderCount int             `db:"order_count" json:"orderCount"`
}

// SummarizePaidOrders computes OrderStats over the paid orders in orders.
func SummarizePaidOrders(orders []Order) OrderStats {
	stats := OrderStats{
		TotalSales:        decimal.Zero,
		AverageOrderValue: decimal.Zero,
		MinOrderValue:     decimal.Zero,
		MaxOrderValue:     decimal.Zero,
	}
	for i, o := range paidOnly(orders) {
		stats.TotalSales = stats.TotalSales.Add(o.TotalPrice)
		if i == 0 || o.TotalPrice.LessThan(stats.MinOrderValue) {
			stats.MinOrderValue = o.TotalPrice
		}
		if i == 0 || o.TotalPrice.GreaterThan(stats.MaxOrderValue) {
			stats.MaxOrderValue = o.TotalPrice
		}
		stats.OrderCount++
	}
	if stats.OrderCount > 0 {
		stats.AverageOrderValue = RoundMoney(stats.TotalSales.Div(decimal.NewFromInt(int64(stats.OrderCount))))
	}
	stats.TotalSales = RoundMoney(stats.TotalSales)
	return stats
}

// MonthlySalesOf groups paid orders by the calendar month they were created
// in, newest month first.
func MonthlySalesOf(orders []Order) []MonthlySales {
	type key struct{ year, month int }
	buckets := make(map[key]*MonthlySales)
	for _, o := range paidOnly(orders) {
		k := key{o.CreatedAt.UTC().Year(), int(o.CreatedAt.UTC().Month())}
		b, ok := buckets[k]
		if !ok {
			b = &MonthlySales{Year: k.year, Month: k.month, TotalSales: decimal.Zero}
			buckets[k] = b
		}
		b.TotalSales = b.TotalSales.Add(o.TotalPrice)
		b.OrderCount++
	}

	out := make([]MonthlySales, 0, len(buckets))
	for _, b := range buckets {
		b.TotalSales = RoundMoney(b.TotalSales)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}

func paidOnly(orders []Order) []Order {
	paid := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.IsPaid {
			paid = append(paid, o)
		}
	}
	return paid
}
