// Package analytics derives seller rollups from the order table. Nothing here
// is stored: every figure is a function of the orders in range at read time.
package analytics

import (
	"sort"
	"time"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
)

const (
	DefaultTopLimit = 5
	MaxTopLimit     = 50
)

type CategorySale struct {
	Category string `json:"category"`
	Orders   int    `json:"orders"`
	Quantity int    `json:"quantity"`
	Revenue  int64  `json:"revenue"`
	Percent  int    `json:"percent"`
}

type MonthRevenue struct {
	Month   string `json:"month"` // YYYY-MM
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

type TopBook struct {
	BookID            string `json:"bookId"`
	Title             string `json:"title"`
	TotalQuantitySold int    `json:"totalQuantitySold"`
	TotalRevenue      int64  `json:"totalRevenue"`
}

type Dashboard struct {
	Range              Range                 `json:"range"`
	TotalEarnings      int64                 `json:"totalEarnings"`
	TotalOrders        int                   `json:"totalOrders"`
	TotalBooksSold     int                   `json:"totalBooksSold"`
	OrderStatusStats   map[orders.Status]int `json:"orderStatusStats"`
	CompletionRate     int                   `json:"completionRate"`
	InProgressRate     int                   `json:"inProgressRate"`
	CancellationRate   int                   `json:"cancellationRate"`
	RepeatCustomerRate int                   `json:"repeatCustomerRate"`
	CategorySales      []CategorySale        `json:"categorySales"`
	MonthlyRevenue     []MonthRevenue        `json:"monthlyRevenue"`
	TopSellingBooks    []TopBook             `json:"topSellingBooks"`
}

// percent rounds part/whole to the nearest integer percent, halves up.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (part*200 + whole) / (whole * 2)
}

// Summary fills the counters and rates of d from sales already filtered to range.
func Summary(sales []orders.Sale) Dashboard {
	d := Dashboard{OrderStatusStats: make(map[orders.Status]int, len(orders.AllStatuses))}
	for _, s := range orders.AllStatuses {
		d.OrderStatusStats[s] = 0
	}
	for _, s := range sales {
		d.TotalOrders++
		d.OrderStatusStats[s.Status]++
		if s.Status != orders.StatusCancelled {
			d.TotalEarnings += s.TotalAmount
		}
		if s.Status == orders.StatusDelivered {
			d.TotalBooksSold += s.Quantity
		}
	}
	delivered := d.OrderStatusStats[orders.StatusDelivered]
	cancelled := d.OrderStatusStats[orders.StatusCancelled]
	d.CompletionRate = percent(delivered, d.TotalOrders)
	d.CancellationRate = percent(cancelled, d.TotalOrders)
	d.InProgressRate = percent(d.TotalOrders-delivered-cancelled, d.TotalOrders)
	d.RepeatCustomerRate = RepeatCustomerRate(sales)
	return d
}

// RepeatCustomerRate is the share of distinct buyers with two or more orders.
func RepeatCustomerRate(sales []orders.Sale) int {
	perBuyer := map[string]map[string]struct{}{}
	for _, s := range sales {
		ids, ok := perBuyer[s.BuyerID]
		if !ok {
			ids = map[string]struct{}{}
			perBuyer[s.BuyerID] = ids
		}
		ids[s.ID] = struct{}{}
	}
	repeat := 0
	for _, ids := range perBuyer {
		if len(ids) >= 2 {
			repeat++
		}
	}
	return percent(repeat, len(perBuyer))
}

const uncategorized = "uncategorized"

// CategorySales groups delivered orders by the book's category, largest
// quantity first.
func CategorySales(sales []orders.Sale) []CategorySale {
	byCat := map[string]*CategorySale{}
	sold := 0
	for _, s := range sales {
		if s.Status != orders.StatusDelivered {
			continue
		}
		cat := s.Category
		if cat == "" {
			cat = uncategorized
		}
		c, ok := byCat[cat]
		if !ok {
			c = &CategorySale{Category: cat}
			byCat[cat] = c
		}
		c.Orders++
		c.Quantity += s.Quantity
		c.Revenue += s.TotalAmount
		sold += s.Quantity
	}
	out := make([]CategorySale, 0, len(byCat))
	for _, c := range byCat {
		c.Percent = percent(c.Quantity, sold)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// MonthlyRevenue buckets non-cancelled totals by creation month over the six
// months ending with now's month. Months without orders are zero.
func MonthlyRevenue(sales []orders.Sale, now time.Time) []MonthRevenue {
	start := revenueWindowStart(now)
	out := make([]MonthRevenue, monthsOfRevenue)
	index := make(map[string]int, monthsOfRevenue)
	for i := range out {
		key := start.AddDate(0, i, 0).Format("2006-01")
		out[i].Month = key
		index[key] = i
	}
	for _, s := range sales {
		if s.Status == orders.StatusCancelled {
			continue
		}
		i, ok := index[s.CreatedAt.In(now.Location()).Format("2006-01")]
		if !ok {
			continue
		}
		out[i].Revenue += s.TotalAmount
		out[i].Orders++
	}
	return out
}

// TopBooks ranks books by quantity sold over non-cancelled orders. Ties go to
// the higher revenue, then the lower book id.
func TopBooks(sales []orders.Sale, limit int) []TopBook {
	limit = clampLimit(limit)
	byBook := map[string]*TopBook{}
	for _, s := range sales {
		if s.Status == orders.StatusCancelled {
			continue
		}
		b, ok := byBook[s.BookID]
		if !ok {
			b = &TopBook{BookID: s.BookID, Title: s.BookTitle}
			byBook[s.BookID] = b
		}
		b.TotalQuantitySold += s.Quantity
		b.TotalRevenue += s.TotalAmount
	}
	out := make([]TopBook, 0, len(byBook))
	for _, b := range byBook {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalQuantitySold != b.TotalQuantitySold {
			return a.TotalQuantitySold > b.TotalQuantitySold
		}
		if a.TotalRevenue != b.TotalRevenue {
			return a.TotalRevenue > b.TotalRevenue
		}
		return a.BookID < b.BookID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultTopLimit
	case limit > MaxTopLimit:
		return MaxTopLimit
	}
	return limit
}

// Compute builds the whole dashboard. inRange holds the orders in the
// selected window; recent covers at least the revenue chart's six months.
func Compute(rng Range, inRange, recent []orders.Sale, now time.Time, limit int) Dashboard {
	d := Summary(inRange)
	d.Range = rng
	d.CategorySales = CategorySales(inRange)
	d.TopSellingBooks = TopBooks(inRange, limit)
	d.MonthlyRevenue = MonthlyRevenue(recent, now)
	return d
}
