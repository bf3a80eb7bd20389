package domain

import "time"

// ProductEntity is the product dimension entry for one stock code. Aggregate
// attributes are recomputed from the full valid-row population on every
// merge, never drifted incrementally.
type ProductEntity struct {
	ProductKey     int64     `json:"product_key"`
	NaturalKeyHash string    `json:"natural_key_hash"`
	StockCode      string    `json:"stock_code"`
	Description    string    `json:"description"`
	TimesSold      int64     `json:"times_sold"`
	TotalQuantity  int64     `json:"total_quantity"`
	TotalRevenue   float64   `json:"total_revenue"`
	MinUnitPrice   float64   `json:"min_unit_price"`
	MaxUnitPrice   float64   `json:"max_unit_price"`
	AvgUnitPrice   float64   `json:"avg_unit_price"`
	FirstSoldAt    time.Time `json:"first_sold_at"`
	LastSoldAt     time.Time `json:"last_sold_at"`
}

// CustomerEntity is the customer dimension entry. The reserved guest entity,
// keyed by GuestCustomerHash, absorbs every row without a customer
// identifier.
type CustomerEntity struct {
	CustomerKey     int64     `json:"customer_key"`
	NaturalKeyHash  string    `json:"natural_key_hash"`
	CustomerID      *int64    `json:"customer_id,omitempty"`
	IsGuest         bool      `json:"is_guest"`
	Country         string    `json:"country"`
	TotalOrders     int64     `json:"total_orders"`
	TotalItems      int64     `json:"total_items"`
	TotalSpent      float64   `json:"total_spent"`
	FirstPurchaseAt time.Time `json:"first_purchase_at"`
	LastPurchaseAt  time.Time `json:"last_purchase_at"`
}

// DateEntity is one calendar day of the date dimension. The dimension is
// generated eagerly for the whole observed range, one row per day.
type DateEntity struct {
	DateKey        int64     `json:"date_key"`
	NaturalKeyHash string    `json:"natural_key_hash"`
	DateValue      time.Time `json:"date_value"`
	Year           int       `json:"year"`
	Quarter        int       `json:"quarter"`
	Month          int       `json:"month"`
	MonthName      string    `json:"month_name"`
	DayOfMonth     int       `json:"day_of_month"`
	DayOfWeek      int       `json:"day_of_week"`
	DayName        string    `json:"day_name"`
	IsWeekend      bool      `json:"is_weekend"`
}

// NewDateEntity derives the calendar attributes for a day.
func NewDateEntity(day time.Time) DateEntity {
	day = day.UTC().Truncate(24 * time.Hour)
	weekday := day.Weekday()
	return DateEntity{
		NaturalKeyHash: DateNaturalKey(day),
		DateValue:      day,
		Year:           day.Year(),
		Quarter:        (int(day.Month())-1)/3 + 1,
		Month:          int(day.Month()),
		MonthName:      day.Month().String(),
		DayOfMonth:     day.Day(),
		DayOfWeek:      int(weekday),
		DayName:        weekday.String(),
		IsWeekend:      weekday == time.Saturday || weekday == time.Sunday,
	}
}

// DateRange generates the inclusive day-by-day range between min and max.
func DateRange(min, max time.Time) []DateEntity {
	min = min.UTC().Truncate(24 * time.Hour)
	max = max.UTC().Truncate(24 * time.Hour)
	if max.Before(min) {
		return nil
	}
	var out []DateEntity
	for d := min; !d.After(max); d = d.AddDate(0, 0, 1) {
		out = append(out, NewDateEntity(d))
	}
	return out
}
