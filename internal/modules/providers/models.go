package providers

import "time"

// Provider is a first-party AI vendor.
type Provider struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceRate is one billable offering joined to its current rate.
type ServiceRate struct {
	ServiceID   int64    `json:"service_id"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Unit        string   `json:"unit,omitempty"`
}

// Listing is a provider summarized for the browse surface.
type Listing struct {
	Provider
	ServiceCount int      `json:"service_count"`
	MinPrice     *float64 `json:"min_price,omitempty"`
}

// Detail is a provider with all of its services and current rates.
type Detail struct {
	Provider
	Services []ServiceRate `json:"services"`
}

// Comparison is one provider's current price for a compared category.
type Comparison struct {
	Provider    string  `json:"provider"`
	ServiceID   int64   `json:"service_id"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Unit        string  `json:"unit"`
}

// CurrentRate is the most recent rate observed for a provider, used as
// the alert evaluator's current observation.
type CurrentRate struct {
	Provider    string    `json:"provider"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	Unit        string    `json:"unit"`
	CreatedAt   time.Time `json:"created_at"`
}
