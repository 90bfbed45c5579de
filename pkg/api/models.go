package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tkrajina/gpxgo/gpx"
)

// SortOrder selects the server-side ranking of nearby results.
type SortOrder string

const (
	SortByDistance SortOrder = "distance"
	SortByPrice    SortOrder = "price"
)

// Valid reports whether o is a known sort order.
func (o SortOrder) Valid() bool {
	return o == SortByDistance || o == SortByPrice
}

// Trend is the direction of the last price change of a product.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// FuelPrice is the price of one product at one station.
type FuelPrice struct {
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Price            decimal.Decimal `json:"price"`
	CollectionDate   time.Time       `json:"collection_date"`
	Trend            Trend           `json:"trend"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
}

// Station is an immutable snapshot of a fuel station as returned by the backend.
type Station struct {
	ID        string      `json:"id"`
	TradeName string      `json:"trade_name"`
	LegalName string      `json:"legal_name"`
	Brand     string      `json:"brand"`
	Address   string      `json:"address"`
	City      string      `json:"city"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Distance  float64     `json:"distance,omitempty"` // meters from the search center
	Prices    []FuelPrice `json:"fuel_prices"`
}

// Price returns the price entry for productID.
func (s *Station) Price(productID string) (FuelPrice, bool) {
	for _, p := range s.Prices {
		if p.ProductID == productID {
			return p, true
		}
	}
	return FuelPrice{}, false
}

// DistanceTo returns the haversine distance in meters from the station to lat, lng.
func (s *Station) DistanceTo(lat, lng float64) float64 {
	return gpx.Distance2D(lat, lng, s.Latitude, s.Longitude, true)
}

// NearbyParams identifies one page of a nearby stations search.
// Radius is expressed in kilometers.
type NearbyParams struct {
	Latitude  float64
	Longitude float64
	Radius    float64
	Sort      SortOrder
	Product   string
	Limit     int
	Offset    int
}

// NearbyPage is one page of nearby stations.
type NearbyPage struct {
	Results []Station `json:"results"`
	Total   int       `json:"total"`
}

// FuelType is an entry of the fuel catalog.
type FuelType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryParams narrows a price history request.
type HistoryParams struct {
	ProductID string
	Days      int
}

// PricePoint is a single observation in a price history series.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// ProductPriceHistory is the price series of one product at one station.
type ProductPriceHistory struct {
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	Points      []PricePoint `json:"points"`
}

// FavoriteEntry is a favorited (station, product) pair.
type FavoriteEntry struct {
	GasStationID string    `json:"gas_station_id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	TradeName    string    `json:"trade_name"`
	Brand        string    `json:"brand"`
	Address      string    `json:"address"`
	FavoritedAt  time.Time `json:"favorited_at"`
}

// BulkFavoritesRequest is the body of the bulk add and remove calls.
type BulkFavoritesRequest struct {
	GasStationID string   `json:"gas_station_id"`
	ProductIDs   []string `json:"product_ids"`
}
