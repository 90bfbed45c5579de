package devserver

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tkrajina/gpxgo/gpx"

	"github.com/rubiojr/gaswatch/pkg/api"
)

const (
	kmPerDegree   = 111.32
	metersPerKm   = 1000.0
	goldenAngle   = 2.399963229728653
	historyMaxLen = 365
)

var (
	errUnknownStation = errors.New("unknown station")
	errUnknownProduct = errors.New("unknown product")
)

var fuelTypes = []api.FuelType{
	{ID: "1", Name: "Gasolina 95 E5"},
	{ID: "3", Name: "Gasolina 98 E5"},
	{ID: "4", Name: "Gasóleo A"},
	{ID: "5", Name: "Gasóleo Premium"},
	{ID: "17", Name: "GLP"},
}

var basePrices = map[string]decimal.Decimal{
	"1":  decimal.RequireFromString("1.549"),
	"3":  decimal.RequireFromString("1.689"),
	"4":  decimal.RequireFromString("1.459"),
	"5":  decimal.RequireFromString("1.559"),
	"17": decimal.RequireFromString("0.949"),
}

var brands = []string{"Repsol", "Cepsa", "BP", "Shell", "Galp", "Ballenoil", "Petroprix"}

// Dataset is the in-memory state behind the dev backend.
type Dataset struct {
	now func() time.Time

	mu        sync.Mutex
	stations  []api.Station
	byID      map[string]int
	favorites []api.FavoriteEntry
}

// SeedOptions controls the generated stations.
type SeedOptions struct {
	Latitude  float64
	Longitude float64
	Stations  int
	// SpreadKm is the radius of the disc the stations are scattered in.
	SpreadKm float64
	Now      func() time.Time
}

// NewDataset builds a deterministic set of stations around the seed
// coordinate.
func NewDataset(opts SeedOptions) *Dataset {
	if opts.Stations <= 0 {
		opts.Stations = 50
	}
	if opts.SpreadKm <= 0 {
		opts.SpreadKm = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dataset{now: opts.Now, byID: map[string]int{}}
	collected := opts.Now().UTC().Truncate(24 * time.Hour)

	for i := range opts.Stations {
		dist := opts.SpreadKm * math.Sqrt((float64(i)+0.5)/float64(opts.Stations))
		angle := float64(i) * goldenAngle
		lat := opts.Latitude + dist*math.Cos(angle)/kmPerDegree
		lng := opts.Longitude + dist*math.Sin(angle)/(kmPerDegree*math.Cos(opts.Latitude*math.Pi/180))

		brand := brands[i%len(brands)]
		s := api.Station{
			ID:        fmt.Sprintf("%d", 1000+i),
			TradeName: fmt.Sprintf("%s %d", brand, i+1),
			LegalName: fmt.Sprintf("%s ESTACIONES S.L.", brand),
			Brand:     brand,
			Address:   fmt.Sprintf("Calle Mayor %d", i+1),
			City:      "Madrid",
			Latitude:  lat,
			Longitude: lng,
		}
		for j, ft := range fuelTypes {
			// not every station sells every fuel
			if (i+j)%4 == 3 {
				continue
			}
			s.Prices = append(s.Prices, fuelPrice(ft, i, collected))
		}
		d.byID[s.ID] = len(d.stations)
		d.stations = append(d.stations, s)
	}
	return d
}

func fuelPrice(ft api.FuelType, i int, collected time.Time) api.FuelPrice {
	offset := decimal.New(int64((i*37)%60), -3)
	change := decimal.New(int64(i%7-3), -1)

	trend := api.TrendStable
	switch {
	case change.IsPositive():
		trend = api.TrendUp
	case change.IsNegative():
		trend = api.TrendDown
	}

	return api.FuelPrice{
		ProductID:        ft.ID,
		ProductName:      ft.Name,
		Price:            basePrices[ft.ID].Add(offset),
		CollectionDate:   collected,
		Trend:            trend,
		PercentageChange: change,
	}
}

// Nearby returns one page of stations within p.Radius kilometers and the
// size of the whole result set.
func (d *Dataset) Nearby(p api.NearbyParams) api.NearbyPage {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matches []api.Station
	for _, s := range d.stations {
		if p.Product != "" {
			if _, ok := s.Price(p.Product); !ok {
				continue
			}
		}
		distance := gpx.Distance2D(p.Latitude, p.Longitude, s.Latitude, s.Longitude, true)
		if distance > p.Radius*metersPerKm {
			continue
		}
		s.Distance = distance
		matches = append(matches, s)
	}

	slices.SortStableFunc(matches, func(a, b api.Station) int {
		if p.Sort == api.SortByPrice {
			if c := comparePrice(a, b, p.Product); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	page := api.NearbyPage{Total: len(matches), Results: []api.Station{}}
	if p.Offset >= len(matches) {
		return page
	}
	end := min(p.Offset+p.Limit, len(matches))
	for _, s := range matches[p.Offset:end] {
		s.Prices = slices.Clone(s.Prices)
		page.Results = append(page.Results, s)
	}
	return page
}

// comparePrice orders by the price of product, or by the cheapest price
// when product is empty. Stations without a price go last.
func comparePrice(a, b api.Station, product string) int {
	pa, okA := lowestPrice(a, product)
	pb, okB := lowestPrice(b, product)
	switch {
	case okA && okB:
		return pa.Cmp(pb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return 0
}

func lowestPrice(s api.Station, product string) (decimal.Decimal, bool) {
	if product != "" {
		fp, ok := s.Price(product)
		return fp.Price, ok
	}
	if len(s.Prices) == 0 {
		return decimal.Zero, false
	}
	lowest := s.Prices[0].Price
	for _, fp := range s.Prices[1:] {
		lowest = decimal.Min(lowest, fp.Price)
	}
	return lowest, true
}

// Station returns a copy of the station with the given id.
func (d *Dataset) Station(id string) (api.Station, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stationLocked(id)
}

func (d *Dataset) stationLocked(id string) (api.Station, bool) {
	i, ok := d.byID[id]
	if !ok {
		return api.Station{}, false
	}
	s := d.stations[i]
	s.Prices = slices.Clone(s.Prices)
	return s, true
}

// History returns a daily price series for the last days days, ending at
// each product's current price. An empty product returns every product.
func (d *Dataset) History(id, product string, days int) ([]api.ProductPriceHistory, error) {
	s, ok := d.Station(id)
	if !ok {
		return nil, errUnknownStation
	}
	days = min(max(days, 1), historyMaxLen)

	var out []api.ProductPriceHistory
	for _, fp := range s.Prices {
		if product != "" && fp.ProductID != product {
			continue
		}
		h := api.ProductPriceHistory{ProductID: fp.ProductID, ProductName: fp.ProductName}
		for back := days - 1; back >= 0; back-- {
			// a small weekly wave around the current price
			wave := decimal.New(int64((back%7)*3), -3)
			h.Points = append(h.Points, api.PricePoint{
				Date:  fp.CollectionDate.AddDate(0, 0, -back),
				Price: fp.Price.Add(wave),
			})
		}
		out = append(out, h)
	}
	if product != "" && len(out) == 0 {
		return nil, errUnknownProduct
	}
	return out, nil
}

// FuelTypes returns the fuel catalog.
func (d *Dataset) FuelTypes() []api.FuelType {
	return slices.Clone(fuelTypes)
}

// Favorites returns every favorite, most recent first.
func (d *Dataset) Favorites() []api.FavoriteEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]api.FavoriteEntry{}, d.favorites...)
	slices.Reverse(out)
	return out
}

// StationFavorites returns the favorited product ids of one station.
func (d *Dataset) StationFavorites(stationID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[stationID]; !ok {
		return nil, errUnknownStation
	}
	out := []string{}
	for _, f := range d.favorites {
		if f.GasStationID == stationID {
			out = append(out, f.ProductID)
		}
	}
	return out, nil
}

// AddFavorites favorites every product of stationID. Already favorited
// products are left alone. Nothing changes when any id is invalid.
func (d *Dataset) AddFavorites(stationID string, products []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.stationLocked(stationID)
	if !ok {
		return errUnknownStation
	}
	var prices []api.FuelPrice
	for _, p := range products {
		fp, ok := s.Price(p)
		if !ok {
			return fmt.Errorf("%w: %s", errUnknownProduct, p)
		}
		prices = append(prices, fp)
	}

	now := d.now().UTC()
	for _, fp := range prices {
		if d.isFavoriteLocked(stationID, fp.ProductID) {
			continue
		}
		d.favorites = append(d.favorites, api.FavoriteEntry{
			GasStationID: stationID,
			ProductID:    fp.ProductID,
			ProductName:  fp.ProductName,
			TradeName:    s.TradeName,
			Brand:        s.Brand,
			Address:      s.Address,
			FavoritedAt:  now,
		})
	}
	return nil
}

// RemoveFavorites unfavorites the products of stationID.
func (d *Dataset) RemoveFavorites(stationID string, products []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byID[stationID]; !ok {
		return errUnknownStation
	}
	d.favorites = slices.DeleteFunc(d.favorites, func(f api.FavoriteEntry) bool {
		return f.GasStationID == stationID && slices.Contains(products, f.ProductID)
	})
	return nil
}

func (d *Dataset) isFavoriteLocked(stationID, productID string) bool {
	return slices.ContainsFunc(d.favorites, func(f api.FavoriteEntry) bool {
		return f.GasStationID == stationID && f.ProductID == productID
	})
}
