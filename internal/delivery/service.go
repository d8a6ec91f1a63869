package delivery

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/freshkart/freshkart-backend/pkg/config"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	"github.com/freshkart/freshkart-backend/pkg/geocode"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (geocode.LatLng, error)
}

// AreaTier maps a distance ceiling to a named delivery zone. Tiers are
// evaluated in order; the first ceiling at or beyond the distance wins.
type AreaTier struct {
	Name  string
	MaxKM float64
}

// DefaultAreaTiers covers the serviced Mumbai zones.
var DefaultAreaTiers = []AreaTier{
	{Name: "Central Mumbai", MaxKM: 15},
	{Name: "South Mumbai", MaxKM: 20},
	{Name: "North Mumbai", MaxKM: 12},
	{Name: "East Mumbai", MaxKM: 18},
	{Name: "West Mumbai", MaxKM: 16},
}

const (
	freeDeliveryArea = "All Areas"
	fallbackArea     = "Standard"
)

// Service computes delivery quotes and exposes the slot schedule.
type Service interface {
	Quote(ctx context.Context, address string, subtotal decimal.Decimal) (types.DeliveryQuote, error)
	Slots() []enums.TimeSlot
}

type service struct {
	cfg      config.DeliveryConfig
	tiers    []AreaTier
	geocoder Geocoder
	logg     *logger.Logger
}

// NewService builds the delivery quoter. A nil geocoder is allowed and
// degrades every quote to the flat minimum fee.
func NewService(cfg config.DeliveryConfig, geocoder Geocoder, logg *logger.Logger) Service {
	return &service{
		cfg:      cfg,
		tiers:    DefaultAreaTiers,
		geocoder: geocoder,
		logg:     logg,
	}
}

func (s *service) Quote(ctx context.Context, address string, subtotal decimal.Decimal) (types.DeliveryQuote, error) {
	if subtotal.GreaterThanOrEqual(decimal.NewFromInt(int64(s.cfg.FreeDeliveryThreshold))) {
		return types.DeliveryQuote{
			Fee:         decimal.Zero,
			Deliverable: true,
			Area:        freeDeliveryArea,
			Message:     "Free delivery on this order",
		}, nil
	}

	if s.geocoder == nil {
		return s.flatQuote(), nil
	}

	point, err := s.geocoder.Resolve(ctx, address)
	if err != nil {
		// Geocoding is advisory: an outage should never block checkout,
		// so fall back to the flat fee and record the failure.
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "address", address), "delivery.geocode_failed")
		}
		return s.flatQuote(), nil
	}

	distance := haversineKM(s.cfg.StoreLat, s.cfg.StoreLng, point.Lat, point.Lng)
	area, ok := s.matchArea(distance)
	if !ok {
		return types.DeliveryQuote{
			Fee:         decimal.Zero,
			DistanceKM:  distance,
			Deliverable: false,
			Message:     "Sorry, we do not deliver to this address yet",
		}, nil
	}

	fee := int(math.Ceil(distance)) * s.cfg.RatePerKM
	if fee < s.cfg.MinimumFee {
		fee = s.cfg.MinimumFee
	}
	if fee > s.cfg.MaximumFee {
		fee = s.cfg.MaximumFee
	}

	return types.DeliveryQuote{
		Fee:         decimal.NewFromInt(int64(fee)),
		DistanceKM:  distance,
		Deliverable: true,
		Area:        area,
		Message:     "Delivery available",
	}, nil
}

func (s *service) Slots() []enums.TimeSlot {
	return enums.AllTimeSlots()
}

func (s *service) flatQuote() types.DeliveryQuote {
	return types.DeliveryQuote{
		Fee:         decimal.NewFromInt(int64(s.cfg.MinimumFee)),
		Deliverable: true,
		Area:        fallbackArea,
		Message:     "Standard delivery fee applied",
	}
}

func (s *service) matchArea(distanceKM float64) (string, bool) {
	for _, tier := range s.tiers {
		if distanceKM <= tier.MaxKM {
			return tier.Name, true
		}
	}
	return "", false
}

const earthRadiusKM = 6371

func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
