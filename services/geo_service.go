package services

import (
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

const DefaultCurrency = "USD"

var countryCurrencies = map[string]string{
	"NG": "NGN",
	"GH": "GHS",
	"ZA": "ZAR",
	"KE": "KES",
	"US": "USD",
	"GB": "GBP",
	"CA": "CAD",
	"AU": "AUD",
	"DE": "EUR",
	"FR": "EUR",
	"ES": "EUR",
	"IT": "EUR",
	"NL": "EUR",
	"IE": "EUR",
	"BE": "EUR",
	"PT": "EUR",
	"AT": "EUR",
	"FI": "EUR",
}

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// GeoService picks a default currency from the caller's IP address.
type GeoService struct {
	reader countryReader
	closer func() error
	logger *zap.Logger
}

// NewGeoService opens the GeoLite2 database. An empty path gives a service that
// always answers with the default currency.
func NewGeoService(dbPath string, logger *zap.Logger) (*GeoService, error) {
	if dbPath == "" {
		return &GeoService{logger: logger}, nil
	}
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &GeoService{reader: db, closer: db.Close, logger: logger}, nil
}

func (g *GeoService) Country(ip string) string {
	if g.reader == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := g.reader.Country(parsed)
	if err != nil {
		g.logger.Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		return ""
	}
	return record.Country.IsoCode
}

func (g *GeoService) DefaultCurrency(ip string) string {
	return CurrencyForCountry(g.Country(ip))
}

func (g *GeoService) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func CurrencyForCountry(country string) string {
	if currency, ok := countryCurrencies[strings.ToUpper(country)]; ok {
		return currency
	}
	return DefaultCurrency
}
