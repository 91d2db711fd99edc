package geo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"flowlens/pkg/models"
)

// DomesticCountry is the single label every Chinese-administered region
// collapses to.
const DomesticCountry = "中国"

// chineseRegions are the upstream labels folded into DomesticCountry.
var chineseRegions = map[string]struct{}{
	"中国":              {},
	"China":           {},
	"Hong Kong":       {},
	"Macao":           {},
	"Macau":           {},
	"Taiwan":          {},
	"Taiwan, China":   {},
	"Hong Kong, China": {},
	"Macao, China":    {},
}

// Normalizer maps upstream country labels to dashboard labels.
type Normalizer struct {
	translations map[string]string
}

// NewNormalizer builds a normalizer over an explicit translation table.
// The table is constructed at startup and passed in; there is no package
// level registry.
func NewNormalizer(translations map[string]string) *Normalizer {
	if translations == nil {
		translations = map[string]string{}
	}
	return &Normalizer{translations: translations}
}

// Country normalizes one label: Chinese-administered regions collapse to
// DomesticCountry, known countries translate, anything else becomes empty.
func (n *Normalizer) Country(raw string) string {
	if raw == "" {
		return ""
	}
	if _, ok := chineseRegions[raw]; ok {
		return DomesticCountry
	}
	if translated, ok := n.translations[raw]; ok {
		return translated
	}
	return ""
}

// LoadTranslations reads the upstream→label translation table from YAML.
func LoadTranslations(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country translations: %w", err)
	}
	var table map[string]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse country translations: %w", err)
	}
	return table, nil
}

type localLocation struct {
	Country   string  `yaml:"country"`
	Province  string  `yaml:"province"`
	City      string  `yaml:"city"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// LoadLocalRecord reads the singleton location record that stands in for
// private addresses. Loaded once at startup.
func LoadLocalRecord(path string) (models.GeoRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.GeoRecord{}, fmt.Errorf("read local location: %w", err)
	}
	var loc localLocation
	if err := yaml.Unmarshal(data, &loc); err != nil {
		return models.GeoRecord{}, fmt.Errorf("parse local location: %w", err)
	}
	return models.GeoRecord{
		Country:   loc.Country,
		Province:  loc.Province,
		City:      loc.City,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}, nil
}
