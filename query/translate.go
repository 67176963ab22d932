package query

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed data/translations.yaml
var translationsYAML []byte

// Translations holds the lookup tables between user facing names and report data names.
type Translations struct {
	Months            []string          `yaml:"months"`
	Countries         map[string]string `yaml:"countries"`
	ExcludedCountries []string          `yaml:"excluded_countries"`
	Destinations      map[string]string `yaml:"destinations"`
	Cities            map[string]string `yaml:"cities"`
	ClusterCities     map[string]string `yaml:"cluster_cities"`
	Profiles          map[string]int    `yaml:"profiles"`

	citiesEN map[string]string
	citiesES map[string]string
}

// DefaultTranslations returns the embedded tables.
func DefaultTranslations() (*Translations, error) {
	return ParseTranslations(translationsYAML)
}

func ParseTranslations(data []byte) (*Translations, error) {
	var t Translations
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse translations: %w", err)
	}
	if len(t.Months) != 12 {
		return nil, fmt.Errorf("translations: want 12 months, got %d", len(t.Months))
	}
	t.citiesEN = make(map[string]string, len(t.Cities))
	t.citiesES = make(map[string]string, len(t.Cities))
	for es, en := range t.Cities {
		t.citiesEN[Normalize(es)] = en
		t.citiesES[Normalize(en)] = es
	}
	return &t, nil
}

// Normalize lower-cases and trims a value for comparison with report data.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CityToData maps a Spanish city label to the report's city name. Unknown cities pass through.
func (t *Translations) CityToData(city string) string {
	if en, ok := t.citiesEN[Normalize(city)]; ok {
		return en
	}
	return city
}

// CityFromData maps a report city name back to its Spanish label.
func (t *Translations) CityFromData(city string) string {
	if es, ok := t.citiesES[Normalize(city)]; ok {
		return es
	}
	return city
}

// ClusterCity returns the display name of a cluster report city.
func (t *Translations) ClusterCity(city string) string {
	if pretty, ok := t.ClusterCities[Normalize(city)]; ok {
		return pretty
	}
	return Title(city)
}

// Country maps a reference-table country name to its Spanish name.
func (t *Translations) Country(name string) string {
	if es, ok := t.Countries[strings.TrimSpace(name)]; ok {
		return es
	}
	return name
}

// Destination maps a destination button label to the report's destination name.
func (t *Translations) Destination(label string) string {
	n := Normalize(label)
	if d, ok := t.Destinations[n]; ok {
		return d
	}
	return n
}

// MonthName returns the lower-case Spanish name of month m.
func (t *Translations) MonthName(m time.Month) string {
	return t.Months[int(m)-1]
}

func (t *Translations) monthNumber(name string) (time.Month, bool) {
	n := Normalize(name)
	for i, m := range t.Months {
		if m == n {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// MonthAfterDays returns the Spanish month reached days after the first of month in year.
func (t *Translations) MonthAfterDays(month string, days, year int) (string, error) {
	m, ok := t.monthNumber(month)
	if !ok {
		return "", fmt.Errorf("unknown month %q", month)
	}
	d := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return t.MonthName(d.Month()), nil
}

// Title upper-cases the first letter of every word.
func Title(s string) string {
	return cases.Title(language.Spanish).String(s)
}

// FormatNumber writes n with non-breaking spaces as thousands separators.
func FormatNumber(n int64) string {
	return strings.ReplaceAll(humanize.Comma(n), ",", "\u00a0")
}
