package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"rsd-scraper/internal/domain/entity"
	"rsd-scraper/internal/usecase/scrape"
)

// DefaultRORAPI is the public ROR v2 endpoint.
const DefaultRORAPI = "https://api.ror.org/v2"

var rorIDPattern = regexp.MustCompile(`^https?://ror\.org/(0[a-z0-9]{6}[0-9]{2})/?$`)

// RORScraper fetches organisation locations from the Research Organization
// Registry.
type RORScraper struct {
	api     *apiClient
	baseURL string
}

// NewRORScraper creates a RORScraper.
func NewRORScraper(client *http.Client, baseURL string, limiter *RateLimiter) *RORScraper {
	if baseURL == "" {
		baseURL = DefaultRORAPI
	}
	return &RORScraper{
		api:     newAPIClient("ror", client, limiter, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type rorOrganization struct {
	// v2
	Locations []struct {
		GeonamesDetails struct {
			Name        string `json:"name"`
			CountryName string `json:"country_name"`
		} `json:"geonames_details"`
	} `json:"locations"`
	// v1
	Addresses []struct {
		City string `json:"city"`
	} `json:"addresses"`
	Country *struct {
		CountryName string `json:"country_name"`
	} `json:"country"`
}

// Location fetches the city and country of the organisation identified by a
// ROR id such as https://ror.org/04tsk2644.
func (r *RORScraper) Location(ctx context.Context, reference string) (entity.Payload, error) {
	m := rorIDPattern.FindStringSubmatch(strings.TrimSpace(reference))
	if m == nil {
		return nil, fmt.Errorf("%w: not a ROR id: %q", scrape.ErrInvalidReference, reference)
	}

	var org rorOrganization
	if _, err := r.api.getJSON(ctx, r.baseURL+"/organizations/"+m[1], &org); err != nil {
		return nil, err
	}

	var city, country string
	if len(org.Locations) > 0 {
		city = org.Locations[0].GeonamesDetails.Name
		country = org.Locations[0].GeonamesDetails.CountryName
	}
	if city == "" && len(org.Addresses) > 0 {
		city = org.Addresses[0].City
	}
	if country == "" && org.Country != nil {
		country = org.Country.CountryName
	}
	if city == "" && country == "" {
		return nil, fmt.Errorf("%w: ror: no location for %s", scrape.ErrNoData, m[1])
	}

	return entity.OrganisationLocation{Country: nonEmpty(country), City: nonEmpty(city)}, nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
