package onboarding

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

//go:embed mockdata.json
var mockRegistryData []byte

// SupportedCountries are the country codes the registry can answer for.
var SupportedCountries = []string{"DK", "SE", "NO", "FI"}

// externalKeyTypes maps a country code to the name of its national id scheme.
var externalKeyTypes = map[string]string{
	"DK": "DanishNationalId",
	"SE": "SwedishNationalId",
	"NO": "NorwegianNationalId",
	"FI": "FinnishNationalId",
}

// RegistryPerson is one national registry record. ResidencePermitNumber
// is a string for non-EU citizens and false otherwise.
type RegistryPerson struct {
	FirstName             string   `json:"firstName"`
	LastName              string   `json:"lastName"`
	DateOfBirth           string   `json:"dateOfBirth"`
	Gender                string   `json:"gender"`
	Address               string   `json:"address"`
	MaritalStatus         string   `json:"maritalStatus"`
	Citizenship           []string `json:"citizenship"`
	ResidencePermitNumber any      `json:"residencePermitNumber"`
}

// PermitNumber returns the expected residence permit number and whether
// permit verification is required for this person.
func (p *RegistryPerson) PermitNumber() (string, bool) {
	s, ok := p.ResidencePermitNumber.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Age computes the person's age in whole years as of now.
func (p *RegistryPerson) Age(now time.Time) (int, error) {
	dob, err := time.Parse("2006-01-02", p.DateOfBirth)
	if err != nil {
		return 0, fmt.Errorf("parse date of birth %q: %w", p.DateOfBirth, err)
	}

	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age, nil
}

// UnsupportedCountryError reports a lookup for a country outside the
// registry's coverage.
type UnsupportedCountryError struct {
	Country string
}

func (e *UnsupportedCountryError) Error() string {
	return fmt.Sprintf("invalid country %q, allowed: %s", e.Country, strings.Join(SupportedCountries, ", "))
}

// UnknownIDError reports a national id the registry has no record for.
type UnknownIDError struct {
	Country string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("invalid ID for %s", e.Country)
}

// Registry is a mock national registry loaded from embedded data.
type Registry struct {
	records map[string]map[string]*RegistryPerson
}

// NewRegistry loads the embedded registry records.
func NewRegistry() (*Registry, error) {
	var records map[string]map[string]*RegistryPerson
	if err := json.Unmarshal(mockRegistryData, &records); err != nil {
		return nil, fmt.Errorf("decode registry data: %w", err)
	}
	return &Registry{records: records}, nil
}

// Lookup retrieves a person by country code and national id.
func (r *Registry) Lookup(country, nationalID string) (*RegistryPerson, error) {
	byID, ok := r.records[country]
	if !ok {
		return nil, &UnsupportedCountryError{Country: country}
	}
	person, ok := byID[nationalID]
	if !ok {
		return nil, &UnknownIDError{Country: country}
	}
	return person, nil
}

// ExternalKeyType returns the national id scheme name for a country.
func ExternalKeyType(country string) string {
	if t, ok := externalKeyTypes[country]; ok {
		return t
	}
	return "NationalId"
}

// PostalCode extracts the postal code from a single-line address such as
// "Tokkerupvej 35, 2730 Herlev".
func PostalCode(address string) string {
	parts := strings.SplitN(address, ",", 2)
	if len(parts) < 2 {
		return ""
	}
	tokens := strings.Fields(parts[1])
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// City extracts the city name from a single-line address.
func City(address string) string {
	parts := strings.SplitN(address, ",", 2)
	if len(parts) < 2 {
		return ""
	}
	tokens := strings.Fields(parts[1])
	if len(tokens) < 2 {
		return ""
	}
	return strings.Join(tokens[1:], " ")
}
