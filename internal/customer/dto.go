package customer

import "strings"

// CountryDto is an ISO 3166-1 alpha-2 country code.
type CountryDto struct {
	Code string `json:"code" validate:"required,len=2"`
}

// LanguageDto is an ISO 639-1 language code.
type LanguageDto struct {
	Code string `json:"code" validate:"required,len=2"`
}

// AddressDto is one postal address of a customer.
type AddressDto struct {
	StreetName  string      `json:"streetName" validate:"required"`
	HouseNumber string      `json:"houseNumber" validate:"required"`
	Floor       string      `json:"floor,omitempty"`
	Side        string      `json:"side,omitempty"`
	Room        string      `json:"room,omitempty"`
	PostalZone  string      `json:"postalZone"`
	CityName    string      `json:"cityName"`
	Country     CountryDto  `json:"country" validate:"required"`
	Language    LanguageDto `json:"language" validate:"required"`
	Primary     bool        `json:"primary,omitempty"`
	Preferred   bool        `json:"preferred,omitempty"`
}

// ContactInformationDto carries the customer's addresses.
type ContactInformationDto struct {
	Address []AddressDto `json:"address" validate:"required,min=1,dive"`
}

// PersonalIdentityDto is the identity portion of a customer record. The
// residence permit number is a string for non-EU citizens and false for
// everyone else, mirroring the registry payload.
type PersonalIdentityDto struct {
	Country         string `json:"country" validate:"required,len=2"`
	NationalID      string `json:"nationalId" validate:"required"`
	ExternalKeyType string `json:"externalKeyType" validate:"required"`

	FirstName             string   `json:"firstName,omitempty"`
	LastName              string   `json:"lastName,omitempty"`
	DateOfBirth           string   `json:"dateOfBirth,omitempty"`
	Gender                string   `json:"gender,omitempty"`
	Address               string   `json:"address,omitempty"`
	MaritalStatus         string   `json:"maritalStatus,omitempty"`
	Citizenship           []string `json:"citizenship,omitempty"`
	ResidencePermitNumber any      `json:"residencePermitNumber,omitempty"`
}

// CreateCustomerRequest is the payload for creating a personal customer.
type CreateCustomerRequest struct {
	Identity           PersonalIdentityDto    `json:"identity" validate:"required"`
	ContactInformation *ContactInformationDto `json:"contactInformation,omitempty"`
}

// CreateCustomerResponse is returned after a successful creation.
type CreateCustomerResponse struct {
	CustomerKey string `json:"customerKey"`
}

// languageForCountry maps a customer's country to the default
// correspondence language.
var languageForCountry = map[string]string{
	"DK": "da",
	"SE": "sv",
	"NO": "no",
	"FI": "fi",
}

// ParseAddressLine converts a single-line address such as
// "Tokkerupvej 35, 2730 Herlev" into a structured AddressDto for the
// given country. The parse is best effort; unknown pieces fall back to
// placeholder values rather than failing.
func ParseAddressLine(line, countryCode string) AddressDto {
	var streetPart, postalPart string
	parts := strings.SplitN(line, ",", 2)
	if len(parts) > 0 {
		streetPart = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		postalPart = strings.TrimSpace(parts[1])
	}

	streetName, houseNumber := streetPart, ""
	if tokens := strings.Fields(streetPart); len(tokens) > 1 {
		houseNumber = tokens[len(tokens)-1]
		streetName = strings.Join(tokens[:len(tokens)-1], " ")
	}

	postalZone, cityName := "", ""
	if tokens := strings.Fields(postalPart); len(tokens) > 0 {
		postalZone = tokens[0]
		cityName = strings.Join(tokens[1:], " ")
	}

	if streetName == "" {
		streetName = "UNKNOWN"
	}
	if houseNumber == "" {
		houseNumber = "0"
	}

	language, ok := languageForCountry[countryCode]
	if !ok {
		language = "en"
	}

	return AddressDto{
		StreetName:  streetName,
		HouseNumber: houseNumber,
		PostalZone:  postalZone,
		CityName:    cityName,
		Country:     CountryDto{Code: countryCode},
		Language:    LanguageDto{Code: language},
		Primary:     true,
		Preferred:   true,
	}
}
