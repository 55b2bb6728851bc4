package onboarding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupKnownPerson(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	person, err := registry.Lookup("DK", "0101901234")
	require.NoError(t, err)

	assert.Equal(t, "Mette", person.FirstName)
	assert.Equal(t, "Hansen", person.LastName)
	assert.Equal(t, "1990-01-01", person.DateOfBirth)
	assert.Equal(t, []string{"Denmark"}, person.Citizenship)

	_, required := person.PermitNumber()
	assert.False(t, required)
}

func TestRegistryLookupUnsupportedCountry(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	_, err = registry.Lookup("DE", "12345678")
	var unsupported *UnsupportedCountryError
	assert.ErrorAs(t, err, &unsupported)
}

func TestRegistryLookupUnknownID(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	_, err = registry.Lookup("DK", "0000000000")
	var unknown *UnknownIDError
	assert.ErrorAs(t, err, &unknown)
}

func TestRegistryPermitNumber(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	person, err := registry.Lookup("DK", "1503851234")
	require.NoError(t, err)

	permit, required := person.PermitNumber()
	assert.True(t, required)
	assert.Equal(t, "RP-778899", permit)
}

func TestExternalKeyType(t *testing.T) {
	assert.Equal(t, "DanishNationalId", ExternalKeyType("DK"))
	assert.Equal(t, "SwedishNationalId", ExternalKeyType("SE"))
	assert.Equal(t, "NorwegianNationalId", ExternalKeyType("NO"))
	assert.Equal(t, "FinnishNationalId", ExternalKeyType("FI"))
	assert.Equal(t, "NationalId", ExternalKeyType("DE"))
}

func TestAge(t *testing.T) {
	person := &RegistryPerson{DateOfBirth: "1990-06-15"}

	age, err := person.Age(time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 35, age)

	age, err = person.Age(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 36, age)

	_, err = person.Age(time.Now())
	require.NoError(t, err)

	bad := &RegistryPerson{DateOfBirth: "15/06/1990"}
	_, err = bad.Age(time.Now())
	assert.Error(t, err)
}

func TestAgeAcrossLeapYear(t *testing.T) {
	// Born in a leap year, evaluated in a common year: day counting must
	// not shift the birthday.
	person := &RegistryPerson{DateOfBirth: "2000-03-01"}

	age, err := person.Age(time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 18, age)

	age, err = person.Age(time.Date(2018, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 17, age)

	leapling := &RegistryPerson{DateOfBirth: "2000-02-29"}
	age, err = leapling.Age(time.Date(2019, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 18, age)

	age, err = leapling.Age(time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 19, age)
}

func TestPostalCodeAndCity(t *testing.T) {
	assert.Equal(t, "2730", PostalCode("Tokkerupvej 35, 2730 Herlev"))
	assert.Equal(t, "Herlev", City("Tokkerupvej 35, 2730 Herlev"))
	assert.Equal(t, "Oslo", City("Karl Johans gate 22, 0159 Oslo"))
	assert.Equal(t, "", PostalCode("no comma here"))
	assert.Equal(t, "", City("no comma here"))
}
