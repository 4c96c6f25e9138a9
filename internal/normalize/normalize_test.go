package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

func TestPhone(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"formatted", "(602) 555-0147", "6025550147"},
		{"dotted", "602.555.0147", "6025550147"},
		{"country code", "+1 602 555 0147", "6025550147"},
		{"bare digits", "6025550147", "6025550147"},
		{"eleven no one", "96025550147", "96025550147"},
		{"too short", "555-0147", ""},
		{"empty", "", ""},
		{"garbage", "call us!", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Phone(tc.input))
		})
	}
}

func TestNameKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"drops llc", "Acme Granite LLC", "acme granite"},
		{"drops inc with punctuation", "Acme Granite, Inc.", "acme granite"},
		{"keeps interior words", "Granite & Marble Co", "granite marble"},
		{"case folds", "DESERT STONE WORKS", "desert stone works"},
		{"empty", "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, NameKey(tc.input))
		})
	}
}

func TestWebsite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://acmegranite.com", Website("AcmeGranite.com/"))
	require.Equal(t, "http://acmegranite.com", Website("http://acmegranite.com"))
	require.Equal(t, "", Website("n/a"))
	require.Equal(t, "", Website(""))
}

func TestLicense(t *testing.T) {
	t.Parallel()

	require.Equal(t, "123456", License("ROC #123456"))
	require.Equal(t, "CCB 98765", License("License: CCB 98765"))
	require.Equal(t, "", License("family owned since 1987"))
}

func TestStateCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, "AZ", StateCode("az"))
	require.Equal(t, "AZ", StateCode("Arizona"))
	require.Equal(t, "", StateCode("XX"))
	require.Equal(t, "", StateCode("Atlantis"))
}

func TestMapSpecialties(t *testing.T) {
	t.Parallel()

	tags := MapSpecialties([]string{"Granite Countertops", "Kitchen Remodeling"})
	require.Equal(t, []string{"countertops", "granite", "kitchen-remodel", "remodeling"}, tags)

	// Unmatched labels survive folded rather than being dropped.
	tags = MapSpecialties([]string{"Epoxy River Tables"})
	require.Equal(t, []string{"epoxy river tables"}, tags)

	require.Nil(t, MapSpecialties(nil))
}

func TestMapCertifications(t *testing.T) {
	t.Parallel()

	tags := MapCertifications([]string{"Bonded & Insured"}, "ROC #123456")
	require.Equal(t, []string{"bonded", "insured", "licensed"}, tags)
}

func TestNormalizeFullCandidate(t *testing.T) {
	t.Parallel()

	fetched := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	nf, err := Normalize(contractor.CandidateRecord{
		BusinessName: "Desert Stone Works, LLC",
		Phone:        "(602) 555-0147",
		Website:      "DesertStone.com",
		Address:      "4200 North Scottsdale Road, Scottsdale, AZ 85251",
		Specialties:  []string{"Granite", "Quartz Countertops"},
		LicenseText:  "ROC #321456",
		SourceID:     "local-stone-guide",
		FetchedAt:    fetched,
	}, contractor.CategoryLocal)
	require.NoError(t, err)

	require.Equal(t, "Desert Stone Works, LLC", nf.BusinessName)
	require.Equal(t, "desert stone works", nf.NameKey)
	require.Equal(t, "6025550147", nf.Phone)
	require.Equal(t, "https://desertstone.com", nf.Website)
	require.Equal(t, "4200 n scottsdale rd", nf.Street)
	require.Equal(t, "Scottsdale", nf.City)
	require.Equal(t, "AZ", nf.State)
	require.Equal(t, "85251", nf.Zip)
	require.Equal(t, "321456", nf.LicenseNumber)
	require.Equal(t, []string{"countertops", "granite", "quartz"}, nf.Specialties)
	require.Equal(t, []string{"licensed"}, nf.Certifications)
	require.Equal(t, contractor.CategoryLocal, nf.SourceCategory)
	require.Equal(t, fetched, nf.FetchedAt)
}

func TestNormalizeStructuredCityState(t *testing.T) {
	t.Parallel()

	nf, err := Normalize(contractor.CandidateRecord{
		BusinessName: "Acme Granite",
		City:         "Phoenix",
		State:        "Arizona",
		Zip:          "85004",
		SourceID:     "silestone-installers",
	}, contractor.CategoryManufacturer)
	require.NoError(t, err)
	require.Equal(t, "Phoenix", nf.City)
	require.Equal(t, "AZ", nf.State)
	require.Equal(t, "85004", nf.Zip)
}

func TestNormalizeInsufficientIdentity(t *testing.T) {
	t.Parallel()

	// No phone and no city: unusable for identity.
	_, err := Normalize(contractor.CandidateRecord{
		BusinessName: "Acme Granite",
	}, contractor.CategoryDirectory)
	require.ErrorIs(t, err, contractor.ErrInsufficientIdentity)

	// No phone and no name either.
	_, err = Normalize(contractor.CandidateRecord{
		City: "Phoenix",
	}, contractor.CategoryDirectory)
	require.ErrorIs(t, err, contractor.ErrInsufficientIdentity)

	// Phone alone is enough.
	nf, err := Normalize(contractor.CandidateRecord{
		BusinessName: "Acme",
		Phone:        "602-555-0100",
	}, contractor.CategoryDirectory)
	require.NoError(t, err)
	require.Equal(t, "6025550100", nf.Phone)
}

func TestFoldStreetEquivalence(t *testing.T) {
	t.Parallel()

	a := foldStreet("4200 North Scottsdale Road")
	b := foldStreet("4200 N. Scottsdale Rd")
	require.Equal(t, a, b)
}
