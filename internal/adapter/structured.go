package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// NewStructuredAdapter builds the structured-data strategy: candidates come
// from schema.org JSON-LD blocks (LocalBusiness and friends) embedded in the
// page, which dealer locators commonly emit for SEO.
func NewStructuredAdapter(desc contractor.SourceDescriptor, clock contractor.Clock, logger *zap.Logger) contractor.Adapter {
	return &pageAdapter{
		desc:    desc,
		extract: extractStructured,
		clock:   clock,
		logger:  logger,
	}
}

// ldBusiness mirrors the schema.org fields we consume. Unknown fields are
// ignored by encoding/json.
type ldBusiness struct {
	Type      jsonLDType `json:"@type"`
	Name      string     `json:"name"`
	Telephone string     `json:"telephone"`
	URL       string     `json:"url"`
	Address   ldAddress  `json:"address"`
	Knows     []string   `json:"knowsAbout"`
}

type ldAddress struct {
	Street string `json:"streetAddress"`
	City   string `json:"addressLocality"`
	State  string `json:"addressRegion"`
	Zip    string `json:"postalCode"`
}

// jsonLDType absorbs "@type" being either a string or an array of strings.
type jsonLDType []string

func (t *jsonLDType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = jsonLDType{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("json-ld @type: %w", err)
	}
	*t = jsonLDType(many)
	return nil
}

var businessTypes = map[string]struct{}{
	"LocalBusiness":               {},
	"HomeAndConstructionBusiness": {},
	"GeneralContractor":           {},
	"Organization":                {},
	"HVACBusiness":                {},
	"Plumber":                     {},
	"Electrician":                 {},
	"RoofingContractor":           {},
}

func extractStructured(html string, desc contractor.SourceDescriptor, fetchedAt time.Time) ([]contractor.CandidateRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	var out []contractor.CandidateRecord
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, node *goquery.Selection) {
		out = append(out, decodeLDBlock(node.Text(), desc.ID, fetchedAt)...)
	})
	return out, nil
}

// decodeLDBlock tolerates a block holding either one object, an array, or a
// @graph wrapper. Malformed JSON in one block never fails the page.
func decodeLDBlock(raw, sourceID string, fetchedAt time.Time) []contractor.CandidateRecord {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var businesses []ldBusiness
	switch {
	case strings.HasPrefix(raw, "["):
		if err := json.Unmarshal([]byte(raw), &businesses); err != nil {
			return nil
		}
	default:
		var single struct {
			ldBusiness
			Graph []ldBusiness `json:"@graph"`
		}
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return nil
		}
		if len(single.Graph) > 0 {
			businesses = single.Graph
		} else {
			businesses = []ldBusiness{single.ldBusiness}
		}
	}

	var out []contractor.CandidateRecord
	for _, b := range businesses {
		if b.Name == "" || !isBusinessType(b.Type) {
			continue
		}
		out = append(out, contractor.CandidateRecord{
			BusinessName: strings.TrimSpace(b.Name),
			Phone:        b.Telephone,
			Website:      b.URL,
			Address:      b.Address.Street,
			City:         b.Address.City,
			State:        b.Address.State,
			Zip:          b.Address.Zip,
			Specialties:  b.Knows,
			SourceID:     sourceID,
			FetchedAt:    fetchedAt,
		})
	}
	return out
}

func isBusinessType(types jsonLDType) bool {
	for _, t := range types {
		if _, ok := businessTypes[t]; ok {
			return true
		}
	}
	return false
}
