package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// NewSelectorAdapter builds the CSS-selector strategy: each listing item is
// located by Selectors.Item and its fields are read from child selectors.
// Missing fields are tolerated; a record with only a name is still emitted.
func NewSelectorAdapter(desc contractor.SourceDescriptor, clock contractor.Clock, logger *zap.Logger) contractor.Adapter {
	return &pageAdapter{
		desc:    desc,
		extract: extractBySelectors,
		clock:   clock,
		logger:  logger,
	}
}

func extractBySelectors(html string, desc contractor.SourceDescriptor, fetchedAt time.Time) ([]contractor.CandidateRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	sel := desc.Selectors
	if sel.Item == "" {
		return nil, fmt.Errorf("source %s: item selector is required", desc.ID)
	}

	var out []contractor.CandidateRecord
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		rec := contractor.CandidateRecord{
			BusinessName: text(item, sel.Name),
			Phone:        firstNonEmpty(attr(item, sel.Phone, "href"), text(item, sel.Phone)),
			Website:      firstNonEmpty(attr(item, sel.Website, "href"), text(item, sel.Website)),
			Address:      text(item, sel.Address),
			LicenseText:  text(item, sel.License),
			SourceID:     desc.ID,
			FetchedAt:    fetchedAt,
		}
		rec.Phone = strings.TrimPrefix(rec.Phone, "tel:")
		rec.Specialties = textList(item, sel.Specialties)
		rec.Certifications = textList(item, sel.Certifications)
		if rec.BusinessName == "" {
			// An item with no name at all is markup noise, not a candidate.
			return
		}
		out = append(out, rec)
	})
	return out, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func attr(s *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	val, _ := s.Find(selector).First().Attr(name)
	return strings.TrimSpace(val)
}

func textList(s *goquery.Selection, selector string) []string {
	if selector == "" {
		return nil
	}
	var out []string
	s.Find(selector).Each(func(_ int, node *goquery.Selection) {
		for _, part := range strings.Split(node.Text(), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	})
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
