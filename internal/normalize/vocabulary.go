package normalize

import (
	"sort"
	"strings"
)

// specialtyVocab maps keywords found in free-text specialty labels onto
// canonical tags. Substring matching on the folded label; first keyword wins
// per tag, a label may map to several tags.
var specialtyVocab = map[string][]string{
	"countertops":     {"countertop", "counter top", "worktop"},
	"granite":         {"granite"},
	"quartz":          {"quartz"},
	"marble":          {"marble"},
	"quartzite":       {"quartzite"},
	"laminate":        {"laminate", "formica"},
	"solid-surface":   {"solid surface", "corian"},
	"tile":            {"tile", "tiling"},
	"cabinets":        {"cabinet", "cabinetry"},
	"flooring":        {"floor"},
	"kitchen-remodel": {"kitchen"},
	"bath-remodel":    {"bath", "bathroom"},
	"plumbing":        {"plumb"},
	"electrical":      {"electric"},
	"hvac":            {"hvac", "heating", "air conditioning", "cooling"},
	"roofing":         {"roof"},
	"masonry":         {"masonry", "stone work", "stonework", "brick"},
	"concrete":        {"concrete"},
	"fabrication":     {"fabricat"},
	"installation":    {"install"},
	"remodeling":      {"remodel", "renovat"},
	"outdoor-kitchen": {"outdoor kitchen", "bbq island"},
	"fireplace":       {"fireplace", "hearth"},
}

// certificationVocab maps certification/license free text onto canonical tags.
var certificationVocab = map[string][]string{
	"licensed":            {"licensed", "license", "lic.", "roc", "ccb"},
	"bonded":              {"bonded"},
	"insured":             {"insured", "insurance"},
	"epa-certified":       {"epa"},
	"osha-trained":        {"osha"},
	"certified-installer": {"certified installer", "certified fabricator"},
	"bbb-accredited":      {"bbb", "better business bureau"},
}

// MapSpecialties maps free-text specialty labels onto the controlled
// vocabulary. Labels matching nothing are kept verbatim (folded) as
// lower-confidence tags. The result is a sorted set.
func MapSpecialties(labels []string) []string {
	return mapVocab(labels, specialtyVocab)
}

// MapCertifications maps certification labels plus any license free text onto
// canonical certification tags.
func MapCertifications(labels []string, licenseText string) []string {
	all := labels
	if strings.TrimSpace(licenseText) != "" {
		all = append(append([]string(nil), labels...), licenseText)
	}
	return mapVocab(all, certificationVocab)
}

func mapVocab(labels []string, vocab map[string][]string) []string {
	set := make(map[string]struct{})
	for _, label := range labels {
		folded := foldLabel(label)
		if folded == "" {
			continue
		}
		matched := false
		for tag, keywords := range vocab {
			for _, kw := range keywords {
				if strings.Contains(folded, kw) {
					set[tag] = struct{}{}
					matched = true
					break
				}
			}
		}
		if !matched {
			set[folded] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func foldLabel(label string) string {
	folded := strings.ToLower(strings.TrimSpace(label))
	folded = nonAlnumRegex.ReplaceAllString(folded, " ")
	return multiSpaceRegex.ReplaceAllString(strings.TrimSpace(folded), " ")
}

// usStates maps full state names to postal codes.
var usStates = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT",
	"delaware": "DE", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI",
	"minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND",
	"ohio": "OH", "oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

var validStateCodes = func() map[string]struct{} {
	set := make(map[string]struct{}, len(usStates))
	for _, code := range usStates {
		set[code] = struct{}{}
	}
	return set
}()

// StateCode normalizes a state name or code to its two-letter postal code.
// Unrecognized input collapses to empty rather than polluting identity keys.
func StateCode(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if len(s) == 2 {
		code := strings.ToUpper(s)
		if _, ok := validStateCodes[code]; ok {
			return code
		}
		return ""
	}
	if code, ok := usStates[strings.ToLower(s)]; ok {
		return code
	}
	return ""
}
