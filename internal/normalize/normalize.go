// Package normalize maps raw scraped fields into the canonical schema.
package normalize

import (
	"regexp"
	"strings"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

var (
	nonDigitRegex   = regexp.MustCompile(`\D`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	zipRegex        = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	stateCodeRegex  = regexp.MustCompile(`\b([A-Za-z]{2})\b`)
)

// Corporate suffixes and street-type words dropped or folded when building
// the name key so "Acme Granite LLC" and "Acme Granite, Inc." collide.
var corpSuffixes = []string{
	"incorporated", "inc", "llc", "llp", "ltd", "corp", "corporation",
	"company", "co",
}

var streetReplacements = map[string]string{
	"street": "st", "avenue": "ave", "drive": "dr", "road": "rd",
	"boulevard": "blvd", "lane": "ln", "court": "ct", "place": "pl",
	"circle": "cir", "highway": "hwy", "parkway": "pkwy", "square": "sq",
	"north": "n", "south": "s", "east": "e", "west": "w",
	"suite": "ste", "apartment": "apt", "building": "bldg", "floor": "fl",
}

// Normalize projects one raw candidate onto the canonical schema. It is a
// pure function. A candidate with neither a usable phone nor a usable
// name+city pair fails with ErrInsufficientIdentity; any other missing field
// is simply left empty.
func Normalize(rec contractor.CandidateRecord, category contractor.Category) (contractor.NormalizedFields, error) {
	out := contractor.NormalizedFields{
		BusinessName:   strings.TrimSpace(rec.BusinessName),
		SourceID:       rec.SourceID,
		SourceCategory: category,
		FetchedAt:      rec.FetchedAt,
	}
	out.NameKey = NameKey(out.BusinessName)
	out.Phone = Phone(rec.Phone)
	out.Website = Website(rec.Website)
	out.LicenseNumber = License(rec.LicenseText)

	street, city, state, zip := splitAddress(rec)
	out.Street = street
	out.City = city
	out.State = state
	out.Zip = zip
	if rec.Address != "" {
		out.RawAddress = strings.TrimSpace(rec.Address)
	}

	out.Specialties = MapSpecialties(rec.Specialties)
	out.Certifications = MapCertifications(rec.Certifications, rec.LicenseText)

	if out.Phone == "" && (out.NameKey == "" || out.City == "") {
		return contractor.NormalizedFields{}, contractor.ErrInsufficientIdentity
	}
	return out, nil
}

// Phone strips non-digits and drops the leading country 1. Numbers shorter
// than ten digits are unusable and collapse to empty.
func Phone(raw string) string {
	digits := nonDigitRegex.ReplaceAllString(raw, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) < 10 {
		return ""
	}
	return digits
}

// NameKey folds a business name for identity matching: lowercase, strip
// punctuation, drop corporate suffixes, collapse whitespace.
func NameKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = nonAlnumRegex.ReplaceAllString(key, " ")
	words := strings.Fields(key)
	kept := words[:0]
	for _, w := range words {
		if isCorpSuffix(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func isCorpSuffix(word string) bool {
	for _, s := range corpSuffixes {
		if word == s {
			return true
		}
	}
	return false
}

// Website lowercases the host and guarantees a scheme. Anything without a dot
// is judged noise and dropped.
func Website(raw string) string {
	w := strings.TrimSpace(raw)
	if w == "" || !strings.Contains(w, ".") {
		return ""
	}
	if !strings.HasPrefix(w, "http://") && !strings.HasPrefix(w, "https://") {
		w = "https://" + w
	}
	return strings.ToLower(strings.TrimRight(w, "/"))
}

// License extracts the first plausible license number from free text such as
// "ROC #123456" or "License: CCB 98765".
func License(raw string) string {
	m := licenseRegex.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

var licenseRegex = regexp.MustCompile(`(?i)(?:license|lic|roc|ccb|reg)[.#:\s]*([A-Z]{0,4}\s?#?\d{4,})`)

// splitAddress fills components from the structured fields when the source
// provided them, falling back to a best-effort parse of the free-text address.
// Fragments that defeat parsing stay in RawAddress only.
func splitAddress(rec contractor.CandidateRecord) (street, city, state, zip string) {
	city = strings.TrimSpace(rec.City)
	state = StateCode(rec.State)
	zip = strings.TrimSpace(rec.Zip)

	raw := strings.TrimSpace(rec.Address)
	if raw == "" {
		return "", city, state, zip
	}

	if zip == "" {
		if m := zipRegex.FindStringSubmatch(raw); m != nil {
			zip = m[1]
		}
	}

	// Comma-separated US convention: street, city, state zip.
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) >= 3:
		street = parts[0]
		if city == "" {
			city = parts[len(parts)-2]
		}
		if state == "" {
			state = stateFromTail(parts[len(parts)-1])
		}
	case len(parts) == 2:
		street = parts[0]
		tail := parts[1]
		if st := stateFromTail(tail); st != "" {
			if state == "" {
				state = st
			}
			if city == "" {
				city = strings.TrimSpace(stateCodeRegex.ReplaceAllString(zipRegex.ReplaceAllString(tail, ""), ""))
			}
		} else if city == "" {
			city = tail
		}
	default:
		// Single fragment: only claim it as a street when it looks like one.
		if strings.IndexFunc(raw, func(r rune) bool { return r >= '0' && r <= '9' }) == 0 {
			street = raw
		}
	}
	street = foldStreet(street)
	return street, strings.TrimSpace(city), state, zip
}

func stateFromTail(tail string) string {
	tail = zipRegex.ReplaceAllString(tail, "")
	if m := stateCodeRegex.FindStringSubmatch(tail); m != nil {
		return StateCode(m[1])
	}
	return StateCode(tail)
}

// foldStreet lowercases and abbreviates street-type words so the same street
// spelled two ways compares equal.
func foldStreet(street string) string {
	s := strings.ToLower(strings.TrimSpace(street))
	if s == "" {
		return ""
	}
	s = nonAlnumRegex.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	for i, w := range words {
		if abbrev, ok := streetReplacements[w]; ok {
			words[i] = abbrev
		}
	}
	return multiSpaceRegex.ReplaceAllString(strings.Join(words, " "), " ")
}
