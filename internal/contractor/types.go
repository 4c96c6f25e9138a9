// Package contractor defines core types shared across pipeline subsystems.
package contractor

import (
	"strings"
	"time"
)

// Category classifies a listing source.
type Category string

// Source categories recognized by the registry.
const (
	CategoryManufacturer   Category = "manufacturers"
	CategoryDirectory      Category = "directories"
	CategoryIndustry       Category = "industry"
	CategoryLocal          Category = "local"
	CategoryAuthenticated  Category = "authenticated"
	CategoryPublicRegistry Category = "public"
	CategoryAll            Category = "all"
)

// Categories lists every concrete (non-"all") category.
func Categories() []Category {
	return []Category{
		CategoryManufacturer,
		CategoryDirectory,
		CategoryIndustry,
		CategoryLocal,
		CategoryAuthenticated,
		CategoryPublicRegistry,
	}
}

// Valid reports whether c names a known category, including "all".
func (c Category) Valid() bool {
	if c == CategoryAll {
		return true
	}
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Locator selects the extraction strategy an adapter uses for a source.
type Locator string

// Locator strategy tags carried by SourceDescriptor.
const (
	// LocatorSelector extracts records with CSS selectors from a rendered page.
	LocatorSelector Locator = "selector"
	// LocatorStructured extracts records from embedded JSON-LD blocks.
	LocatorStructured Locator = "structured"
	// LocatorAuthenticated is LocatorSelector behind a login form.
	LocatorAuthenticated Locator = "authenticated"
	// LocatorRegistryHTML extracts from static server-rendered registry pages
	// fetched without a browser.
	LocatorRegistryHTML Locator = "registry-html"
)

// NeedsBrowser reports whether the strategy requires a headless browser session.
func (l Locator) NeedsBrowser() bool {
	return l != LocatorRegistryHTML
}

// AuthMode describes how a source must be accessed.
type AuthMode string

// Auth modes.
const (
	AuthNone        AuthMode = "none"
	AuthCredentials AuthMode = "credentials"
)

// SelectorSet holds the CSS selectors a selector-strategy adapter applies to a
// listing page. Any field may be empty; missing fields simply yield empty
// candidate values.
type SelectorSet struct {
	Item           string `mapstructure:"item"`
	Name           string `mapstructure:"name"`
	Phone          string `mapstructure:"phone"`
	Website        string `mapstructure:"website"`
	Address        string `mapstructure:"address"`
	Specialties    string `mapstructure:"specialties"`
	Certifications string `mapstructure:"certifications"`
	License        string `mapstructure:"license"`
	// Ready is the content signal waited on before extraction.
	Ready string `mapstructure:"ready"`
}

// LoginSpec describes the login step for authenticated sources.
type LoginSpec struct {
	URL              string `mapstructure:"url"`
	UsernameSelector string `mapstructure:"username_selector"`
	PasswordSelector string `mapstructure:"password_selector"`
	SubmitSelector   string `mapstructure:"submit_selector"`
	// SuccessSelector must appear after submit for the login to count.
	SuccessSelector string `mapstructure:"success_selector"`
}

// SourceDescriptor is the static configuration for one source. Descriptors are
// loaded at process start and never mutated.
type SourceDescriptor struct {
	ID          string      `mapstructure:"id"`
	Name        string      `mapstructure:"name"`
	Category    Category    `mapstructure:"category"`
	URLTemplate string      `mapstructure:"url_template"`
	Auth        AuthMode    `mapstructure:"auth"`
	RateRPS     float64     `mapstructure:"rate_rps"`
	RateBurst   int         `mapstructure:"rate_burst"`
	Locator     Locator     `mapstructure:"locator"`
	Selectors   SelectorSet `mapstructure:"selectors"`
	Login       LoginSpec   `mapstructure:"login"`
	MaxPages    int         `mapstructure:"max_pages"`
}

// LocationFilter scopes a batch run to a geographic area.
type LocationFilter struct {
	Raw   string
	City  string
	State string
}

// ParseLocationFilter splits a "City, ST" filter. A bare token is treated as a
// city with no state.
func ParseLocationFilter(raw string) LocationFilter {
	lf := LocationFilter{Raw: strings.TrimSpace(raw)}
	if lf.Raw == "" {
		return lf
	}
	parts := strings.SplitN(lf.Raw, ",", 2)
	lf.City = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		lf.State = strings.ToUpper(strings.TrimSpace(parts[1]))
	}
	return lf
}

// CandidateRecord is a raw, unvalidated scrape result from one page of one
// source. Candidates are ephemeral: they feed the normalizer and are only
// retained through the optional audit sink.
type CandidateRecord struct {
	BusinessName   string    `json:"business_name"`
	Phone          string    `json:"phone,omitempty"`
	Website        string    `json:"website,omitempty"`
	Address        string    `json:"address,omitempty"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	Zip            string    `json:"zip,omitempty"`
	Specialties    []string  `json:"specialties,omitempty"`
	Certifications []string  `json:"certifications,omitempty"`
	LicenseText    string    `json:"license_text,omitempty"`
	SourceID       string    `json:"source_id"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// NormalizedFields is the canonical-schema projection of one candidate.
type NormalizedFields struct {
	BusinessName string
	// NameKey is the fold of BusinessName used in identity keys.
	NameKey        string
	Phone          string // digits only, >= 10 digits, or empty
	Street         string
	City           string
	State          string
	Zip            string
	RawAddress     string
	Website        string
	Specialties    []string
	Certifications []string
	LicenseNumber  string
	SourceID       string
	SourceCategory Category
	FetchedAt      time.Time
}

// ProvenanceEntry records one source contribution to a canonical record.
type ProvenanceEntry struct {
	SourceID  string    `json:"source_id"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CanonicalContractor is the deduplicated, merged contractor entity held in
// the store. Uniqueness is by IdentityKey.
type CanonicalContractor struct {
	ID             string            `json:"id"`
	IdentityKey    string            `json:"identity_key"`
	BusinessName   string            `json:"business_name"`
	NameKey        string            `json:"-"`
	Phone          string            `json:"phone,omitempty"`
	Street         string            `json:"street,omitempty"`
	City           string            `json:"city,omitempty"`
	State          string            `json:"state,omitempty"`
	Zip            string            `json:"zip,omitempty"`
	RawAddress     string            `json:"raw_address,omitempty"`
	Website        string            `json:"website,omitempty"`
	Specialties    []string          `json:"specialties,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`
	// Categories is the set of source categories that contributed to this
	// record, for the query interface's category filter.
	Categories     []string          `json:"categories,omitempty"`
	LicenseNumber  string            `json:"license_number,omitempty"`
	Verified       bool              `json:"verified"`
	Provenance     []ProvenanceEntry `json:"provenance"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// RunStatus represents the lifecycle state of a batch run.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusAborted   RunStatus = "aborted"
)

// RunStats aggregates the outcome counters of one batch run.
type RunStats struct {
	SourcesAttempted int `json:"sources_attempted"`
	SourcesFailed    int `json:"sources_failed"`
	SourcesAborted   int `json:"sources_aborted"`
	CandidatesSeen   int `json:"candidates_seen"`
	RecordsCreated   int `json:"records_created"`
	RecordsMerged    int `json:"records_merged"`
	RecordsSkipped   int `json:"records_skipped"`
}

// Run is the persisted record of one batch invocation.
type Run struct {
	ID             string        `json:"id"`
	Category       Category      `json:"category"`
	LocationFilter string        `json:"location_filter,omitempty"`
	Status         RunStatus     `json:"status"`
	Stats          RunStats      `json:"stats"`
	Errors         []SourceError `json:"errors,omitempty"`
	Started        time.Time     `json:"started_at"`
	Finished       *time.Time    `json:"finished_at,omitempty"`
}

// ListFilter narrows the read-only contractor listing.
type ListFilter struct {
	City     string
	State    string
	Verified *bool
	// Category filters on the source categories that contributed a record.
	Category string
	// Specialty filters on canonical specialty tags.
	Specialty string
	Limit     int
}
