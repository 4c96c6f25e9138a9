package config

import "github.com/surfacehub/contractor-aggregator/internal/contractor"

// DefaultSources is the built-in source catalogue used when the config file
// supplies none. Descriptors here are deliberately conservative on rate
// limits; overrides belong in the config file.
func DefaultSources() []contractor.SourceDescriptor {
	return []contractor.SourceDescriptor{
		{
			ID:          "cambria-dealers",
			Name:        "Cambria Dealer Locator",
			Category:    contractor.CategoryManufacturer,
			URLTemplate: "https://www.cambriausa.com/dealer-locator?location={location}&page={page}",
			Locator:     contractor.LocatorSelector,
			RateRPS:     0.5,
			RateBurst:   1,
			MaxPages:    3,
			Selectors: contractor.SelectorSet{
				Item:        "div.dealer-result",
				Name:        "h3.dealer-name",
				Phone:       "a.dealer-phone",
				Website:     "a.dealer-website",
				Address:     "p.dealer-address",
				Specialties: "span.dealer-service",
				Ready:       "div.dealer-results",
			},
		},
		{
			ID:          "silestone-installers",
			Name:        "Silestone Certified Installers",
			Category:    contractor.CategoryManufacturer,
			URLTemplate: "https://www.silestoneusa.com/installers/{state}/{city}?page={page}",
			Locator:     contractor.LocatorStructured,
			RateRPS:     0.5,
			RateBurst:   1,
			MaxPages:    2,
			Selectors: contractor.SelectorSet{
				Ready: "main",
			},
		},
		{
			ID:          "houzz-countertops",
			Name:        "Houzz Countertop Pros",
			Category:    contractor.CategoryDirectory,
			URLTemplate: "https://www.houzz.com/professionals/countertop/c/{city}--{state}?p={page}",
			Locator:     contractor.LocatorSelector,
			RateRPS:     0.3,
			RateBurst:   1,
			MaxPages:    3,
			Selectors: contractor.SelectorSet{
				Item:        "div.pro-card",
				Name:        "a.pro-title",
				Phone:       "span.pro-phone",
				Website:     "a.pro-site",
				Address:     "span.pro-location",
				Specialties: "span.pro-service",
				Ready:       "div.pro-results",
			},
		},
		{
			ID:          "yelp-countertops",
			Name:        "Yelp Countertop Installation",
			Category:    contractor.CategoryDirectory,
			URLTemplate: "https://www.yelp.com/search?find_desc=countertop+installation&find_loc={location}&start={page}",
			Locator:     contractor.LocatorStructured,
			RateRPS:     0.3,
			RateBurst:   1,
			MaxPages:    2,
			Selectors: contractor.SelectorSet{
				Ready: "main",
			},
		},
		{
			ID:          "nkba-members",
			Name:        "NKBA Member Directory",
			Category:    contractor.CategoryIndustry,
			URLTemplate: "https://nkba.org/members/search?location={location}&page={page}",
			Locator:     contractor.LocatorSelector,
			RateRPS:     0.5,
			RateBurst:   1,
			MaxPages:    2,
			Selectors: contractor.SelectorSet{
				Item:           "li.member-card",
				Name:           "h4.member-name",
				Phone:          "span.member-phone",
				Address:        "address.member-address",
				Certifications: "span.member-credential",
				Ready:          "ul.member-list",
			},
		},
		{
			ID:          "marble-institute",
			Name:        "Natural Stone Institute Members",
			Category:    contractor.CategoryAuthenticated,
			URLTemplate: "https://members.naturalstoneinstitute.org/search?city={city}&state={state}&page={page}",
			Locator:     contractor.LocatorAuthenticated,
			Auth:        contractor.AuthCredentials,
			RateRPS:     0.25,
			RateBurst:   1,
			MaxPages:    2,
			Login: contractor.LoginSpec{
				URL:              "https://members.naturalstoneinstitute.org/login",
				UsernameSelector: "input#username",
				PasswordSelector: "input#password",
				SubmitSelector:   "button[type=submit]",
				SuccessSelector:  "nav.member-nav",
			},
			Selectors: contractor.SelectorSet{
				Item:           "div.member-row",
				Name:           "span.member-company",
				Phone:          "span.member-phone",
				Website:        "a.member-site",
				Address:        "span.member-address",
				Certifications: "span.member-accreditation",
				Ready:          "div.member-grid",
			},
		},
		{
			ID:          "local-stone-guide",
			Name:        "Local Stone Fabricator Guide",
			Category:    contractor.CategoryLocal,
			URLTemplate: "https://www.localstoneguide.com/{state}/{city}/fabricators?page={page}",
			Locator:     contractor.LocatorSelector,
			RateRPS:     0.5,
			RateBurst:   1,
			MaxPages:    3,
			Selectors: contractor.SelectorSet{
				Item:        "article.listing",
				Name:        "h2.listing-title",
				Phone:       "span.listing-phone",
				Website:     "a.listing-url",
				Address:     "div.listing-address",
				Specialties: "span.listing-tag",
				License:     "span.listing-license",
				Ready:       "section.listings",
			},
		},
		{
			ID:          "state-contractor-board",
			Name:        "State Contractor License Registry",
			Category:    contractor.CategoryPublicRegistry,
			URLTemplate: "https://registry.example-cslb.gov/search?classification=C-29&city={city}&page={page}",
			Locator:     contractor.LocatorRegistryHTML,
			RateRPS:     1,
			RateBurst:   2,
			MaxPages:    5,
			Selectors: contractor.SelectorSet{
				Item:    "tr.license-row",
				Name:    "td.business-name",
				Phone:   "td.phone",
				Address: "td.address",
				License: "td.license-number",
			},
		},
	}
}
