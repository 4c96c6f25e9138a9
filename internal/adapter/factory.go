package adapter

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Deps carries everything a strategy constructor may need.
type Deps struct {
	Clock       contractor.Clock
	Logger      *zap.Logger
	Fetch       FetchConfig
	Credentials map[string]Credentials // keyed by source id
}

// ForDescriptor selects the strategy implementation for a descriptor's
// locator tag. One polymorphic interface over variant strategies, not
// inheritance and not runtime sniffing of page content.
func ForDescriptor(desc contractor.SourceDescriptor, deps Deps) (contractor.Adapter, error) {
	logger := deps.Logger.With(zap.String("source", desc.ID))
	switch desc.Locator {
	case contractor.LocatorSelector:
		return NewSelectorAdapter(desc, deps.Clock, logger), nil
	case contractor.LocatorStructured:
		return NewStructuredAdapter(desc, deps.Clock, logger), nil
	case contractor.LocatorAuthenticated:
		return NewAuthenticatedAdapter(desc, deps.Credentials[desc.ID], deps.Clock, logger), nil
	case contractor.LocatorRegistryHTML:
		return NewRegistryHTMLAdapter(desc, deps.Fetch, deps.Clock, logger), nil
	default:
		return nil, fmt.Errorf("source %s: unknown locator strategy %q", desc.ID, desc.Locator)
	}
}
