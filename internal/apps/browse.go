package apps

import (
	"context"

	"flipper-bridge/internal/catalog"
)

// Featured returns the catalog's curated front-page list.
func (o *Orchestrator) Featured(ctx context.Context) ([]catalog.ApplicationInfo, error) {
	infos, err := o.catalog.Featured(ctx)
	if err != nil {
		return nil, catalog.MapError(err)
	}
	return infos, nil
}

// Browse queries the catalog list. The filter is scoped to the negotiated
// device target and API level when available, so results only contain
// builds the paired device can run.
func (o *Orchestrator) Browse(ctx context.Context, filter catalog.Filter) ([]catalog.ApplicationInfo, error) {
	if di := o.DeviceInfo(); di != nil {
		if filter.Target == "" {
			filter.Target = di.Target
		}
		if filter.API == "" {
			filter.API = di.API
		}
	}
	infos, err := o.catalog.Applications(ctx, filter)
	if err != nil {
		return nil, catalog.MapError(err)
	}
	return infos, nil
}
