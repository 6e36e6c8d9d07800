package apps

import (
	"context"

	"flipper-bridge/internal/catalog"
	"flipper-bridge/internal/manifest"
	"flipper-bridge/pkg/log"
)

// sentinelCategoryIcon marks a synthesized placeholder category so the
// caller still has something renderable for an app whose category cannot
// be resolved.
const sentinelCategoryIcon = "builtin://category-unknown"

// Categories returns the catalog categories, fetching them at most once.
// Concurrent callers during a load all await the same in-flight fetch; the
// result is cached until the orchestrator is reset.
func (o *Orchestrator) Categories(ctx context.Context) ([]catalog.Category, error) {
	o.mu.Lock()
	cached := o.categories
	o.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := o.categoriesFlight.Do("categories", func() (any, error) {
		// The fetch is detached from the first caller's context so its
		// cancellation cannot fail the coalesced waiters.
		cats, err := o.catalog.Categories(context.WithoutCancel(ctx))
		if err != nil {
			return nil, catalog.MapError(err)
		}
		o.mu.Lock()
		o.categories = cats
		o.mu.Unlock()
		return cats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Category), nil
}

// ResolveCategory resolves the category of an installed application. A
// present category id wins; otherwise the category name is derived from
// segment index 2 of the manifest's 4-segment binary path and matched by
// name. When nothing matches, a placeholder is synthesized rather than
// failing: legacy and offline installs must stay renderable.
func (o *Orchestrator) ResolveCategory(ctx context.Context, m manifest.Manifest, categoryID string) catalog.Category {
	cats, err := o.Categories(ctx)
	if err != nil {
		log.Warn("apps: category load failed during resolution", "error", err)
	}

	if categoryID != "" {
		for _, c := range cats {
			if c.ID == categoryID {
				return c
			}
		}
	}

	name, pathErr := manifest.CategoryFromPath(m.Path)
	if pathErr == nil {
		for _, c := range cats {
			if c.Name == name {
				return c
			}
		}
	} else {
		log.Warn("apps: category not derivable from manifest path", "path", m.Path, "error", pathErr)
	}

	return catalog.Category{
		Name: name,
		Icon: sentinelCategoryIcon,
	}
}

// categoryDirName maps a catalog category id to the directory name used
// under the apps tree. An unresolvable id falls back to a misc bucket so an
// install is never blocked on category metadata.
func (o *Orchestrator) categoryDirName(ctx context.Context, categoryID string) string {
	cats, err := o.Categories(ctx)
	if err != nil {
		log.Warn("apps: category load failed, using fallback directory", "error", err)
		return "misc"
	}
	for _, c := range cats {
		if c.ID == categoryID {
			return c.Name
		}
	}
	log.Warn("apps: unknown category id, using fallback directory", "categoryId", categoryID)
	return "misc"
}
