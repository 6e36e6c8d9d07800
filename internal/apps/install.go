package apps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"flipper-bridge/internal/catalog"
	"flipper-bridge/internal/manifest"
	"flipper-bridge/pkg/log"
	"flipper-bridge/pkg/metrics"
)

// progressInterval bounds how often write progress is forwarded into the
// status map, so fast chunk streams cannot flood observers.
const progressInterval = 100 * time.Millisecond

var errNoDeviceInfo = errors.New("apps: device not negotiated")

// Install downloads, stages and atomically promotes an application onto the
// device. Failures are logged and leave the status at its last value; the
// operation is observed through status, never through a return value.
func (o *Orchestrator) Install(ctx context.Context, uid string) {
	o.runPipeline(ctx, "install", uid, false)
}

// Update re-installs an application at the catalog's current version. It is
// the install pipeline with updating status labels.
func (o *Orchestrator) Update(ctx context.Context, uid string) {
	o.runPipeline(ctx, "update", uid, true)
}

// UpdateAll updates several applications. Every id is flagged updating(0)
// first, then the updates run strictly one at a time: the device's storage
// link does not tolerate concurrent transfers, so batch updates are
// serialized on purpose.
func (o *Orchestrator) UpdateAll(ctx context.Context, uids []string) {
	for _, uid := range uids {
		o.setStatus(uid, progressStatus(true, 0))
	}
	for _, uid := range uids {
		o.runPipeline(ctx, "update", uid, true)
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, kind, uid string, updating bool) {
	o.beginOp(uid)
	defer o.endOp(uid)
	if err := o.install(ctx, uid, updating); err != nil {
		metrics.AppOperations.WithLabelValues(kind, "error").Inc()
		log.Error("apps: "+kind+" failed", "uid", uid, "error", err)
		return
	}
	metrics.AppOperations.WithLabelValues(kind, "ok").Inc()
}

// install is the shared pipeline body. The staged-then-promote order is the
// core invariant: a manifest never becomes visible, on device or in memory,
// before the binary it points at exists at its final path.
func (o *Orchestrator) install(ctx context.Context, uid string, updating bool) error {
	di := o.DeviceInfo()
	if di == nil {
		return errNoDeviceInfo
	}

	app, err := o.catalog.Application(ctx, uid)
	if err != nil {
		return catalog.MapError(err)
	}

	o.setStatus(uid, progressStatus(updating, 0))

	categoryName := o.categoryDirName(ctx, app.CategoryID)
	sio := o.session()

	for _, dir := range []string{
		manifest.AppsDir,
		manifest.AppsDir + "/" + categoryName,
		manifest.ManifestsDir,
		manifest.TempDir,
	} {
		if err := sio.CreateDirectory(ctx, dir); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}

	build, err := o.catalog.Build(ctx, app.Current.UID, di.Target, di.API)
	if err != nil {
		return catalog.MapError(err)
	}

	tmpBinary := manifest.TempBinaryPath(app.Alias)
	limiter := rate.NewLimiter(rate.Every(progressInterval), 1)
	err = sio.WriteFile(ctx, tmpBinary, build, func(fraction float64) {
		if limiter.Allow() || fraction >= 1 {
			o.setStatus(uid, progressStatus(updating, fraction))
		}
	})
	if err != nil {
		return fmt.Errorf("stage binary: %w", err)
	}

	icon, err := o.catalog.Icon(ctx, app.Current.IconURI)
	if err != nil {
		return catalog.MapError(err)
	}

	m := manifest.Manifest{
		FullName:   app.Name,
		Icon:       icon,
		BuildAPI:   app.Current.BuildAPI,
		UID:        uid,
		VersionUID: app.Current.UID,
		Path:       manifest.BinaryPath(categoryName, app.Alias),
	}
	tmpManifest := manifest.TempManifestPath(app.Alias)
	if err := o.store.Write(ctx, m, tmpManifest); err != nil {
		return fmt.Errorf("stage manifest: %w", err)
	}

	// Promotion: binary first, then manifest. Only after both moves does
	// the in-memory map change, making the install visible to status
	// derivation.
	if err := sio.MoveFile(ctx, tmpBinary, m.Path); err != nil {
		return fmt.Errorf("promote binary: %w", err)
	}
	if err := sio.MoveFile(ctx, tmpManifest, manifest.ManifestPath(app.Alias)); err != nil {
		return fmt.Errorf("promote manifest: %w", err)
	}

	o.mu.Lock()
	o.manifests[uid] = m
	o.mu.Unlock()
	o.setStatus(uid, Status{Kind: StatusInstalled})
	log.Info("apps: installed", "uid", uid, "alias", app.Alias, "version", app.Current.UID)
	return nil
}

// Delete removes an application's binary and manifest from the device, then
// forgets it in memory. If the manifest path does not parse into a valid
// alias, nothing is touched; if either file delete fails, the in-memory
// entry is kept so the UI never forgets an app whose files may still exist.
func (o *Orchestrator) Delete(ctx context.Context, uid string) {
	o.mu.Lock()
	m, ok := o.manifests[uid]
	o.mu.Unlock()
	if !ok {
		log.Warn("apps: delete of unknown application", "uid", uid)
		return
	}
	o.beginOp(uid)
	defer o.endOp(uid)

	alias, err := manifest.AliasFromPath(m.Path)
	if err != nil {
		metrics.AppOperations.WithLabelValues("delete", "error").Inc()
		log.Error("apps: delete aborted", "uid", uid, "error", err)
		return
	}

	sio := o.session()
	if err := sio.DeleteFile(ctx, m.Path); err != nil {
		metrics.AppOperations.WithLabelValues("delete", "error").Inc()
		log.Error("apps: binary delete failed", "uid", uid, "path", m.Path, "error", err)
		return
	}
	if err := o.store.Delete(ctx, alias); err != nil {
		metrics.AppOperations.WithLabelValues("delete", "error").Inc()
		log.Error("apps: manifest delete failed", "uid", uid, "alias", alias, "error", err)
		return
	}

	o.mu.Lock()
	delete(o.manifests, uid)
	delete(o.statuses, uid)
	o.mu.Unlock()
	o.publish(Change{UID: uid, Status: Status{Kind: StatusNotInstalled}})
	metrics.AppOperations.WithLabelValues("delete", "ok").Inc()
	log.Info("apps: deleted", "uid", uid, "alias", alias)
}

// Report forwards a user report about an application to the catalog.
func (o *Orchestrator) Report(ctx context.Context, uid, description string) error {
	if err := o.catalog.Report(ctx, uid, description); err != nil {
		return catalog.MapError(err)
	}
	return nil
}
