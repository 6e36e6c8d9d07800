// Package apps is the application-lifecycle orchestrator. It coordinates
// the remote catalog, the device session and the manifest store to install,
// update and delete applications, derives per-application status, and
// resolves categories.
//
// All orchestrator state (manifest map, status map, cached categories,
// device info) is owned by the Orchestrator and mutated only through its
// methods under one mutex; observers receive change notifications over
// subscriber channels and never touch the maps directly. Install, update
// and delete are best-effort fire-and-forget operations: failures are
// logged and observable through status, never re-thrown to the caller.
package apps

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"flipper-bridge/internal/catalog"
	"flipper-bridge/internal/device"
	"flipper-bridge/internal/manifest"
	"flipper-bridge/internal/session"
	"flipper-bridge/pkg/log"
)

// Change is one status-map mutation delivered to subscribers.
type Change struct {
	UID    string
	Status Status
}

// Orchestrator keeps the device's installed applications synchronized with
// the catalog.
type Orchestrator struct {
	catalog   catalog.Catalog
	dev       *device.Device
	sessionFn func() session.IO
	store     *manifest.Store

	mu             sync.Mutex
	manifests      map[string]manifest.Manifest
	statuses       map[string]Status
	inFlight       map[string]bool
	categories     []catalog.Category
	deviceInfo     *DeviceInfo
	deviceOutdated bool

	// categoriesFlight coalesces concurrent category loads: callers
	// requesting categories while a load is in flight all await the same
	// fetch instead of issuing duplicates.
	categoriesFlight singleflight.Group

	subMu   sync.Mutex
	subs    map[uint64]chan Change
	nextSub uint64

	cancelWatch func()
}

// New creates an orchestrator bound to a paired device. It subscribes to
// the device's state stream and reacts to connects and disconnects until
// Close is called.
func New(cat catalog.Catalog, dev *device.Device) *Orchestrator {
	o := newOrchestrator(cat, dev.Session)
	o.dev = dev
	ch, cancel := dev.Subscribe()
	o.cancelWatch = cancel
	go o.watch(ch)
	return o
}

func newOrchestrator(cat catalog.Catalog, sessionFn func() session.IO) *Orchestrator {
	return &Orchestrator{
		catalog:   cat,
		sessionFn: sessionFn,
		store:     manifest.NewStore(sessionFn),
		manifests: make(map[string]manifest.Manifest),
		statuses:  make(map[string]Status),
		inFlight:  make(map[string]bool),
		subs:      make(map[uint64]chan Change),
	}
}

// Close cancels the device-state subscription.
func (o *Orchestrator) Close() {
	if o.cancelWatch != nil {
		o.cancelWatch()
	}
}

func (o *Orchestrator) watch(ch <-chan device.Snapshot) {
	wasConnected := false
	for snap := range ch {
		switch {
		case snap.Connected && !wasConnected:
			go o.onConnect(context.Background())
		case !snap.Connected && wasConnected:
			o.onDisconnect()
		}
		wasConnected = snap.Connected
	}
}

// onConnect negotiates device capabilities and loads the installed state.
// The protocol revision gate runs before any other device call; an outdated
// device gets no app-management traffic at all.
func (o *Orchestrator) onConnect(ctx context.Context) {
	io := o.session()

	supported, err := o.checkProtocol(ctx, io)
	if err != nil {
		log.Error("apps: protocol check failed", "error", err)
		return
	}
	if !supported {
		o.mu.Lock()
		o.deviceOutdated = true
		o.mu.Unlock()
		log.Warn("apps: device firmware below minimum protocol revision")
		return
	}

	info, err := o.fetchDeviceInfo(ctx, io)
	if err != nil {
		log.Error("apps: device info fetch failed", "error", err)
		return
	}
	o.mu.Lock()
	o.deviceOutdated = false
	o.deviceInfo = &info
	o.mu.Unlock()
	log.Info("apps: device ready", "target", info.Target, "api", info.API)

	o.syncClock(ctx, io)
	o.refreshStorageSummary(ctx, io)

	if err := o.Reload(ctx); err != nil {
		log.Error("apps: manifest reload failed", "error", err)
	}
}

// onDisconnect clears device-dependent state so stale data is never shown
// as current. Statuses of operations still unwinding keep their last
// reported progress; the failing operation owns its final status.
func (o *Orchestrator) onDisconnect() {
	o.mu.Lock()
	o.deviceInfo = nil
	o.manifests = make(map[string]manifest.Manifest)
	kept := make(map[string]Status)
	for uid, st := range o.statuses {
		if st.InFlight() {
			kept[uid] = st
		}
	}
	o.statuses = kept
	o.mu.Unlock()
	log.Info("apps: device state cleared after disconnect")
}

// Reload scans the device manifests and re-derives every status against the
// catalog.
func (o *Orchestrator) Reload(ctx context.Context) error {
	manifests, err := o.store.Scan(ctx)
	if err != nil {
		return err
	}

	infos := o.catalogMatches(ctx, manifests)

	o.mu.Lock()
	o.manifests = manifests
	changes := make([]Change, 0, len(manifests))
	for uid, m := range manifests {
		if o.inFlight[uid] {
			continue
		}
		st := deriveStatus(m, infos[uid])
		o.statuses[uid] = st
		changes = append(changes, Change{UID: uid, Status: st})
	}
	for uid := range o.statuses {
		if _, ok := manifests[uid]; !ok && !o.inFlight[uid] {
			delete(o.statuses, uid)
			changes = append(changes, Change{UID: uid, Status: Status{Kind: StatusNotInstalled}})
		}
	}
	o.mu.Unlock()

	for _, c := range changes {
		o.publish(c)
	}
	return nil
}

// catalogMatches fetches the catalog projections for the installed uids,
// scoped to the current device. Catalog failure degrades to "no match":
// every app then derives as plain installed.
func (o *Orchestrator) catalogMatches(ctx context.Context, manifests map[string]manifest.Manifest) map[string]*catalog.ApplicationInfo {
	matches := make(map[string]*catalog.ApplicationInfo)
	if len(manifests) == 0 {
		return matches
	}
	uids := make([]string, 0, len(manifests))
	for uid := range manifests {
		uids = append(uids, uid)
	}
	filter := catalog.Filter{UIDs: uids, Take: len(uids)}
	if di := o.DeviceInfo(); di != nil {
		filter.Target = di.Target
		filter.API = di.API
	}
	infos, err := o.catalog.Applications(ctx, filter)
	if err != nil {
		log.Warn("apps: catalog lookup for installed apps failed", "error", catalog.MapError(err))
		return matches
	}
	for i := range infos {
		matches[infos[i].UID] = &infos[i]
	}
	return matches
}

// DeviceInfo returns the negotiated device scope, or nil before negotiation.
func (o *Orchestrator) DeviceInfo() *DeviceInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.deviceInfo == nil {
		return nil
	}
	info := *o.deviceInfo
	return &info
}

// DeviceOutdated reports whether the connected firmware failed the protocol
// revision gate.
func (o *Orchestrator) DeviceOutdated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceOutdated
}

// Status returns the derived status for one application.
func (o *Orchestrator) Status(uid string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.statuses[uid]; ok {
		return st
	}
	return Status{Kind: StatusNotInstalled}
}

// Manifests returns a copy of the installed-application map.
func (o *Orchestrator) Manifests() map[string]manifest.Manifest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]manifest.Manifest, len(o.manifests))
	for uid, m := range o.manifests {
		out[uid] = m
	}
	return out
}

// Subscribe registers a status-change observer. The cancel func must be
// called when the observer goes away.
func (o *Orchestrator) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
		o.subMu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) publish(c Change) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for id, ch := range o.subs {
		select {
		case ch <- c:
		default:
			log.Warn("apps: observer lagging, dropping change", "subscriber", id)
		}
	}
}

func (o *Orchestrator) setStatus(uid string, st Status) {
	o.mu.Lock()
	o.statuses[uid] = st
	o.mu.Unlock()
	o.publish(Change{UID: uid, Status: st})
}

func (o *Orchestrator) session() session.IO {
	return o.sessionFn()
}

// beginOp marks an application operation as running, so a reload never
// rewrites its status underneath it. endOp releases the mark.
func (o *Orchestrator) beginOp(uid string) {
	o.mu.Lock()
	o.inFlight[uid] = true
	o.mu.Unlock()
}

func (o *Orchestrator) endOp(uid string) {
	o.mu.Lock()
	delete(o.inFlight, uid)
	o.mu.Unlock()
}
