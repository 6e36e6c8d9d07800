package apps

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flipper-bridge/internal/catalog"
	"flipper-bridge/internal/manifest"
	"flipper-bridge/internal/proto"
	"flipper-bridge/internal/session"
)

// fakeFS is an in-memory device filesystem implementing the session surface.
// The embedded Closed supplies the operations a test does not exercise.
type fakeFS struct {
	session.Closed

	mu        sync.Mutex
	files     map[string][]byte
	dirs      map[string]bool
	props     map[string][]proto.Property
	propKeys  []string
	clockSets int
	deleted   []string

	// writeHook intercepts WriteFile; a non-nil error aborts the write.
	writeHook func(path string, progress func(float64)) error
	deleteErr map[string]error
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		files:     make(map[string][]byte),
		dirs:      make(map[string]bool),
		props:     make(map[string][]proto.Property),
		deleteErr: make(map[string]error),
	}
}

type sliceIterator struct {
	entries []proto.Property
}

func (it *sliceIterator) Next(context.Context) (proto.Property, error) {
	if len(it.entries) == 0 {
		return proto.Property{}, io.EOF
	}
	p := it.entries[0]
	it.entries = it.entries[1:]
	return p, nil
}

func (f *fakeFS) Property(_ context.Context, key string) (session.PropertyIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.propKeys = append(f.propKeys, key)
	return &sliceIterator{entries: append([]proto.Property(nil), f.props[key]...)}, nil
}

func (f *fakeFS) SetDateTime(context.Context, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockSets++
	return nil
}

func (f *fakeFS) StorageInfo(context.Context, string) (proto.StorageInfo, error) {
	return proto.StorageInfo{TotalSpace: 256 << 20, FreeSpace: 100 << 20}, nil
}

func (f *fakeFS) CreateDirectory(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[path] = true
	return nil
}

func (f *fakeFS) ListDirectory(_ context.Context, dir string) ([]proto.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := dir + "/"
	var entries []proto.FileInfo
	for p, data := range f.files {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			entries = append(entries, proto.FileInfo{Name: p[len(prefix):], Size: uint64(len(data))})
		}
	}
	return entries, nil
}

func (f *fakeFS) ReadFile(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, &session.DeviceError{Status: proto.StatusErrorStorageNotExist}
	}
	return data, nil
}

func (f *fakeFS) WriteFile(_ context.Context, path string, data []byte, progress func(float64)) error {
	if f.writeHook != nil {
		if err := f.writeHook(path, progress); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.files[path] = append([]byte(nil), data...)
	f.mu.Unlock()
	if progress != nil {
		progress(1)
	}
	return nil
}

func (f *fakeFS) MoveFile(_ context.Context, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[oldPath]
	if !ok {
		return &session.DeviceError{Status: proto.StatusErrorStorageNotExist}
	}
	delete(f.files, oldPath)
	f.files[newPath] = data
	return nil
}

func (f *fakeFS) DeleteFile(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[path]; err != nil {
		return err
	}
	if _, ok := f.files[path]; !ok {
		return &session.DeviceError{Status: proto.StatusErrorStorageNotExist}
	}
	delete(f.files, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeFS) tempLeftovers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.files {
		if strings.HasPrefix(p, manifest.TempDir+"/") {
			out = append(out, p)
		}
	}
	return out
}

// fakeCatalog is a scriptable in-memory catalog.
type fakeCatalog struct {
	mu sync.Mutex

	categories     []catalog.Category
	categoriesErr  error
	categoryCalls  int
	categoriesGate chan struct{} // when non-nil, Categories blocks until closed

	apps   map[string]catalog.Application
	builds map[string][]byte
	icons  map[string][]byte

	buildOrder    []string
	onApplication func(uid string)
	lastFilter    catalog.Filter
	listErr       error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		apps:   make(map[string]catalog.Application),
		builds: make(map[string][]byte),
		icons:  make(map[string][]byte),
	}
}

func (c *fakeCatalog) Categories(context.Context) ([]catalog.Category, error) {
	c.mu.Lock()
	c.categoryCalls++
	gate := c.categoriesGate
	cats, err := c.categories, c.categoriesErr
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return cats, err
}

func (c *fakeCatalog) Featured(context.Context) ([]catalog.ApplicationInfo, error) {
	return nil, nil
}

func (c *fakeCatalog) Applications(_ context.Context, filter catalog.Filter) ([]catalog.ApplicationInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFilter = filter
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []catalog.ApplicationInfo
	for _, uid := range filter.UIDs {
		if app, ok := c.apps[uid]; ok {
			out = append(out, app.ApplicationInfo)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Application(_ context.Context, uid string) (catalog.Application, error) {
	c.mu.Lock()
	hook := c.onApplication
	app, ok := c.apps[uid]
	c.mu.Unlock()
	if hook != nil {
		hook(uid)
	}
	if !ok {
		return catalog.Application{}, errors.New("application not found")
	}
	return app, nil
}

func (c *fakeCatalog) Build(_ context.Context, versionUID, target, api string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buildOrder = append(c.buildOrder, versionUID)
	data, ok := c.builds[versionUID]
	if !ok {
		return nil, errors.New("no build for version")
	}
	return data, nil
}

func (c *fakeCatalog) Icon(_ context.Context, uri string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.icons[uri], nil
}

func (c *fakeCatalog) Report(context.Context, string, string) error { return nil }

func newTestOrchestrator(cat catalog.Catalog, fs session.IO) *Orchestrator {
	return newOrchestrator(cat, func() session.IO { return fs })
}

func (o *Orchestrator) setDeviceInfo(info DeviceInfo) {
	o.mu.Lock()
	o.deviceInfo = &info
	o.mu.Unlock()
}

func seedApp(cat *fakeCatalog, uid, alias, categoryID, versionUID string) {
	cat.apps[uid] = catalog.Application{
		ApplicationInfo: catalog.ApplicationInfo{
			UID:        uid,
			Alias:      alias,
			CategoryID: categoryID,
			Name:       strings.ToUpper(alias[:1]) + alias[1:],
			Current: catalog.Version{
				UID:      versionUID,
				IconURI:  "assets/" + alias + ".png",
				BuildAPI: "73.1",
				Status:   catalog.VersionReady,
			},
		},
	}
	cat.builds[versionUID] = []byte("binary of " + alias)
	cat.icons["assets/"+alias+".png"] = []byte("icon of " + alias)
}

func TestDeriveStatus(t *testing.T) {
	m := manifest.Manifest{UID: "uid-a", VersionUID: "ver-1", BuildAPI: "73.1"}

	tests := []struct {
		name string
		info *catalog.ApplicationInfo
		want StatusKind
	}{
		{"no catalog match", nil, StatusInstalled},
		{"version and api match", &catalog.ApplicationInfo{
			Current: catalog.Version{UID: "ver-1", BuildAPI: "73.1", Status: catalog.VersionReady},
		}, StatusInstalled},
		{"newer ready version", &catalog.ApplicationInfo{
			Current: catalog.Version{UID: "ver-2", BuildAPI: "73.1", Status: catalog.VersionReady},
		}, StatusOutdated},
		{"same version new api", &catalog.ApplicationInfo{
			Current: catalog.Version{UID: "ver-1", BuildAPI: "74.0", Status: catalog.VersionReady},
		}, StatusOutdated},
		{"newer version still building", &catalog.ApplicationInfo{
			Current: catalog.Version{UID: "ver-2", BuildAPI: "73.1", Status: catalog.VersionBuilding},
		}, StatusBuilding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, deriveStatus(m, tt.info).Kind)
		})
	}
}

func TestInstallEndToEnd(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog()
	cat.categories = []catalog.Category{{ID: "cat-games", Name: "games"}}
	seedApp(cat, "uid-demo", "demo", "cat-games", "ver-demo")

	fs := newFakeFS()
	o := newTestOrchestrator(cat, fs)
	o.setDeviceInfo(DeviceInfo{Target: "f7", API: "73.1"})

	o.Install(ctx, "uid-demo")

	require.Equal(t, StatusInstalled, o.Status("uid-demo").Kind)

	m, ok := o.Manifests()["uid-demo"]
	require.True(t, ok, "manifest map must be keyed by application uid")
	require.Equal(t, "/ext/apps/games/demo.fap", m.Path)
	require.Equal(t, "ver-demo", m.VersionUID)
	require.Equal(t, "73.1", m.BuildAPI)

	require.Equal(t, []byte("binary of demo"), fs.files["/ext/apps/games/demo.fap"])

	recorded, err := manifest.Decode(fs.files["/ext/apps_manifests/demo.fim"])
	require.NoError(t, err)
	require.Equal(t, "uid-demo", recorded.UID)
	require.Equal(t, "/ext/apps/games/demo.fap", recorded.Path)
	require.Equal(t, []byte("icon of demo"), recorded.Icon)

	require.Empty(t, fs.tempLeftovers(), "staging files must be promoted away")
	for _, dir := range []string{manifest.AppsDir, "/ext/apps/games", manifest.ManifestsDir, manifest.TempDir} {
		require.True(t, fs.dirs[dir], "directory %s not ensured", dir)
	}
}

func TestInstallWithoutDeviceInfo(t *testing.T) {
	cat := newFakeCatalog()
	seedApp(cat, "uid-demo", "demo", "cat-games", "ver-demo")
	fs := newFakeFS()
	o := newTestOrchestrator(cat, fs)

	o.Install(context.Background(), "uid-demo")

	require.Equal(t, StatusNotInstalled, o.Status("uid-demo").Kind)
	require.Empty(t, fs.files)
}

func TestInstallFailureKeepsLastProgress(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog()
	cat.categories = []catalog.Category{{ID: "cat-games", Name: "games"}}
	seedApp(cat, "uid-demo", "demo", "cat-games", "ver-demo")

	fs := newFakeFS()
	fs.writeHook = func(path string, progress func(float64)) error {
		if strings.HasSuffix(path, ".fap") {
			progress(0.3)
			return session.ErrNotConnected
		}
		return nil
	}
	o := newTestOrchestrator(cat, fs)
	o.setDeviceInfo(DeviceInfo{Target: "f7", API: "73.1"})

	o.Install(ctx, "uid-demo")

	st := o.Status("uid-demo")
	require.Equal(t, StatusInstalling, st.Kind, "failed install must not flip to installed")
	require.InDelta(t, 0.3, st.Progress, 1e-9)
	require.Empty(t, o.Manifests())

	// The link drops; the failed operation keeps its last reported progress.
	o.onDisconnect()
	require.Equal(t, StatusInstalling, o.Status("uid-demo").Kind)

	// Reconnect reload finds no manifest and no running operation: the stale
	// progress is dropped, and the install is not resumed.
	fs.writeHook = nil
	require.NoError(t, o.Reload(ctx))
	require.Equal(t, StatusNotInstalled, o.Status("uid-demo").Kind)
	require.Empty(t, fs.tempLeftovers())
}

func TestUpdateAllSequential(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog()
	cat.categories = []catalog.Category{{ID: "cat-games", Name: "games"}}
	uids := []string{"uid-a", "uid-b", "uid-c"}
	seedApp(cat, "uid-a", "alpha", "cat-games", "ver-a")
	seedApp(cat, "uid-b", "beta", "cat-games", "ver-b")
	seedApp(cat, "uid-c", "gamma", "cat-games", "ver-c")

	fs := newFakeFS()
	o := newTestOrchestrator(cat, fs)
	o.setDeviceInfo(DeviceInfo{Target: "f7", API: "73.1"})

	firstCall := true
	cat.onApplication = func(string) {
		if !firstCall {
			return
		}
		firstCall = false
		// Before any update starts running, every requested id must already
		// show updating at progress zero.
		for _, uid := range uids {
			st := o.Status(uid)
			require.Equal(t, StatusUpdating, st.Kind, "uid %s", uid)
			require.Zero(t, st.Progress)
		}
	}

	o.UpdateAll(ctx, uids)

	require.Equal(t, []string{"ver-a", "ver-b", "ver-c"}, cat.buildOrder, "updates must run strictly in request order")
	for _, uid := range uids {
		require.Equal(t, StatusInstalled, o.Status(uid).Kind)
	}
}

func TestCategoriesCoalescesConcurrentLoads(t *testing.T) {
	cat := newFakeCatalog()
	cat.categories = []catalog.Category{{ID: "cat-games", Name: "games"}}
	cat.categoriesGate = make(chan struct{})

	o := newTestOrchestrator(cat, newFakeFS())

	const callers = 8
	results := make(chan []catalog.Category, callers)
	errs := make(chan error, callers)
	var started, wg sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			cats, err := o.Categories(context.Background())
			results <- cats
			errs <- err
		}()
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond) // let every caller reach the flight
	close(cat.categoriesGate)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for cats := range results {
		require.Equal(t, cat.categories, cats)
	}

	cat.mu.Lock()
	calls := cat.categoryCalls
	cat.mu.Unlock()
	require.Equal(t, 1, calls, "concurrent loads must coalesce into one fetch")

	// Cached now; no further fetches.
	_, err := o.Categories(context.Background())
	require.NoError(t, err)
	cat.mu.Lock()
	require.Equal(t, 1, cat.categoryCalls)
	cat.mu.Unlock()
}

func TestDeleteUnparseablePathTouchesNothing(t *testing.T) {
	cat := newFakeCatalog()
	fs := newFakeFS()
	o := newTestOrchestrator(cat, fs)

	bad := manifest.Manifest{UID: "uid-bad", Path: "/ext/apps/flat.fap"}
	o.mu.Lock()
	o.manifests["uid-bad"] = bad
	o.statuses["uid-bad"] = Status{Kind: StatusInstalled}
	o.mu.Unlock()

	o.Delete(context.Background(), "uid-bad")

	require.Empty(t, fs.deleted, "no device file operation may run for a malformed path")
	require.Contains(t, o.Manifests(), "uid-bad", "entry must stay untouched")
	require.Equal(t, StatusInstalled, o.Status("uid-bad").Kind)
}

func TestDeleteKeepsEntryWhenDeviceFails(t *testing.T) {
	cat := newFakeCatalog()
	fs := newFakeFS()
	fs.files["/ext/apps/games/demo.fap"] = []byte("bin")
	fs.files[manifest.ManifestPath("demo")] = []byte("rec")
	fs.deleteErr["/ext/apps/games/demo.fap"] = session.ErrNotConnected

	o := newTestOrchestrator(cat, fs)
	o.mu.Lock()
	o.manifests["uid-demo"] = manifest.Manifest{UID: "uid-demo", Path: "/ext/apps/games/demo.fap"}
	o.statuses["uid-demo"] = Status{Kind: StatusInstalled}
	o.mu.Unlock()

	o.Delete(context.Background(), "uid-demo")

	require.Contains(t, o.Manifests(), "uid-demo")
	require.Equal(t, StatusInstalled, o.Status("uid-demo").Kind)
}

func TestDeleteRemovesFilesAndEntry(t *testing.T) {
	cat := newFakeCatalog()
	fs := newFakeFS()
	fs.files["/ext/apps/games/demo.fap"] = []byte("bin")
	fs.files[manifest.ManifestPath("demo")] = []byte("rec")

	o := newTestOrchestrator(cat, fs)
	o.mu.Lock()
	o.manifests["uid-demo"] = manifest.Manifest{UID: "uid-demo", Path: "/ext/apps/games/demo.fap"}
	o.statuses["uid-demo"] = Status{Kind: StatusInstalled}
	o.mu.Unlock()

	ch, cancel := o.Subscribe()
	defer cancel()

	o.Delete(context.Background(), "uid-demo")

	require.NotContains(t, fs.files, "/ext/apps/games/demo.fap")
	require.NotContains(t, fs.files, manifest.ManifestPath("demo"))
	require.NotContains(t, o.Manifests(), "uid-demo")
	require.Equal(t, StatusNotInstalled, o.Status("uid-demo").Kind)

	change := <-ch
	require.Equal(t, "uid-demo", change.UID)
	require.Equal(t, StatusNotInstalled, change.Status.Kind)
}

func TestReloadDerivesAndRemovesStale(t *testing.T) {
	ctx := context.Background()
	cat := newFakeCatalog()
	seedApp(cat, "uid-old", "old", "cat-games", "ver-new")

	fs := newFakeFS()
	installed := manifest.Manifest{
		UID:        "uid-old",
		VersionUID: "ver-old",
		BuildAPI:   "73.1",
		Path:       "/ext/apps/games/old.fap",
	}
	fs.files[manifest.ManifestPath("old")] = manifest.Encode(installed)

	o := newTestOrchestrator(cat, fs)
	o.setDeviceInfo(DeviceInfo{Target: "f7", API: "73.1"})
	o.mu.Lock()
	o.statuses["uid-gone"] = Status{Kind: StatusInstalled}
	o.mu.Unlock()

	require.NoError(t, o.Reload(ctx))

	require.Equal(t, StatusOutdated, o.Status("uid-old").Kind)
	require.Equal(t, StatusNotInstalled, o.Status("uid-gone").Kind)

	cat.mu.Lock()
	require.Equal(t, []string{"uid-old"}, cat.lastFilter.UIDs)
	require.Equal(t, "f7", cat.lastFilter.Target)
	cat.mu.Unlock()
}

func TestReloadCatalogFailureDegradesToInstalled(t *testing.T) {
	cat := newFakeCatalog()
	cat.listErr = errors.New("catalog down")

	fs := newFakeFS()
	fs.files[manifest.ManifestPath("demo")] = manifest.Encode(manifest.Manifest{
		UID: "uid-demo", VersionUID: "ver-old", Path: "/ext/apps/games/demo.fap",
	})

	o := newTestOrchestrator(cat, fs)
	require.NoError(t, o.Reload(context.Background()))
	require.Equal(t, StatusInstalled, o.Status("uid-demo").Kind)
}

func TestOnConnectProtocolGate(t *testing.T) {
	cat := newFakeCatalog()
	fs := newFakeFS()
	fs.props["protocol"] = []proto.Property{
		{Key: "protocol.major", Value: "0"},
		{Key: "protocol.minor", Value: "2"},
	}

	o := newTestOrchestrator(cat, fs)
	o.onConnect(context.Background())

	require.True(t, o.DeviceOutdated())
	require.Nil(t, o.DeviceInfo())
	require.Equal(t, []string{"protocol"}, fs.propKeys, "outdated device must get no further traffic")
}

func TestOnConnectNegotiates(t *testing.T) {
	cat := newFakeCatalog()
	fs := newFakeFS()
	fs.props["protocol"] = []proto.Property{
		{Key: "protocol.major", Value: "1"},
		{Key: "protocol.minor", Value: "0"},
	}
	fs.props["hardware.target"] = []proto.Property{{Key: "hardware.target", Value: "f7"}}
	fs.props["firmware.api"] = []proto.Property{
		{Key: "firmware.api.major", Value: "73"},
		{Key: "firmware.api.minor", Value: "1"},
	}

	o := newTestOrchestrator(cat, fs)
	o.onConnect(context.Background())

	require.False(t, o.DeviceOutdated())
	info := o.DeviceInfo()
	require.NotNil(t, info)
	require.Equal(t, "f7", info.Target)
	require.Equal(t, "73.1", info.API)
	fs.mu.Lock()
	require.Equal(t, 1, fs.clockSets)
	fs.mu.Unlock()
}

func TestFetchTargetLastValueWins(t *testing.T) {
	fs := newFakeFS()
	fs.props["hardware.target"] = []proto.Property{
		{Key: "hardware.target", Value: "f6"},
		{Key: "hardware.target", Value: "f7"},
	}
	o := newTestOrchestrator(newFakeCatalog(), fs)

	target, err := o.fetchTarget(context.Background(), fs)
	require.NoError(t, err)
	require.Equal(t, "f7", target)
}

func TestBrowseScopedToDevice(t *testing.T) {
	cat := newFakeCatalog()
	o := newTestOrchestrator(cat, newFakeFS())
	o.setDeviceInfo(DeviceInfo{Target: "f7", API: "73.1"})

	_, err := o.Browse(context.Background(), catalog.Filter{Category: "cat-games"})
	require.NoError(t, err)

	cat.mu.Lock()
	defer cat.mu.Unlock()
	require.Equal(t, "f7", cat.lastFilter.Target)
	require.Equal(t, "73.1", cat.lastFilter.API)
	require.Equal(t, "cat-games", cat.lastFilter.Category)
}

func TestResolveCategory(t *testing.T) {
	cat := newFakeCatalog()
	cat.categories = []catalog.Category{
		{ID: "cat-games", Name: "games"},
		{ID: "cat-tools", Name: "tools"},
	}
	o := newTestOrchestrator(cat, newFakeFS())
	ctx := context.Background()

	m := manifest.Manifest{Path: "/ext/apps/games/demo.fap"}
	require.Equal(t, "cat-tools", o.ResolveCategory(ctx, m, "cat-tools").ID, "explicit id wins")
	require.Equal(t, "cat-games", o.ResolveCategory(ctx, m, "").ID, "falls back to path segment")

	placeholder := o.ResolveCategory(ctx, manifest.Manifest{Path: "/ext/apps/retro/x.fap"}, "")
	require.Empty(t, placeholder.ID)
	require.Equal(t, "retro", placeholder.Name)
	require.Equal(t, sentinelCategoryIcon, placeholder.Icon)
}
