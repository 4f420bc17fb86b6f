package statesync

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"bpdcentral/internal/db"
	"bpdcentral/internal/domain"
	"bpdcentral/internal/migrate"
	"bpdcentral/internal/seed"
	"bpdcentral/internal/server"
	"bpdcentral/internal/store"
)

const testSecret = "sync-test-secret"

// clearCredEnv blanks every credential variable the resolver scans, so tests
// control connectivity explicitly.
func clearCredEnv(t *testing.T) {
	t.Helper()
	for _, prefix := range []string{"", "BPD_", "VITE_", "REACT_APP_", "NEXT_PUBLIC_", "PUBLIC_"} {
		t.Setenv(prefix+"STORE_URL", "")
		t.Setenv(prefix+"STORE_ANON_KEY", "")
	}
}

func newStore(t *testing.T) (url, key string, shutdown func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{DB: conn, Auth: server.AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	key, err = server.SignAnonKey(testSecret, server.RoleAnon)
	if err != nil {
		t.Fatalf("sign key: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	shutdown = func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	}
	t.Cleanup(shutdown)
	return "http://" + ln.Addr().String(), key, shutdown
}

// loadStore pushes the built-in data set into a fresh store.
func loadStore(t *testing.T, url, key string) {
	t.Helper()
	ctx := context.Background()
	client := store.New(url, key)
	data := seed.State()
	for _, p := range data.Programs {
		if err := client.InsertProgram(ctx, p); err != nil {
			t.Fatalf("seed program %s: %v", p.ID, err)
		}
	}
	for _, u := range data.Users {
		if err := client.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	for _, task := range data.Tasks {
		if err := client.InsertTask(ctx, task); err != nil {
			t.Fatalf("seed task %s: %v", task.ID, err)
		}
	}
}

func connectedService(t *testing.T) (*Service, string, string) {
	t.Helper()
	clearCredEnv(t)
	url, key, _ := newStore(t)
	loadStore(t, url, key)
	svc := New(t.TempDir())
	t.Cleanup(svc.Close)
	if ok := svc.Initialize(context.Background(), seed.State()); ok {
		t.Fatalf("expected local init without credentials")
	}
	if ok := svc.Reconnect(context.Background(), url, key); !ok {
		t.Fatalf("reconnect failed")
	}
	return svc, url, key
}

func findTask(tasks []domain.Task, id string) *domain.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

func TestLocalModeFallback(t *testing.T) {
	clearCredEnv(t)
	svc := New(t.TempDir())
	defer svc.Close()

	ok := svc.Initialize(context.Background(), seed.State())
	if ok {
		t.Fatalf("expected disconnected init without credentials")
	}
	if svc.IsConnected() || svc.HasCredentials() {
		t.Fatalf("expected no connection and no credentials")
	}
	state := svc.Snapshot()
	if len(state.Tasks) != 3 || len(state.Users) != 4 {
		t.Fatalf("seed snapshot not served: %d tasks, %d users", len(state.Tasks), len(state.Users))
	}
	if state.CurrentUser == nil || state.CurrentUser.ID != "u-admin" {
		t.Fatalf("expected first user selected, got %+v", state.CurrentUser)
	}

	// Local mode has no write path: mutations are silent no-ops.
	svc.AddTask(context.Background(), domain.Task{Name: "Should not land"})
	if len(svc.Snapshot().Tasks) != 3 {
		t.Fatalf("local mutation changed the snapshot")
	}
}

func TestConnectAndSync(t *testing.T) {
	clearCredEnv(t)
	url, key, _ := newStore(t)
	loadStore(t, url, key)
	t.Setenv("STORE_URL", url)
	t.Setenv("STORE_ANON_KEY", key)

	svc := New(t.TempDir())
	defer svc.Close()
	if ok := svc.Initialize(context.Background(), seed.State()); !ok {
		t.Fatalf("expected connected init with env credentials")
	}
	if !svc.IsConnected() || !svc.HasCredentials() {
		t.Fatalf("expected connected state")
	}
	state := svc.Snapshot()
	if len(state.Tasks) != 3 {
		t.Fatalf("expected store tasks, got %d", len(state.Tasks))
	}
	// Most recently updated first.
	if state.Tasks[0].ID != "t-ptc-travel" {
		t.Fatalf("expected t-ptc-travel first, got %s", state.Tasks[0].ID)
	}
	if state.CurrentUser == nil || state.CurrentUser.ID != "u-admin" {
		t.Fatalf("current user not re-resolved: %+v", state.CurrentUser)
	}
}

func TestWriteThroughAndResync(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := context.Background()

	svc.AddTask(ctx, domain.Task{ID: "t-fresh", Name: "Draft subgrant notice", Program: "BEAD"})
	stored := findTask(svc.Snapshot().Tasks, "t-fresh")
	if stored == nil {
		t.Fatalf("added task missing after resync")
	}
	if stored.UpdatedBy != "System Admin" {
		t.Fatalf("expected current user stamp, got %q", stored.UpdatedBy)
	}
	if stored.UpdatedAt == "" || stored.Status != domain.StatusOpen {
		t.Fatalf("unexpected stored row: %+v", stored)
	}

	name := "Draft subgrant notice v2"
	svc.UpdateTask(ctx, "t-fresh", domain.TaskPatch{Name: &name})
	updated := findTask(svc.Snapshot().Tasks, "t-fresh")
	if updated == nil || updated.Name != name {
		t.Fatalf("partial update not applied: %+v", updated)
	}
	if updated.Program != "BEAD" {
		t.Fatalf("untouched field changed: %+v", updated)
	}

	svc.DeleteTask(ctx, "t-fresh")
	if findTask(svc.Snapshot().Tasks, "t-fresh") != nil {
		t.Fatalf("deleted task still present")
	}
}

func TestObserversGetFreshCopies(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := context.Background()

	// The change listener can also notify from its own goroutine.
	var mu sync.Mutex
	var snapshots []domain.AppState
	unsubscribe := svc.Subscribe(func(s domain.AppState) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	})
	defer unsubscribe()
	mu.Lock()
	replayed := len(snapshots)
	mu.Unlock()
	if replayed != 1 {
		t.Fatalf("expected immediate replay, got %d calls", replayed)
	}

	svc.AddTask(ctx, domain.Task{ID: "t-copy", Name: "Copy semantics"})
	mu.Lock()
	if len(snapshots) < 2 {
		mu.Unlock()
		t.Fatalf("mutation did not notify")
	}
	last := snapshots[len(snapshots)-1]
	mu.Unlock()
	if findTask(last.Tasks, "t-copy") == nil {
		t.Fatalf("notified snapshot missing new task")
	}

	// Mutating a delivered snapshot must not leak into the service.
	last.Tasks[0].Name = "clobbered"
	if svc.Snapshot().Tasks[0].Name == "clobbered" {
		t.Fatalf("observer snapshot aliases service state")
	}

	// Snapshot() copies too.
	snap := svc.Snapshot()
	snap.Users[0].Name = "clobbered"
	if svc.Snapshot().Users[0].Name == "clobbered" {
		t.Fatalf("Snapshot aliases service state")
	}
}

func TestSubscriptionHandles(t *testing.T) {
	clearCredEnv(t)
	svc := New(t.TempDir())
	defer svc.Close()
	svc.Initialize(context.Background(), seed.State())

	var order []string
	unsubA := svc.Subscribe(func(domain.AppState) { order = append(order, "a") })
	unsubB := svc.Subscribe(func(domain.AppState) { order = append(order, "b") })
	order = nil

	svc.SetCurrentUser("u-glen")
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected registration-order delivery, got %v", order)
	}

	unsubA()
	unsubA() // second call is a no-op
	order = nil
	svc.SetCurrentUser("u-melia")
	if len(order) != 1 || order[0] != "b" {
		t.Fatalf("expected only b after unsubscribe, got %v", order)
	}
	unsubB()
	order = nil
	svc.SetCurrentUser("u-admin")
	if len(order) != 0 {
		t.Fatalf("unsubscribed observer still notified: %v", order)
	}
}

func TestRemovedCurrentUserStaysDeselected(t *testing.T) {
	svc, url, key := connectedService(t)
	ctx := context.Background()

	svc.SetCurrentUser("u-melia")

	// Another writer removes the selected user behind this service's back.
	other := store.New(url, key)
	if err := other.DeleteUser(ctx, "u-melia"); err != nil {
		t.Fatalf("external delete: %v", err)
	}
	if !svc.Sync(ctx) {
		t.Fatalf("sync failed")
	}
	if cu := svc.Snapshot().CurrentUser; cu != nil {
		t.Fatalf("expected empty selection after user removal, got %+v", cu)
	}

	// Writes fall back to the unattributed stamp, not to another user.
	svc.AddTask(ctx, domain.Task{ID: "t-orphan", Name: "Orphaned"})
	stored := findTask(svc.Snapshot().Tasks, "t-orphan")
	if stored == nil || stored.UpdatedBy != "System" {
		t.Fatalf("expected System stamp, got %+v", stored)
	}
}

func TestUnsubscribePrunesRegistry(t *testing.T) {
	clearCredEnv(t)
	svc := New(t.TempDir())
	defer svc.Close()
	svc.Initialize(context.Background(), seed.State())

	for i := 0; i < 50; i++ {
		unsub := svc.Subscribe(func(domain.AppState) {})
		unsub()
		unsub()
	}
	svc.mu.Lock()
	subs, order := len(svc.subs), len(svc.order)
	svc.mu.Unlock()
	if subs != 0 || order != 0 {
		t.Fatalf("registry not pruned: %d subs, %d order entries", subs, order)
	}
}

func TestCurrentUserStampsWrites(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := context.Background()

	svc.SetCurrentUser("u-melia")
	svc.AddTask(ctx, domain.Task{ID: "t-stamped", Name: "Stamped"})
	stored := findTask(svc.Snapshot().Tasks, "t-stamped")
	if stored == nil || stored.UpdatedBy != "Melia" {
		t.Fatalf("expected Melia stamp, got %+v", stored)
	}

	svc.SetCurrentUser("nobody")
	if svc.Snapshot().CurrentUser != nil {
		t.Fatalf("unknown user should clear selection")
	}
	svc.AddTask(ctx, domain.Task{ID: "t-system", Name: "Unattributed"})
	stored = findTask(svc.Snapshot().Tasks, "t-system")
	if stored == nil || stored.UpdatedBy != "System" {
		t.Fatalf("expected System stamp, got %+v", stored)
	}
}

func TestOutageKeepsSnapshot(t *testing.T) {
	clearCredEnv(t)
	url, key, shutdown := newStore(t)
	loadStore(t, url, key)
	svc := New(t.TempDir())
	defer svc.Close()
	svc.Initialize(context.Background(), seed.State())
	if ok := svc.Reconnect(context.Background(), url, key); !ok {
		t.Fatalf("reconnect failed")
	}
	before := svc.Snapshot()

	shutdown()

	notified := false
	unsubscribe := svc.Subscribe(func(domain.AppState) { notified = true })
	defer unsubscribe()
	notified = false

	if svc.Sync(context.Background()) {
		t.Fatalf("sync should fail after outage")
	}
	if svc.IsConnected() {
		t.Fatalf("expected disconnected after failed sync")
	}
	if !notified {
		t.Fatalf("failed sync should still notify for the indicator")
	}
	after := svc.Snapshot()
	if len(after.Tasks) != len(before.Tasks) {
		t.Fatalf("snapshot lost on failed sync: %d != %d", len(after.Tasks), len(before.Tasks))
	}

	// Writes during the outage vanish without error; the next failed resync
	// just confirms the disconnect.
	svc.AddTask(context.Background(), domain.Task{ID: "t-lost", Name: "Lost write"})
	if findTask(svc.Snapshot().Tasks, "t-lost") != nil {
		t.Fatalf("write landed in snapshot despite outage")
	}
}

func TestSaveAndClearCredentials(t *testing.T) {
	clearCredEnv(t)
	url, key, _ := newStore(t)
	loadStore(t, url, key)
	workspace := t.TempDir()
	svc := New(workspace)
	defer svc.Close()
	svc.Initialize(context.Background(), seed.State())

	if ok := svc.SaveCredentials(context.Background(), url, key); !ok {
		t.Fatalf("save credentials should connect")
	}
	if !svc.IsConnected() {
		t.Fatalf("expected connected after save")
	}

	// A second service in the same workspace picks up the override.
	svc2 := New(workspace)
	defer svc2.Close()
	if ok := svc2.Initialize(context.Background(), seed.State()); !ok {
		t.Fatalf("persisted override should reconnect")
	}

	svc.ClearCredentials()
	if svc.IsConnected() || svc.HasCredentials() {
		t.Fatalf("expected full disconnect after clear")
	}
	state := svc.Snapshot()
	if len(state.Tasks) != 3 || findTask(state.Tasks, "t-binders-redacted") == nil {
		t.Fatalf("expected seed snapshot restored, got %d tasks", len(state.Tasks))
	}
	if state.CurrentUser == nil || state.CurrentUser.ID != "u-admin" {
		t.Fatalf("expected first seed user selected, got %+v", state.CurrentUser)
	}

	// The override is gone: a fresh service starts disconnected.
	svc3 := New(workspace)
	defer svc3.Close()
	if ok := svc3.Initialize(context.Background(), seed.State()); ok {
		t.Fatalf("cleared override should not reconnect")
	}
}

func TestChangeListenerTriggersResync(t *testing.T) {
	svc, url, key := connectedService(t)

	// A second writer mutates the store behind this service's back.
	other := store.New(url, key)
	if err := other.InsertTask(context.Background(), domain.Task{
		ID: "t-external", Name: "External change", Status: domain.StatusOpen,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("external insert: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if findTask(svc.Snapshot().Tasks, "t-external") != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("change notification never produced a resync")
}
