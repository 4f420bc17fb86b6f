// Package statesync owns the single in-memory snapshot of application state.
// Every mutation writes through to the remote store and is followed by a full
// refetch; the store stays the only source of truth and the client never
// merges. Observers receive a fresh copy of the snapshot after every change.
package statesync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"bpdcentral/internal/config"
	"bpdcentral/internal/domain"
	"bpdcentral/internal/store"
)

// Observer receives snapshot copies, synchronously, in registration order.
type Observer func(domain.AppState)

// Service is the state synchronization layer. Construct one per process (or
// per test) with New; there is no package-level instance.
type Service struct {
	mu           sync.Mutex
	workspace    string
	seed         domain.AppState
	state        domain.AppState
	client       *store.Client
	creds        config.Credentials
	connected    bool
	subs         map[int]Observer
	order        []int
	nextSubID    int
	listenCancel context.CancelFunc
	now          func() time.Time
}

// New returns a disconnected service bound to a workspace (for the persisted
// credential override).
func New(workspace string) *Service {
	return &Service{
		workspace: workspace,
		subs:      map[int]Observer{},
		now:       time.Now,
	}
}

// Initialize seeds the snapshot so callers have data before any network round
// trip, then attempts to connect. It reports whether the remote connection
// succeeded and never fails: absent or bad credentials degrade to local mode.
func (s *Service) Initialize(ctx context.Context, seedState domain.AppState) bool {
	s.mu.Lock()
	s.seed = seedState.Copy()
	s.state = seedState.Copy()
	if s.state.CurrentUser == nil && len(s.state.Users) > 0 {
		u := s.state.Users[0]
		s.state.CurrentUser = &u
	}
	s.mu.Unlock()
	s.notify()
	ok := s.Reconnect(ctx, "", "")
	// First-run default only: if the store has no record of the seeded
	// selection, pick the first synced user. Later syncs leave an emptied
	// selection alone.
	s.mu.Lock()
	reassigned := false
	if s.state.CurrentUser == nil && len(s.state.Users) > 0 {
		u := s.state.Users[0]
		s.state.CurrentUser = &u
		reassigned = true
	}
	s.mu.Unlock()
	if reassigned {
		s.notify()
	}
	return ok
}

// Reconnect resolves credentials (explicit args win, then the persisted
// override, then the environment), probes the store with a trivial read and
// runs a full sync. Any failure leaves the service disconnected; there is no
// retry or backoff — the caller decides when to try again.
func (s *Service) Reconnect(ctx context.Context, url, key string) bool {
	creds := config.Resolve(s.workspace, url, key)
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	if !creds.Present() {
		s.disconnect()
		return false
	}
	client := store.New(creds.URL, creds.AnonKey)
	if err := client.Probe(ctx); err != nil {
		s.disconnect()
		return false
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	if !s.Sync(ctx) {
		return false
	}
	s.startListener(client)
	return true
}

// Sync refetches the three collections, replaces the snapshot and notifies
// observers. On failure the previous snapshot is retained, the service is
// marked disconnected, and observers are still notified so the connectivity
// indicator can update.
func (s *Service) Sync(ctx context.Context) bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}

	var (
		wg       sync.WaitGroup
		tasks    []domain.Task
		programs []domain.Program
		users    []domain.User
		terr     error
		perr     error
		uerr     error
	)
	wg.Add(3)
	go func() { defer wg.Done(); tasks, terr = client.ListTasks(ctx) }()
	go func() { defer wg.Done(); programs, perr = client.ListPrograms(ctx) }()
	go func() { defer wg.Done(); users, uerr = client.ListUsers(ctx) }()
	wg.Wait()

	if terr != nil || perr != nil || uerr != nil {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.notify()
		return false
	}

	s.mu.Lock()
	s.state.Tasks = tasks
	s.state.Programs = programs
	s.state.Users = users
	// currentUser is a weak reference: re-resolve by id against the fresh
	// users list so it never goes stale. A user the store no longer knows
	// leaves the selection empty; sync never re-points it.
	if s.state.CurrentUser != nil {
		if u := s.state.FindUser(s.state.CurrentUser.ID); u != nil {
			cu := *u
			s.state.CurrentUser = &cu
		} else {
			s.state.CurrentUser = nil
		}
	}
	s.connected = true
	s.mu.Unlock()
	s.notify()
	return true
}

// Subscribe registers an observer and immediately replays the current
// snapshot, so new subscribers are never blank. The returned function
// unsubscribes and is a safe no-op when called again.
func (s *Service) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	snap := s.state.Copy()
	s.mu.Unlock()
	fn(snap)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() domain.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Copy()
}

// IsConnected reports whether the last handshake or sync succeeded.
func (s *Service) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// HasCredentials reports whether a credential pair was resolved.
func (s *Service) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Present()
}

// AddTask writes a new task through to the store and resyncs. Without a
// store client this is a silent no-op: local mode has no write path. Write
// errors are not surfaced; the caller observes the outcome through the
// snapshot the following sync delivers.
func (s *Service) AddTask(ctx context.Context, t domain.Task) {
	client := s.clientRef()
	if client == nil {
		return
	}
	if t.ID == "" {
		t.ID = newID("t")
	}
	if t.Status == "" {
		t.Status = domain.StatusOpen
	}
	t.UpdatedAt = s.timestamp()
	t.UpdatedBy = s.currentUserName()
	_ = client.InsertTask(ctx, t)
	s.Sync(ctx)
}

// UpdateTask applies a partial update, stamping updated_at/updated_by, then
// resyncs.
func (s *Service) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) {
	client := s.clientRef()
	if client == nil {
		return
	}
	fields := store.TaskPatchFields(patch)
	fields["updated_at"] = s.timestamp()
	fields["updated_by"] = s.currentUserName()
	_ = client.UpdateTask(ctx, id, fields)
	s.Sync(ctx)
}

// DeleteTask removes a task and resyncs.
func (s *Service) DeleteTask(ctx context.Context, id string) {
	client := s.clientRef()
	if client == nil {
		return
	}
	_ = client.DeleteTask(ctx, id)
	s.Sync(ctx)
}

// AddProgram writes a new grant program through and resyncs.
func (s *Service) AddProgram(ctx context.Context, p domain.Program) {
	client := s.clientRef()
	if client == nil {
		return
	}
	if p.ID == "" {
		p.ID = newID("p")
	}
	if p.CreatedAt == "" {
		p.CreatedAt = s.timestamp()
	}
	if p.CreatedBy == "" {
		p.CreatedBy = s.currentUserID()
	}
	_ = client.InsertProgram(ctx, p)
	s.Sync(ctx)
}

func (s *Service) UpdateProgram(ctx context.Context, id string, patch domain.ProgramPatch) {
	client := s.clientRef()
	if client == nil {
		return
	}
	_ = client.UpdateProgram(ctx, id, store.ProgramPatchFields(patch))
	s.Sync(ctx)
}

func (s *Service) DeleteProgram(ctx context.Context, id string) {
	client := s.clientRef()
	if client == nil {
		return
	}
	_ = client.DeleteProgram(ctx, id)
	s.Sync(ctx)
}

// AddUser writes a new team member through and resyncs.
func (s *Service) AddUser(ctx context.Context, u domain.User) {
	client := s.clientRef()
	if client == nil {
		return
	}
	if u.ID == "" {
		u.ID = newID("u")
	}
	_ = client.InsertUser(ctx, u)
	s.Sync(ctx)
}

func (s *Service) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) {
	client := s.clientRef()
	if client == nil {
		return
	}
	_ = client.UpdateUser(ctx, id, store.UserPatchFields(patch))
	s.Sync(ctx)
}

func (s *Service) DeleteUser(ctx context.Context, id string) {
	client := s.clientRef()
	if client == nil {
		return
	}
	_ = client.DeleteUser(ctx, id)
	s.Sync(ctx)
}

// SetCurrentUser is a pure local reassignment; nothing is persisted.
func (s *Service) SetCurrentUser(id string) {
	s.mu.Lock()
	if u := s.state.FindUser(id); u != nil {
		cu := *u
		s.state.CurrentUser = &cu
	} else {
		s.state.CurrentUser = nil
	}
	s.mu.Unlock()
	s.notify()
}

// SaveCredentials persists the override and reconnects with it.
func (s *Service) SaveCredentials(ctx context.Context, url, key string) bool {
	if err := config.SaveOverride(s.workspace, config.Credentials{URL: url, AnonKey: key}); err != nil {
		return false
	}
	return s.Reconnect(ctx, "", "")
}

// ClearCredentials erases the override and hard-resets the service back to
// the seed snapshot, the CLI analogue of the original full page reload.
func (s *Service) ClearCredentials() {
	_ = config.ClearOverride(s.workspace)
	s.disconnect()
	s.mu.Lock()
	s.creds = config.Credentials{}
	s.state = s.seed.Copy()
	if s.state.CurrentUser == nil && len(s.state.Users) > 0 {
		u := s.state.Users[0]
		s.state.CurrentUser = &u
	}
	s.mu.Unlock()
	s.notify()
}

// Close stops the realtime listener.
func (s *Service) Close() {
	s.mu.Lock()
	cancel := s.listenCancel
	s.listenCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// --- internals ---

func (s *Service) clientRef() *store.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Service) disconnect() {
	s.Close()
	s.mu.Lock()
	s.client = nil
	s.connected = false
	s.mu.Unlock()
}

// startListener attaches the realtime change listener; every notification
// triggers a full resync. Overlapping syncs are not serialized — whichever
// response lands last wins, and the store remains the source of truth.
func (s *Service) startListener(client *store.Client) {
	s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.listenCancel = cancel
	s.mu.Unlock()
	go func() {
		ch, err := client.Changes(ctx)
		if err != nil {
			return
		}
		for range ch {
			s.Sync(ctx)
		}
	}()
}

// notify delivers the snapshot to observers in registration order. Each
// observer gets its own copy so no delivered collection aliases a previous
// delivery or the canonical state.
func (s *Service) notify() {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.order))
	for _, id := range s.order {
		observers = append(observers, s.subs[id])
	}
	base := s.state
	s.mu.Unlock()
	for _, fn := range observers {
		fn(base.Copy())
	}
}

func (s *Service) currentUserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentUser != nil {
		return s.state.CurrentUser.Name
	}
	return "System"
}

func (s *Service) currentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentUser != nil {
		return s.state.CurrentUser.ID
	}
	return ""
}

func (s *Service) timestamp() string {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()
	return now().UTC().Format(time.RFC3339)
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
