package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"musichud/model"

	"github.com/google/uuid"
)

type switchEvent struct {
	current model.Track
	next    model.Track
	message string
}

type fakeAnnouncer struct {
	switches chan switchEvent
	mu       sync.Mutex
	queues   [][]model.Track
	syncs    []model.Track
}

func newFakeAnnouncer() *fakeAnnouncer {
	return &fakeAnnouncer{switches: make(chan switchEvent, 32)}
}

func (f *fakeAnnouncer) SwitchTrack(clients []model.Client, current, next model.Track, message string) {
	f.switches <- switchEvent{current, next, message}
}

func (f *fakeAnnouncer) SyncCurrent(client model.Client, track model.Track, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, track)
}

func (f *fakeAnnouncer) RefreshQueue(clients []model.Client, queue []model.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues = append(f.queues, queue)
}

func (f *fakeAnnouncer) lastQueue() []model.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queues) == 0 {
		return nil
	}
	return f.queues[len(f.queues)-1]
}

func (f *fakeAnnouncer) next(t *testing.T) switchEvent {
	t.Helper()
	select {
	case ev := <-f.switches:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected a track switch")
		return switchEvent{}
	}
}

type fakeDirectory struct {
	mu      sync.Mutex
	clients []model.Client
}

func (d *fakeDirectory) set(clients ...model.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients = clients
}

func (d *fakeDirectory) ConnectedClients() []model.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Client(nil), d.clients...)
}

func (d *fakeDirectory) ConnectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDirectory) Identity(id uuid.UUID) (model.Profile, string, bool) {
	return model.Profile{Nickname: "user", UserID: 42}, "MUSIC_U=1", true
}

type fakeCatalog struct {
	tracks    map[int64]model.Track
	playlists map[int64]model.Playlist

	mu           sync.Mutex
	resolveFails int
	resolveCalls int
}

func (c *fakeCatalog) failResolves(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveFails = n
}

func (c *fakeCatalog) resolves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveCalls
}

func (c *fakeCatalog) LookupTrack(ctx context.Context, id int64) (model.Track, error) {
	t, ok := c.tracks[id]
	if !ok {
		return model.NoTrack, errors.New("not found")
	}
	return t, nil
}

func (c *fakeCatalog) ResolveResource(ctx context.Context, id int64, cookie string) (model.Resource, error) {
	if _, ok := ctx.Deadline(); !ok {
		return model.NoResource, errors.New("lookup without deadline")
	}
	c.mu.Lock()
	c.resolveCalls++
	if c.resolveFails > 0 {
		c.resolveFails--
		c.mu.Unlock()
		return model.NoResource, errors.New("upstream unavailable")
	}
	c.mu.Unlock()

	res := model.NoResource
	res.ID = id
	res.URL = "https://example.invalid/song.mp3"
	return res, nil
}

func (c *fakeCatalog) FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error) {
	p, ok := c.playlists[id]
	if !ok {
		return model.NoPlaylist, errors.New("not found")
	}
	return p, nil
}

func track(id int64) model.Track {
	return model.Track{ID: id, Name: "song", DurationMillis: int32(time.Hour / time.Millisecond), Resource: model.NoResource}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IdleSleep = 10 * time.Millisecond
	cfg.ErrorBackoff = 10 * time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeAnnouncer, *fakeDirectory, *fakeCatalog) {
	t.Helper()
	catalog := &fakeCatalog{tracks: map[int64]model.Track{}, playlists: map[int64]model.Playlist{}}
	for id := int64(1); id <= 5; id++ {
		catalog.tracks[id] = track(id)
	}
	announcer := newFakeAnnouncer()
	dir := &fakeDirectory{}
	o := New(testConfig(), Deps{Catalog: catalog, Directory: dir, Announcer: announcer})
	t.Cleanup(o.Close)
	return o, announcer, dir, catalog
}

func waitPush(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("push failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("push did not complete")
	}
}

func TestRequiredVotes(t *testing.T) {
	cfg := Config{VoteSkipRatio: 0.5, VoteSkipMinVotes: 1}
	cases := map[int]int{0: 1, 1: 1, 2: 1, 3: 2, 4: 2, 5: 3}
	for connected, want := range cases {
		if got := cfg.RequiredVotes(connected); got != want {
			t.Errorf("connected=%d: expected %d, got %d", connected, want, got)
		}
	}
	cfg.VoteSkipMinVotes = 3
	if got := cfg.RequiredVotes(2); got != 3 {
		t.Errorf("expected min votes to win, got %d", got)
	}
}

func TestQueue(t *testing.T) {
	alex := model.Client{ID: uuid.New(), Name: "Alex"}

	t.Run("fifo and push metadata", func(t *testing.T) {
		o, announcer, dir, _ := newTestOrchestrator(t)
		for _, id := range []int64{1, 2, 3} {
			waitPush(t, o.PushToQueue(alex, id))
		}
		q := o.Queue()
		if len(q) != 3 || q[0].ID != 1 || q[1].ID != 2 || q[2].ID != 3 {
			t.Fatalf("expected [1 2 3], got %+v", q)
		}
		if q[0].Pusher.ClientUUID != alex.ID || q[0].Pusher.UID != 42 || q[0].Pusher.Name != "Alex" {
			t.Errorf("unexpected pusher %+v", q[0].Pusher)
		}
		if q[0].Resource.Unresolved() {
			t.Error("expected resource to be resolved on push")
		}
		if got := announcer.lastQueue(); len(got) != 3 {
			t.Errorf("expected queue broadcast of 3, got %d", len(got))
		}

		dir.set(alex)
		for _, want := range []struct{ cur, next int64 }{{1, 2}, {2, 3}, {3, 0}} {
			ev := announcer.next(t)
			if ev.current.ID != want.cur || ev.next.ID != want.next {
				t.Errorf("expected %d/%d, got %d/%d", want.cur, want.next, ev.current.ID, ev.next.ID)
			}
			o.Skip()
		}
	})

	t.Run("unknown track is rejected", func(t *testing.T) {
		o, _, _, _ := newTestOrchestrator(t)
		select {
		case err := <-o.PushToQueue(alex, 999):
			if err == nil {
				t.Error("expected lookup error")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("push did not complete")
		}
		if len(o.Queue()) != 0 {
			t.Error("expected queue to stay empty")
		}
	})

	t.Run("remove drops every occurrence", func(t *testing.T) {
		o, announcer, _, _ := newTestOrchestrator(t)
		for _, id := range []int64{1, 2, 1, 3} {
			waitPush(t, o.PushToQueue(alex, id))
		}
		if removed := o.RemoveFromQueue(1); removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}
		q := o.Queue()
		if len(q) != 2 || q[0].ID != 2 || q[1].ID != 3 {
			t.Errorf("expected [2 3], got %+v", q)
		}
		if got := announcer.lastQueue(); len(got) != 2 {
			t.Errorf("expected broadcast of 2, got %d", len(got))
		}
		if removed := o.RemoveFromQueue(42); removed != 0 {
			t.Errorf("expected 0 removed, got %d", removed)
		}
	})
}

func TestIdlePlayback(t *testing.T) {
	alex := model.Client{ID: uuid.New(), Name: "Alex"}

	t.Run("two-track playlist alternates", func(t *testing.T) {
		o, announcer, dir, catalog := newTestOrchestrator(t)
		catalog.playlists[10] = model.Playlist{ID: 10, Tracks: []model.Track{track(1), track(2)}}
		dir.set(alex)
		if err := o.SubscribeIdleSource(context.Background(), alex, 10); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		first := announcer.next(t)
		o.Skip()
		second := announcer.next(t)
		if first.current.ID == second.current.ID {
			t.Errorf("expected two distinct tracks, got %d twice", first.current.ID)
		}
		if first.current.ID+second.current.ID != 3 {
			t.Errorf("expected {1,2}, got %d and %d", first.current.ID, second.current.ID)
		}
		if second.message != MessageForceSkipped {
			t.Errorf("expected %q, got %q", MessageForceSkipped, second.message)
		}
		if first.current.Pusher.ClientUUID != alex.ID {
			t.Errorf("expected idle pusher to be the contributor, got %+v", first.current.Pusher)
		}
	})

	t.Run("announced preview becomes the next track", func(t *testing.T) {
		o, announcer, dir, catalog := newTestOrchestrator(t)
		catalog.playlists[10] = model.Playlist{ID: 10, Tracks: []model.Track{track(1), track(2), track(3), track(4), track(5)}}
		dir.set(alex)
		if err := o.SubscribeIdleSource(context.Background(), alex, 10); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		prev := announcer.next(t)
		for i := 0; i < 4; i++ {
			o.Skip()
			cur := announcer.next(t)
			if prev.next.ID != cur.current.ID {
				t.Errorf("expected %d to follow, got %d", prev.next.ID, cur.current.ID)
			}
			prev = cur
		}
	})

	t.Run("queue preempts idle playback", func(t *testing.T) {
		o, announcer, dir, catalog := newTestOrchestrator(t)
		catalog.playlists[10] = model.Playlist{ID: 10, Tracks: []model.Track{track(1), track(2)}}
		dir.set(alex)
		if err := o.SubscribeIdleSource(context.Background(), alex, 10); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		announcer.next(t)
		waitPush(t, o.PushToQueue(alex, 5))
		o.Skip()
		if ev := announcer.next(t); ev.current.ID != 5 {
			t.Errorf("expected queued track 5, got %d", ev.current.ID)
		}
	})

	t.Run("loop recovers after a failed draw", func(t *testing.T) {
		o, announcer, dir, catalog := newTestOrchestrator(t)
		catalog.playlists[10] = model.Playlist{ID: 10, Tracks: []model.Track{track(1), track(2)}}
		catalog.failResolves(1)
		dir.set(alex)
		if err := o.SubscribeIdleSource(context.Background(), alex, 10); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		ev := announcer.next(t)
		if ev.current.ID != 1 && ev.current.ID != 2 {
			t.Errorf("expected an idle track, got %d", ev.current.ID)
		}
		if ev.current.Resource.Unresolved() {
			t.Error("expected resource to be resolved after retry")
		}
		if got := catalog.resolves(); got < 2 {
			t.Errorf("expected a retry after the failed resolve, got %d calls", got)
		}
		if !o.Running() {
			t.Error("expected loop to keep running")
		}
	})

	t.Run("failed subscription", func(t *testing.T) {
		o, _, _, _ := newTestOrchestrator(t)
		if err := o.SubscribeIdleSource(context.Background(), alex, 404); err == nil {
			t.Error("expected fetch error")
		}
		if len(o.IdleSources()) != 0 {
			t.Error("expected no idle source")
		}
	})

	t.Run("leave removes idle sources", func(t *testing.T) {
		o, _, _, catalog := newTestOrchestrator(t)
		catalog.playlists[10] = model.Playlist{ID: 10, Tracks: []model.Track{track(1)}}
		catalog.playlists[11] = model.Playlist{ID: 11, Tracks: []model.Track{track(2)}}
		_ = o.SubscribeIdleSource(context.Background(), alex, 10)
		_ = o.SubscribeIdleSource(context.Background(), alex, 11)
		o.UnsubscribeIdleSource(alex, 10)
		if got := o.IdleSources()[alex.ID]; len(got) != 1 || got[0] != 11 {
			t.Errorf("expected [11], got %v", got)
		}
		o.OnClientLeave(alex)
		if len(o.IdleSources()) != 0 {
			t.Error("expected idle sources cleared on leave")
		}
	})
}

func TestVoteSkip(t *testing.T) {
	clients := make([]model.Client, 4)
	for i := range clients {
		clients[i] = model.Client{ID: uuid.New(), Name: "c"}
	}

	o, announcer, dir, _ := newTestOrchestrator(t)
	dir.set(clients...)
	waitPush(t, o.PushToQueue(clients[0], 1))
	waitPush(t, o.PushToQueue(clients[0], 2))
	if ev := announcer.next(t); ev.current.ID != 1 {
		t.Fatalf("expected track 1, got %d", ev.current.ID)
	}

	if r := o.VoteSkip(clients[1], 99); r.Counted {
		t.Error("expected vote for another track to be ignored")
	}
	r := o.VoteSkip(clients[1], 1)
	if !r.Counted || r.Skipped || r.Required != 2 {
		t.Errorf("expected first vote counted without skip, got %+v", r)
	}
	if r := o.VoteSkip(clients[1], 1); r.Counted {
		t.Error("expected duplicate vote to be ignored")
	}
	r = o.VoteSkip(clients[2], 1)
	if !r.Skipped {
		t.Errorf("expected threshold to skip, got %+v", r)
	}
	if r := o.VoteSkip(clients[3], 1); r.Counted || r.Skipped {
		t.Errorf("expected votes after firing to be ignored, got %+v", r)
	}

	ev := announcer.next(t)
	if ev.current.ID != 2 || ev.message != MessageVoteSkipped {
		t.Errorf("expected track 2 with vote message, got %d %q", ev.current.ID, ev.message)
	}
	if _, votes := o.votes.snapshot(); votes != 0 {
		t.Errorf("expected ledger reset, got %d votes", votes)
	}

	cfg := o.Config()
	cfg.VoteSkipEnabled = false
	o.UpdateConfig(cfg)
	if r := o.VoteSkip(clients[1], 2); r.Counted {
		t.Error("expected votes to be ignored when disabled")
	}
}

func TestForceSkipClearsVotes(t *testing.T) {
	clients := []model.Client{{ID: uuid.New(), Name: "a"}, {ID: uuid.New(), Name: "b"}, {ID: uuid.New(), Name: "c"}}
	o, announcer, dir, _ := newTestOrchestrator(t)
	dir.set(clients...)
	waitPush(t, o.PushToQueue(clients[0], 1))
	waitPush(t, o.PushToQueue(clients[0], 2))
	if ev := announcer.next(t); ev.current.ID != 1 {
		t.Fatalf("expected track 1, got %d", ev.current.ID)
	}

	if r := o.VoteSkip(clients[1], 1); !r.Counted || r.Skipped {
		t.Fatalf("expected one pending vote, got %+v", r)
	}
	if _, votes := o.votes.snapshot(); votes != 1 {
		t.Fatalf("expected 1 vote, got %d", votes)
	}
	if !o.Skip() {
		t.Fatal("expected skip while playing")
	}
	if _, votes := o.votes.snapshot(); votes != 0 {
		t.Errorf("expected skip to clear the tally, got %d votes", votes)
	}

	ev := announcer.next(t)
	if ev.current.ID != 2 || ev.message != MessageForceSkipped {
		t.Errorf("expected track 2 with force message, got %d %q", ev.current.ID, ev.message)
	}
}

func TestLifecycle(t *testing.T) {
	alex := model.Client{ID: uuid.New(), Name: "Alex"}
	o, announcer, dir, _ := newTestOrchestrator(t)
	dir.set(alex)

	if o.Skip() {
		t.Error("expected skip to fail while idle")
	}
	waitPush(t, o.PushToQueue(alex, 1))
	announcer.next(t)
	if !o.Running() {
		t.Fatal("expected push to start the loop")
	}
	if o.Start() {
		t.Error("expected second start to be a no-op")
	}

	st := o.Status()
	if st.Phase != "playing" || st.Current.ID != 1 || st.Connected != 1 {
		t.Errorf("unexpected status %+v", st)
	}

	o.SyncClient(alex)
	announcer.mu.Lock()
	synced := len(announcer.syncs)
	announcer.mu.Unlock()
	if synced != 1 {
		t.Errorf("expected one sync, got %d", synced)
	}

	stopped := make(chan bool, 1)
	go func() { stopped <- o.Stop() }()
	select {
	case ok := <-stopped:
		if !ok {
			t.Error("expected stop to report true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	if o.Running() || o.Status().Phase != "stopped" {
		t.Errorf("expected stopped, got %+v", o.Status())
	}
	if o.Stop() {
		t.Error("expected second stop to be a no-op")
	}
}
