package hud

import (
	"context"
	"errors"
	"testing"
	"time"

	"musichud/core/channel"
	"musichud/core/player"
	"musichud/core/session"
	"musichud/model"

	"github.com/google/uuid"
)

type frame struct {
	clientID uuid.UUID
	channel  string
	data     []byte
}

type chanTransport struct {
	ch chan frame
}

func (t *chanTransport) Send(clientID uuid.UUID, ch string, data []byte) error {
	t.ch <- frame{clientID, ch, data}
	return nil
}

type stubGateway struct{}

func (stubGateway) LoginAnonymous(ctx context.Context) (string, error) { return "MUSIC_A=1", nil }
func (stubGateway) RefreshCredential(ctx context.Context, cookie string) (string, error) {
	return cookie, nil
}
func (stubGateway) FetchProfile(ctx context.Context, cookie string) (model.Profile, error) {
	return model.Profile{Nickname: "Alex", UserID: 7}, nil
}
func (stubGateway) BeginQR(ctx context.Context) (string, string, error) {
	return "", "", errors.New("unsupported")
}
func (stubGateway) PollQR(ctx context.Context, key string) (session.QRStatus, string, error) {
	return session.QRPending, "", nil
}

type stubCatalog struct{}

func (stubCatalog) LookupTrack(ctx context.Context, id int64) (model.Track, error) {
	return model.Track{ID: id, Name: "song", DurationMillis: 3600000, Resource: model.NoResource}, nil
}
func (stubCatalog) ResolveResource(ctx context.Context, id int64, cookie string) (model.Resource, error) {
	return model.NoResource, nil
}
func (stubCatalog) FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error) {
	return model.NoPlaylist, errors.New("not found")
}
func (stubCatalog) Search(ctx context.Context, query string) ([]model.Track, error) {
	return nil, errors.New("down")
}
func (stubCatalog) ListUserPlaylists(ctx context.Context, uid int64, cookie string) ([]model.Playlist, error) {
	return []model.Playlist{{ID: 1, Name: "liked"}}, nil
}

type stack struct {
	d         *channel.Dispatcher
	transport *chanTransport
	registry  *session.Registry
	player    *player.Orchestrator
}

func newStack(t *testing.T) *stack {
	t.Helper()
	transport := &chanTransport{ch: make(chan frame, 64)}
	d := channel.NewDispatcher(transport)
	go d.Run()

	announcer := NewAnnouncer(d)
	registry := session.NewRegistry(stubGateway{}, announcer, session.Options{})
	cfg := player.DefaultConfig()
	cfg.IdleSleep = 10 * time.Millisecond
	orch := player.New(cfg, player.Deps{Catalog: stubCatalog{}, Directory: registry, Announcer: announcer})
	NewService(d, registry, orch, stubCatalog{})

	t.Cleanup(func() {
		orch.Close()
		registry.Close()
		d.Close()
	})
	return &stack{d: d, transport: transport, registry: registry, player: orch}
}

func (s *stack) expect(t *testing.T, kind channel.Kind) channel.Packet {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-s.transport.ch:
			if f.channel != kind.Channel() {
				continue
			}
			pkt, err := channel.DecodeFrame(kind, f.data)
			if err != nil {
				t.Fatalf("decode %s: %v", kind, err)
			}
			return pkt
		case <-deadline:
			t.Fatalf("expected %s", kind)
			return nil
		}
	}
}

func connect(t *testing.T, s *stack, client model.Client, v model.Version) channel.ConnectResponse {
	t.Helper()
	if err := s.d.Receive(client, channel.KindConnectRequest.Channel(), channel.EncodeFrame(channel.ConnectRequest{ClientVersion: v})); err != nil {
		t.Fatalf("receive connect: %v", err)
	}
	return s.expect(t, channel.KindConnectResponse).(channel.ConnectResponse)
}

func TestConnect(t *testing.T) {
	t.Run("incompatible client is rejected", func(t *testing.T) {
		s := newStack(t)
		client := model.Client{ID: uuid.New(), Name: "Old"}
		resp := connect(t, s, client, model.Version{Major: 0, Minor: 9, Patch: 0, Build: model.BuildStable})
		if resp.Accepted {
			t.Error("expected rejection")
		}
		if resp.ServerVersion != model.CurrentVersion {
			t.Errorf("expected %s, got %s", model.CurrentVersion, resp.ServerVersion)
		}
		err := s.d.Receive(client, channel.KindPushTrack.Channel(), channel.EncodePayload(channel.PushTrack{TrackID: 1}))
		if !errors.Is(err, channel.ErrNotConnected) {
			t.Errorf("expected later packets to be dropped, got %v", err)
		}
	})

	t.Run("downgraded handshake closes the session", func(t *testing.T) {
		s := newStack(t)
		client := model.Client{ID: uuid.New(), Name: "Flip"}
		if resp := connect(t, s, client, model.CurrentVersion); !resp.Accepted {
			t.Fatal("expected acceptance")
		}
		if resp := connect(t, s, client, model.Version{Build: model.BuildStable}); resp.Accepted {
			t.Error("expected rejection")
		}
		if s.registry.IsConnected(client.ID) {
			t.Error("expected session to be removed")
		}
		err := s.d.Receive(client, channel.KindPushTrack.Channel(), channel.EncodePayload(channel.PushTrack{TrackID: 1}))
		if !errors.Is(err, channel.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("compatible client joins unlogged", func(t *testing.T) {
		s := newStack(t)
		client := model.Client{ID: uuid.New(), Name: "Alex"}
		if resp := connect(t, s, client, model.CurrentVersion); !resp.Accepted {
			t.Fatal("expected acceptance")
		}
		if st := s.registry.StateOf(client.ID); st != session.Connected {
			t.Errorf("expected connected, got %s", st)
		}
	})
}

func TestLoginAndBrowse(t *testing.T) {
	s := newStack(t)
	client := model.Client{ID: uuid.New(), Name: "Alex"}
	connect(t, s, client, model.CurrentVersion)

	if err := s.d.Receive(client, channel.KindAnonymousLogin.Channel(), nil); err != nil {
		t.Fatalf("receive login: %v", err)
	}
	res := s.expect(t, channel.KindLoginResult).(channel.LoginResult)
	if !res.Success || res.Cookie.Type != model.LoginAnonymous || res.Profile.UserID != 7 {
		t.Errorf("unexpected login result %+v", res)
	}

	_ = s.d.Receive(client, channel.KindUserPlaylistRequest.Channel(), nil)
	lists := s.expect(t, channel.KindUserPlaylistResponse).(channel.UserPlaylists)
	if len(lists.Playlists) != 1 || lists.Playlists[0].Name != "liked" {
		t.Errorf("unexpected playlists %+v", lists)
	}

	_ = s.d.Receive(client, channel.KindSearchRequest.Channel(), channel.EncodeFrame(channel.SearchRequest{Query: "beyond"}))
	if got := s.expect(t, channel.KindSearchResponse).(channel.SearchResult); len(got.Tracks) != 0 {
		t.Errorf("expected empty result on failure, got %d", len(got.Tracks))
	}

	_ = s.d.Receive(client, channel.KindPlaylistDetailRequest.Channel(), channel.EncodePayload(channel.PlaylistDetailRequest{PlaylistID: 9}))
	detail := s.expect(t, channel.KindPlaylistDetailResponse).(channel.PlaylistDetail)
	if detail.Playlist.ID != 0 || len(detail.Playlist.Tracks) != 0 {
		t.Errorf("expected empty playlist, got %+v", detail.Playlist)
	}
}

func TestPushAndLogout(t *testing.T) {
	s := newStack(t)
	client := model.Client{ID: uuid.New(), Name: "Alex"}
	connect(t, s, client, model.CurrentVersion)

	_ = s.d.Receive(client, channel.KindPushTrack.Channel(), channel.EncodePayload(channel.PushTrack{TrackID: 42}))
	sw := s.expect(t, channel.KindSwitchTrack).(channel.SwitchTrack)
	if sw.Current.ID != 42 || sw.Current.Pusher.ClientUUID != client.ID {
		t.Errorf("unexpected switch %+v", sw.Current)
	}

	_ = s.d.Receive(client, channel.KindLogout.Channel(), nil)
	deadline := time.Now().Add(2 * time.Second)
	for s.registry.IsConnected(client.ID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.registry.IsConnected(client.ID) {
		t.Error("expected logout to remove the session")
	}
}
