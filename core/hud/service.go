// Package hud 把入站包绑定到会话与播放逻辑
package hud

import (
	"context"

	"musichud/core/channel"
	"musichud/core/player"
	"musichud/core/session"
	"musichud/logger"
	"musichud/model"
)

// Browser 客户端浏览用的目录查询
type Browser interface {
	Search(ctx context.Context, query string) ([]model.Track, error)
	ListUserPlaylists(ctx context.Context, uid int64, cookie string) ([]model.Playlist, error)
	FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error)
}

// Service 入站包处理
type Service struct {
	d        *channel.Dispatcher
	registry *session.Registry
	player   *player.Orchestrator
	browser  Browser
}

// NewService 注册全部入站处理器，并把会话离开事件转给播放器
func NewService(d *channel.Dispatcher, registry *session.Registry, orch *player.Orchestrator, browser Browser) *Service {
	s := &Service{d: d, registry: registry, player: orch, browser: browser}

	d.SetGate(registry)
	registry.OnLeave(orch.OnClientLeave)

	d.Handle(channel.KindConnectRequest, s.handleConnect)
	d.Handle(channel.KindLogout, s.handleLogout)
	d.Handle(channel.KindAnonymousLogin, s.handleAnonymousLogin)
	d.Handle(channel.KindCookieLogin, s.handleCookieLogin)
	d.Handle(channel.KindStartQRLogin, s.handleStartQR)
	d.Handle(channel.KindCancelQRLogin, s.handleCancelQR)
	d.Handle(channel.KindPushTrack, s.handlePushTrack)
	d.Handle(channel.KindVoteSkip, s.handleVoteSkip)
	d.Handle(channel.KindAddIdleSource, s.handleAddIdleSource)
	d.Handle(channel.KindRemoveIdleSource, s.handleRemoveIdleSource)
	d.Handle(channel.KindRemoveFromQueue, s.handleRemoveFromQueue)
	d.Handle(channel.KindSearchRequest, s.handleSearch)
	d.Handle(channel.KindUserPlaylistRequest, s.handleUserPlaylists)
	d.Handle(channel.KindPlaylistDetailRequest, s.handlePlaylistDetail)
	return s
}

// Disconnect 传输层断开
func (s *Service) Disconnect(client model.Client) {
	s.registry.Disconnect(client)
}

// ========== 连接与登录 ==========

func (s *Service) handleConnect(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.ConnectRequest)
	if !req.ClientVersion.Capable() {
		logger.Info("client version rejected",
			logger.String("client", client.Name),
			logger.String("version", req.ClientVersion.String()))
		// 已连接的客户端降级握手后同样不再处理后续包
		s.registry.Disconnect(client)
		s.d.Send(client.ID, channel.ConnectResponse{Accepted: false, ServerVersion: model.CurrentVersion})
		return nil
	}

	s.registry.Connect(client)
	s.d.Send(client.ID, channel.ConnectResponse{Accepted: true, ServerVersion: model.CurrentVersion})
	s.player.SyncClient(client)
	logger.Info("client connected",
		logger.String("client", client.Name),
		logger.String("version", req.ClientVersion.String()))
	return nil
}

func (s *Service) handleLogout(ctx context.Context, client model.Client, pkt channel.Packet) error {
	s.registry.Logout(client)
	return nil
}

func (s *Service) handleAnonymousLogin(ctx context.Context, client model.Client, pkt channel.Packet) error {
	return s.registry.AuthenticateAnonymous(ctx, client)
}

func (s *Service) handleCookieLogin(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.CookieLogin)
	return s.registry.AuthenticateWithCredential(ctx, client, req.Cookie, req.Refresh)
}

func (s *Service) handleStartQR(ctx context.Context, client model.Client, pkt channel.Packet) error {
	return s.registry.BeginQR(ctx, client)
}

func (s *Service) handleCancelQR(ctx context.Context, client model.Client, pkt channel.Packet) error {
	s.registry.CancelQR(client)
	return nil
}

// ========== 播放 ==========

func (s *Service) handlePushTrack(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.PushTrack)
	select {
	case err := <-s.player.PushToQueue(client, req.TrackID):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) handleVoteSkip(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.VoteSkip)
	r := s.player.VoteSkip(client, req.TrackID)
	logger.Debug("vote handled",
		logger.String("client", client.Name),
		logger.Bool("counted", r.Counted),
		logger.Int("votes", r.Votes),
		logger.Int("required", r.Required))
	return nil
}

func (s *Service) handleAddIdleSource(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.AddIdleSource)
	return s.player.SubscribeIdleSource(ctx, client, req.PlaylistID)
}

func (s *Service) handleRemoveIdleSource(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.RemoveIdleSource)
	s.player.UnsubscribeIdleSource(client, req.PlaylistID)
	return nil
}

// handleRemoveFromQueue 按 id 删除，index 仅用于日志
func (s *Service) handleRemoveFromQueue(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.RemoveFromQueue)
	removed := s.player.RemoveFromQueue(req.TrackID)
	logger.Debug("remove from queue",
		logger.String("client", client.Name),
		logger.Int("index", int(req.Index)),
		logger.Int64("trackId", req.TrackID),
		logger.Int("removed", removed))
	return nil
}

// ========== 浏览 ==========

func (s *Service) handleSearch(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.SearchRequest)
	tracks, err := s.browser.Search(ctx, req.Query)
	if err != nil {
		logger.Warn("search failed", logger.String("query", req.Query), logger.ErrorField(err))
		tracks = nil
	}
	s.d.Send(client.ID, channel.SearchResult{Tracks: tracks})
	return nil
}

func (s *Service) handleUserPlaylists(ctx context.Context, client model.Client, pkt channel.Packet) error {
	var playlists []model.Playlist
	profile, cookie, ok := s.registry.Identity(client.ID)
	if ok && profile.UserID > 0 {
		list, err := s.browser.ListUserPlaylists(ctx, profile.UserID, cookie)
		if err != nil {
			logger.Warn("user playlists failed", logger.String("client", client.Name), logger.ErrorField(err))
		} else {
			playlists = list
		}
	}
	s.d.Send(client.ID, channel.UserPlaylists{Playlists: playlists})
	return nil
}

func (s *Service) handlePlaylistDetail(ctx context.Context, client model.Client, pkt channel.Packet) error {
	req := pkt.(channel.PlaylistDetailRequest)
	_, cookie, _ := s.registry.Identity(client.ID)
	playlist, err := s.browser.FetchPlaylistDetail(ctx, req.PlaylistID, cookie)
	if err != nil {
		logger.Warn("playlist detail failed", logger.Int64("playlistId", req.PlaylistID), logger.ErrorField(err))
		playlist = model.NoPlaylist
	}
	s.d.Send(client.ID, channel.PlaylistDetail{Playlist: playlist})
	return nil
}
