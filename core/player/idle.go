package player

import (
	"context"
	"errors"
	"fmt"

	"musichud/logger"
	"musichud/model"

	"github.com/google/uuid"
)

var errNoIdleContent = errors.New("no idle content")

// idleSource 某个客户端订阅的空闲歌单，按歌单 id 去重
type idleSource struct {
	client    model.Client
	playlists map[int64]model.Playlist
}

func (s *idleSource) tracks() []model.Track {
	seen := make(map[int64]struct{})
	var tracks []model.Track
	for _, p := range s.playlists {
		for _, t := range p.Tracks {
			if t.IsNone() {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// SubscribeIdleSource 拉取歌单并加入调用者的空闲歌单
func (o *Orchestrator) SubscribeIdleSource(ctx context.Context, client model.Client, playlistID int64) error {
	_, cookie, _ := o.dir.Identity(client.ID)
	playlist, err := o.catalog.FetchPlaylistDetail(ctx, playlistID, cookie)
	if err != nil {
		return fmt.Errorf("获取歌单 %d 失败: %w", playlistID, err)
	}
	if playlist.ID == 0 {
		playlist.ID = playlistID
	}

	o.idleMu.Lock()
	src, ok := o.idle[client.ID]
	if !ok {
		src = &idleSource{client: client, playlists: make(map[int64]model.Playlist)}
		o.idle[client.ID] = src
	}
	src.client = client
	src.playlists[playlistID] = playlist
	o.idleMu.Unlock()

	logger.Info("idle playlist added",
		logger.String("client", client.Name),
		logger.Int64("playlistId", playlistID),
		logger.Int("tracks", len(playlist.Tracks)))

	if o.Config().IdlePlaylistEnabled {
		o.Start()
	}
	return nil
}

// UnsubscribeIdleSource 移除空闲歌单，集合为空时删除该客户端
func (o *Orchestrator) UnsubscribeIdleSource(client model.Client, playlistID int64) {
	o.idleMu.Lock()
	if src, ok := o.idle[client.ID]; ok {
		delete(src.playlists, playlistID)
		if len(src.playlists) == 0 {
			delete(o.idle, client.ID)
		}
	}
	o.idleMu.Unlock()

	logger.Info("idle playlist removed", logger.String("client", client.Name), logger.Int64("playlistId", playlistID))
	if o.Config().IdlePlaylistEnabled {
		o.Start()
	}
}

// IdleSources 各客户端订阅的歌单 id
func (o *Orchestrator) IdleSources() map[uuid.UUID][]int64 {
	o.idleMu.RLock()
	defer o.idleMu.RUnlock()
	out := make(map[uuid.UUID][]int64, len(o.idle))
	for id, src := range o.idle {
		for pid := range src.playlists {
			out[id] = append(out[id], pid)
		}
	}
	return out
}

func (o *Orchestrator) hasIdleSource(id uuid.UUID) bool {
	o.idleMu.RLock()
	defer o.idleMu.RUnlock()
	_, ok := o.idle[id]
	return ok
}

type idleCandidate struct {
	client model.Client
	tracks []model.Track
}

// drawIdle 先选贡献者，再在其歌曲并集中均匀选歌。
// 贡献者只在仍有 exclude 之外歌曲的贡献者中均匀抽取，都没有时才退回全部贡献者
func (o *Orchestrator) drawIdle(ctx context.Context, exclude ...int64) (model.Track, error) {
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		if id != model.NoTrack.ID {
			skip[id] = struct{}{}
		}
	}

	var preferred, fallback []idleCandidate
	o.idleMu.RLock()
	for _, src := range o.idle {
		all := src.tracks()
		if len(all) == 0 {
			continue
		}
		fallback = append(fallback, idleCandidate{client: src.client, tracks: all})
		var filtered []model.Track
		for _, t := range all {
			if _, ok := skip[t.ID]; !ok {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) > 0 {
			preferred = append(preferred, idleCandidate{client: src.client, tracks: filtered})
		}
	}
	o.idleMu.RUnlock()

	candidates := preferred
	if len(candidates) == 0 {
		candidates = fallback
	}
	if len(candidates) == 0 {
		return model.NoTrack, errNoIdleContent
	}

	chosen := candidates[o.intn(len(candidates))]
	track := chosen.tracks[o.intn(len(chosen.tracks))]

	profile, cookie, ok := o.dir.Identity(chosen.client.ID)
	track.Pusher = model.Pusher{ClientUUID: chosen.client.ID, Name: chosen.client.Name}
	if ok {
		track.Pusher.UID = profile.UserID
	}
	if track.Resource.Unresolved() {
		lookupCtx, cancel := context.WithTimeout(ctx, o.Config().LookupTimeout)
		res, err := o.catalog.ResolveResource(lookupCtx, track.ID, cookie)
		cancel()
		if err != nil {
			return model.NoTrack, fmt.Errorf("获取空闲歌曲 %d 资源失败: %w", track.ID, err)
		}
		track.Resource = res
	}
	return track, nil
}
