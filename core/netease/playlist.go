package netease

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"musichud/model"
)

type profileJSON struct {
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatarUrl"`
	BackgroundURL string `json:"backgroundUrl"`
	UserID        int64  `json:"userId"`
}

func (p profileJSON) toProfile() model.Profile {
	return model.Profile{
		Nickname:      p.Nickname,
		AvatarURL:     p.AvatarURL,
		BackgroundURL: p.BackgroundURL,
		UserID:        p.UserID,
	}
}

type playlistJSON struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	CoverImgID    int64       `json:"coverImgId"`
	CoverImgIDStr string      `json:"coverImgId_str"`
	CoverImgURL   string      `json:"coverImgUrl"`
	Creator       profileJSON `json:"creator"`
	Tracks        []songJSON  `json:"tracks"`
}

func (p playlistJSON) toPlaylist() model.Playlist {
	pl := model.Playlist{
		ID:            p.ID,
		Name:          p.Name,
		CoverImgID:    p.CoverImgID,
		CoverImgIDStr: p.CoverImgIDStr,
		CoverImgURL:   p.CoverImgURL,
		Creator:       p.Creator.toProfile(),
	}
	for _, s := range p.Tracks {
		pl.Tracks = append(pl.Tracks, s.toTrack())
	}
	return pl
}

// ListUserPlaylists 用户歌单列表，不含歌曲
func (c *Client) ListUserPlaylists(ctx context.Context, uid int64, cookie string) ([]model.Playlist, error) {
	if uid <= 0 {
		return nil, nil
	}
	var result struct {
		Playlist []playlistJSON `json:"playlist"`
	}
	query := url.Values{"uid": {strconv.FormatInt(uid, 10)}}
	if err := c.get(ctx, "/user/playlist", query, cookie, &result); err != nil {
		return nil, err
	}
	playlists := make([]model.Playlist, 0, len(result.Playlist))
	for _, p := range result.Playlist {
		p.Tracks = nil
		playlists = append(playlists, p.toPlaylist())
	}
	return playlists, nil
}

// FetchPlaylistDetail 歌单详情与全部歌曲
func (c *Client) FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error) {
	var result struct {
		Playlist *playlistJSON `json:"playlist"`
	}
	query := url.Values{"id": {strconv.FormatInt(id, 10)}}
	if err := c.get(ctx, "/playlist/detail/all", query, cookie, &result); err != nil {
		return model.NoPlaylist, err
	}
	if result.Playlist == nil {
		return model.NoPlaylist, fmt.Errorf("%w: 未找到歌单 %d", ErrRemoteLookup, id)
	}
	playlist := result.Playlist.toPlaylist()
	if playlist.ID == 0 {
		playlist.ID = id
	}
	return playlist, nil
}
