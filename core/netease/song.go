package netease

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"musichud/logger"
	"musichud/model"
)

type artistJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type albumJSON struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	PicURL string `json:"picUrl"`
	Pic    int64  `json:"pic"`
}

type songJSON struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Artists []artistJSON `json:"ar"`
	Alias   []string     `json:"alia"`
	Album   albumJSON    `json:"al"`
	Dt      int32        `json:"dt"`
	Tns     []string     `json:"tns"`
}

func (s songJSON) toTrack() model.Track {
	t := model.Track{
		ID:             s.ID,
		Name:           s.Name,
		Alias:          s.Alias,
		DurationMillis: s.Dt,
		Translations:   s.Tns,
		Album: model.Album{
			ID:      s.Album.ID,
			Name:    s.Album.Name,
			PicURL:  s.Album.PicURL,
			PicSize: s.Album.Pic,
		},
		Resource: model.NoResource,
	}
	for _, a := range s.Artists {
		t.Artists = append(t.Artists, model.Artist{ID: a.ID, Name: a.Name})
	}
	return t
}

// LookupTrack 获取歌曲详情，不含播放资源
func (c *Client) LookupTrack(ctx context.Context, id int64) (model.Track, error) {
	var result struct {
		Songs []songJSON `json:"songs"`
	}
	query := url.Values{"ids": {strconv.FormatInt(id, 10)}}
	if err := c.get(ctx, "/song/detail", query, "", &result); err != nil {
		return model.NoTrack, err
	}
	if len(result.Songs) == 0 {
		return model.NoTrack, fmt.Errorf("%w: 未找到歌曲 %d", ErrRemoteLookup, id)
	}
	return result.Songs[0].toTrack(), nil
}

// Search 关键词搜索单曲，最多 30 条
func (c *Client) Search(ctx context.Context, query string) ([]model.Track, error) {
	body := map[string]interface{}{
		"keywords": query,
		"limit":    30,
		"offset":   0,
		"type":     1,
	}
	var result struct {
		Result struct {
			Songs []songJSON `json:"songs"`
		} `json:"result"`
	}
	if err := c.post(ctx, "/cloudsearch", nil, body, "", &result); err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(result.Result.Songs))
	for _, s := range result.Result.Songs {
		tracks = append(tracks, s.toTrack())
	}
	logger.Debug("search finished", logger.String("query", query), logger.Int("count", len(tracks)))
	return tracks, nil
}

// ResolveResource 获取播放地址与歌词，歌词失败不影响资源
func (c *Client) ResolveResource(ctx context.Context, id int64, cookie string) (model.Resource, error) {
	var result struct {
		Data []struct {
			ID   int64  `json:"id"`
			URL  string `json:"url"`
			Br   int32  `json:"br"`
			Size int64  `json:"size"`
			Type string `json:"type"`
			MD5  string `json:"md5"`
			Fee  *int   `json:"fee"`
			Time int32  `json:"time"`
		} `json:"data"`
	}
	query := url.Values{
		"id":      {strconv.FormatInt(id, 10)},
		"level":   {"lossless"},
		"unblock": {"true"},
	}
	if err := c.get(ctx, "/song/url/v1", query, cookie, &result); err != nil {
		return model.NoResource, err
	}
	if len(result.Data) == 0 {
		return model.NoResource, fmt.Errorf("%w: 未找到歌曲资源 %d", ErrRemoteLookup, id)
	}

	item := result.Data[0]
	fee := -1
	if item.Fee != nil {
		fee = *item.Fee
	}
	res := model.Resource{
		ID:      item.ID,
		URL:     item.URL,
		Bitrate: item.Br,
		Size:    item.Size,
		Format:  model.FormatTypeFromString(item.Type),
		MD5:     item.MD5,
		Fee:     model.FeeFromCode(fee),
		Time:    item.Time,
		Lyrics:  model.NoLyricInfo,
	}
	if res.ID == 0 {
		res.ID = id
	}

	lyrics, err := c.FetchLyrics(ctx, id, cookie)
	if err != nil {
		logger.Warn("fetch lyric failed", logger.Int64("trackId", id), logger.ErrorField(err))
	} else {
		res.Lyrics = lyrics
	}
	return res, nil
}

// FetchLyrics 获取原文与翻译歌词
func (c *Client) FetchLyrics(ctx context.Context, id int64, cookie string) (model.LyricInfo, error) {
	type lyricJSON struct {
		Version int32  `json:"version"`
		Lyric   string `json:"lyric"`
	}
	var result struct {
		Lrc    lyricJSON `json:"lrc"`
		Tlyric lyricJSON `json:"tlyric"`
	}
	query := url.Values{"id": {strconv.FormatInt(id, 10)}}
	if err := c.get(ctx, "/lyric/new", query, cookie, &result); err != nil {
		return model.NoLyricInfo, err
	}
	return model.LyricInfo{
		Main:       model.Lyric{Version: result.Lrc.Version, Text: result.Lrc.Lyric},
		Translated: model.Lyric{Version: result.Tlyric.Version, Text: result.Tlyric.Lyric},
	}, nil
}
