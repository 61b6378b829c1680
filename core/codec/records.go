package codec

import (
	"musichud/model"
)

// 复合结构按字段声明顺序拼接。
// 字符串与 long 数组使用 varint 长度，同类元素列表使用固定 int32 长度。

// versionArrayMax 版本号数组的上限
const versionArrayMax = 4

func WriteArtist(w *Writer, a model.Artist) {
	w.WriteInt64(a.ID)
	w.WriteString(a.Name)
}

func ReadArtist(r *Reader) (model.Artist, error) {
	var a model.Artist
	var err error
	if a.ID, err = r.ReadInt64(); err != nil {
		return a, err
	}
	a.Name, err = r.ReadString()
	return a, err
}

func WriteAlbum(w *Writer, a model.Album) {
	w.WriteInt64(a.ID)
	w.WriteString(a.Name)
	w.WriteString(a.PicURL)
	w.WriteInt64(a.PicSize)
}

func ReadAlbum(r *Reader) (model.Album, error) {
	var a model.Album
	var err error
	if a.ID, err = r.ReadInt64(); err != nil {
		return a, err
	}
	if a.Name, err = r.ReadString(); err != nil {
		return a, err
	}
	if a.PicURL, err = r.ReadString(); err != nil {
		return a, err
	}
	a.PicSize, err = r.ReadInt64()
	return a, err
}

func WritePusher(w *Writer, p model.Pusher) {
	w.WriteInt64(p.UID)
	w.WriteUUID(p.ClientUUID)
	w.WriteString(p.Name)
}

func ReadPusher(r *Reader) (model.Pusher, error) {
	var p model.Pusher
	var err error
	if p.UID, err = r.ReadInt64(); err != nil {
		return p, err
	}
	if p.ClientUUID, err = r.ReadUUID(); err != nil {
		return p, err
	}
	p.Name, err = r.ReadString()
	return p, err
}

func WriteLyric(w *Writer, l model.Lyric) {
	w.WriteInt32(l.Version)
	w.WriteString(l.Text)
}

func ReadLyric(r *Reader) (model.Lyric, error) {
	var l model.Lyric
	var err error
	if l.Version, err = r.ReadInt32(); err != nil {
		return l, err
	}
	l.Text, err = r.ReadString()
	return l, err
}

func WriteLyricInfo(w *Writer, info model.LyricInfo) {
	WriteLyric(w, info.Main)
	WriteLyric(w, info.Translated)
}

func ReadLyricInfo(r *Reader) (model.LyricInfo, error) {
	var info model.LyricInfo
	var err error
	if info.Main, err = ReadLyric(r); err != nil {
		return info, err
	}
	info.Translated, err = ReadLyric(r)
	return info, err
}

func WriteResource(w *Writer, res model.Resource) {
	w.WriteInt64(res.ID)
	w.WriteString(res.URL)
	w.WriteInt32(res.Bitrate)
	w.WriteInt64(res.Size)
	w.WriteEnum(int(res.Format))
	w.WriteString(res.MD5)
	w.WriteEnum(int(res.Fee))
	w.WriteInt32(res.Time)
	WriteLyricInfo(w, res.Lyrics)
}

func ReadResource(r *Reader) (model.Resource, error) {
	var res model.Resource
	var err error
	if res.ID, err = r.ReadInt64(); err != nil {
		return res, err
	}
	if res.URL, err = r.ReadString(); err != nil {
		return res, err
	}
	if res.Bitrate, err = r.ReadInt32(); err != nil {
		return res, err
	}
	if res.Size, err = r.ReadInt64(); err != nil {
		return res, err
	}
	format, err := r.ReadEnum(model.FormatTypeCount)
	if err != nil {
		return res, err
	}
	res.Format = model.FormatType(format)
	if res.MD5, err = r.ReadString(); err != nil {
		return res, err
	}
	fee, err := r.ReadEnum(model.FeeCount)
	if err != nil {
		return res, err
	}
	res.Fee = model.Fee(fee)
	if res.Time, err = r.ReadInt32(); err != nil {
		return res, err
	}
	res.Lyrics, err = ReadLyricInfo(r)
	return res, err
}

func writeStringItem(w *Writer, s string) { w.WriteString(s) }

func readStringItem(r *Reader) (string, error) { return r.ReadString() }

func WriteTrack(w *Writer, t model.Track) {
	w.WriteString(t.Name)
	w.WriteInt64(t.ID)
	WriteList(w, t.Artists, WriteArtist)
	WriteList(w, t.Alias, writeStringItem)
	WriteAlbum(w, t.Album)
	w.WriteInt32(t.DurationMillis)
	WriteList(w, t.Translations, writeStringItem)
	WritePusher(w, t.Pusher)
	WriteResource(w, t.Resource)
}

func ReadTrack(r *Reader) (model.Track, error) {
	var t model.Track
	var err error
	if t.Name, err = r.ReadString(); err != nil {
		return t, err
	}
	if t.ID, err = r.ReadInt64(); err != nil {
		return t, err
	}
	if t.Artists, err = ReadList(r, ReadArtist); err != nil {
		return t, err
	}
	if t.Alias, err = ReadList(r, readStringItem); err != nil {
		return t, err
	}
	if t.Album, err = ReadAlbum(r); err != nil {
		return t, err
	}
	if t.DurationMillis, err = r.ReadInt32(); err != nil {
		return t, err
	}
	if t.Translations, err = ReadList(r, readStringItem); err != nil {
		return t, err
	}
	if t.Pusher, err = ReadPusher(r); err != nil {
		return t, err
	}
	t.Resource, err = ReadResource(r)
	return t, err
}

// WriteTracks int32 长度前缀的歌曲列表
func WriteTracks(w *Writer, tracks []model.Track) {
	WriteList(w, tracks, WriteTrack)
}

func ReadTracks(r *Reader) ([]model.Track, error) {
	return ReadList(r, ReadTrack)
}

func WriteProfile(w *Writer, p model.Profile) {
	w.WriteString(p.Nickname)
	w.WriteString(p.AvatarURL)
	w.WriteString(p.BackgroundURL)
	w.WriteInt64(p.UserID)
}

func ReadProfile(r *Reader) (model.Profile, error) {
	var p model.Profile
	var err error
	if p.Nickname, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.AvatarURL, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.BackgroundURL, err = r.ReadString(); err != nil {
		return p, err
	}
	p.UserID, err = r.ReadInt64()
	return p, err
}

func WritePlaylist(w *Writer, p model.Playlist) {
	w.WriteInt64(p.ID)
	w.WriteString(p.Name)
	w.WriteInt64(p.CoverImgID)
	w.WriteString(p.CoverImgIDStr)
	w.WriteString(p.CoverImgURL)
	WriteProfile(w, p.Creator)
	WriteTracks(w, p.Tracks)
}

func ReadPlaylist(r *Reader) (model.Playlist, error) {
	var p model.Playlist
	var err error
	if p.ID, err = r.ReadInt64(); err != nil {
		return p, err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.CoverImgID, err = r.ReadInt64(); err != nil {
		return p, err
	}
	if p.CoverImgIDStr, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.CoverImgURL, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.Creator, err = ReadProfile(r); err != nil {
		return p, err
	}
	p.Tracks, err = ReadTracks(r)
	return p, err
}

func WritePlaylists(w *Writer, playlists []model.Playlist) {
	WriteList(w, playlists, WritePlaylist)
}

func ReadPlaylists(r *Reader) ([]model.Playlist, error) {
	return ReadList(r, ReadPlaylist)
}

// WriteVersion 版本号复用 long 数组编码
func WriteVersion(w *Writer, v model.Version) {
	w.WriteLongArray(v.Longs())
}

func ReadVersion(r *Reader) (model.Version, error) {
	values, err := r.ReadLongArrayMax(versionArrayMax)
	if err != nil {
		return model.Version{}, err
	}
	v, err := model.VersionFromLongs(values)
	if err != nil {
		return model.Version{}, malformed("%v", err)
	}
	return v, nil
}

// WriteLoginCookieInfo 登录方式以名称写入
func WriteLoginCookieInfo(w *Writer, info model.LoginCookieInfo) {
	w.WriteString(string(info.Type))
	w.WriteString(info.RawCookie)
	w.WriteTime(info.GeneratedAt)
}

func ReadLoginCookieInfo(r *Reader) (model.LoginCookieInfo, error) {
	var info model.LoginCookieInfo
	name, err := r.ReadString()
	if err != nil {
		return info, err
	}
	info.Type = model.LoginTypeFromName(name)
	if info.RawCookie, err = r.ReadString(); err != nil {
		return info, err
	}
	info.GeneratedAt, err = r.ReadTime()
	return info, err
}
