package channel

import (
	"fmt"
	"time"

	"musichud/core/codec"
	"musichud/model"
)

// Packet 已解码的包
type Packet interface {
	Kind() Kind
	Encode(w *codec.Writer)
}

// removeFromQueueMinBytes int32 下标 + int64 id
const removeFromQueueMinBytes = 4 + 8

// ========== 入站 ==========

type ConnectRequest struct {
	ClientVersion model.Version
}

type PushTrack struct {
	TrackID int64
}

type VoteSkip struct {
	TrackID int64
}

type AddIdleSource struct {
	PlaylistID int64
}

type RemoveIdleSource struct {
	PlaylistID int64
}

type Logout struct{}

type AnonymousLogin struct{}

type CookieLogin struct {
	Cookie  model.LoginCookieInfo
	Refresh bool
}

type RemoveFromQueue struct {
	Index   int32
	TrackID int64
}

type StartQRLogin struct{}

type CancelQRLogin struct{}

type SearchRequest struct {
	Query string
}

type UserPlaylistRequest struct{}

type PlaylistDetailRequest struct {
	PlaylistID int64
}

func (ConnectRequest) Kind() Kind        { return KindConnectRequest }
func (PushTrack) Kind() Kind             { return KindPushTrack }
func (VoteSkip) Kind() Kind              { return KindVoteSkip }
func (AddIdleSource) Kind() Kind         { return KindAddIdleSource }
func (RemoveIdleSource) Kind() Kind      { return KindRemoveIdleSource }
func (Logout) Kind() Kind                { return KindLogout }
func (AnonymousLogin) Kind() Kind        { return KindAnonymousLogin }
func (CookieLogin) Kind() Kind           { return KindCookieLogin }
func (RemoveFromQueue) Kind() Kind       { return KindRemoveFromQueue }
func (StartQRLogin) Kind() Kind          { return KindStartQRLogin }
func (CancelQRLogin) Kind() Kind         { return KindCancelQRLogin }
func (SearchRequest) Kind() Kind         { return KindSearchRequest }
func (UserPlaylistRequest) Kind() Kind   { return KindUserPlaylistRequest }
func (PlaylistDetailRequest) Kind() Kind { return KindPlaylistDetailRequest }

func (p ConnectRequest) Encode(w *codec.Writer)        { codec.WriteVersion(w, p.ClientVersion) }
func (p PushTrack) Encode(w *codec.Writer)             { w.WriteInt64(p.TrackID) }
func (p VoteSkip) Encode(w *codec.Writer)              { w.WriteInt64(p.TrackID) }
func (p AddIdleSource) Encode(w *codec.Writer)         { w.WriteInt64(p.PlaylistID) }
func (p RemoveIdleSource) Encode(w *codec.Writer)      { w.WriteInt64(p.PlaylistID) }
func (Logout) Encode(*codec.Writer)                    {}
func (AnonymousLogin) Encode(*codec.Writer)            {}
func (StartQRLogin) Encode(*codec.Writer)              {}
func (CancelQRLogin) Encode(*codec.Writer)             {}
func (UserPlaylistRequest) Encode(*codec.Writer)       {}
func (p SearchRequest) Encode(w *codec.Writer)         { w.WriteString(p.Query) }
func (p PlaylistDetailRequest) Encode(w *codec.Writer) { w.WriteInt64(p.PlaylistID) }

func (p CookieLogin) Encode(w *codec.Writer) {
	codec.WriteLoginCookieInfo(w, p.Cookie)
	w.WriteBool(p.Refresh)
}

func (p RemoveFromQueue) Encode(w *codec.Writer) {
	w.WriteInt32(p.Index)
	w.WriteInt64(p.TrackID)
}

// ========== 出站 ==========

type ConnectResponse struct {
	Accepted      bool
	ServerVersion model.Version
}

type SwitchTrack struct {
	Current model.Track
	Next    model.Track
	Message string
}

type SyncCurrent struct {
	Track     model.Track
	StartedAt time.Time
}

type RefreshQueue struct {
	Queue []model.Track
}

type LoginResult struct {
	Success bool
	Message string
	Cookie  model.LoginCookieInfo
	Profile model.Profile
}

type QRChallenge struct {
	Image string
}

type SearchResult struct {
	Tracks []model.Track
}

type UserPlaylists struct {
	Playlists []model.Playlist
}

type PlaylistDetail struct {
	Playlist model.Playlist
}

func (ConnectResponse) Kind() Kind { return KindConnectResponse }
func (SwitchTrack) Kind() Kind     { return KindSwitchTrack }
func (SyncCurrent) Kind() Kind     { return KindSyncCurrent }
func (RefreshQueue) Kind() Kind    { return KindRefreshQueue }
func (LoginResult) Kind() Kind     { return KindLoginResult }
func (QRChallenge) Kind() Kind     { return KindStartQRLoginResponse }
func (SearchResult) Kind() Kind    { return KindSearchResponse }
func (UserPlaylists) Kind() Kind   { return KindUserPlaylistResponse }
func (PlaylistDetail) Kind() Kind  { return KindPlaylistDetailResponse }

func (p ConnectResponse) Encode(w *codec.Writer) {
	w.WriteBool(p.Accepted)
	codec.WriteVersion(w, p.ServerVersion)
}

// Encode Next 为空时写入 NONE
func (p SwitchTrack) Encode(w *codec.Writer) {
	codec.WriteTrack(w, p.Current)
	codec.WriteTrack(w, p.Next)
	w.WriteString(p.Message)
}

func (p SyncCurrent) Encode(w *codec.Writer) {
	codec.WriteTrack(w, p.Track)
	w.WriteTime(p.StartedAt)
}

func (p RefreshQueue) Encode(w *codec.Writer)   { codec.WriteTracks(w, p.Queue) }
func (p QRChallenge) Encode(w *codec.Writer)    { w.WriteString(p.Image) }
func (p SearchResult) Encode(w *codec.Writer)   { codec.WriteTracks(w, p.Tracks) }
func (p UserPlaylists) Encode(w *codec.Writer)  { codec.WritePlaylists(w, p.Playlists) }
func (p PlaylistDetail) Encode(w *codec.Writer) { codec.WritePlaylist(w, p.Playlist) }

func (p LoginResult) Encode(w *codec.Writer) {
	w.WriteBool(p.Success)
	w.WriteString(p.Message)
	codec.WriteLoginCookieInfo(w, p.Cookie)
	codec.WriteProfile(w, p.Profile)
}

// ========== 解码表 ==========

type decodeFunc func(r *codec.Reader) (Packet, error)

func readInt64Packet(build func(int64) Packet) decodeFunc {
	return func(r *codec.Reader) (Packet, error) {
		id, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		return build(id), nil
	}
}

func emptyPacket(p Packet) decodeFunc {
	return func(*codec.Reader) (Packet, error) { return p, nil }
}

var decoders = map[Kind]decodeFunc{
	KindConnectRequest: func(r *codec.Reader) (Packet, error) {
		v, err := codec.ReadVersion(r)
		if err != nil {
			return nil, err
		}
		return ConnectRequest{ClientVersion: v}, nil
	},
	KindPushTrack:             readInt64Packet(func(id int64) Packet { return PushTrack{TrackID: id} }),
	KindVoteSkip:              readInt64Packet(func(id int64) Packet { return VoteSkip{TrackID: id} }),
	KindAddIdleSource:         readInt64Packet(func(id int64) Packet { return AddIdleSource{PlaylistID: id} }),
	KindRemoveIdleSource:      readInt64Packet(func(id int64) Packet { return RemoveIdleSource{PlaylistID: id} }),
	KindPlaylistDetailRequest: readInt64Packet(func(id int64) Packet { return PlaylistDetailRequest{PlaylistID: id} }),
	KindLogout:                emptyPacket(Logout{}),
	KindAnonymousLogin:        emptyPacket(AnonymousLogin{}),
	KindStartQRLogin:          emptyPacket(StartQRLogin{}),
	KindCancelQRLogin:         emptyPacket(CancelQRLogin{}),
	KindUserPlaylistRequest:   emptyPacket(UserPlaylistRequest{}),
	KindCookieLogin: func(r *codec.Reader) (Packet, error) {
		info, err := codec.ReadLoginCookieInfo(r)
		if err != nil {
			return nil, err
		}
		refresh, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		return CookieLogin{Cookie: info, Refresh: refresh}, nil
	},
	KindRemoveFromQueue: func(r *codec.Reader) (Packet, error) {
		if r.Remaining() < removeFromQueueMinBytes {
			return nil, fmt.Errorf("%w: remove payload too short: %d bytes", codec.ErrMalformedPacket, r.Remaining())
		}
		index, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		id, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		return RemoveFromQueue{Index: index, TrackID: id}, nil
	},
	KindSearchRequest: func(r *codec.Reader) (Packet, error) {
		q, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return SearchRequest{Query: q}, nil
	},

	KindConnectResponse: func(r *codec.Reader) (Packet, error) {
		accepted, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		v, err := codec.ReadVersion(r)
		if err != nil {
			return nil, err
		}
		return ConnectResponse{Accepted: accepted, ServerVersion: v}, nil
	},
	KindSwitchTrack: func(r *codec.Reader) (Packet, error) {
		var p SwitchTrack
		var err error
		if p.Current, err = codec.ReadTrack(r); err != nil {
			return nil, err
		}
		if p.Next, err = codec.ReadTrack(r); err != nil {
			return nil, err
		}
		if p.Message, err = r.ReadString(); err != nil {
			return nil, err
		}
		return p, nil
	},
	KindSyncCurrent: func(r *codec.Reader) (Packet, error) {
		var p SyncCurrent
		var err error
		if p.Track, err = codec.ReadTrack(r); err != nil {
			return nil, err
		}
		if p.StartedAt, err = r.ReadTime(); err != nil {
			return nil, err
		}
		return p, nil
	},
	KindRefreshQueue: func(r *codec.Reader) (Packet, error) {
		q, err := codec.ReadTracks(r)
		if err != nil {
			return nil, err
		}
		return RefreshQueue{Queue: q}, nil
	},
	KindLoginResult: func(r *codec.Reader) (Packet, error) {
		var p LoginResult
		var err error
		if p.Success, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if p.Message, err = r.ReadString(); err != nil {
			return nil, err
		}
		if p.Cookie, err = codec.ReadLoginCookieInfo(r); err != nil {
			return nil, err
		}
		if p.Profile, err = codec.ReadProfile(r); err != nil {
			return nil, err
		}
		return p, nil
	},
	KindStartQRLoginResponse: func(r *codec.Reader) (Packet, error) {
		img, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return QRChallenge{Image: img}, nil
	},
	KindSearchResponse: func(r *codec.Reader) (Packet, error) {
		tracks, err := codec.ReadTracks(r)
		if err != nil {
			return nil, err
		}
		return SearchResult{Tracks: tracks}, nil
	},
	KindUserPlaylistResponse: func(r *codec.Reader) (Packet, error) {
		playlists, err := codec.ReadPlaylists(r)
		if err != nil {
			return nil, err
		}
		return UserPlaylists{Playlists: playlists}, nil
	},
	KindPlaylistDetailResponse: func(r *codec.Reader) (Packet, error) {
		p, err := codec.ReadPlaylist(r)
		if err != nil {
			return nil, err
		}
		return PlaylistDetail{Playlist: p}, nil
	},
}

// Decode 解码一个包，不处理外层长度前缀
func Decode(kind Kind, r *codec.Reader) (Packet, error) {
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, kind)
	}
	return decode(r)
}

// EncodePayload 编码包体，不含外层长度前缀
func EncodePayload(p Packet) []byte {
	w := codec.NewWriter()
	p.Encode(w)
	return w.Bytes()
}
