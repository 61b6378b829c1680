// Package channel 负责频道名与包类型的映射、入站分帧与路由、出站编码
package channel

import "strings"

// Namespace 所有频道共用的命名空间
const Namespace = "music_hud"

// Direction 包方向
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Kind 包类型
type Kind int

const (
	// 客户端 -> 服务端
	KindAddIdleSource Kind = iota
	KindPushTrack
	KindRemoveFromQueue
	KindLogout
	KindRemoveIdleSource
	KindVoteSkip
	KindConnectRequest
	KindAnonymousLogin
	KindCancelQRLogin
	KindCookieLogin
	KindPlaylistDetailRequest
	KindUserPlaylistRequest
	KindSearchRequest
	KindStartQRLogin

	// 服务端 -> 客户端
	KindLoginResult
	KindRefreshQueue
	KindSwitchTrack
	KindSyncCurrent
	KindConnectResponse
	KindPlaylistDetailResponse
	KindUserPlaylistResponse
	KindSearchResponse
	KindStartQRLoginResponse
)

type kindInfo struct {
	name      string
	direction Direction
}

var kindTable = map[Kind]kindInfo{
	KindAddIdleSource:         {"add_playlist_to_idle_play_source_message", Inbound},
	KindPushTrack:             {"client_push_music_to_queue_message", Inbound},
	KindRemoveFromQueue:       {"client_remove_music_from_queue_message", Inbound},
	KindLogout:                {"logout_message", Inbound},
	KindRemoveIdleSource:      {"remove_playlist_from_idle_play_source_message", Inbound},
	KindVoteSkip:              {"vote_skip_current_music_message", Inbound},
	KindConnectRequest:        {"connect_request", Inbound},
	KindAnonymousLogin:        {"anonymous_login_request", Inbound},
	KindCancelQRLogin:         {"cancel_qr_login_request", Inbound},
	KindCookieLogin:           {"cookie_login_request", Inbound},
	KindPlaylistDetailRequest: {"get_playlist_detail_request", Inbound},
	KindUserPlaylistRequest:   {"get_user_playlist_request", Inbound},
	KindSearchRequest:         {"search_request", Inbound},
	KindStartQRLogin:          {"start_qr_login_request", Inbound},

	KindLoginResult:            {"login_result_message", Outbound},
	KindRefreshQueue:           {"refresh_music_queue_message", Outbound},
	KindSwitchTrack:            {"switch_music_message", Outbound},
	KindSyncCurrent:            {"sync_current_playing_message", Outbound},
	KindConnectResponse:        {"connect_response", Outbound},
	KindPlaylistDetailResponse: {"get_playlist_detail_response", Outbound},
	KindUserPlaylistResponse:   {"get_user_playlist_response", Outbound},
	KindSearchResponse:         {"search_response", Outbound},
	KindStartQRLoginResponse:   {"start_qr_login_response", Outbound},
}

var channelIndex = func() map[string]Kind {
	index := make(map[string]Kind, len(kindTable))
	for kind, info := range kindTable {
		index[Namespace+":"+info.name] = kind
	}
	return index
}()

// Name 不含命名空间的名称
func (k Kind) Name() string {
	return kindTable[k].name
}

// Channel 完整频道名，如 music_hud:connect_request
func (k Kind) Channel() string {
	info, ok := kindTable[k]
	if !ok {
		return ""
	}
	return Namespace + ":" + info.name
}

// Direction 包方向
func (k Kind) Direction() Direction {
	return kindTable[k].direction
}

func (k Kind) String() string {
	if name := k.Name(); name != "" {
		return name
	}
	return "unknown"
}

// KindFromChannel 频道名查找包类型，未知频道返回 false
func KindFromChannel(channel string) (Kind, bool) {
	kind, ok := channelIndex[strings.TrimSpace(channel)]
	return kind, ok
}

// Channels 全部频道名
func Channels() []string {
	channels := make([]string, 0, len(channelIndex))
	for ch := range channelIndex {
		channels = append(channels, ch)
	}
	return channels
}
