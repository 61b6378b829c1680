package model

// Profile 用户资料
type Profile struct {
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatarUrl"`
	BackgroundURL string `json:"backgroundUrl"`
	UserID        int64  `json:"userId"`
}

// AnonymousProfile 未知身份
var AnonymousProfile = Profile{Nickname: "anonymous"}

// Playlist 歌单
type Playlist struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	CoverImgID    int64   `json:"coverImgId"`
	CoverImgIDStr string  `json:"coverImgIdStr"`
	CoverImgURL   string  `json:"coverImgUrl"`
	Creator       Profile `json:"creator"`
	Tracks        []Track `json:"tracks"`
}

// NoPlaylist 空歌单，获取失败时返回给客户端
var NoPlaylist = Playlist{Creator: AnonymousProfile}
