package model

import (
	"strings"

	"github.com/google/uuid"
)

// Artist 艺术家信息
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Album 专辑信息
type Album struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	PicURL  string `json:"picUrl"`
	PicSize int64  `json:"picSize"`
}

// Pusher 点歌人信息，系统选曲时为 EmptyPusher
type Pusher struct {
	UID        int64     `json:"uid"`
	ClientUUID uuid.UUID `json:"clientUuid"`
	Name       string    `json:"name"`
}

// EmptyPusher 空点歌人
var EmptyPusher = Pusher{}

// IsEmpty 是否为空点歌人
func (p Pusher) IsEmpty() bool {
	return p == EmptyPusher
}

// FormatType 音频格式
type FormatType int

const (
	FormatFLAC FormatType = iota
	FormatMP3
	FormatAuto
)

var formatNames = [...]string{"FLAC", "MP3", "AUTO"}

// FormatTypeCount 格式枚举数量
const FormatTypeCount = len(formatNames)

func (f FormatType) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return formatNames[FormatAuto]
	}
	return formatNames[f]
}

// FormatTypeFromString 解析接口返回的格式字符串，未知格式返回 AUTO
func FormatTypeFromString(s string) FormatType {
	upper := strings.ToUpper(s)
	for i, name := range formatNames {
		if name == upper {
			return FormatType(i)
		}
	}
	return FormatAuto
}

// Fee 收费类型
type Fee int

const (
	FeeFree Fee = iota
	FeeVIP
	FeeSeparatelyPurchase
	FeeVIPForHigherQuality
	FeeUnset
)

// FeeCount 收费枚举数量
const FeeCount = 5

var feeCodes = map[int]Fee{
	0:  FeeFree,
	1:  FeeVIP,
	4:  FeeSeparatelyPurchase,
	8:  FeeVIPForHigherQuality,
	-1: FeeUnset,
}

// FeeFromCode 将接口中的 fee 数值转换为枚举，未知值返回 UNSET
func FeeFromCode(code int) Fee {
	if fee, ok := feeCodes[code]; ok {
		return fee
	}
	return FeeUnset
}

// Lyric 单份歌词
type Lyric struct {
	Version int32  `json:"version"`
	Text    string `json:"text"`
}

// NoLyric 无歌词
var NoLyric = Lyric{Version: -1}

// LyricInfo 原文歌词与翻译歌词
type LyricInfo struct {
	Main       Lyric `json:"lrc"`
	Translated Lyric `json:"tlyric"`
}

// NoLyricInfo 无歌词信息
var NoLyricInfo = LyricInfo{Main: NoLyric, Translated: NoLyric}

// Resource 播放资源
type Resource struct {
	ID      int64      `json:"id"`
	URL     string     `json:"url"`
	Bitrate int32      `json:"bitrate"`
	Size    int64      `json:"size"`
	Format  FormatType `json:"format"`
	MD5     string     `json:"md5"`
	Fee     Fee        `json:"fee"`
	Time    int32      `json:"time"`
	Lyrics  LyricInfo  `json:"lyrics"`
}

// NoResource 空资源
var NoResource = Resource{Format: FormatAuto, Fee: FeeUnset, Lyrics: NoLyricInfo}

// Unresolved 资源是否需要重新获取
func (r Resource) Unresolved() bool {
	return r.URL == ""
}

// Track 歌曲详情
type Track struct {
	Name           string   `json:"name"`
	ID             int64    `json:"id"`
	Artists        []Artist `json:"artists"`
	Alias          []string `json:"alias"`
	Album          Album    `json:"album"`
	DurationMillis int32    `json:"durationMillis"`
	Translations   []string `json:"translations"`
	Pusher         Pusher   `json:"pusher"`
	Resource       Resource `json:"resource"`
}

// NoTrack 表示“没有歌曲”，任何可能为空的歌曲位置都使用它
var NoTrack = Track{Resource: NoResource}

// IsNone 是否为空歌曲
func (t Track) IsNone() bool {
	return t.ID == NoTrack.ID
}

// Equal 歌曲以 id 判等
func (t Track) Equal(other Track) bool {
	return t.ID == other.ID
}

// ArtistNames 以 " / " 拼接艺术家名
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, " / ")
}
