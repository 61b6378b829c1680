package hud

import (
	"time"

	"musichud/core/channel"
	"musichud/model"
)

// Announcer 把播放与登录事件编码为出站包
type Announcer struct {
	d *channel.Dispatcher
}

// NewAnnouncer 创建 Announcer
func NewAnnouncer(d *channel.Dispatcher) *Announcer {
	return &Announcer{d: d}
}

// SwitchTrack 切歌广播
func (a *Announcer) SwitchTrack(clients []model.Client, current, next model.Track, message string) {
	a.d.Broadcast(clients, channel.SwitchTrack{Current: current, Next: next, Message: message})
}

// SyncCurrent 同步当前播放给单个客户端
func (a *Announcer) SyncCurrent(client model.Client, track model.Track, startedAt time.Time) {
	a.d.Send(client.ID, channel.SyncCurrent{Track: track, StartedAt: startedAt})
}

// RefreshQueue 队列快照
func (a *Announcer) RefreshQueue(clients []model.Client, queue []model.Track) {
	a.d.Broadcast(clients, channel.RefreshQueue{Queue: queue})
}

// LoginResult 登录结果
func (a *Announcer) LoginResult(client model.Client, success bool, message string, cookie model.LoginCookieInfo, profile model.Profile) {
	a.d.Send(client.ID, channel.LoginResult{Success: success, Message: message, Cookie: cookie, Profile: profile})
}

// QRChallenge 二维码图片
func (a *Announcer) QRChallenge(client model.Client, image string) {
	a.d.Send(client.ID, channel.QRChallenge{Image: image})
}
