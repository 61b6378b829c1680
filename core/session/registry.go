// Package session 维护每个客户端的连接与登录状态
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"musichud/logger"
	"musichud/model"

	"github.com/google/uuid"
)

// ErrNotConnected 客户端未连接
var ErrNotConnected = errors.New("client not connected")

// State 连接状态
type State int

const (
	Disconnected State = iota
	Connected
	Authenticated
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// 登录结果提示，客户端直接展示
const (
	MsgAnonymousSuccess = "匿名登录成功"
	MsgAnonymousFailed  = "匿名登录失败"
	MsgLoginSuccess     = "登录成功"
	MsgLoginFailed      = "登录失败"
	MsgQRFetchFailed    = "获取二维码失败"
	MsgQRExpired        = "二维码已过期"
	MsgQRLoginFailed    = "二维码登录失败"
)

// QRStatus 扫码轮询结果
type QRStatus int

const (
	QRPending QRStatus = iota
	QRExpired
	QRSuccess
)

// Gateway 登录相关的远程调用
type Gateway interface {
	LoginAnonymous(ctx context.Context) (string, error)
	RefreshCredential(ctx context.Context, cookie string) (string, error)
	FetchProfile(ctx context.Context, cookie string) (model.Profile, error)
	BeginQR(ctx context.Context) (key, image string, err error)
	PollQR(ctx context.Context, key string) (QRStatus, string, error)
}

// Notifier 向客户端推送登录结果
type Notifier interface {
	LoginResult(client model.Client, success bool, message string, cookie model.LoginCookieInfo, profile model.Profile)
	QRChallenge(client model.Client, image string)
}

// Session 单个客户端的会话快照
type Session struct {
	Client      model.Client
	State       State
	Profile     model.Profile
	Cookie      model.LoginCookieInfo
	Anonymous   bool
	ConnectedAt time.Time
}

type qrPoll struct {
	cancel context.CancelFunc
	seq    uint64
}

// Options Registry 配置
type Options struct {
	QRPollInterval time.Duration
	Now            func() time.Time
}

// Registry 会话表
type Registry struct {
	gateway  Gateway
	notifier Notifier
	opts     Options

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	qrMu  sync.Mutex
	polls map[uuid.UUID]qrPoll
	qrSeq uint64
	qrWG  sync.WaitGroup

	hookMu     sync.RWMutex
	leaveHooks []func(model.Client)
}

// NewRegistry 创建会话表
func NewRegistry(gateway Gateway, notifier Notifier, opts Options) *Registry {
	if opts.QRPollInterval <= 0 {
		opts.QRPollInterval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		gateway:  gateway,
		notifier: notifier,
		opts:     opts,
		sessions: make(map[uuid.UUID]*Session),
		polls:    make(map[uuid.UUID]qrPoll),
	}
}

// OnLeave 注册登出/断开回调
func (r *Registry) OnLeave(hook func(model.Client)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.leaveHooks = append(r.leaveHooks, hook)
}

// ========== 连接 ==========

// Connect 新客户端进入 Connected-Unauthenticated，已存在的会话保持不变
func (r *Registry) Connect(client model.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[client.ID]; ok {
		s.Client = client
		return
	}
	r.sessions[client.ID] = &Session{
		Client:      client,
		State:       Connected,
		Profile:     model.AnonymousProfile,
		Cookie:      model.UnloggedCookie(r.opts.Now()),
		ConnectedAt: r.opts.Now(),
	}
	logger.Debug("client joined as unlogged", logger.String("client", client.Name))
}

// Logout 清除会话
func (r *Registry) Logout(client model.Client) {
	r.leave(client)
	logger.Debug("client logged out", logger.String("client", client.Name))
}

// Disconnect 客户端断开
func (r *Registry) Disconnect(client model.Client) {
	r.leave(client)
	logger.Debug("client disconnected", logger.String("client", client.Name))
}

func (r *Registry) leave(client model.Client) {
	r.CancelQR(client)

	r.mu.Lock()
	_, existed := r.sessions[client.ID]
	delete(r.sessions, client.ID)
	r.mu.Unlock()

	if !existed {
		return
	}
	r.hookMu.RLock()
	hooks := append([]func(model.Client){}, r.leaveHooks...)
	r.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(client)
	}
}

// ========== 查询 ==========

// Get 获取会话快照
func (r *Registry) Get(id uuid.UUID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// StateOf 连接状态
func (r *Registry) StateOf(id uuid.UUID) State {
	s, ok := r.Get(id)
	if !ok {
		return Disconnected
	}
	return s.State
}

// IsConnected 已连接（无论是否登录）
func (r *Registry) IsConnected(id uuid.UUID) bool {
	return r.StateOf(id) != Disconnected
}

// Identity 返回登录后的资料与 cookie，未登录时 ok 为 false
func (r *Registry) Identity(id uuid.UUID) (model.Profile, string, bool) {
	s, ok := r.Get(id)
	if !ok || s.State != Authenticated {
		return model.AnonymousProfile, "", false
	}
	return s.Profile, s.Cookie.RawCookie, true
}

// ConnectedClients 所有已连接客户端
func (r *Registry) ConnectedClients() []model.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]model.Client, 0, len(r.sessions))
	for _, s := range r.sessions {
		clients = append(clients, s.Client)
	}
	return clients
}

// ConnectedCount 已连接客户端数量
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions 所有会话快照
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, *s)
	}
	return list
}

// ========== 登录 ==========

// AuthenticateAnonymous 匿名登录
func (r *Registry) AuthenticateAnonymous(ctx context.Context, client model.Client) error {
	if !r.IsConnected(client.ID) {
		return ErrNotConnected
	}
	cookie, err := r.gateway.LoginAnonymous(ctx)
	if err == nil && cookie == "" {
		err = errors.New("empty cookie")
	}
	if err != nil {
		r.fail(client, MsgAnonymousFailed)
		logger.Warn("anonymous login failed", logger.String("client", client.Name), logger.ErrorField(err))
		return nil
	}
	r.complete(ctx, client, model.LoginAnonymous, cookie, MsgAnonymousSuccess)
	logger.Info("client logged in anonymously", logger.String("client", client.Name))
	return nil
}

// AuthenticateWithCredential 使用客户端保存的 cookie 登录，refresh 为真时先尝试刷新
func (r *Registry) AuthenticateWithCredential(ctx context.Context, client model.Client, info model.LoginCookieInfo, refresh bool) error {
	if !r.IsConnected(client.ID) {
		return ErrNotConnected
	}
	cookie := info.RawCookie
	if cookie == "" {
		r.fail(client, MsgLoginFailed)
		logger.Warn("cookie login failed", logger.String("client", client.Name), logger.String("reason", "empty cookie"))
		return nil
	}
	if refresh {
		refreshed, err := r.gateway.RefreshCredential(ctx, cookie)
		if err != nil {
			r.fail(client, MsgLoginFailed)
			logger.Warn("cookie refresh failed", logger.String("client", client.Name), logger.ErrorField(err))
			return nil
		}
		// 刷新成功但未返回新 cookie 时沿用原值
		if refreshed != "" {
			cookie = refreshed
		}
	}
	loginType := info.Type
	if loginType == model.LoginUnlogged {
		loginType = model.LoginCookie
	}
	r.complete(ctx, client, loginType, cookie, MsgLoginSuccess)
	logger.Info("client logged in with cookie", logger.String("client", client.Name))
	return nil
}

// complete 写入登录态并通知客户端
func (r *Registry) complete(ctx context.Context, client model.Client, loginType model.LoginType, cookie, message string) {
	profile, err := r.gateway.FetchProfile(ctx, cookie)
	if err != nil {
		logger.Warn("failed to load profile", logger.String("client", client.Name), logger.ErrorField(err))
		profile = model.AnonymousProfile
	}
	info := model.LoginCookieInfo{Type: loginType, RawCookie: cookie, GeneratedAt: r.opts.Now()}

	r.mu.Lock()
	s, ok := r.sessions[client.ID]
	if ok {
		s.State = Authenticated
		s.Profile = profile
		s.Cookie = info
		s.Anonymous = loginType == model.LoginAnonymous
	}
	r.mu.Unlock()

	if !ok {
		logger.Debug("login finished after client left", logger.String("client", client.Name))
		return
	}
	r.notifier.LoginResult(client, true, message, info, profile)
}

// fail 回到 Connected-Unauthenticated 并通知失败
func (r *Registry) fail(client model.Client, message string) {
	now := r.opts.Now()
	r.mu.Lock()
	s, ok := r.sessions[client.ID]
	if ok {
		s.State = Connected
		s.Profile = model.AnonymousProfile
		s.Cookie = model.UnloggedCookie(now)
		s.Anonymous = false
	}
	r.mu.Unlock()
	if ok {
		r.notifier.LoginResult(client, false, message, model.UnloggedCookie(now), model.AnonymousProfile)
	}
}
