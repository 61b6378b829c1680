// Package player 实现共享播放会话：点歌队列、空闲歌单、投票切歌与播放循环
package player

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"musichud/logger"
	"musichud/model"

	"github.com/google/uuid"
)

var (
	// ErrClosed Orchestrator 已关闭
	ErrClosed = errors.New("orchestrator closed")
	// ErrTrackNotFound 目录中不存在该歌曲
	ErrTrackNotFound = errors.New("track not found")
)

// 切歌提示
const (
	MessageVoteSkipped  = "投票切歌通过"
	MessageForceSkipped = "管理员切歌"
)

// Catalog 播放所需的目录查询
type Catalog interface {
	LookupTrack(ctx context.Context, id int64) (model.Track, error)
	ResolveResource(ctx context.Context, id int64, cookie string) (model.Resource, error)
	FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error)
}

// Directory 已连接客户端与其登录身份
type Directory interface {
	ConnectedClients() []model.Client
	ConnectedCount() int
	Identity(id uuid.UUID) (profile model.Profile, cookie string, ok bool)
}

// Announcer 播放状态推送
type Announcer interface {
	SwitchTrack(clients []model.Client, current, next model.Track, message string)
	SyncCurrent(client model.Client, track model.Track, startedAt time.Time)
	RefreshQueue(clients []model.Client, queue []model.Track)
}

// Config 播放配置，可热更新
type Config struct {
	Interval            time.Duration
	IdlePlaylistEnabled bool
	VoteSkipEnabled     bool
	VoteSkipRatio       float64
	VoteSkipMinVotes    int
	IdleSleep           time.Duration
	ErrorBackoff        time.Duration
	LookupTimeout       time.Duration
	Location            *time.Location
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Interval:            time.Second,
		IdlePlaylistEnabled: true,
		VoteSkipEnabled:     true,
		VoteSkipRatio:       0.5,
		VoteSkipMinVotes:    1,
		IdleSleep:           time.Second,
		ErrorBackoff:        time.Second,
		LookupTimeout:       15 * time.Second,
		Location:            time.UTC,
	}
}

// RequiredVotes max(minVotes, ceil(connected*ratio))
func (c Config) RequiredVotes(connected int) int {
	required := int(math.Ceil(float64(connected) * c.VoteSkipRatio))
	if required < c.VoteSkipMinVotes {
		required = c.VoteSkipMinVotes
	}
	return required
}

// Deps 外部依赖
type Deps struct {
	Catalog   Catalog
	Directory Directory
	Announcer Announcer
	Now       func() time.Time
	Rand      func(n int) int
}

// Phase 播放循环阶段
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseIdle
	PhaseSelecting
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelecting:
		return "selecting"
	case PhasePlaying:
		return "playing"
	default:
		return "stopped"
	}
}

// Status 运行状态快照
type Status struct {
	Running       bool        `json:"running"`
	Phase         string      `json:"phase"`
	Current       model.Track `json:"current"`
	Next          model.Track `json:"next"`
	StartedAt     time.Time   `json:"startedAt"`
	QueueLength   int         `json:"queueLength"`
	IdleSources   int         `json:"idleSources"`
	Connected     int         `json:"connected"`
	Votes         int         `json:"votes"`
	RequiredVotes int         `json:"requiredVotes"`
}

// Orchestrator 播放编排器
type Orchestrator struct {
	catalog   Catalog
	dir       Directory
	announcer Announcer
	now       func() time.Time
	randMu    sync.Mutex
	randIntN  func(n int) int

	cfg atomic.Pointer[Config]

	// 点歌队列
	queueMu sync.Mutex
	queue   []model.Track

	// 空闲歌单
	idleMu sync.RWMutex
	idle   map[uuid.UUID]*idleSource

	votes voteLedger
	skip  chan skipReason

	// 当前播放状态
	stateMu   sync.RWMutex
	current   model.Track
	next      model.Track
	startedAt time.Time
	phase     Phase

	// 仅播放循环协程访问
	preload model.Track

	// 循环生命周期
	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// 点歌单线程队列
	jobs      chan pushJob
	closing   chan struct{}
	closeOnce sync.Once
	workerWG  sync.WaitGroup
}

// New 创建编排器并启动点歌工作协程，播放循环需显式 Start 或由点歌触发
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = rand.Intn
	}
	o := &Orchestrator{
		catalog:   deps.Catalog,
		dir:       deps.Directory,
		announcer: deps.Announcer,
		now:       deps.Now,
		randIntN:  deps.Rand,
		idle:      make(map[uuid.UUID]*idleSource),
		skip:      make(chan skipReason, 1),
		current:   model.NoTrack,
		next:      model.NoTrack,
		preload:   model.NoTrack,
		jobs:      make(chan pushJob, 128),
		closing:   make(chan struct{}),
	}
	o.votes.track = model.NoTrack
	o.UpdateConfig(cfg)

	o.workerWG.Add(1)
	go o.pushWorker()
	return o
}

// UpdateConfig 热更新配置
func (o *Orchestrator) UpdateConfig(cfg Config) {
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 15 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	o.cfg.Store(&cfg)
}

// Config 当前配置
func (o *Orchestrator) Config() Config {
	return *o.cfg.Load()
}

func (o *Orchestrator) intn(n int) int {
	o.randMu.Lock()
	defer o.randMu.Unlock()
	return o.randIntN(n)
}

// ========== 生命周期 ==========

// Start 启动播放循环，已在运行时返回 false
func (o *Orchestrator) Start() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	select {
	case <-o.closing:
		return false
	default:
	}
	if o.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	o.setPhase(PhaseIdle)
	go o.run(ctx, o.done)
	logger.Info("playback loop started")
	return true
}

// Stop 停止播放循环并等待其退出
func (o *Orchestrator) Stop() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if !o.running {
		return false
	}
	o.cancel()
	<-o.done
	o.running = false
	logger.Info("playback loop stopped")
	return true
}

// Running 播放循环是否在运行
func (o *Orchestrator) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.running
}

// Close 停止循环与点歌工作协程
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closing)
		o.Stop()
		o.workerWG.Wait()
	})
}

// ========== 状态 ==========

func (o *Orchestrator) setPhase(p Phase) {
	o.stateMu.Lock()
	o.phase = p
	o.stateMu.Unlock()
}

// Current 当前歌曲与开始时间
func (o *Orchestrator) Current() (model.Track, time.Time) {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.current, o.startedAt
}

// Status 状态快照
func (o *Orchestrator) Status() Status {
	o.stateMu.RLock()
	st := Status{
		Phase:     o.phase.String(),
		Current:   o.current,
		Next:      o.next,
		StartedAt: o.startedAt,
	}
	o.stateMu.RUnlock()

	st.Running = o.Running()
	st.QueueLength = len(o.Queue())
	o.idleMu.RLock()
	st.IdleSources = len(o.idle)
	o.idleMu.RUnlock()
	st.Connected = o.dir.ConnectedCount()
	_, st.Votes = o.votes.snapshot()
	st.RequiredVotes = o.Config().RequiredVotes(st.Connected)
	return st
}

// SyncClient 新连接客户端的一次性同步
func (o *Orchestrator) SyncClient(client model.Client) {
	current, startedAt := o.Current()
	if current.IsNone() {
		return
	}
	o.announcer.SyncCurrent(client, current, startedAt)
	if queue := o.Queue(); len(queue) > 0 {
		o.announcer.RefreshQueue([]model.Client{client}, queue)
	}
}

// OnClientLeave 客户端登出或断开时移除其空闲歌单与投票
func (o *Orchestrator) OnClientLeave(client model.Client) {
	o.idleMu.Lock()
	delete(o.idle, client.ID)
	o.idleMu.Unlock()
	o.votes.remove(client.ID)
	logger.Debug("client removed from playback", logger.String("client", client.Name))
}
