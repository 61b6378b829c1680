package player

import (
	"sync"

	"musichud/logger"
	"musichud/model"

	"github.com/google/uuid"
)

type skipReason int

const (
	skipByVote skipReason = iota + 1
	skipByAdmin
)

func (r skipReason) message() string {
	if r == skipByAdmin {
		return MessageForceSkipped
	}
	return MessageVoteSkipped
}

// VoteResult 一次投票的处理结果
type VoteResult struct {
	Counted  bool `json:"counted"`
	Votes    int  `json:"votes"`
	Required int  `json:"required"`
	Skipped  bool `json:"skipped"`
}

// voteLedger 当前歌曲的投票记录，fired 之后本首歌不再触发切歌
type voteLedger struct {
	mu     sync.Mutex
	track  model.Track
	voters map[uuid.UUID]struct{}
	fired  bool
}

// reset 切换到新歌曲，同时丢弃尚未消费的切歌信号
func (l *voteLedger) reset(track model.Track, skip chan skipReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-skip:
	default:
	}
	l.track = track
	l.voters = make(map[uuid.UUID]struct{})
	l.fired = false
}

func (l *voteLedger) remove(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.voters, id)
}

func (l *voteLedger) snapshot() (model.Track, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.track, len(l.voters)
}

// VoteSkip 记录一票，票数达到阈值时结束当前歌曲
func (o *Orchestrator) VoteSkip(client model.Client, trackID int64) VoteResult {
	cfg := o.Config()
	if !cfg.VoteSkipEnabled {
		return VoteResult{}
	}
	required := cfg.RequiredVotes(o.dir.ConnectedCount())

	l := &o.votes
	l.mu.Lock()
	defer l.mu.Unlock()

	result := VoteResult{Votes: len(l.voters), Required: required}
	if l.track.IsNone() || l.track.ID != trackID || l.fired {
		return result
	}
	if _, voted := l.voters[client.ID]; voted {
		return result
	}
	l.voters[client.ID] = struct{}{}
	result.Counted = true
	result.Votes = len(l.voters)
	logger.Info("vote skip",
		logger.String("client", client.Name),
		logger.Int64("trackId", trackID),
		logger.Int("votes", result.Votes),
		logger.Int("required", required))

	if result.Votes >= required {
		l.fired = true
		select {
		case o.skip <- skipByVote:
		default:
		}
		result.Skipped = true
		logger.Info("vote skip passed", logger.Int64("trackId", trackID))
	}
	return result
}

// Skip 强制结束当前歌曲，不计入投票
func (o *Orchestrator) Skip() bool {
	o.stateMu.RLock()
	playing := o.phase == PhasePlaying
	o.stateMu.RUnlock()
	if !playing {
		return false
	}

	l := &o.votes
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.track.IsNone() {
		return false
	}
	l.fired = true
	l.voters = make(map[uuid.UUID]struct{})
	select {
	case o.skip <- skipByAdmin:
	default:
	}
	logger.Info("track skipped by admin", logger.Int64("trackId", l.track.ID))
	return true
}
