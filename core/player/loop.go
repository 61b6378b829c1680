package player

import (
	"context"
	"errors"
	"time"

	"musichud/logger"
	"musichud/model"
)

type cycleOutcome int

const (
	cycleIdle cycleOutcome = iota
	cyclePlayed
	cycleFailed
)

// run 播放循环：选歌、广播、等待结束或切歌，直到 ctx 取消
func (o *Orchestrator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer o.setPhase(PhaseStopped)

	message := ""
	for ctx.Err() == nil {
		outcome, next := o.cycle(ctx, message)
		cfg := o.Config()
		switch outcome {
		case cyclePlayed:
			message = next
			continue
		case cycleIdle:
			o.setPhase(PhaseIdle)
			sleep(ctx, cfg.IdleSleep)
		case cycleFailed:
			o.setPhase(PhaseIdle)
			sleep(ctx, cfg.ErrorBackoff)
		}
	}
}

func (o *Orchestrator) cycle(ctx context.Context, message string) (cycleOutcome, string) {
	if o.dir.ConnectedCount() == 0 {
		return cycleIdle, message
	}
	o.setPhase(PhaseSelecting)

	current, preview, err := o.selectNext(ctx)
	if err != nil {
		if errors.Is(err, errNoIdleContent) {
			return cycleIdle, message
		}
		if ctx.Err() != nil {
			return cycleIdle, message
		}
		logger.Error("failed to select next track", logger.ErrorField(err))
		return cycleFailed, message
	}

	current = o.ensureResource(ctx, current)
	o.announce(current, preview, message)
	return cyclePlayed, o.wait(ctx, current)
}

// selectNext 队列优先，其次是预加载的空闲歌曲和新的空闲抽取
func (o *Orchestrator) selectNext(ctx context.Context) (current, preview model.Track, err error) {
	if head, rest, ok := o.popQueue(); ok {
		o.announcer.RefreshQueue(o.dir.ConnectedClients(), rest)
		return head, o.preview(rest), nil
	}

	if !o.preload.IsNone() && !o.hasIdleSource(o.preload.Pusher.ClientUUID) {
		o.preload = model.NoTrack
	}
	if !o.preload.IsNone() {
		current = o.preload
		next, err := o.drawIdle(ctx, current.ID)
		if err != nil {
			if !errors.Is(err, errNoIdleContent) {
				logger.Warn("idle preload draw failed", logger.ErrorField(err))
			}
			next = model.NoTrack
		}
		o.preload = next
		return current, o.preview(o.Queue()), nil
	}

	first, err := o.drawIdle(ctx)
	if err != nil {
		return model.NoTrack, model.NoTrack, err
	}
	second, err := o.drawIdle(ctx, first.ID)
	if err != nil {
		if !errors.Is(err, errNoIdleContent) {
			logger.Warn("idle preload draw failed", logger.ErrorField(err))
		}
		second = model.NoTrack
	}
	o.preload = second
	return first, o.preview(o.Queue()), nil
}

// preview 下一首：队首，否则为预加载的空闲歌曲
func (o *Orchestrator) preview(queue []model.Track) model.Track {
	if len(queue) > 0 {
		return queue[0]
	}
	return o.preload
}

// ensureResource 播放前补齐资源，失败时仍以空资源播放
func (o *Orchestrator) ensureResource(ctx context.Context, track model.Track) model.Track {
	if !track.Resource.Unresolved() {
		return track
	}
	_, cookie, _ := o.dir.Identity(track.Pusher.ClientUUID)
	lookupCtx, cancel := context.WithTimeout(ctx, o.Config().LookupTimeout)
	defer cancel()
	res, err := o.catalog.ResolveResource(lookupCtx, track.ID, cookie)
	if err != nil {
		logger.Warn("resource resolve failed before playback",
			logger.Int64("trackId", track.ID), logger.ErrorField(err))
		return track
	}
	track.Resource = res
	return track
}

func (o *Orchestrator) announce(current, preview model.Track, message string) {
	o.votes.reset(current, o.skip)
	startedAt := o.now().In(o.Config().Location)

	o.stateMu.Lock()
	o.current = current
	o.next = preview
	o.startedAt = startedAt
	o.phase = PhasePlaying
	o.stateMu.Unlock()

	o.announcer.SwitchTrack(o.dir.ConnectedClients(), current, preview, message)
	logger.Info("now playing",
		logger.Int64("trackId", current.ID),
		logger.String("name", current.Name),
		logger.String("pusher", current.Pusher.Name),
		logger.Int64("nextId", preview.ID))
}

// wait 等待歌曲时长加播放间隔，返回下一次切歌的提示
func (o *Orchestrator) wait(ctx context.Context, current model.Track) string {
	d := time.Duration(current.DurationMillis)*time.Millisecond + o.Config().Interval
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ""
	case reason := <-o.skip:
		return reason.message()
	case <-timer.C:
		return ""
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
