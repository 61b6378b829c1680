package player

import (
	"context"
	"fmt"

	"musichud/logger"
	"musichud/model"
)

type pushJob struct {
	client  model.Client
	trackID int64
	result  chan error
}

// PushToQueue 异步点歌，所有点歌在一个工作协程中按到达顺序处理
func (o *Orchestrator) PushToQueue(client model.Client, trackID int64) <-chan error {
	result := make(chan error, 1)
	select {
	case <-o.closing:
		result <- ErrClosed
	case o.jobs <- pushJob{client: client, trackID: trackID, result: result}:
	}
	return result
}

func (o *Orchestrator) pushWorker() {
	defer o.workerWG.Done()
	for {
		select {
		case <-o.closing:
			return
		case job := <-o.jobs:
			job.result <- o.push(job)
		}
	}
}

func (o *Orchestrator) push(job pushJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.Config().LookupTimeout)
	defer cancel()

	track, err := o.catalog.LookupTrack(ctx, job.trackID)
	if err == nil && track.IsNone() {
		err = ErrTrackNotFound
	}
	if err != nil {
		logger.Warn("push track lookup failed",
			logger.String("client", job.client.Name),
			logger.Int64("trackId", job.trackID),
			logger.ErrorField(err))
		return fmt.Errorf("查询歌曲 %d 失败: %w", job.trackID, err)
	}

	profile, cookie, ok := o.dir.Identity(job.client.ID)
	res, err := o.catalog.ResolveResource(ctx, job.trackID, cookie)
	if err != nil {
		logger.Warn("resource resolve failed, will retry before playback",
			logger.Int64("trackId", job.trackID), logger.ErrorField(err))
		res = model.NoResource
	}
	track.Resource = res
	track.Pusher = model.Pusher{ClientUUID: job.client.ID, Name: job.client.Name}
	if ok {
		track.Pusher.UID = profile.UserID
	}

	o.queueMu.Lock()
	o.queue = append(o.queue, track)
	snapshot := cloneTracks(o.queue)
	o.queueMu.Unlock()

	logger.Info("track queued",
		logger.String("client", job.client.Name),
		logger.Int64("trackId", track.ID),
		logger.String("name", track.Name),
		logger.Int("queueLength", len(snapshot)))

	o.announcer.RefreshQueue(o.dir.ConnectedClients(), snapshot)
	o.Start()
	return nil
}

// RemoveFromQueue 删除队列中所有该 id 的歌曲，返回删除数量
func (o *Orchestrator) RemoveFromQueue(trackID int64) int {
	o.queueMu.Lock()
	kept := o.queue[:0:0]
	for _, t := range o.queue {
		if t.ID != trackID {
			kept = append(kept, t)
		}
	}
	removed := len(o.queue) - len(kept)
	o.queue = kept
	snapshot := cloneTracks(kept)
	o.queueMu.Unlock()

	if removed > 0 {
		logger.Info("track removed from queue", logger.Int64("trackId", trackID), logger.Int("removed", removed))
		o.announcer.RefreshQueue(o.dir.ConnectedClients(), snapshot)
	}
	o.Start()
	return removed
}

// Queue 队列快照
func (o *Orchestrator) Queue() []model.Track {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	return cloneTracks(o.queue)
}

// popQueue 弹出队首，同时返回剩余队列快照
func (o *Orchestrator) popQueue() (model.Track, []model.Track, bool) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	if len(o.queue) == 0 {
		return model.NoTrack, nil, false
	}
	head := o.queue[0]
	o.queue = cloneTracks(o.queue[1:])
	return head, cloneTracks(o.queue), true
}

func cloneTracks(tracks []model.Track) []model.Track {
	out := make([]model.Track, len(tracks))
	copy(out, tracks)
	return out
}
