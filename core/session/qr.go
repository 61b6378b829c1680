package session

import (
	"context"
	"errors"
	"time"

	"musichud/logger"
	"musichud/model"
)

var errQRKeyEmpty = errors.New("empty qr key")

// BeginQR 获取二维码并启动轮询，同一客户端重复调用会取消之前的轮询
func (r *Registry) BeginQR(ctx context.Context, client model.Client) error {
	if !r.IsConnected(client.ID) {
		return ErrNotConnected
	}
	key, image, err := r.gateway.BeginQR(ctx)
	if err == nil && key == "" {
		err = errQRKeyEmpty
	}
	if err != nil {
		r.fail(client, MsgQRFetchFailed)
		logger.Warn("qr login start failed", logger.String("client", client.Name), logger.ErrorField(err))
		return nil
	}
	if image != "" {
		r.notifier.QRChallenge(client, image)
	}
	r.startPoll(client, key)
	return nil
}

// CancelQR 取消扫码轮询
func (r *Registry) CancelQR(client model.Client) {
	r.qrMu.Lock()
	poll, ok := r.polls[client.ID]
	delete(r.polls, client.ID)
	r.qrMu.Unlock()
	if ok {
		poll.cancel()
		logger.Debug("qr login canceled", logger.String("client", client.Name))
	}
}

// Polling 客户端是否有进行中的扫码轮询
func (r *Registry) Polling(client model.Client) bool {
	r.qrMu.Lock()
	defer r.qrMu.Unlock()
	_, ok := r.polls[client.ID]
	return ok
}

// Close 取消所有轮询并等待退出
func (r *Registry) Close() {
	r.qrMu.Lock()
	for id, poll := range r.polls {
		poll.cancel()
		delete(r.polls, id)
	}
	r.qrMu.Unlock()
	r.qrWG.Wait()
}

func (r *Registry) startPoll(client model.Client, key string) {
	ctx, cancel := context.WithCancel(context.Background())

	r.qrMu.Lock()
	if prev, ok := r.polls[client.ID]; ok {
		prev.cancel()
	}
	r.qrSeq++
	seq := r.qrSeq
	r.polls[client.ID] = qrPoll{cancel: cancel, seq: seq}
	r.qrMu.Unlock()

	r.qrWG.Add(1)
	go func() {
		defer r.qrWG.Done()
		defer r.finishPoll(client, seq, cancel)
		r.poll(ctx, client, key)
	}()
}

// finishPoll 只移除属于自己的轮询记录
func (r *Registry) finishPoll(client model.Client, seq uint64, cancel context.CancelFunc) {
	cancel()
	r.qrMu.Lock()
	defer r.qrMu.Unlock()
	if cur, ok := r.polls[client.ID]; ok && cur.seq == seq {
		delete(r.polls, client.ID)
	}
}

func (r *Registry) poll(ctx context.Context, client model.Client, key string) {
	ticker := time.NewTicker(r.opts.QRPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, cookie, err := r.gateway.PollQR(ctx, key)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.fail(client, MsgQRLoginFailed)
			logger.Warn("qr polling failed", logger.String("client", client.Name), logger.ErrorField(err))
			return
		}

		switch status {
		case QRSuccess:
			if cookie == "" {
				r.fail(client, MsgQRLoginFailed)
				return
			}
			r.complete(ctx, client, model.LoginQRCode, cookie, "")
			logger.Info("client logged in with qr code", logger.String("client", client.Name))
			return
		case QRExpired:
			r.fail(client, MsgQRExpired)
			return
		}
	}
}
