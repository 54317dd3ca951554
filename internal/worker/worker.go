// Package worker is the default bot worker: a Matrix client that relays
// room messages to a chatflow endpoint and posts the answers back.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/supervisor"
)

const sendTimeout = 10 * time.Second

type Worker struct {
	launch   supervisor.LaunchConfig
	chat     config.ChatConfig
	matrix   *matrixClient
	upstream *upstream
	logger   *zap.Logger
}

func New(launch supervisor.LaunchConfig, chat config.ChatConfig, lg *zap.Logger) *Worker {
	if chat.SyncTimeout <= 0 {
		chat.SyncTimeout = 30 * time.Second
	}
	if chat.UpstreamTimeout <= 0 {
		chat.UpstreamTimeout = 30 * time.Second
	}
	if chat.RetryMax <= 0 {
		chat.RetryMax = time.Minute
	}
	return &Worker{
		launch: launch,
		chat:   chat,
		// Leave room for the long poll on top of the request timeout.
		matrix:   newMatrixClient(launch.HomeserverURL, chat.SyncTimeout+30*time.Second),
		upstream: newUpstream(launch.UpstreamURL, chat.UpstreamTimeout),
		logger:   lg.With(zap.String("bot_id", launch.BotID)),
	}
}

func (w *Worker) retry(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = w.chat.RetryMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

// Run logs in and serves until ctx is cancelled. Cancellation is a clean
// exit and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	err := backoff.RetryNotify(func() error {
		err := w.matrix.login(ctx, w.launch.AccountID, w.launch.AccountSecret)
		var me *matrixError
		if errors.As(err, &me) && me.Status >= 400 && me.Status < 500 && me.Status != 429 {
			return backoff.Permanent(err)
		}
		return err
	}, w.retry(ctx), func(err error, d time.Duration) {
		w.logger.Warn("worker.login.retry", zap.Duration("in", d), zap.Error(err))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	w.logger.Info("worker.login", zap.String("user_id", w.matrix.userID))

	since := ""
	initial := true
	b := w.retry(ctx)
	for {
		timeout := w.chat.SyncTimeout
		if initial {
			timeout = 0
		}
		res, err := w.matrix.sync(ctx, since, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d := b.NextBackOff()
			w.logger.Warn("worker.sync.retry", zap.Duration("in", d), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d):
			}
			continue
		}
		b.Reset()

		w.handleInvites(ctx, res)
		// The first batch is history; only react to what arrives later.
		if !initial {
			w.handleMessages(ctx, res)
		} else {
			w.logger.Info("worker.sync.initial", zap.String("next_batch", res.NextBatch))
		}
		initial = false
		since = res.NextBatch

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Worker) handleInvites(ctx context.Context, res *syncResponse) {
	for roomID, room := range res.Rooms.Invite {
		if !w.invitedSelf(room) {
			continue
		}
		if err := w.matrix.join(ctx, roomID); err != nil {
			w.logger.Error("worker.join", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		w.logger.Info("worker.join", zap.String("room_id", roomID))
	}
}

func (w *Worker) invitedSelf(room invitedRoom) bool {
	for _, ev := range room.InviteState.Events {
		if ev.Type != "m.room.member" || ev.StateKey == nil || *ev.StateKey != w.matrix.userID {
			continue
		}
		var c memberContent
		if err := json.Unmarshal(ev.Content, &c); err == nil && c.Membership == "invite" {
			return true
		}
	}
	return false
}

func (w *Worker) handleMessages(ctx context.Context, res *syncResponse) {
	for roomID, room := range res.Rooms.Join {
		for _, ev := range room.Timeline.Events {
			if ev.Type != "m.room.message" || ev.Sender == w.matrix.userID {
				continue
			}
			var c messageContent
			if err := json.Unmarshal(ev.Content, &c); err != nil || c.MsgType != "m.text" || c.Body == "" {
				continue
			}
			w.reply(ctx, roomID, ev, c.Body)
		}
	}
}

func (w *Worker) reply(ctx context.Context, roomID string, ev event, body string) {
	log := w.logger.With(zap.String("room_id", roomID), zap.String("event_id", ev.EventID))
	log.Info("worker.message", zap.String("sender", ev.Sender))

	answer, err := w.upstream.ask(ctx, body)
	if err != nil {
		log.Error("worker.upstream", zap.Error(err))
	}
	// Post the answer even if the worker is shutting down.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if _, err := w.matrix.sendText(sendCtx, roomID, answer); err != nil {
		log.Error("worker.send", zap.Error(err))
		return
	}
	log.Info("worker.reply")
}
