// Package debounce implements the per-chat debounce orchestrator: it absorbs
// bursts of inbound messages per chat and triggers the AI pipeline once the
// chat has been quiet for the configured window W.
package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultWindow   = 5 * time.Second
	workerTTL       = 60 * time.Second
	pollCap         = 5 * time.Second
	ctxKeyPrefix    = "queue:ctx:"
	activeKeyPrefix = "worker:active:"
)

// Processor is the pipeline hook run once a chat's queue has quiesced. It
// is the AI pipeline's process(chat_id, latest_msg_id, priority) entry point.
type Processor func(ctx context.Context, chatID uuid.UUID, msgID, priority string)

// Orchestrator owns the Redis-backed per-chat debounce state and spawns the
// worker goroutines that run it.
type Orchestrator struct {
	rdb     *redis.Client
	window  time.Duration
	process Processor

	wg       sync.WaitGroup
	stopping chan struct{}
	stopOnce sync.Once
}

func New(rdb *redis.Client, window time.Duration, process Processor) *Orchestrator {
	if window <= 0 {
		window = defaultWindow
	}
	return &Orchestrator{rdb: rdb, window: window, process: process, stopping: make(chan struct{})}
}

// Enqueue upserts the debounce context (resetting run_at) and spawns a
// worker only if none is currently alive for this chat.
func (o *Orchestrator) Enqueue(ctx context.Context, chatID uuid.UUID, msgID, priority string) error {
	ctxKey := ctxKeyPrefix + chatID.String()
	runAt := time.Now().Add(o.window).Unix()

	if err := o.rdb.HSet(ctx, ctxKey, map[string]any{
		"run_at":   runAt,
		"msg_id":   msgID,
		"priority": priority,
	}).Err(); err != nil {
		return fmt.Errorf("debounce: enqueue HSET failed: %w", err)
	}

	activeKey := activeKeyPrefix + chatID.String()
	acquired, err := o.rdb.SetNX(ctx, activeKey, "1", workerTTL).Result()
	if err != nil {
		return fmt.Errorf("debounce: enqueue SETNX failed: %w", err)
	}
	if !acquired {
		// A worker is already alive; it will observe the updated run_at.
		return nil
	}

	o.spawn(chatID)
	return nil
}

// Supervise scans for queue:ctx:* keys lacking a live worker:active:* flag
// and respawns a worker for each, recovering from a crash.
func (o *Orchestrator) Supervise(ctx context.Context) error {
	iter := o.rdb.Scan(ctx, 0, ctxKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		chatIDStr := key[len(ctxKeyPrefix):]
		chatID, err := uuid.Parse(chatIDStr)
		if err != nil {
			continue
		}

		activeKey := activeKeyPrefix + chatIDStr
		acquired, err := o.rdb.SetNX(ctx, activeKey, "1", workerTTL).Result()
		if err != nil || !acquired {
			continue
		}
		slog.Info("debounce: recovering orphaned queue after crash", "chat_id", chatID)
		o.spawn(chatID)
	}
	return iter.Err()
}

// Shutdown signals all running workers to stop at their next poll and
// blocks until in-flight pipeline calls finish.
func (o *Orchestrator) Shutdown() {
	o.stopOnce.Do(func() { close(o.stopping) })
	o.wg.Wait()
}

func (o *Orchestrator) spawn(chatID uuid.UUID) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runWorker(chatID)
	}()
}

// runWorker is the per-chat worker lifecycle: poll the hash, sleep until
// run_at (heartbeating the active flag), then clear state and hand off to
// the pipeline exactly once.
func (o *Orchestrator) runWorker(chatID uuid.UUID) {
	ctx := context.Background()
	ctxKey := ctxKeyPrefix + chatID.String()
	activeKey := activeKeyPrefix + chatID.String()

	for {
		select {
		case <-o.stopping:
			return
		default:
		}

		fields, err := o.rdb.HGetAll(ctx, ctxKey).Result()
		if err != nil {
			slog.Error("debounce: HGETALL failed", "chat_id", chatID, "error", err)
			return
		}
		if len(fields) == 0 {
			return
		}

		runAt, _ := parseUnix(fields["run_at"])
		delta := time.Until(time.Unix(runAt, 0))
		if delta > 100*time.Millisecond {
			sleepFor := delta
			if sleepFor > pollCap {
				sleepFor = pollCap
			}
			select {
			case <-time.After(sleepFor):
			case <-o.stopping:
				return
			}
			o.rdb.Expire(ctx, activeKey, workerTTL)
			continue
		}

		msgID, priority := fields["msg_id"], fields["priority"]
		o.rdb.Del(ctx, ctxKey)
		o.rdb.Del(ctx, activeKey) // cleared before work, not after
		o.process(ctx, chatID, msgID, priority)
		return
	}
}

func parseUnix(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
