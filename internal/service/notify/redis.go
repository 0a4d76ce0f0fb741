package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/service/fallback"
)

const FailuresStream = "support_fallback_failures"

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisNotifier publishes hand-off signals and fallback failures to Redis
// streams so an agent console can pick them up.
type RedisNotifier struct {
	rdb           streamAdder
	handoffStream string
	log           *logrus.Entry
}

func NewRedisNotifier(rdb *redis.Client, handoffStream string, log *logrus.Entry) *RedisNotifier {
	return newRedisNotifier(rdb, handoffStream, log)
}

func newRedisNotifier(rdb streamAdder, handoffStream string, log *logrus.Entry) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, handoffStream: handoffStream, log: log}
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (n *RedisNotifier) HandoffRequested(ctx context.Context, handoff Handoff) {
	transcript, err := json.Marshal(handoff.Transcript)
	if err != nil {
		n.log.WithError(err).WithField("session_id", handoff.SessionID).Error("Failed to marshal hand-off transcript")
		return
	}

	messageID, err := n.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: n.handoffStream,
		Values: map[string]interface{}{
			"session_id":   handoff.SessionID,
			"requested_at": handoff.RequestedAt.UnixMilli(),
			"reason":       handoff.Source,
			"transcript":   string(transcript),
		},
	}).Result()
	if err != nil {
		n.log.WithError(err).WithField("session_id", handoff.SessionID).Error("Failed to publish hand-off")
		return
	}

	n.log.WithFields(logrus.Fields{
		"session_id": handoff.SessionID,
		"message_id": messageID,
	}).Debug("Published hand-off to stream")
}

func (n *RedisNotifier) FallbackFailed(ctx context.Context, sessionID string, err error) {
	if xerr := n.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: FailuresStream,
		Values: map[string]interface{}{
			"session_id":  sessionID,
			"kind":        fallback.Kind(err),
			"error":       err.Error(),
			"detected_at": time.Now().UnixMilli(),
		},
	}).Err(); xerr != nil {
		n.log.WithError(xerr).WithField("session_id", sessionID).Error("Failed to publish fallback failure")
	}
}
