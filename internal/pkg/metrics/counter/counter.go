package counter

import (
	"context"
	"strconv"

	"github.com/ganzorigb/uulzalt/internal/pkg/cache"
)

const (
	webhookOutcomesKey = "webhook:counters:outcomes"
	meetingOpsKey      = "meeting:counters:operations"
)

// AddWebhookOutcome increments the counter for one webhook processing outcome
// (processed, ignored, failed) in Redis.
func AddWebhookOutcome(provider, outcome string) error {
	ctx := context.Background()
	field := provider + ":" + outcome
	return cache.GetClient().HIncrBy(ctx, webhookOutcomesKey, field, 1).Err()
}

// AddMeetingOperation increments the counter for one calendar operation
// (create, update, cancel, get) and whether it succeeded.
func AddMeetingOperation(op string, ok bool) error {
	ctx := context.Background()
	field := op + ":ok"
	if !ok {
		field = op + ":err"
	}
	return cache.GetClient().HIncrBy(ctx, meetingOpsKey, field, 1).Err()
}

// Snapshot returns all pipeline counters as field -> count maps. Used by the
// health endpoint; counters are informational and reset with Redis.
func Snapshot() (map[string]int64, map[string]int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	webhooks, err := rdb.HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, nil, err
	}
	meetings, err := rdb.HGetAll(ctx, meetingOpsKey).Result()
	if err != nil {
		return nil, nil, err
	}
	return parseCounts(webhooks), parseCounts(meetings), nil
}

func parseCounts(raw map[string]string) map[string]int64 {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}
