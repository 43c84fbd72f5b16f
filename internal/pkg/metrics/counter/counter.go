package counter

import (
	"context"
	"strconv"

	"github.com/markverse/replenish/internal/pkg/cache"
)

const (
	executionsKey = "replenish:counters:executions"
	failuresKey   = "replenish:counters:failures"
)

// AddExecution increments the executed-occurrence counter for a replenishment
// in Redis. Counters are best-effort; without a cache connection the call is a
// no-op.
func AddExecution(replenishmentID uint) error {
	client := cache.GetClient()
	if client == nil {
		return nil
	}
	field := strconv.FormatUint(uint64(replenishmentID), 10)
	return client.HIncrBy(context.Background(), executionsKey, field, 1).Err()
}

// AddFailure increments the permanently-failed counter for a replenishment.
func AddFailure(replenishmentID uint) error {
	client := cache.GetClient()
	if client == nil {
		return nil
	}
	field := strconv.FormatUint(uint64(replenishmentID), 10)
	return client.HIncrBy(context.Background(), failuresKey, field, 1).Err()
}

// TotalExecutions sums the executed-occurrence counters across all
// replenishments.
func TotalExecutions() (int64, error) {
	return sumHash(executionsKey)
}

// TotalFailures sums the permanently-failed counters across all replenishments.
func TotalFailures() (int64, error) {
	return sumHash(failuresKey)
}

func sumHash(key string) (int64, error) {
	client := cache.GetClient()
	if client == nil {
		return 0, nil
	}

	values, err := client.HGetAll(context.Background(), key).Result()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, v := range values {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		total += n
	}
	return total, nil
}
