package statistics

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/internal/pkg/cache"
	"github.com/markverse/replenish/internal/pkg/database"
	"github.com/markverse/replenish/internal/pkg/metrics/counter"
)

const (
	CacheKeyCustomersTotal      = "statistics:customers:total"
	CacheKeyReplenishmentsTotal = "statistics:replenishments:total"
	CacheKeyReplenishmentsLive  = "statistics:replenishments:live"
	CacheExpiration             = 30 * time.Minute
)

// StatisticsData is the platform summary shown on the admin surface.
type StatisticsData struct {
	TotalCustomers      int64 `json:"total_customers"`
	TotalReplenishments int64 `json:"total_replenishments"`
	LiveReplenishments  int64 `json:"live_replenishments"`
	ExecutedOccurrences int64 `json:"executed_occurrences"`
	PermanentlyFailed   int64 `json:"permanently_failed"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// GetStatistics returns the platform summary, refreshing the cached totals at
// most once per update interval.
func GetStatistics() StatisticsData {
	updateCacheIfNeeded()

	data := StatisticsData{
		TotalCustomers:      cachedInt(CacheKeyCustomersTotal),
		TotalReplenishments: cachedInt(CacheKeyReplenishmentsTotal),
		LiveReplenishments:  cachedInt(CacheKeyReplenishmentsLive),
	}

	if v, err := counter.TotalExecutions(); err == nil {
		data.ExecutedOccurrences = v
	}
	if v, err := counter.TotalFailures(); err == nil {
		data.PermanentlyFailed = v
	}

	return data
}

func updateCacheIfNeeded() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	if time.Since(lastCacheUpdate) < cacheUpdateInterval {
		return
	}
	lastCacheUpdate = time.Now()

	db := database.GetDB()
	if db == nil {
		return
	}

	var customers, total, live int64
	if err := db.Model(&models.Customer{}).Count(&customers).Error; err != nil {
		log.Printf("statistics: customer count failed: %v", err)
		return
	}
	if err := db.Model(&models.Replenishment{}).Count(&total).Error; err != nil {
		log.Printf("statistics: replenishment count failed: %v", err)
		return
	}
	if err := db.Model(&models.Replenishment{}).
		Where("status IN ?", []models.ReplenishmentStatus{models.ReplenishmentScheduled, models.ReplenishmentActive}).
		Count(&live).Error; err != nil {
		log.Printf("statistics: live replenishment count failed: %v", err)
		return
	}

	storeInt(CacheKeyCustomersTotal, customers)
	storeInt(CacheKeyReplenishmentsTotal, total)
	storeInt(CacheKeyReplenishmentsLive, live)
}

func storeInt(key string, value int64) {
	if err := cache.Set(key, strconv.FormatInt(value, 10), CacheExpiration); err != nil {
		log.Printf("statistics: cache write for %s failed: %v", key, err)
	}
}

func cachedInt(key string) int64 {
	raw, err := cache.Get(key)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
