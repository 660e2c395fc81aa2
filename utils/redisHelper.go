package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/recouphq/collections_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* Redis keys for escalation scheduling */

const escalationQueueKey = "escalation_queue"

func scheduledReminderKey(invoiceId int) string {
	return fmt.Sprintf("scheduled_reminder:%d", invoiceId)
}

func recommendationCacheKey(businessId string, invoiceId int) string {
	return fmt.Sprintf("recommendation:%s:%d", businessId, invoiceId)
}

// EnqueueEscalation adds the invoice to the pending-escalation set so
// dashboards can show "in collections" without a DB scan.
func EnqueueEscalation(invoiceId int) error {
	return config.AddRedisSet(escalationQueueKey, fmt.Sprint(invoiceId))
}

// DequeueEscalation removes the invoice from the pending-escalation set and
// drops any scheduled reminder key. Called on pause, stop and payment.
func DequeueEscalation(invoiceId int) error {
	if err := config.RemoveRedisSetMember(escalationQueueKey, fmt.Sprint(invoiceId)); err != nil {
		return err
	}
	return config.RemoveRedisKey(scheduledReminderKey(invoiceId))
}

func GetEscalationQueue() ([]string, error) {
	return config.GetRedisSetMembers(escalationQueueKey)
}

// CacheRecommendation stores a computed recovery recommendation so repeated
// dashboard loads don't recompute and re-rank.
func CacheRecommendation(businessId string, invoiceId int, rec interface{}) error {
	return config.SetRedisObject(recommendationCacheKey(businessId, invoiceId), rec, GetCacheLifespan())
}

func GetCachedRecommendation(businessId string, invoiceId int, dest interface{}) (bool, error) {
	return config.GetRedisObject(recommendationCacheKey(businessId, invoiceId), dest)
}

func ClearCachedRecommendation(businessId string, invoiceId int) error {
	return config.RemoveRedisKey(recommendationCacheKey(businessId, invoiceId))
}
