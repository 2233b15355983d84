package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"sambaza/models"
)

type PoolReader interface {
	Pools() ([]models.FloatPool, error)
}

type AlertSink interface {
	LogError(e *models.ErrorLog)
}

// StartFloatWatcher periodically flags pools running low so float can be
// topped up before debits start bouncing. Returns a stop function.
func StartFloatWatcher(pools PoolReader, alerts AlertSink, threshold decimal.Decimal, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				checkFloatLevels(pools, alerts, threshold)
			}
		}
	}()

	log.Printf("[jobs] float watcher running every %s (threshold %s)", interval, threshold.StringFixed(2))
	return func() { close(done) }
}

func checkFloatLevels(pools PoolReader, alerts AlertSink, threshold decimal.Decimal) {
	all, err := pools.Pools()
	if err != nil {
		log.Printf("[jobs] float check failed: %v", err)
		return
	}

	for _, pool := range all {
		if pool.Balance.LessThan(threshold) {
			log.Printf("[jobs] pool %s low on float: %s < %s", pool.PoolID, pool.Balance.StringFixed(2), threshold.StringFixed(2))
			alerts.LogError(&models.ErrorLog{
				Type:     models.ErrTypeLowFloat,
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("pool %s balance %s below threshold %s", pool.PoolID, pool.Balance.StringFixed(2), threshold.StringFixed(2)),
			})
		}
	}
}
