package stock

import (
	"context"
	"log"
	"time"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	"github.com/xiebiao/shopstock/pkg/metrics"
)

// Reclaimer 过期预留回收任务
//
// 设计说明:
// 1. 过期本身是时间的自然流逝:过期的瞬间预留就不再计入可用量,
//    回收只是清理残留记录并补齐释放流水
// 2. 按批处理(批大小可配置),每条预留一个短事务,避免长事务压锁
// 3. 与手动释放并发竞争时,条件删除保证流水不会重复记
type Reclaimer struct {
	reservations stock.ReservationRepository
	service      *ReservationService
	cfg          Config
}

// NewReclaimer 创建回收任务
func NewReclaimer(reservations stock.ReservationRepository, service *ReservationService, cfg Config) *Reclaimer {
	return &Reclaimer{
		reservations: reservations,
		service:      service,
		cfg:          cfg,
	}
}

// ReclaimExpired 回收一轮过期预留,返回实际回收条数
func (r *Reclaimer) ReclaimExpired(ctx context.Context) (int, error) {
	reclaimed := 0

	for {
		// 1. 取一批过期预留(converted_at IS NULL AND expires_at <= now)
		batch, err := r.reservations.ListExpired(ctx, time.Now(), r.cfg.ReclaimBatchSize)
		if err != nil {
			return reclaimed, err
		}
		if len(batch) == 0 {
			break
		}

		// 2. 逐条释放(短事务:锁行→条件删除→释放流水)
		progressed := 0
		for _, res := range batch {
			released, err := r.service.releaseReservation(ctx, res)
			if err != nil {
				return reclaimed, err
			}
			if released {
				reclaimed++
				progressed++
				metrics.IncReservationReleased("expired")
			}
		}

		// 整批都被并发方抢先处理时退出,防止空转
		if progressed == 0 {
			break
		}

		// 不满一批说明已扫完
		if len(batch) < r.cfg.ReclaimBatchSize {
			break
		}
	}

	if reclaimed > 0 {
		metrics.AddReservationsReclaimed(reclaimed)
		log.Printf("🧹 回收过期预留: %d条", reclaimed)
	}

	return reclaimed, nil
}

// Run 周期运行回收任务,ctx取消时退出
// 通常在main中以goroutine启动
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReclaimInterval)
	defer ticker.Stop()

	log.Printf("🧹 过期预留回收任务启动 (周期: %s, 批大小: %d)",
		r.cfg.ReclaimInterval, r.cfg.ReclaimBatchSize)

	for {
		select {
		case <-ctx.Done():
			log.Println("过期预留回收任务退出")
			return
		case <-ticker.C:
			if _, err := r.ReclaimExpired(ctx); err != nil {
				log.Printf("回收过期预留失败: %v", err)
			}
		}
	}
}
