package stock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xiebiao/shopstock/internal/domain/stock"
)

// 内存假实现
// 教学要点:
// 1. 应用层只依赖端口接口,测试用内存实现替换MySQL/Redis/RabbitMQ
// 2. fakeTxManager模拟回滚语义:fn返回error时恢复快照,
//    用于验证"变更与流水要么全有要么全无"

// =========================================
// 库存对象仓储
// =========================================

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[stock.StockableRef]*stock.StockItem

	// 故障注入
	updateErr error
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[stock.StockableRef]*stock.StockItem)}
}

func (r *fakeItemRepo) put(item *stock.StockItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.Ref] = &cp
}

func (r *fakeItemRepo) quantity(ref stock.StockableRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[ref].Quantity
}

func (r *fakeItemRepo) Get(_ context.Context, ref stock.StockableRef) (*stock.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[ref]
	if !ok {
		return nil, stock.ErrStockableNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *fakeItemRepo) LockForUpdate(ctx context.Context, ref stock.StockableRef) (*stock.StockItem, error) {
	return r.Get(ctx, ref)
}

func (r *fakeItemRepo) UpdateQuantity(_ context.Context, ref stock.StockableRef, quantity int) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[ref]
	if !ok {
		return stock.ErrStockableNotFound
	}
	item.Quantity = quantity
	return nil
}

// =========================================
// 流水仓储
// =========================================

type fakeMovementRepo struct {
	mu        sync.Mutex
	movements []*stock.StockMovement
	nextID    uint

	// 故障注入
	createErr error
}

func newFakeMovementRepo() *fakeMovementRepo {
	return &fakeMovementRepo{nextID: 1}
}

func (r *fakeMovementRepo) Create(_ context.Context, m *stock.StockMovement) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID
	r.nextID++
	cp := *m
	r.movements = append(r.movements, &cp)
	return nil
}

func (r *fakeMovementRepo) ListByStockable(_ context.Context, ref stock.StockableRef, page, pageSize int) ([]*stock.StockMovement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*stock.StockMovement
	// 倒序(后写的在前)
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].Stockable == ref {
			matched = append(matched, r.movements[i])
		}
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeMovementRepo) ListByReference(_ context.Context, refType stock.ReferenceType, refID uint) ([]*stock.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*stock.StockMovement
	for _, m := range r.movements {
		if m.ReferenceType != nil && *m.ReferenceType == refType &&
			m.ReferenceID != nil && *m.ReferenceID == refID {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

func (r *fakeMovementRepo) all() []*stock.StockMovement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*stock.StockMovement(nil), r.movements...)
}

func (r *fakeMovementRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.movements)
}

func (r *fakeMovementRepo) last() *stock.StockMovement {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.movements) == 0 {
		return nil
	}
	return r.movements[len(r.movements)-1]
}

// =========================================
// 预留仓储
// =========================================

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[uint]*stock.StockReservation
	nextID       uint
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{
		reservations: make(map[uint]*stock.StockReservation),
		nextID:       1,
	}
}

func (r *fakeReservationRepo) Create(_ context.Context, res *stock.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.ID = r.nextID
	r.nextID++
	cp := *res
	r.reservations[res.ID] = &cp
	return nil
}

func (r *fakeReservationRepo) FindByID(_ context.Context, id uint) (*stock.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, stock.ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *fakeReservationRepo) SumActiveQuantity(_ context.Context, ref stock.StockableRef, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, res := range r.reservations {
		if res.Stockable == ref && res.IsActive(now) {
			sum += res.Quantity
		}
	}
	return sum, nil
}

func (r *fakeReservationRepo) ListActiveByCart(_ context.Context, cartID string, now time.Time) ([]*stock.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*stock.StockReservation
	for id := uint(1); id < r.nextID; id++ {
		res, ok := r.reservations[id]
		if !ok {
			continue
		}
		if res.CartID != nil && *res.CartID == cartID && res.IsActive(now) {
			cp := *res
			matched = append(matched, &cp)
		}
	}
	return matched, nil
}

func (r *fakeReservationRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*stock.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*stock.StockReservation
	for id := uint(1); id < r.nextID; id++ {
		res, ok := r.reservations[id]
		if !ok {
			continue
		}
		if res.IsExpired(now) {
			cp := *res
			matched = append(matched, &cp)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

func (r *fakeReservationRepo) MarkConverted(_ context.Context, id uint, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return false, nil
	}
	if res.ConvertedAt != nil || !res.ExpiresAt.After(now) {
		return false, nil
	}
	t := now
	res.ConvertedAt = &t
	return true, nil
}

func (r *fakeReservationRepo) Delete(_ context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[id]; !ok {
		return false, nil
	}
	delete(r.reservations, id)
	return true, nil
}

func (r *fakeReservationRepo) UpdateExpiry(_ context.Context, id uint, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return stock.ErrReservationNotFound
	}
	res.ExpiresAt = expiresAt
	return nil
}

func (r *fakeReservationRepo) get(id uint) *stock.StockReservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil
	}
	cp := *res
	return &cp
}

func (r *fakeReservationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reservations)
}

// =========================================
// 事务管理器(模拟回滚语义)
// =========================================

type fakeTxManager struct {
	items        *fakeItemRepo
	movements    *fakeMovementRepo
	reservations *fakeReservationRepo
}

// Transaction 直通执行fn,fn返回error时恢复快照(模拟ROLLBACK)
func (m *fakeTxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	itemsSnap := m.snapshotItems()
	movementsSnap := m.snapshotMovements()
	reservationsSnap := m.snapshotReservations()

	if err := fn(ctx); err != nil {
		m.items.items = itemsSnap
		m.movements.movements = movementsSnap
		m.reservations.reservations = reservationsSnap
		return err
	}
	return nil
}

func (m *fakeTxManager) snapshotItems() map[stock.StockableRef]*stock.StockItem {
	snap := make(map[stock.StockableRef]*stock.StockItem, len(m.items.items))
	for ref, item := range m.items.items {
		cp := *item
		snap[ref] = &cp
	}
	return snap
}

func (m *fakeTxManager) snapshotMovements() []*stock.StockMovement {
	snap := make([]*stock.StockMovement, 0, len(m.movements.movements))
	for _, mv := range m.movements.movements {
		cp := *mv
		snap = append(snap, &cp)
	}
	return snap
}

func (m *fakeTxManager) snapshotReservations() map[uint]*stock.StockReservation {
	snap := make(map[uint]*stock.StockReservation, len(m.reservations.reservations))
	for id, res := range m.reservations.reservations {
		cp := *res
		snap[id] = &cp
	}
	return snap
}

// =========================================
// 可用量缓存
// =========================================

type fakeCache struct {
	mu          sync.Mutex
	values      map[stock.StockableRef]int
	invalidated []stock.StockableRef
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[stock.StockableRef]int)}
}

func (c *fakeCache) Get(_ context.Context, ref stock.StockableRef) (int, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[ref]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, ref stock.StockableRef, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[ref] = available
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, ref stock.StockableRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, ref)
	c.invalidated = append(c.invalidated, ref)
	return nil
}

// =========================================
// 告警发布器
// =========================================

type fakeAlertPublisher struct {
	mu         sync.Mutex
	alerts     []LowStockAlert
	publishErr error
}

func (p *fakeAlertPublisher) PublishLowStock(_ context.Context, alert LowStockAlert) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return nil
}

func (p *fakeAlertPublisher) published() []LowStockAlert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LowStockAlert(nil), p.alerts...)
}

// =========================================
// 测试环境组装
// =========================================

type testEnv struct {
	items        *fakeItemRepo
	movements    *fakeMovementRepo
	reservations *fakeReservationRepo
	tx           *fakeTxManager
	cache        *fakeCache
	alerts       *fakeAlertPublisher
	cfg          Config

	stocks    *StockService
	reserv    *ReservationService
	reclaimer *Reclaimer
	validator *CheckoutValidator
}

func newTestEnv(cfg Config) *testEnv {
	items := newFakeItemRepo()
	movements := newFakeMovementRepo()
	reservations := newFakeReservationRepo()
	tx := &fakeTxManager{items: items, movements: movements, reservations: reservations}
	cache := newFakeCache()
	alerts := &fakeAlertPublisher{}

	stocks := NewStockService(items, movements, reservations, tx, cache, alerts, cfg)
	reserv := NewReservationService(items, movements, reservations, tx, cache, alerts, cfg)

	return &testEnv{
		items:        items,
		movements:    movements,
		reservations: reservations,
		tx:           tx,
		cache:        cache,
		alerts:       alerts,
		cfg:          cfg,
		stocks:       stocks,
		reserv:       reserv,
		reclaimer:    NewReclaimer(reservations, reserv, cfg),
		validator:    NewCheckoutValidator(items, reserv),
	}
}

func defaultTestConfig() Config {
	return Config{
		ReservationTTL:           time.Hour,
		DefaultLowStockThreshold: 5,
		AllowNegativeStock:       false,
		ReclaimBatchSize:         100,
		ReclaimInterval:          time.Minute,
	}
}

// managedItem 构造一个启用库存管理的测试商品
func managedItem(ref stock.StockableRef, quantity int) *stock.StockItem {
	return &stock.StockItem{
		Ref:         ref,
		Quantity:    quantity,
		ManageStock: true,
	}
}

var errInjected = errors.New("注入的故障")
