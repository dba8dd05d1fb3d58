package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restream/reindexer/v4"
	// Используем cproto (RPC) протокол — он быстрее и эффективнее стандартного HTTP.
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

const (
	// Неймспейс по умолчанию для опубликованных списков.
	defaultListingsNamespace = "scope_listings"

	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// ErrListingNotFound возвращается, если список области еще не опубликован.
var ErrListingNotFound = errors.New("listing not found")

// HealthStatus хранит текущее состояние подключения к базе.
type HealthStatus struct {
	IsHealthy   bool
	LastCheck   time.Time
	LastError   error
	Connections int
}

// ListingRepository — модель чтения поверх Reindexer.
// Хранит уже закоммиченные упорядоченные списки соседей, по одному документу
// на область (ключ области — первичный ключ). Источником истины остается SQL.
type ListingRepository struct {
	dsn            string
	namespace      string
	maxConnections int
	logger         *zap.Logger

	mu          sync.RWMutex
	db          *reindexer.Reindexer   // Главное соединение
	connections []*reindexer.Reindexer // Пул дополнительных соединений
	poolSize    int
	next        atomic.Uint64 // Счетчик round-robin

	healthStatus atomic.Value // хранит *HealthStatus

	collectionsInitialized atomic.Bool
	collectionsMu          sync.Mutex
}

// NewListingRepository создает репозиторий и сразу подключается с повторными попытками.
func NewListingRepository(dsn, namespace string, maxConnections int, logger *zap.Logger) (*ListingRepository, error) {
	if maxConnections < 1 {
		maxConnections = 1
	}
	if namespace == "" {
		namespace = defaultListingsNamespace
	}

	repo := &ListingRepository{
		dsn:            dsn,
		namespace:      namespace,
		maxConnections: maxConnections,
		logger:         logger,
		poolSize:       maxConnections,
	}

	repo.healthStatus.Store(&HealthStatus{
		IsHealthy: false,
		LastCheck: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := repo.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ошибка подключения к Reindexer: %w", err)
	}

	return repo, nil
}

// Connect устанавливает соединение с базой.
func (r *ListingRepository) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.connectWithRetry(ctx, defaultMaxRetries)
}

// connectWithRetry делает несколько попыток с нарастающей паузой.
// Вызывается под r.mu.
func (r *ListingRepository) connectWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("повторная попытка подключения к read-модели",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", delay),
			)
			time.Sleep(delay)
		}

		primary, err := r.dial(ctx)
		if err != nil {
			lastErr = err
			r.logger.Warn("основное соединение не поднялось",
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		// Старые соединения больше не нужны: переподключаемся целиком.
		r.closeLocked()
		r.db = primary
		r.connections = r.dialPool(ctx)

		// На новых соединениях неймспейс еще не открыт.
		r.collectionsInitialized.Store(false)
		r.updateHealthStatus(true, nil, len(r.connections)+1)

		r.logger.Info("read-модель листингов подключена",
			zap.String("namespace", r.namespace),
			zap.Int("размер_пула", len(r.connections)),
		)
		return nil
	}

	r.updateHealthStatus(false, lastErr, 0)
	return fmt.Errorf("не удалось подключиться после %d попыток: %w", maxRetries, lastErr)
}

// dial открывает одно соединение и убеждается, что оно живое.
func (r *ListingRepository) dial(ctx context.Context) (*reindexer.Reindexer, error) {
	db := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
	if err := r.testConnection(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// dialPool поднимает дополнительные соединения. Неудачные пропускаются:
// при пустом пуле запросы идут через основное соединение.
func (r *ListingRepository) dialPool(ctx context.Context) []*reindexer.Reindexer {
	pool := make([]*reindexer.Reindexer, 0, r.poolSize)
	for i := 0; i < r.poolSize; i++ {
		conn, err := r.dial(ctx)
		if err != nil {
			r.logger.Warn("соединение пула не поднялось", zap.Int("индекс", i), zap.Error(err))
			continue
		}
		pool = append(pool, conn)
	}
	return pool
}

// closeLocked закрывает основное соединение и пул. Вызывается под r.mu.
func (r *ListingRepository) closeLocked() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	for _, conn := range r.connections {
		conn.Close()
	}
	r.connections = nil
}

// testConnection проверяет, что соединение действительно живое.
func (r *ListingRepository) testConnection(ctx context.Context, db *reindexer.Reindexer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if status := db.Status(); status.Err != nil {
		return status.Err
	}
	return nil
}

// getConnection возвращает соединение из пула по кругу.
func (r *ListingRepository) getConnection() *reindexer.Reindexer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.connections) == 0 {
		return r.db
	}

	i := r.next.Add(1) % uint64(len(r.connections))
	return r.connections[i]
}

func (r *ListingRepository) updateHealthStatus(isHealthy bool, err error, connections int) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy:   isHealthy,
		LastCheck:   time.Now(),
		LastError:   err,
		Connections: connections,
	})
}

// Health возвращает последнее известное состояние.
func (r *ListingRepository) Health() *HealthStatus {
	status := r.healthStatus.Load()
	if status == nil {
		return &HealthStatus{IsHealthy: false}
	}
	return status.(*HealthStatus)
}

// markFailed фиксирует ошибку запроса в статусе здоровья.
func (r *ListingRepository) markFailed(err error) {
	r.updateHealthStatus(false, err, r.Health().Connections)
}

// EnsureCollections открывает неймспейс списков на всех соединениях (один раз).
func (r *ListingRepository) EnsureCollections(ctx context.Context) error {
	if r.collectionsInitialized.Load() {
		return nil
	}

	r.collectionsMu.Lock()
	defer r.collectionsMu.Unlock()

	if r.collectionsInitialized.Load() {
		return nil
	}

	r.mu.RLock()
	db := r.db
	pool := append([]*reindexer.Reindexer(nil), r.connections...)
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("соединение с базой не установлено")
	}

	opts := reindexer.DefaultNamespaceOptions()

	if err := db.OpenNamespace(r.namespace, opts, domain.ScopeListing{}); err != nil {
		return fmt.Errorf("ошибка открытия неймспейса: %w", err)
	}

	for i, conn := range pool {
		if conn == nil {
			continue
		}
		if err := conn.OpenNamespace(r.namespace, opts, domain.ScopeListing{}); err != nil {
			r.logger.Warn("ошибка открытия неймспейса для соединения из пула",
				zap.Int("индекс", i),
				zap.Error(err),
			)
		}
	}

	r.collectionsInitialized.Store(true)
	r.logger.Info("коллекции инициализированы", zap.String("namespace", r.namespace))

	return nil
}

// conn возвращает готовое к работе соединение.
func (r *ListingRepository) conn(ctx context.Context) (*reindexer.Reindexer, error) {
	if err := r.EnsureCollections(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки коллекций: %w", err)
	}

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("нет доступного соединения с БД")
	}
	return db, nil
}

// Upsert создает или заменяет список области.
func (r *ListingRepository) Upsert(ctx context.Context, listing *domain.ScopeListing) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	if err := db.Upsert(r.namespace, listing); err != nil {
		r.logger.Error("ошибка сохранения списка",
			zap.String("key", listing.Key),
			zap.Error(err),
		)
		r.markFailed(err)
		return fmt.Errorf("ошибка при сохранении: %w", err)
	}

	return nil
}

// GetByKey получает список области по ключу.
func (r *ListingRepository) GetByKey(ctx context.Context, key string) (*domain.ScopeListing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	iter := db.Query(r.namespace).Where("key", reindexer.EQ, key).Limit(1).Exec()
	defer iter.Close()

	if iter.Error() != nil {
		r.markFailed(iter.Error())
		return nil, fmt.Errorf("ошибка запроса: %w", iter.Error())
	}

	for iter.Next() {
		elem := iter.Object()
		listing, ok := elem.(*domain.ScopeListing)
		if !ok {
			r.logger.Error("ошибка приведения типов",
				zap.String("key", key),
				zap.String("тип", fmt.Sprintf("%T", elem)),
			)
			return nil, fmt.Errorf("внутренняя ошибка десериализации")
		}
		return listing, nil
	}

	return nil, fmt.Errorf("%s: %w", key, ErrListingNotFound)
}

// Delete удаляет список области.
func (r *ListingRepository) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.Query(r.namespace).Where("key", reindexer.EQ, key).Delete(); err != nil {
		r.logger.Error("ошибка удаления списка",
			zap.String("key", key),
			zap.Error(err),
		)
		r.markFailed(err)
		return fmt.Errorf("ошибка при удалении: %w", err)
	}

	return nil
}

// ListWithPagination возвращает опубликованные списки одного семейства,
// самые свежие сверху.
func (r *ListingRepository) ListWithPagination(ctx context.Context, family string, params domain.PaginationParams) (*domain.PaginatedListings, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	iter := db.Query(r.namespace).
		Where("family", reindexer.EQ, family).
		Sort("updated_at", true).
		Limit(params.Limit).
		Offset(params.Offset).
		ReqTotal().
		Exec()
	defer iter.Close()

	if iter.Error() != nil {
		r.markFailed(iter.Error())
		return nil, fmt.Errorf("ошибка запроса списка: %w", iter.Error())
	}

	var listings []*domain.ScopeListing
	for iter.Next() {
		var listing domain.ScopeListing
		if !iter.NextObj(&listing) {
			r.logger.Error("ошибка чтения списка из итератора")
			continue
		}
		listings = append(listings, &listing)
	}

	total := iter.TotalCount()

	return &domain.PaginatedListings{
		Items:   listings,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: params.Offset+len(listings) < total,
	}, nil
}

// CheckConnection проверяет здоровье соединения.
func (r *ListingRepository) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("соединение не установлено")
	}

	if err := r.testConnection(ctx, db); err != nil {
		r.markFailed(err)
		return fmt.Errorf("проверка связи не прошла: %w", err)
	}

	r.updateHealthStatus(true, nil, r.Health().Connections)
	return nil
}

// Close закрывает все соединения.
func (r *ListingRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	r.updateHealthStatus(false, fmt.Errorf("соединение закрыто"), 0)
	return nil
}

var (
	_ domain.ListingRepository = (*ListingRepository)(nil)
	_ domain.HealthChecker     = (*ListingRepository)(nil)
)
