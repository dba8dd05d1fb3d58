package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
	"github.com/rizkypsr/cms-masterlu/internal/ordering"
)

const (
	publishBatchSize     = 10
	publishFlushInterval = 500 * time.Millisecond
	publishQueueSize     = 256
)

// CatalogUsecase отвечает за бизнес-логику упорядоченных сущностей каталога.
// Он связывает воедино хранилище, менеджер порядка, кэш и read-модель листингов.
// Главные задачи:
// 1. Все изменения порядка выполняются в одной транзакции под блокировкой scope.
// 2. Кэширование листингов (Cache-Aside) с дедупликацией промахов.
// 3. Асинхронная публикация листингов после коммита.
type CatalogUsecase struct {
	families   domain.FamilyRegistry
	store      domain.SiblingStore
	manager    *ordering.Manager
	normalizer domain.ScopeNormalizer
	cache      domain.ListingCache
	listings   domain.ListingRepository // nil, если reindexer выключен
	locks      domain.KeyLocker
	logger     *zap.Logger

	// Управление конкурентностью
	wg           sync.WaitGroup
	queueMu      sync.RWMutex
	closed       bool
	publishQueue chan domain.Scope // Канал для фоновой публикации листингов
	rateLimiter  *RateLimiter      // Семафор для ограничения одновременных операций
	group        singleflight.Group

	// Конфигурация
	maxConcurrentOps int
}

// RateLimiter — простой ограничитель нагрузки на семафоре.
// Не дает запустить больше N операций одновременно, защищая пул соединений БД.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
}

// NewRateLimiter создает ограничитель с буфером на maxConcurrent запросов.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire пытается получить разрешение на работу.
// Если лимит исчерпан — блокируется и ждет, пока кто-то не освободит место.
// Если контекст отменен — возвращает ошибку.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, ctx.Err())
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

// Release освобождает место для следующих запросов.
func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
		// Защита от попытки освободить пустой семафор
	}
}

// CatalogDeps — зависимости usecase'а.
type CatalogDeps struct {
	Families   domain.FamilyRegistry
	Store      domain.SiblingStore
	Manager    *ordering.Manager
	Normalizer domain.ScopeNormalizer
	Cache      domain.ListingCache
	Listings   domain.ListingRepository
	Locks      domain.KeyLocker
}

// NewCatalogUsecase создает и запускает usecase.
// Сразу стартует фоновый публикатор листингов.
func NewCatalogUsecase(deps CatalogDeps, logger *zap.Logger, maxConcurrentOps int) *CatalogUsecase {
	if maxConcurrentOps < 1 {
		maxConcurrentOps = 10
	}
	if deps.Manager == nil {
		deps.Manager = ordering.NewManager(logger)
	}

	usecase := &CatalogUsecase{
		families:         deps.Families,
		store:            deps.Store,
		manager:          deps.Manager,
		normalizer:       deps.Normalizer,
		cache:            deps.Cache,
		listings:         deps.Listings,
		locks:            deps.Locks,
		logger:           logger,
		publishQueue:     make(chan domain.Scope, publishQueueSize),
		rateLimiter:      NewRateLimiter(maxConcurrentOps),
		maxConcurrentOps: maxConcurrentOps,
	}

	// Запускаем фонового публикатора
	usecase.startBackgroundPublisher()

	return usecase
}

// Families возвращает имена всех семейств.
func (u *CatalogUsecase) Families() []string {
	return u.families.Names()
}

// CreateItem создает сущность семейства из JSON и ставит ее на позицию.
// Позиция nil, <= 0 или > N означает добавление в конец.
func (u *CatalogUsecase) CreateItem(ctx context.Context, familyName string, payload []byte, position *int) (domain.Sibling, error) {
	family, err := u.families.Lookup(familyName)
	if err != nil {
		return domain.Sibling{}, err
	}

	entity := family.New()
	if err := decodeInto(payload, entity); err != nil {
		return domain.Sibling{}, err
	}
	if entity.EntityID() != 0 {
		return domain.Sibling{}, fmt.Errorf("%w: id is assigned by the store", domain.ErrInvalidInput)
	}

	scope, err := family.ScopeOf(entity)
	if err != nil {
		return domain.Sibling{}, err
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return domain.Sibling{}, err
	}
	defer u.rateLimiter.Release()

	var seq int
	err = u.store.InScope(ctx, scope, func(tx domain.SiblingTx) error {
		seq, err = u.manager.Insert(ctx, tx, scope, entity, position)
		return err
	})
	if err != nil {
		u.logger.Error("ошибка вставки",
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
		return domain.Sibling{}, err
	}

	u.afterCommit(scope)

	u.logger.Info("сущность создана",
		zap.String("family", family.Name),
		zap.Int64("id", entity.EntityID()),
		zap.Int("seq", seq),
	)

	return domain.Sibling{ID: entity.EntityID(), Seq: seq}, nil
}

// MoveItem перемещает сущность на позицию target внутри ее scope.
// Возвращает фактическую позицию после ограничения диапазоном [1, N].
func (u *CatalogUsecase) MoveItem(ctx context.Context, familyName string, id int64, target int) (domain.Sibling, error) {
	family, scope, _, err := u.resolve(ctx, familyName, id)
	if err != nil {
		return domain.Sibling{}, err
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return domain.Sibling{}, err
	}
	defer u.rateLimiter.Release()

	var seq int
	err = u.store.InScope(ctx, scope, func(tx domain.SiblingTx) error {
		seq, err = u.manager.Reposition(ctx, tx, scope, id, target)
		return err
	})
	if err != nil {
		u.logger.Error("ошибка перемещения",
			zap.String("scope", scope.String()),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return domain.Sibling{}, err
	}

	u.afterCommit(scope)

	u.logger.Info("сущность перемещена",
		zap.String("family", family.Name),
		zap.Int64("id", id),
		zap.Int("target", target),
		zap.Int("seq", seq),
	)

	return domain.Sibling{ID: id, Seq: seq}, nil
}

// UpdateItem применяет JSON-патч к сущности и, если задана позиция,
// перемещает ее в той же транзакции. Поля scope менять нельзя.
func (u *CatalogUsecase) UpdateItem(ctx context.Context, familyName string, id int64, patch []byte, position *int) (domain.Sibling, error) {
	family, before, entity, err := u.resolve(ctx, familyName, id)
	if err != nil {
		return domain.Sibling{}, err
	}

	if err := decodeInto(patch, entity); err != nil {
		return domain.Sibling{}, err
	}
	if entity.EntityID() != id {
		return domain.Sibling{}, fmt.Errorf("%w: id cannot be changed", domain.ErrInvalidInput)
	}

	after, err := family.ScopeOf(entity)
	if err != nil {
		return domain.Sibling{}, err
	}
	if after.Key() != before.Key() {
		return domain.Sibling{}, fmt.Errorf("%w: %s -> %s", domain.ErrScopeChange, before.Key(), after.Key())
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return domain.Sibling{}, err
	}
	defer u.rateLimiter.Release()

	var seq int
	err = u.store.InScope(ctx, before, func(tx domain.SiblingTx) error {
		seq, err = u.manager.Update(ctx, tx, before, entity, position)
		return err
	})
	if err != nil {
		u.logger.Error("ошибка обновления",
			zap.String("scope", before.String()),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return domain.Sibling{}, err
	}

	u.afterCommit(before)

	u.logger.Info("сущность обновлена",
		zap.String("family", family.Name),
		zap.Int64("id", id),
		zap.Int("seq", seq),
	)

	return domain.Sibling{ID: id, Seq: seq}, nil
}

// DeleteItem удаляет сущность и закрывает дыру в порядке соседей.
func (u *CatalogUsecase) DeleteItem(ctx context.Context, familyName string, id int64) error {
	family, scope, _, err := u.resolve(ctx, familyName, id)
	if err != nil {
		return err
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return err
	}
	defer u.rateLimiter.Release()

	err = u.store.InScope(ctx, scope, func(tx domain.SiblingTx) error {
		_, err := u.manager.Remove(ctx, tx, scope, id)
		return err
	})
	if err != nil {
		u.logger.Error("ошибка удаления",
			zap.String("scope", scope.String()),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return err
	}

	u.afterCommit(scope)

	u.logger.Info("сущность удалена",
		zap.String("family", family.Name),
		zap.Int64("id", id),
	)

	return nil
}

// ListSiblings возвращает упорядоченный листинг scope, в котором лежит сущность.
// Реализует паттерн Cache-Aside:
// 1. Ищем в кэше. Нашли -> вернули.
// 2. Не нашли -> одна загрузка из БД на ключ (singleflight).
// 3. Кладем результат в кэш.
// Read-модель отстает от коммита, поэтому промах читает только БД.
func (u *CatalogUsecase) ListSiblings(ctx context.Context, familyName string, id int64) (*domain.ScopeListing, error) {
	family, scope, _, err := u.resolve(ctx, familyName, id)
	if err != nil {
		return nil, err
	}

	listing, err := u.listing(ctx, scope)
	if err != nil {
		return nil, err
	}

	// Семейства с общей таблицей делят ключ. Кэшированный листинг не меняем.
	if listing.Family != family.Name {
		own := *listing
		own.Family = family.Name
		return &own, nil
	}
	return listing, nil
}

// ListPublished возвращает страницу листингов семейства.
// Без reindexer листинги собираются из БД.
func (u *CatalogUsecase) ListPublished(ctx context.Context, familyName string, params domain.PaginationParams) (*domain.PaginatedListings, error) {
	family, err := u.families.Lookup(familyName)
	if err != nil {
		return nil, err
	}

	if err := u.rateLimiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer u.rateLimiter.Release()

	if u.listings != nil {
		result, err := u.listings.ListWithPagination(ctx, family.Name, params)
		if err != nil {
			u.logger.Error("ошибка получения списка листингов",
				zap.String("family", family.Name),
				zap.Error(err),
			)
			return nil, err
		}
		return result, nil
	}

	scopes, err := u.store.Scopes(ctx, family)
	if err != nil {
		return nil, err
	}

	result := &domain.PaginatedListings{
		Items:  []*domain.ScopeListing{},
		Total:  len(scopes),
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if params.Offset >= len(scopes) {
		return result, nil
	}
	end := params.Offset + params.Limit
	if params.Limit <= 0 || end > len(scopes) {
		end = len(scopes)
	}

	for _, scope := range scopes[params.Offset:end] {
		siblings, err := u.store.Siblings(ctx, scope)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, buildListing(scope, siblings))
	}
	result.HasMore = end < len(scopes)

	return result, nil
}

// NormalizeFamily перенумеровывает все scope семейства через пул нормализации.
// Починенные scope публикуются заново.
func (u *CatalogUsecase) NormalizeFamily(ctx context.Context, familyName string) ([]*domain.NormalizeResult, error) {
	family, err := u.families.Lookup(familyName)
	if err != nil {
		return nil, err
	}

	scopes, err := u.store.Scopes(ctx, family)
	if err != nil {
		u.logger.Error("не удалось получить список scope",
			zap.String("family", family.Name),
			zap.Error(err),
		)
		return nil, err
	}

	results, err := u.normalizer.NormalizeScopes(ctx, scopes)
	if err != nil {
		return nil, err
	}

	// Статистика
	repaired, failed := 0, 0
	for _, result := range results {
		switch result.Status {
		case domain.NormalizeStatusRepaired:
			repaired++
			u.afterCommit(result.Scope)
		case domain.NormalizeStatusFailed:
			failed++
		}
	}

	u.logger.Info("нормализация завершена",
		zap.String("family", family.Name),
		zap.Int("всего", len(results)),
		zap.Int("починено", repaired),
		zap.Int("ошибок", failed),
	)

	return results, nil
}

// resolve находит семейство, загружает сущность и вычисляет ее scope.
func (u *CatalogUsecase) resolve(ctx context.Context, familyName string, id int64) (domain.Family, domain.Scope, domain.OrderedEntity, error) {
	family, err := u.families.Lookup(familyName)
	if err != nil {
		return domain.Family{}, domain.Scope{}, nil, err
	}

	entity, err := u.store.Load(ctx, family, id)
	if err != nil {
		return domain.Family{}, domain.Scope{}, nil, err
	}

	scope, err := family.ScopeOf(entity)
	if err != nil {
		return domain.Family{}, domain.Scope{}, nil, err
	}

	return family, scope, entity, nil
}

// listing отдает листинг scope из кэша или загружает его.
func (u *CatalogUsecase) listing(ctx context.Context, scope domain.Scope) (*domain.ScopeListing, error) {
	key := scope.Key()

	// 1. Проверка кэша (быстрый путь)
	if cached, ok := u.cache.Get(ctx, key); ok {
		u.logger.Debug("попадание в кэш", zap.String("scope", key))
		return cached, nil
	}

	// 2. Одновременные промахи по одному ключу ходят в хранилище один раз
	v, err, shared := u.group.Do(key, func() (interface{}, error) {
		if err := u.rateLimiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer u.rateLimiter.Release()

		// Чтение и запись в кэш под блокировкой scope, чтобы не затереть
		// более свежий листинг от публикатора
		unlock := u.locks.Lock(key)
		defer unlock()

		listing, err := u.load(ctx, scope)
		if err != nil {
			return nil, err
		}

		if err := u.cache.Set(ctx, key, listing); err != nil {
			u.logger.Warn("не удалось закэшировать листинг",
				zap.String("scope", key),
				zap.Error(err),
			)
		}
		return listing, nil
	})
	if err != nil {
		u.logger.Error("не удалось получить листинг",
			zap.String("scope", key),
			zap.Error(err),
		)
		return nil, err
	}

	if shared {
		u.logger.Debug("промах кэша обслужен общей загрузкой", zap.String("scope", key))
	}

	return v.(*domain.ScopeListing), nil
}

// load читает закоммиченный листинг scope из БД.
func (u *CatalogUsecase) load(ctx context.Context, scope domain.Scope) (*domain.ScopeListing, error) {
	siblings, err := u.store.Siblings(ctx, scope)
	if err != nil {
		return nil, err
	}
	return buildListing(scope, siblings), nil
}

// afterCommit синхронно удаляет листинг из кэша и ставит scope в очередь публикации.
func (u *CatalogUsecase) afterCommit(scope domain.Scope) {
	cacheCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := u.cache.Delete(cacheCtx, scope.Key()); err != nil {
		u.logger.Warn("не удалось очистить кэш",
			zap.String("scope", scope.Key()),
			zap.Error(err),
		)
	}

	u.schedulePublish(scope)
}

// schedulePublish ставит scope в очередь на публикацию.
// Если очередь полна — пропускает, чтобы не тормозить основной поток (non-blocking).
func (u *CatalogUsecase) schedulePublish(scope domain.Scope) {
	u.queueMu.RLock()
	defer u.queueMu.RUnlock()

	if u.closed {
		return
	}

	select {
	case u.publishQueue <- scope:
		// Успешно добавили в очередь
	default:
		// Очередь переполнена, листинг догонит следующая запись или промах кэша
		u.logger.Warn("очередь публикации полна, пропускаем",
			zap.String("scope", scope.Key()),
		)
	}
}

// startBackgroundPublisher запускает горутину, которая разгребает очередь publishQueue.
// Работает пакетами: повторы одного scope внутри пакета схлопываются.
func (u *CatalogUsecase) startBackgroundPublisher() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		// Буфер для накопления пачки scope
		batch := make(map[string]domain.Scope, publishBatchSize)

		// Тикер, чтобы не ждать вечно, если пакет не набирается полностью
		ticker := time.NewTicker(publishFlushInterval)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			scopes := make([]domain.Scope, 0, len(batch))
			for _, scope := range batch {
				scopes = append(scopes, scope)
			}
			u.publishBatch(context.Background(), scopes)
			batch = make(map[string]domain.Scope, publishBatchSize)
		}

		for {
			select {
			case scope, ok := <-u.publishQueue:
				if !ok {
					// Канал закрыт (Shutdown) — дорабатываем остатки и выходим
					flush()
					return
				}

				batch[scope.Key()] = scope

				// Если пакет полный — отправляем в публикацию
				if len(batch) >= publishBatchSize {
					flush()
				}

			case <-ticker.C:
				flush()
			}
		}
	}()
}

// publishBatch публикует пачку scope в фоне.
func (u *CatalogUsecase) publishBatch(ctx context.Context, scopes []domain.Scope) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		published := 0
		for _, scope := range scopes {
			if err := u.publish(ctx, scope); err != nil {
				// Ошибка публикации не фатальна: БД остается источником истины
				u.logger.Warn("не удалось опубликовать листинг",
					zap.String("scope", scope.Key()),
					zap.Error(err),
				)
				continue
			}
			published++
		}

		u.logger.Debug("пакет листингов опубликован",
			zap.Int("всего", len(scopes)),
			zap.Int("успешно", published),
		)
	}()
}

// publish перечитывает закоммиченный scope под его блокировкой и
// обновляет кэш и read-модель.
func (u *CatalogUsecase) publish(ctx context.Context, scope domain.Scope) error {
	key := scope.Key()

	unlock := u.locks.Lock(key)
	defer unlock()

	siblings, err := u.store.Siblings(ctx, scope)
	if err != nil {
		return fmt.Errorf("перечитать scope: %w", err)
	}
	listing := buildListing(scope, siblings)

	if err := u.cache.Set(ctx, key, listing); err != nil {
		u.logger.Warn("не удалось закэшировать листинг",
			zap.String("scope", key),
			zap.Error(err),
		)
	}

	if u.listings == nil {
		return nil
	}
	if len(siblings) == 0 {
		return u.listings.Delete(ctx, key)
	}
	return u.listings.Upsert(ctx, listing)
}

// Shutdown корректно останавливает работу usecase'а.
func (u *CatalogUsecase) Shutdown() {
	// Закрываем канал — сигнал публикатору дописать остатки и остановиться
	u.queueMu.Lock()
	if !u.closed {
		u.closed = true
		close(u.publishQueue)
	}
	u.queueMu.Unlock()

	// Ждем, пока все фоновые задачи закончатся
	u.wg.Wait()

	u.logger.Info("бизнес-логика остановлена")
}

// buildListing собирает листинг из упорядоченных соседей.
func buildListing(scope domain.Scope, siblings []domain.Sibling) *domain.ScopeListing {
	items := make([]domain.ListingEntry, len(siblings))
	for i, s := range ordering.Sorted(siblings) {
		items[i] = domain.ListingEntry{ID: s.ID, Seq: s.Seq}
	}
	return &domain.ScopeListing{
		Key:       scope.Key(),
		Family:    scope.Family,
		Table:     scope.Table,
		Items:     items,
		UpdatedAt: time.Now().UnixMilli(),
	}
}

// decodeInto накладывает JSON на сущность. Пустое тело ничего не меняет.
func decodeInto(payload []byte, entity domain.OrderedEntity) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, entity); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// IsClientError сообщает, вызвана ли ошибка входными данными клиента.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrInvalidScope) ||
		errors.Is(err, domain.ErrScopeChange)
}
