package repositories

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

// Поддерживаемые диалекты SQL.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQLConfig — параметры подключения к основной базе.
type SQLConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	LockTimeout  time.Duration
}

// SQLRepository — источник истины для упорядоченных сущностей.
// Каждая операция над областью выполняется в одной транзакции gorm,
// которая держит блокировку всей области до коммита.
type SQLRepository struct {
	db          *gorm.DB
	dialect     string
	lockTimeout time.Duration
	models      []interface{}
	logger      *zap.Logger

	healthy atomic.Bool
}

// NewSQLRepository открывает базу с повторными попытками.
// models — модели, которые EnsureCollections создаст через AutoMigrate.
func NewSQLRepository(cfg SQLConfig, models []interface{}, logger *zap.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("неизвестный драйвер базы: %q", cfg.Driver)
	}

	repo := &SQLRepository{
		dialect:     cfg.Driver,
		lockTimeout: cfg.LockTimeout,
		models:      models,
		logger:      logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	db, err := repo.openWithRetry(ctx, dialector, defaultMaxRetries)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %w", err)
	}

	// SQLite пишет одним писателем: одно соединение сериализует транзакции
	// и заодно держит in-memory базу живой.
	if cfg.Driver == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	repo.db = db
	repo.healthy.Store(true)

	return repo, nil
}

// openWithRetry пытается открыть и пропинговать базу несколько раз.
func (r *SQLRepository) openWithRetry(ctx context.Context, dialector gorm.Dialector, maxRetries int) (*gorm.DB, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("повторная попытка подключения к SQL",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", delay),
			)
			time.Sleep(delay)
		}

		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: NewGormLogger(r.logger.Named("gorm")),
		})
		if err == nil {
			err = ping(ctx, db)
		}
		if err != nil {
			lastErr = err
			r.logger.Warn("подключение к SQL не удалось",
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		r.logger.Info("успешно подключились к SQL", zap.String("dialect", r.dialect))
		return db, nil
	}

	return nil, fmt.Errorf("не удалось подключиться после %d попыток: %w", maxRetries, lastErr)
}

// DB отдает исходный *gorm.DB (нужен тестам и миграциям).
func (r *SQLRepository) DB() *gorm.DB {
	return r.db
}

// InScope выполняет fn в транзакции под блокировкой области.
// На PostgreSQL сначала берется advisory-блокировка по ключу области,
// поэтому сериализуются и вставки в пустую область. Затем LockSiblings
// дополнительно берет строки через SELECT ... FOR UPDATE.
func (r *SQLRepository) InScope(ctx context.Context, scope domain.Scope, fn func(tx domain.SiblingTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.dialect == DialectPostgres {
			if r.lockTimeout > 0 {
				stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("ошибка установки lock_timeout: %w", err)
				}
			}
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", scope.Key()).Error; err != nil {
				return fmt.Errorf("ошибка блокировки области %s: %w", scope, err)
			}
		}

		return fn(&sqlTx{tx: tx, forUpdate: r.dialect == DialectPostgres})
	})
}

// Load читает одну сущность семейства по id.
func (r *SQLRepository) Load(ctx context.Context, family domain.Family, id int64) (domain.OrderedEntity, error) {
	entity := family.New()
	err := r.db.WithContext(ctx).First(entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d: %w", family.Name, id, domain.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s %d: %w", family.Name, id, err)
	}
	return entity, nil
}

// Siblings читает закоммиченное состояние области без блокировок.
func (r *SQLRepository) Siblings(ctx context.Context, scope domain.Scope) ([]domain.Sibling, error) {
	return selectSiblings(r.db.WithContext(ctx), scope, false)
}

// Scopes перечисляет все непустые области семейства.
// Строки, для которых область не определяется, пропускаются.
func (r *SQLRepository) Scopes(ctx context.Context, family domain.Family) ([]domain.Scope, error) {
	rows := reflect.New(reflect.SliceOf(reflect.TypeOf(family.New())))
	if err := r.db.WithContext(ctx).Order("id").Find(rows.Interface()).Error; err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", family.Name, err)
	}

	list := rows.Elem()
	seen := make(map[string]bool)
	var scopes []domain.Scope
	for i := 0; i < list.Len(); i++ {
		entity := list.Index(i).Interface().(domain.OrderedEntity)
		scope, err := family.ScopeOf(entity)
		if err != nil {
			r.logger.Debug("строка без области пропущена",
				zap.String("family", family.Name),
				zap.Int64("id", entity.EntityID()),
				zap.Error(err),
			)
			continue
		}
		if seen[scope.Key()] {
			continue
		}
		seen[scope.Key()] = true
		scopes = append(scopes, scope)
	}

	return scopes, nil
}

// CheckConnection пингует базу.
func (r *SQLRepository) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := ping(ctx, r.db); err != nil {
		r.healthy.Store(false)
		return fmt.Errorf("проверка связи не прошла: %w", err)
	}

	r.healthy.Store(true)
	return nil
}

// Healthy возвращает результат последней проверки связи.
func (r *SQLRepository) Healthy() bool {
	return r.healthy.Load()
}

// EnsureCollections создает таблицы всех семейств.
func (r *SQLRepository) EnsureCollections(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(r.models...); err != nil {
		return fmt.Errorf("ошибка миграции схемы: %w", err)
	}
	r.logger.Info("схема SQL готова", zap.Int("таблиц", len(r.models)))
	return nil
}

// Close закрывает пул соединений.
func (r *SQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	r.healthy.Store(false)
	return sqlDB.Close()
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// sqlTx — представление транзакции для менеджера порядка.
type sqlTx struct {
	tx        *gorm.DB
	forUpdate bool
}

func (t *sqlTx) LockSiblings(ctx context.Context, scope domain.Scope) ([]domain.Sibling, error) {
	return selectSiblings(t.tx.WithContext(ctx), scope, t.forUpdate)
}

func (t *sqlTx) WriteSeq(ctx context.Context, scope domain.Scope, id int64, seq int) error {
	res := inScope(t.tx.WithContext(ctx).Table(scope.Table), scope).
		Where("id = ?", id).
		Update(scope.SeqColumn, seq)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("id %d: %w", id, domain.ErrItemNotInScope)
	}
	return nil
}

func (t *sqlTx) CreateEntity(ctx context.Context, entity domain.OrderedEntity) error {
	return t.tx.WithContext(ctx).Create(entity).Error
}

func (t *sqlTx) SaveEntity(ctx context.Context, entity domain.OrderedEntity) error {
	return t.tx.WithContext(ctx).Save(entity).Error
}

func (t *sqlTx) DeleteEntity(ctx context.Context, scope domain.Scope, id int64) error {
	res := inScope(t.tx.WithContext(ctx).Table(scope.Table), scope).
		Where("id = ?", id).
		Delete(map[string]interface{}{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("id %d: %w", id, domain.ErrItemNotInScope)
	}
	return nil
}

// selectSiblings читает (id, seq) области в порядке seq, id.
func selectSiblings(db *gorm.DB, scope domain.Scope, forUpdate bool) ([]domain.Sibling, error) {
	q := inScope(db.Table(scope.Table), scope).
		Select(fmt.Sprintf("id, %s AS seq", scope.SeqColumn)).
		Order(scope.SeqColumn).
		Order("id")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var siblings []domain.Sibling
	if err := q.Scan(&siblings).Error; err != nil {
		return nil, fmt.Errorf("ошибка чтения области %s: %w", scope, err)
	}
	return siblings, nil
}

// inScope добавляет условия области. nil превращается в IS NULL.
func inScope(db *gorm.DB, scope domain.Scope) *gorm.DB {
	for _, c := range scope.Conds {
		db = db.Where(clause.Eq{Column: clause.Column{Name: c.Column}, Value: c.Value})
	}
	return db
}

var (
	_ domain.SiblingStore  = (*SQLRepository)(nil)
	_ domain.HealthChecker = (*SQLRepository)(nil)
	_ domain.SiblingTx     = (*sqlTx)(nil)
)
