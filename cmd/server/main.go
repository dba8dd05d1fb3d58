package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rizkypsr/cms-masterlu/internal/cache"
	"github.com/rizkypsr/cms-masterlu/internal/config"
	"github.com/rizkypsr/cms-masterlu/internal/domain"
	"github.com/rizkypsr/cms-masterlu/internal/families"
	"github.com/rizkypsr/cms-masterlu/internal/handlers"
	"github.com/rizkypsr/cms-masterlu/internal/middleware"
	"github.com/rizkypsr/cms-masterlu/internal/ordering"
	"github.com/rizkypsr/cms-masterlu/internal/processor"
	"github.com/rizkypsr/cms-masterlu/internal/repositories"
	"github.com/rizkypsr/cms-masterlu/internal/usecases"
	"github.com/rizkypsr/cms-masterlu/pkg/logger"
)

const (
	// Настройки для подключения к read-модели при старте.
	// Reindexer может подниматься дольше приложения.
	healthCheckRetries    = 5
	healthCheckRetryDelay = 2 * time.Second

	// Время на аккуратное завершение работы сервера (доделать текущие запросы).
	shutdownTimeout = 30 * time.Second
)

// App держит вместе все зависимости приложения и управляет их жизненным циклом.
type App struct {
	config     *config.Config
	logger     *zap.Logger
	registry   *families.Registry
	store      *repositories.SQLRepository
	listings   *repositories.ListingRepository // nil, если reindexer выключен
	cache      *cache.ListingCache
	normalizer *processor.OrderedNormalizer
	usecase    *usecases.CatalogUsecase
	server     *http.Server

	// Гарантия однократной инициализации
	initOnce sync.Once
	initErr  error

	// Управление фоновыми задачами
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Гарантия, что Shutdown выполнится только один раз
	shutdownOnce sync.Once
}

// NewApp создает "пустую" заготовку приложения.
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize запускает процесс настройки всех компонентов.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize собирает приложение.
// Порядок важен: конфиг и логгер, потом хранилища, кэш, бизнес-логика и API.
func (a *App) doInitialize() error {
	// 1. Загружаем настройки.
	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Если файла нет — работаем на значениях по умолчанию и ENV.
	configErr := config.Load(configPath)
	if configErr != nil {
		if err := config.Load(""); err != nil {
			return fmt.Errorf("критическая ошибка конфигурации: %w", err)
		}
	}
	a.config = config.Get()

	// 2. Логгер по настройкам из конфига.
	if err := logger.Init(a.config.Log.Level, a.config.Log.Development); err != nil {
		return fmt.Errorf("не удалось инициализировать логгер: %w", err)
	}
	a.logger = logger.Get()

	if configErr != nil {
		a.logger.Warn("не удалось загрузить конфиг-файл, используем значения по умолчанию и ENV",
			zap.String("path", configPath),
			zap.Error(configErr),
		)
	}
	a.logger.Info("конфигурация загружена",
		zap.String("server_host", a.config.Server.Host),
		zap.Int("server_port", a.config.Server.Port),
		zap.String("database_driver", a.config.Database.Driver),
		zap.Bool("reindexer_enabled", a.config.Reindexer.Enabled),
	)

	// 3. Семейства упорядоченных сущностей.
	a.registry = families.New(families.Options{
		TopicCategoryID: a.config.Catalog.TopicCategoryID,
	})

	// 4. Основная база — источник истины.
	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("ошибка инициализации базы: %w", err)
	}

	// 5. Read-модель листингов (необязательная).
	if a.config.Reindexer.Enabled {
		if err := a.initializeListings(); err != nil {
			return fmt.Errorf("ошибка инициализации reindexer: %w", err)
		}
	}

	// 6. Кэш листингов и уборщик протухших записей.
	a.cache = cache.NewListingCache(a.config.Cache.Shards, a.config.Cache.TTL)
	a.cache.StartCleanupWorker()

	// 7. Менеджер порядка и пул нормализации.
	manager := ordering.NewManager(logger.Named("ordering"))
	a.normalizer = processor.NewScopeNormalizer(
		a.store,
		manager,
		a.config.Concurrency.NormalizerWorkers,
		a.config.Concurrency.NormalizerQueueSize,
		logger.Named("normalizer"),
	)
	a.normalizer.Start()

	// 8. Бизнес-логика.
	deps := usecases.CatalogDeps{
		Families:   a.registry,
		Store:      a.store,
		Manager:    manager,
		Normalizer: a.normalizer,
		Cache:      a.cache,
		Locks:      cache.NewScopeLocks(a.config.Concurrency.ScopeLockStripes),
	}
	// Интерфейс получает значение только при включенном reindexer,
	// иначе в нем оказался бы типизированный nil.
	if a.listings != nil {
		deps.Listings = a.listings
	}
	a.usecase = usecases.NewCatalogUsecase(deps, logger.Named("catalog"), a.config.Concurrency.MaxOps)

	// 9. HTTP сервер.
	if err := a.initializeServer(); err != nil {
		return fmt.Errorf("ошибка настройки сервера: %w", err)
	}

	a.logger.Info("приложение готово к работе")
	return nil
}

// initializeStore подключается к основной базе и мигрирует таблицы семейств.
// Повторные попытки подключения выполняет сам репозиторий.
func (a *App) initializeStore() error {
	store, err := repositories.NewSQLRepository(repositories.SQLConfig{
		Driver:       a.config.Database.Driver,
		DSN:          a.config.Database.DSN,
		MaxOpenConns: a.config.Database.MaxOpenConns,
		MaxIdleConns: a.config.Database.MaxIdleConns,
		LockTimeout:  a.config.Database.LockTimeout,
	}, a.registry.Models(), logger.Named("store"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.EnsureCollections(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("миграция таблиц: %w", err)
	}

	a.store = store
	a.logger.Info("база подключена, таблицы проверены",
		zap.String("driver", a.config.Database.Driver),
		zap.Int("таблиц", len(a.registry.Models())),
	)
	return nil
}

// initializeListings подключается к Reindexer с повторными попытками,
// проверяет связь и неймспейс листингов.
func (a *App) initializeListings() error {
	var err error

	for attempt := 0; attempt < healthCheckRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("повторная попытка подключения к Reindexer",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", healthCheckRetryDelay),
			)
			time.Sleep(healthCheckRetryDelay)
		}

		repo, initErr := repositories.NewListingRepository(
			a.config.Reindexer.DSN,
			a.config.Reindexer.Namespace,
			a.config.Reindexer.MaxConnections,
			logger.Named("listings"),
		)
		if initErr != nil {
			err = initErr
			a.logger.Warn("не удалось создать клиент Reindexer",
				zap.Int("попытка", attempt+1),
				zap.Error(initErr),
			)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if checkErr := repo.CheckConnection(ctx); checkErr != nil {
			cancel()
			_ = repo.Close()
			err = checkErr
			a.logger.Warn("нет связи с Reindexer",
				zap.Int("попытка", attempt+1),
				zap.Error(checkErr),
			)
			continue
		}
		cancel()

		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		if ensureErr := repo.EnsureCollections(ctx); ensureErr != nil {
			cancel()
			_ = repo.Close()
			err = ensureErr
			a.logger.Warn("проблема с неймспейсом листингов",
				zap.Int("попытка", attempt+1),
				zap.Error(ensureErr),
			)
			continue
		}
		cancel()

		a.listings = repo
		a.logger.Info("read-модель листингов подключена",
			zap.Int("попыток_затрачено", attempt+1),
			zap.String("dsn", a.config.Reindexer.DSN),
		)
		return nil
	}

	return fmt.Errorf("не удалось подключиться к Reindexer после %d попыток: %w", healthCheckRetries, err)
}

// initializeServer настраивает HTTP-роутинг и middleware.
func (a *App) initializeServer() error {
	catalogHandler := handlers.NewCatalogHandler(a.usecase, logger.Named("http"))

	r := chi.NewRouter()

	rateLimiter := middleware.NewRateLimiter(a.config.Server.RateLimit, 1*time.Minute)

	// Проверка здоровья без middleware, чтобы отвечать максимально быстро.
	r.Get("/health", a.healthCheckHandler)

	// Цепочка middleware:
	// request id -> логирование -> recovery -> timeout -> rate limit
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestIDMiddleware)
		r.Use(middleware.LoggingMiddleware(a.logger))
		r.Use(middleware.RecoveryMiddleware(a.logger))
		r.Use(middleware.TimeoutMiddleware(a.config.Server.RequestTimeout))
		r.Use(middleware.RateLimitMiddleware(rateLimiter, a.logger))

		catalogHandler.Mount(r)
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.config.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return nil
}

// healthCheckHandler проверяет связь с основной базой и read-моделью.
// Без основной базы сервис нездоров (503); без read-модели — деградирован,
// но продолжает отвечать из БД.
func (a *App) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}
	status := http.StatusOK

	checks := map[string]domain.HealthChecker{"database": a.store}
	if a.listings != nil {
		checks["reindexer"] = a.listings
	}

	for name, checker := range checks {
		if err := checker.CheckConnection(ctx); err != nil {
			health[name] = err.Error()
			if name == "database" {
				health["status"] = "unhealthy"
				status = http.StatusServiceUnavailable
			} else if status == http.StatusOK {
				health["status"] = "degraded"
			}
			continue
		}
		health[name] = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(health)
}

// StartBackgroundJobs запускает все фоновые процессы.
func (a *App) StartBackgroundJobs() {
	a.wg.Add(1)
	go a.periodicHealthCheck()
}

// periodicHealthCheck раз в 30 секунд пишет в лог состояние подключений.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("фоновая проверка здоровья остановлена")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

			if err := a.store.CheckConnection(ctx); err != nil {
				a.logger.Warn("фоновая проверка: проблема с базой", zap.Error(err))
			}
			if a.listings != nil {
				if err := a.listings.CheckConnection(ctx); err != nil {
					a.logger.Warn("фоновая проверка: проблема с Reindexer", zap.Error(err))
				}
			}
			a.logger.Debug("фоновая проверка завершена",
				zap.Any("cache", a.cache.GetStats()),
			)

			cancel()
		}
	}
}

// Start запускает сервер и начинает принимать запросы.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("запуск HTTP сервера",
			zap.String("адрес", a.server.Addr),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("сервер упал с ошибкой", zap.Error(err))
		}
	}()

	return nil
}

// shutdownStep — один шаг остановки с именем для логов.
type shutdownStep struct {
	name string
	stop func() error
}

// shutdownSteps перечисляет шаги остановки. Порядок обратный сборке:
// сначала вход, потом фон, потом хранилища.
func (a *App) shutdownSteps() []shutdownStep {
	var steps []shutdownStep

	if a.server != nil {
		steps = append(steps, shutdownStep{"http сервер", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.server.Shutdown(ctx)
		}})
	}
	// Бизнес-логика дописывает очередь публикации листингов.
	if a.usecase != nil {
		steps = append(steps, shutdownStep{"публикатор листингов", func() error {
			a.usecase.Shutdown()
			return nil
		}})
	}
	if a.normalizer != nil {
		steps = append(steps, shutdownStep{"пул нормализации", func() error {
			a.normalizer.Stop()
			return nil
		}})
	}
	if a.cache != nil {
		steps = append(steps, shutdownStep{"чистильщик кэша", func() error {
			a.cache.StopCleanupWorker()
			return nil
		}})
	}
	if a.listings != nil {
		steps = append(steps, shutdownStep{"reindexer", a.listings.Close})
	}
	if a.store != nil {
		steps = append(steps, shutdownStep{"база", a.store.Close})
	}

	return steps
}

// Shutdown аккуратно останавливает приложение. Повторные вызовы ничего не делают.
// Возвращает первую ошибку, остальные только логируются.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("начинаем остановку приложения...")

		// Сигнал фоновым задачам остановиться
		a.cancel()

		for _, step := range a.shutdownSteps() {
			if err := step.stop(); err != nil {
				a.logger.Error("ошибка при остановке", zap.String("шаг", step.name), zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
				continue
			}
			a.logger.Debug("остановлено", zap.String("шаг", step.name))
		}

		// Ждем, пока все горутины действительно завершатся
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("все фоновые процессы завершены")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("таймаут ожидания завершения процессов (принудительный выход)")
		}

		_ = a.logger.Sync()
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Фатальная ошибка инициализации: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Фатальная ошибка запуска: %v\n", err)
		os.Exit(1)
	}

	// Ожидание сигналов завершения от ОС
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка при остановке: %v\n", err)
		os.Exit(1)
	}
}
