package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
	"github.com/rizkypsr/cms-masterlu/internal/ordering"
)

const defaultCallTimeout = 2 * time.Minute

// errStopped is reported for scopes left unprocessed when the pool stops
var errStopped = errors.New("normalizer stopped")

// NormalizeTask is one scope to normalize, with its index for ordering
type NormalizeTask struct {
	Index   int
	Scope   domain.Scope
	ctx     context.Context
	results chan<- *TaskResult
}

// TaskResult is the outcome of one task, with its index for ordering
type TaskResult struct {
	Index      int
	Renumbered int
	Error      error
}

// OrderedNormalizer implements domain.ScopeNormalizer with a worker pool.
// Scopes are independent, so each one gets its own transaction and runs in
// parallel with the others; results come back in input order.
type OrderedNormalizer struct {
	store       domain.SiblingStore
	manager     *ordering.Manager
	workers     int
	callTimeout time.Duration
	inputQueue  chan *NormalizeTask
	wg          sync.WaitGroup
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc

	startOnce    sync.Once
	shutdownOnce sync.Once
}

// NewScopeNormalizer creates a normalizer pool; call Start before use
func NewScopeNormalizer(store domain.SiblingStore, manager *ordering.Manager, workers int, queueSize int, logger *zap.Logger) *OrderedNormalizer {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &OrderedNormalizer{
		store:       store,
		manager:     manager,
		workers:     workers,
		callTimeout: defaultCallTimeout,
		inputQueue:  make(chan *NormalizeTask, queueSize),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the worker pool
func (p *OrderedNormalizer) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}

		p.logger.Info("scope normalizer started",
			zap.Int("workers", p.workers),
		)
	})
}

// Stop stops the worker pool. Scopes already inside a transaction finish;
// queued ones are abandoned.
func (p *OrderedNormalizer) Stop() {
	p.shutdownOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Info("scope normalizer stopped")
	})
}

// NormalizeScopes normalizes every scope and returns one result per scope in
// input order
func (p *OrderedNormalizer) NormalizeScopes(ctx context.Context, scopes []domain.Scope) ([]*domain.NormalizeResult, error) {
	if len(scopes) == 0 {
		return []*domain.NormalizeResult{}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	// Buffered for every task so workers never block on a caller that left
	results := make(chan *TaskResult, len(scopes))

	for i, scope := range scopes {
		task := &NormalizeTask{
			Index:   i,
			Scope:   scope,
			ctx:     callCtx,
			results: results,
		}

		select {
		case <-callCtx.Done():
			return nil, callCtx.Err()
		case <-p.ctx.Done():
			return nil, errStopped
		case p.inputQueue <- task:
		}
	}

	collected := make(map[int]*TaskResult, len(scopes))
	for len(collected) < len(scopes) {
		select {
		case <-callCtx.Done():
			return nil, callCtx.Err()
		case <-p.ctx.Done():
			return p.assemble(scopes, collected, errStopped), nil
		case result := <-results:
			collected[result.Index] = result
		}
	}

	return p.assemble(scopes, collected, nil), nil
}

// assemble builds the ordered report. Scopes without a result are reported
// as failed with missing.
func (p *OrderedNormalizer) assemble(scopes []domain.Scope, collected map[int]*TaskResult, missing error) []*domain.NormalizeResult {
	out := make([]*domain.NormalizeResult, len(scopes))
	for i, scope := range scopes {
		res := &domain.NormalizeResult{Scope: scope, ScopeKey: scope.Key()}

		result, ok := collected[i]
		switch {
		case !ok:
			res.Status = domain.NormalizeStatusFailed
			res.Error = missing
		case result.Error != nil:
			res.Status = domain.NormalizeStatusFailed
			res.Error = result.Error
		case result.Renumbered > 0:
			res.Status = domain.NormalizeStatusRepaired
			res.Renumbered = result.Renumbered
		default:
			res.Status = domain.NormalizeStatusUnchanged
		}
		if res.Error != nil {
			res.Message = res.Error.Error()
		}

		out[i] = res
	}
	return out
}

func (p *OrderedNormalizer) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("worker stopping", zap.Int("worker_id", id))
			return
		case task := <-p.inputQueue:
			renumbered, err := p.normalize(id, task)
			task.results <- &TaskResult{
				Index:      task.Index,
				Renumbered: renumbered,
				Error:      err,
			}
		}
	}
}

// normalize runs one normalize transaction for the task's scope
func (p *OrderedNormalizer) normalize(workerID int, task *NormalizeTask) (int, error) {
	if err := task.ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	var renumbered int
	err := p.store.InScope(task.ctx, task.Scope, func(tx domain.SiblingTx) error {
		n, err := p.manager.Normalize(task.ctx, tx, task.Scope)
		renumbered = n
		return err
	})
	if err != nil {
		p.logger.Warn("scope normalize failed",
			zap.Int("worker_id", workerID),
			zap.String("scope", task.Scope.String()),
			zap.Error(err),
		)
		return 0, err
	}

	p.logger.Debug("scope normalized",
		zap.Int("worker_id", workerID),
		zap.String("scope", task.Scope.String()),
		zap.Int("renumbered", renumbered),
		zap.Duration("duration", time.Since(start)),
	)
	return renumbered, nil
}

var _ domain.ScopeNormalizer = (*OrderedNormalizer)(nil)
