package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/pkg/logger"
)

type hookJob struct {
	name  string
	fn    func(ctx context.Context)
	enqAt time.Time
}

// HookRunner 在请求路径之外执行事件钩子（本地异步、有界队列）
type HookRunner struct {
	ch      chan hookJob
	timeout time.Duration
	wg      sync.WaitGroup
	stopCh  chan struct{}
	once    sync.Once

	// mu orders every send before the close of stopCh
	mu      sync.RWMutex
	stopped bool
}

func NewHookRunner(queueSize int, timeout time.Duration) *HookRunner {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HookRunner{ch: make(chan hookJob, queueSize), timeout: timeout, stopCh: make(chan struct{})}
}

// Start launches the workers and returns a stop function that drains the
// queue before returning, or gives up when ctx ends.
func (r *HookRunner) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.loop()
	}
	return func(ctx context.Context) error {
		r.once.Do(func() {
			r.mu.Lock()
			r.stopped = true
			close(r.stopCh)
			r.mu.Unlock()
		})
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *HookRunner) loop() {
	defer r.wg.Done()
	for {
		select {
		case job := <-r.ch:
			r.exec(job)
		case <-r.stopCh:
			for {
				select {
				case job := <-r.ch:
					r.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (r *HookRunner) exec(job hookJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("hook job panicked", zap.String("hook", job.name), zap.Any("panic", p))
		}
	}()
	job.fn(ctx)
	logger.Debug("hook job done", zap.String("hook", job.name), zap.Duration("queued", time.Since(job.enqAt)))
}

// Go queues fn without blocking; a full queue drops the job. A job accepted
// before stop is always run by the drain.
func (r *HookRunner) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		logger.Warn("hook runner stopped, drop job", zap.String("hook", name))
		return false
	}
	select {
	case r.ch <- hookJob{name: name, fn: fn, enqAt: time.Now()}:
		return true
	default:
		logger.Warn("hook queue full, drop job", zap.String("hook", name))
		return false
	}
}

// QueueLen 返回当前队列长度（采样值）
func (r *HookRunner) QueueLen() int { return len(r.ch) }

// Hooks is the fire-and-forget entry point used by business services after
// their own transaction has committed. Each method reports whether the job
// was queued.
type Hooks struct {
	producers *Producers
	runner    *HookRunner
}

func NewHooks(producers *Producers, runner *HookRunner) *Hooks {
	return &Hooks{producers: producers, runner: runner}
}

func (h *Hooks) OnReviewCreated(reviewID string) bool {
	return h.runner.Go("review_created", func(ctx context.Context) { h.producers.ReviewCreated(ctx, reviewID) })
}

func (h *Hooks) OnRequestCreated(requestID string) bool {
	return h.runner.Go("request_created", func(ctx context.Context) { h.producers.RequestCreated(ctx, requestID) })
}

func (h *Hooks) OnRequestAccepted(requestID string) bool {
	return h.runner.Go("request_accepted", func(ctx context.Context) { h.producers.RequestAccepted(ctx, requestID) })
}

func (h *Hooks) OnSoftwareUsageDeclared(usageID string) bool {
	return h.runner.Go("software_usage", func(ctx context.Context) { h.producers.SoftwareUsageDeclared(ctx, usageID) })
}

func (h *Hooks) OnContractRenewal(contractID string) bool {
	return h.runner.Go("contract_renewal", func(ctx context.Context) { h.producers.ContractRenewal(ctx, contractID) })
}

func (h *Hooks) OnEconomyOpportunities(companyID string, items []model.EconomyOpportunity) bool {
	cp := append([]model.EconomyOpportunity(nil), items...)
	return h.runner.Go("economy_opportunity", func(ctx context.Context) { h.producers.EconomyOpportunities(ctx, companyID, cp) })
}
