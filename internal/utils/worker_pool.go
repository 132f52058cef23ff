package utils

import (
	"context"
	"sync"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// WorkerPool 固定数量的 worker 处理 HTTP 请求，限制同时访问数据库的并发数
type WorkerPool struct {
	jobs    chan func()
	workers int
	log     *logger.Logger

	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorkerPool 创建协程池，需调用 Start 后才会处理任务
func NewWorkerPool(workers, queueSize int, log *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WorkerPool{
		jobs:    make(chan func(), queueSize),
		workers: workers,
		log:     log,
		quit:    make(chan struct{}),
	}
}

// Start 启动 worker
func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.log.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.jobs)))
}

func (p *WorkerPool) run(workerID int) {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			p.execute(workerID, job)
		case <-p.quit:
			p.drain(workerID)
			return
		}
	}
}

// drain 执行退出前已入队的任务
func (p *WorkerPool) drain(workerID int) {
	for {
		select {
		case job := <-p.jobs:
			p.execute(workerID, job)
		default:
			return
		}
	}
}

// execute 单个任务 panic 不影响 worker
func (p *WorkerPool) execute(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 提交任务，队列满时阻塞排队直到 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop 停止接收新任务，执行完已入队的任务后返回
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
