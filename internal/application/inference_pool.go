package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
)

// InferencePool выполняет детекцию на фиксированном числе воркеров.
// Запрос ждёт результат не дольше timeout; брошенный инференс доработает, а результат будет выброшен.
type InferencePool struct {
	detector port.PlateDetector
	timeout  time.Duration
	jobs     chan inferenceJob
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type inferenceJob struct {
	ctx    context.Context
	img    image.Image
	result chan inferenceResult
}

type inferenceResult struct {
	regions []entity.DetectedRegion
	err     error
}

// NewInferencePool запускает workers воркеров с очередью queue
func NewInferencePool(detector port.PlateDetector, workers, queue int, timeout time.Duration) *InferencePool {
	p := &InferencePool{
		detector: detector,
		timeout:  timeout,
		jobs:     make(chan inferenceJob, queue),
		quit:     make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Detect ставит изображение в очередь и ждёт результат
func (p *InferencePool) Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	job := inferenceJob{ctx: ctx, img: img, result: make(chan inferenceResult, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, p.contextErr(ctx)
	case <-p.quit:
		return nil, fmt.Errorf("%w: inference pool is closed", entity.ErrDetection)
	}

	select {
	case res := <-job.result:
		return res.regions, res.err
	case <-ctx.Done():
		return nil, p.contextErr(ctx)
	case <-p.quit:
		return nil, fmt.Errorf("%w: inference pool is closed", entity.ErrDetection)
	}
}

// Ready проксирует готовность детектора
func (p *InferencePool) Ready() error {
	return p.detector.Ready()
}

// Close останавливает воркеров и ждёт завершения текущих задач
func (p *InferencePool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *InferencePool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			// задача устарела, пока лежала в очереди
			if job.ctx.Err() != nil {
				continue
			}
			regions, err := p.run(job)
			job.result <- inferenceResult{regions: regions, err: err}
		}
	}
}

func (p *InferencePool) run(job inferenceJob) (regions []entity.DetectedRegion, err error) {
	defer func() {
		if r := recover(); r != nil {
			regions, err = nil, fmt.Errorf("%w: detector panic: %v", entity.ErrDetection, r)
		}
	}()

	regions, err = p.detector.Detect(job.ctx, job.img)
	if err != nil && !errors.Is(err, entity.ErrDetection) {
		err = fmt.Errorf("%w: %v", entity.ErrDetection, err)
	}
	if err == nil && regions == nil {
		regions = []entity.DetectedRegion{}
	}
	return regions, err
}

func (p *InferencePool) contextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no result within %s", entity.ErrDetectionTimeout, p.timeout)
	}
	return fmt.Errorf("%w: %w", entity.ErrCanceled, ctx.Err())
}

var _ port.PlateDetector = (*InferencePool)(nil)
