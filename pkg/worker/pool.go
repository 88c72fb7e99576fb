package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore/internal/utils"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/profiling"
)

// ErrClosed is returned once Shutdown has been called.
var ErrClosed = errors.New("worker pool is shut down")

// Pool manages concurrent query workers
type Pool struct {
	jobs         chan models.WorkItem
	results      chan models.WorkResult
	webhookQueue chan models.BatchReport
	workers      int
	bufferPool   sync.Pool
	shutdown     chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	sends        sync.WaitGroup
	processor    ProcessorFunc
	sender       Sender
}

// ProcessorFunc answers one query using scratch buffers owned by the pool
type ProcessorFunc func(ctx context.Context, q models.Query, buf *models.BufferSet) (models.QueryResponse, error)

// Sender delivers batch reports, e.g. a webhook client.
type Sender interface {
	Send(report models.BatchReport) error
}

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	Processor ProcessorFunc
	// Sender may be nil, in which case queued reports are dropped.
	Sender Sender
}

// New creates a new worker pool with specified configuration
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}

	// Buffer twice the worker count so submitters rarely block.
	pool := &Pool{
		jobs:         make(chan models.WorkItem, opts.Workers*2),
		results:      make(chan models.WorkResult, opts.Workers*2),
		webhookQueue: make(chan models.BatchReport, opts.Workers*4),
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		sender:       opts.Sender,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return &models.BufferSet{
					Wavelengths: make([]float64, 0, 64),
					Values:      make([]float64, 0, 64),
				}
			},
		},
	}

	pool.start()
	return pool
}

// start initializes and starts all workers
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.webhookProcessor()

	glog.Infof("Worker pool started with %d workers", p.workers)
}

// worker processes query jobs from the jobs channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			result := p.processJob(id, job)
			if job.Reply != nil {
				job.Reply <- result
				continue
			}
			select {
			case p.results <- result:
			case <-p.shutdown:
				return
			}

		case <-p.shutdown:
			glog.V(2).Infof("Worker %d stopping", id)
			return
		}
	}
}

// processJob runs the processor with a pooled buffer set
func (p *Pool) processJob(workerID int, job models.WorkItem) models.WorkResult {
	buffers := p.bufferPool.Get().(*models.BufferSet)
	defer p.bufferPool.Put(buffers)
	buffers.Wavelengths = buffers.Wavelengths[:0]
	buffers.Values = buffers.Values[:0]

	if job.Query.ID == "" {
		job.Query.ID = job.RequestID
	}

	startTime := time.Now()
	resp, err := p.processor(context.Background(), job.Query, buffers)
	processingTime := time.Since(startTime)
	profiling.RecordJob(context.Background(), string(job.Query.Action), err == nil, processingTime)
	glog.V(2).Infof("Worker[%d] job %s (%s) took %v", workerID, job.RequestID, job.Query.Action, processingTime)

	return models.WorkResult{
		ID:             job.ID,
		RequestID:      job.RequestID,
		BatchID:        job.BatchID,
		Response:       resp,
		ProcessingTime: processingTime,
		Success:        err == nil,
	}
}

// webhookProcessor handles webhook requests asynchronously
func (p *Pool) webhookProcessor() {
	defer p.wg.Done()

	for {
		select {
		case report := <-p.webhookQueue:
			// Deliver without blocking the queue.
			p.sends.Add(1)
			go p.sendWebhook(report)

		case <-p.shutdown:
			return
		}
	}
}

func (p *Pool) sendWebhook(report models.BatchReport) {
	defer p.sends.Done()
	if p.sender == nil {
		glog.V(1).Infof("No webhook sender, dropping report for batch %s", report.BatchID)
		return
	}
	if err := p.sender.Send(report); err != nil {
		glog.Errorf("Webhook for batch %s failed: %v", report.BatchID, err)
	}
}

// SubmitJob submits a job, blocking while the queue is full. It fails when
// ctx ends or the pool shuts down first.
func (p *Pool) SubmitJob(ctx context.Context, job models.WorkItem) error {
	select {
	case <-p.shutdown:
		return ErrClosed
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		glog.Warningf("Worker pool jobs channel full, job %s may be delayed", job.RequestID)
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrClosed
	}
}

// GetResult retrieves a result of a job submitted without a Reply channel
// (non-blocking)
func (p *Pool) GetResult() (models.WorkResult, bool) {
	select {
	case result := <-p.results:
		return result, true
	default:
		return models.WorkResult{}, false
	}
}

// Run submits every query of a batch and waits for all results, returned in
// query order.
func (p *Pool) Run(ctx context.Context, batchID string, queries []models.Query) ([]models.WorkResult, error) {
	reply := make(chan models.WorkResult, len(queries))
	submitErr := make(chan error, 1)
	go func() {
		for i, q := range queries {
			job := models.WorkItem{
				ID:        i,
				RequestID: utils.ChildID(batchID, i),
				BatchID:   batchID,
				Query:     q,
				StartTime: time.Now(),
				Reply:     reply,
			}
			if err := p.SubmitJob(ctx, job); err != nil {
				submitErr <- err
				return
			}
		}
	}()

	out := make([]models.WorkResult, len(queries))
	for n := 0; n < len(queries); n++ {
		select {
		case r := <-reply:
			out[r.ID] = r
		case err := <-submitErr:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.shutdown:
			return nil, ErrClosed
		}
	}
	return out, nil
}

// QueueWebhook queues a report for async delivery. It reports false when the
// queue is full and the report was dropped.
func (p *Pool) QueueWebhook(report models.BatchReport) bool {
	select {
	case p.webhookQueue <- report:
		return true
	default:
		glog.Warningf("Webhook queue full, dropping report for batch %s", report.BatchID)
		return false
	}
}

// Shutdown stops the workers and waits for in-flight webhook deliveries.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		glog.Info("Shutting down worker pool...")
		close(p.shutdown)
		p.wg.Wait()
		p.sends.Wait()
		glog.Info("Worker pool shutdown complete")
	})
}
