package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore/pkg/models"
)

// echo answers with the query's angle as its only value and fails negative
// angles.
func echo(_ context.Context, q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	buf.Values = append(buf.Values, q.AngleDeg)
	if q.AngleDeg < 0 {
		return models.QueryResponse{ID: q.ID, Error: "negative"}, errors.New("negative")
	}
	return models.QueryResponse{ID: q.ID, Values: append([]float64(nil), buf.Values...)}, nil
}

type recorder struct {
	mu      sync.Mutex
	reports []models.BatchReport
	fail    bool
}

func (r *recorder) Send(report models.BatchReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func TestRunKeepsQueryOrder(t *testing.T) {
	p := New(Options{Workers: 4, Processor: echo})
	defer p.Shutdown()

	queries := make([]models.Query, 100)
	for i := range queries {
		queries[i] = models.Query{AngleDeg: float64(i % 90)}
	}
	queries[7].AngleDeg = -1

	results, err := p.Run(context.Background(), "b1", queries)
	require.NoError(t, err)
	require.Len(t, results, len(queries))
	for i, r := range results {
		assert.Equal(t, i, r.ID)
		assert.Equal(t, "b1", r.BatchID)
		assert.Equal(t, fmt.Sprintf("b1_q_%03d", i), r.RequestID)
		assert.Equal(t, r.RequestID, r.Response.ID)
		if i == 7 {
			assert.False(t, r.Success)
			continue
		}
		assert.True(t, r.Success)
		// Buffers are reset between jobs.
		assert.Equal(t, []float64{queries[i].AngleDeg}, r.Response.Values)
	}
}

func TestConcurrentBatchesDoNotMix(t *testing.T) {
	p := New(Options{Workers: 3, Processor: echo})
	defer p.Shutdown()

	var wg sync.WaitGroup
	for b := 0; b < 5; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			queries := make([]models.Query, 20)
			for i := range queries {
				queries[i] = models.Query{AngleDeg: float64(b)}
			}
			results, err := p.Run(context.Background(), fmt.Sprintf("batch-%d", b), queries)
			assert.NoError(t, err)
			for _, r := range results {
				assert.Equal(t, fmt.Sprintf("batch-%d", b), r.BatchID)
				assert.Equal(t, []float64{float64(b)}, r.Response.Values)
			}
		}(b)
	}
	wg.Wait()
}

func TestSharedResults(t *testing.T) {
	p := New(Options{Workers: 1, Processor: echo})
	defer p.Shutdown()

	require.NoError(t, p.SubmitJob(context.Background(), models.WorkItem{ID: 3, RequestID: "r3", Query: models.Query{AngleDeg: 10}}))
	var (
		r  models.WorkResult
		ok bool
	)
	require.Eventually(t, func() bool {
		r, ok = p.GetResult()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, r.ID)
	assert.True(t, r.Success)
}

func TestWebhookDelivery(t *testing.T) {
	rec := &recorder{fail: true}
	p := New(Options{Workers: 1, Processor: echo, Sender: rec})

	assert.True(t, p.QueueWebhook(models.BatchReport{BatchID: "b1", Total: 2}))
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.reports) == 1
	}, time.Second, time.Millisecond)
	p.Shutdown()
	assert.Equal(t, "b1", rec.reports[0].BatchID)
}

func TestShutdown(t *testing.T) {
	p := New(Options{Workers: 2, Processor: echo})
	p.Shutdown()
	p.Shutdown()

	err := p.SubmitJob(context.Background(), models.WorkItem{})
	assert.True(t, errors.Is(err, ErrClosed))

	_, err = p.Run(context.Background(), "late", []models.Query{{}})
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestRunHonoursContext(t *testing.T) {
	block := make(chan struct{})
	slow := func(ctx context.Context, q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
		<-block
		return models.QueryResponse{}, nil
	}
	p := New(Options{Workers: 1, Processor: slow})
	defer p.Shutdown()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Run(ctx, "slow", make([]models.Query, 3))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
