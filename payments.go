package lnurlbridge

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lnwire"
)

const (
	DefaultPaymentWorkers   = 2
	DefaultPaymentQueueSize = 64

	// paymentRetryBudget is how long the node may keep retrying routes.
	paymentRetryBudget = 60 * time.Second

	// paymentGracePeriod is added on top of the retry budget before the
	// call itself is abandoned.
	paymentGracePeriod = 15 * time.Second

	// maxFeePercent caps routing fees relative to the invoice amount.
	maxFeePercent = 1
)

// PaymentJob is a withdrawal payment accepted by the withdraw callback.
type PaymentJob struct {
	ID      string
	Invoice string
	Amount  lnwire.MilliSatoshi
}

// FeeLimit is the maximum routing fee for the job.
func (j PaymentJob) FeeLimit() lnwire.MilliSatoshi {
	return j.Amount * maxFeePercent / 100
}

// PaymentSubmitter accepts payment jobs without blocking.
type PaymentSubmitter interface {
	Submit(job PaymentJob) error
}

type PaymentExecutorConfig struct {
	Node LightningNode

	Workers   int
	QueueSize int

	Publisher EventPublisher
	Metrics   *Metrics
	Clock     clock.Clock
}

// PaymentExecutor pays accepted withdrawals in the background. The outcome of
// a job never reaches the HTTP caller that submitted it.
type PaymentExecutor struct {
	cfg PaymentExecutorConfig

	jobs chan PaymentJob

	mu      sync.RWMutex
	running bool
	stopped bool
}

func NewPaymentExecutor(cfg PaymentExecutorConfig) *PaymentExecutor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPaymentWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPaymentQueueSize
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &PaymentExecutor{
		cfg:  cfg,
		jobs: make(chan PaymentJob, cfg.QueueSize),
	}
}

// Submit queues a job. It fails with ErrQueueFull instead of blocking.
func (e *PaymentExecutor) Submit(job PaymentJob) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped {
		return ErrExecutorStopped
	}

	select {
	case e.jobs <- job:
		e.cfg.Metrics.queueDepth.Inc()
		return nil

	default:
		e.cfg.Metrics.payments.WithLabelValues(paymentRejected).Inc()
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done. Jobs that were already
// accepted are still paid before Run returns. An executor runs only once.
func (e *PaymentExecutor) Run(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.stopped:
		e.mu.Unlock()
		return ErrExecutorStopped

	case e.running:
		e.mu.Unlock()
		return ErrExecutorRunning
	}
	e.running = true
	e.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for job := range e.jobs {
				e.cfg.Metrics.queueDepth.Dec()
				e.execute(ctx, job)
			}
		}()
	}

	<-ctx.Done()

	e.mu.Lock()
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()

	log.Infof("Payment executor stopping, draining %d queued jobs",
		len(e.jobs))
	wg.Wait()

	return nil
}

func (e *PaymentExecutor) execute(ctx context.Context, job PaymentJob) {
	// The payment must not be cancelled together with the caller.
	payCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), paymentRetryBudget+paymentGracePeriod,
	)
	defer cancel()

	log.Debugf("Paying withdrawal %s of %v (fee limit %v)", job.ID,
		job.Amount, job.FeeLimit())

	res, err := e.cfg.Node.PayInvoice(payCtx, PaymentRequest{
		Invoice:  job.Invoice,
		FeeLimit: job.FeeLimit(),
		Timeout:  paymentRetryBudget,
	})

	outcome := PaymentOutcome{
		JobID:       job.ID,
		Invoice:     job.Invoice,
		AmountMsat:  uint64(job.Amount),
		Succeeded:   err == nil,
		CompletedAt: e.cfg.Clock.Now(),
	}

	if err != nil {
		outcome.Error = err.Error()
		e.cfg.Metrics.payments.WithLabelValues(paymentFailed).Inc()
		log.Errorf("Withdrawal %s of %v failed: %v", job.ID,
			job.Amount, err)
	} else {
		outcome.FeeMsat = uint64(res.Fee)
		outcome.PaymentHash = res.PaymentHash
		e.cfg.Metrics.payments.WithLabelValues(paymentSucceeded).Inc()
		log.Infof("Withdrawal %s of %v paid, hash=%s fee=%v", job.ID,
			job.Amount, res.PaymentHash, res.Fee)
	}

	if err := e.cfg.Publisher.PublishPayment(payCtx, outcome); err != nil {
		log.Warnf("Publishing outcome of withdrawal %s: %v", job.ID, err)
	}
}

var _ PaymentSubmitter = (*PaymentExecutor)(nil)
