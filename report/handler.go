package report

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	DefaultBatchSize     = 64
	DefaultFlushInterval = time.Second

	flushTimeout = time.Second * 5
)

// ReportHandler drains ReportChan, drops invalid reports and publishes the
// others in batches.
type ReportHandler struct {
	Publisher  Publisher
	ReportChan chan Report // buffered

	BatchSize     int
	FlushInterval time.Duration
}

// HandleReports starts publishing reports in the background until ctx is
// canceled. The returned channel is closed once the pending reports are
// flushed.
func (rh ReportHandler) HandleReports(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		rh.run(ctx)
	}()
	return done
}

func (rh ReportHandler) run(ctx context.Context) {
	batchSize := rh.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	flushInterval := rh.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Report, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := instrumentPublish(len(batch), func() error {
			return rh.Publisher.Publish(ctx, batch...)
		}); err != nil {
			logs.Warn(errors.New("publishing visibility reports failed").
				WithTag("count", len(batch)).
				Wrap(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case r := <-rh.ReportChan:
					batch = rh.appendValid(batch, r)
					continue
				default:
				}
				break
			}

			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			flush(flushCtx)
			cancel()
			return

		case <-ticker.C:
			flush(ctx)

		case r := <-rh.ReportChan:
			batch = rh.appendValid(batch, r)
			if len(batch) >= batchSize {
				flush(ctx)
			}
		}
	}
}

func (rh ReportHandler) appendValid(batch []Report, r Report) []Report {
	if err := r.Validate(); err != nil {
		instrumentValidationError(err)
		logs.Warn(errors.New("invalid visibility report").
			WithTag("scene_id", r.SceneID).
			WithTag("participant_id", r.ParticipantID).
			Wrap(err))
		return batch
	}
	return append(batch, r)
}
