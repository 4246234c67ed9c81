package report

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func testReport() Report {
	return Report{
		SceneID:       "room",
		SceneVersion:  3,
		SessionUUID:   uuid.NewString(),
		ParticipantID: 1,
		Observer:      visibility.Observer{Position: geometry.Vector3{X: 1}, Heading: 90},
		Targets:       []visibility.TargetHandle{"a", "b"},
		Entered:       []visibility.TargetHandle{"b"},
		Timestamp:     time.Now(),
	}
}

func TestReportValidate(t *testing.T) {
	require.NoError(t, testReport().Validate())

	tests := []struct {
		scenario string
		edit     func(r *Report)
	}{
		{
			scenario: "invalid scene id",
			edit:     func(r *Report) { r.SceneID = "not valid" },
		},
		{
			scenario: "invalid session uuid",
			edit:     func(r *Report) { r.SessionUUID = "42" },
		},
		{
			scenario: "missing participant",
			edit:     func(r *Report) { r.ParticipantID = 0 },
		},
		{
			scenario: "missing timestamp",
			edit:     func(r *Report) { r.Timestamp = time.Time{} },
		},
		{
			scenario: "observer is not finite",
			edit:     func(r *Report) { r.Observer.Heading = math.NaN() },
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			r := testReport()
			test.edit(&r)

			err := r.Validate()
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidReport))
		})
	}
}

type fakeWriter struct {
	mutex  sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		require.False(t, KafkaConfig{}.Enabled())
		require.False(t, KafkaConfig{Brokers: "localhost:9092"}.Enabled())
		require.True(t, KafkaConfig{Brokers: "localhost:9092", Topic: "reports"}.Enabled())

		p := NewKafkaPublisher(KafkaConfig{Brokers: "a:9092, b:9092,", Topic: "reports"})
		w := p.writer.(*kafka.Writer)
		require.Equal(t, "reports", w.Topic)
		require.NotNil(t, w.Addr)
	})

	t.Run("publish", func(t *testing.T) {
		w := &fakeWriter{}
		p := &KafkaPublisher{Topic: "reports", writer: w}

		r := testReport()
		require.NoError(t, p.Publish(context.Background(), r))
		require.NoError(t, p.Publish(context.Background()))
		require.Len(t, w.msgs, 1)
		require.Equal(t, []byte("room"), w.msgs[0].Key)
		require.True(t, r.Timestamp.Equal(w.msgs[0].Time))

		var decoded Report
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
		require.Equal(t, r.Targets, decoded.Targets)
		require.Equal(t, r.SessionUUID, decoded.SessionUUID)

		require.NoError(t, p.Close())
		require.True(t, w.closed)
	})

	t.Run("write error", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker unreachable")}
		p := &KafkaPublisher{Topic: "reports", writer: w}

		require.Error(t, p.Publish(context.Background(), testReport()))
		require.Empty(t, w.msgs)
	})
}

type fakePublisher struct {
	mutex   sync.Mutex
	batches [][]Report
}

func (p *fakePublisher) Publish(ctx context.Context, reports ...Report) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.batches = append(p.batches, append([]Report(nil), reports...))
	return nil
}

func (p *fakePublisher) Close() error {
	return nil
}

func (p *fakePublisher) count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestReportHandler(t *testing.T) {
	t.Run("reports are batched", func(t *testing.T) {
		publisher := &fakePublisher{}
		reports := make(chan Report, 8)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := ReportHandler{
			Publisher:     publisher,
			ReportChan:    reports,
			BatchSize:     2,
			FlushInterval: time.Hour,
		}.HandleReports(ctx)

		reports <- testReport()
		reports <- testReport()

		require.Eventually(t, func() bool {
			return publisher.count() == 2
		}, time.Second, time.Millisecond*5)

		cancel()
		<-done

		require.Len(t, publisher.batches, 1)
		require.Len(t, publisher.batches[0], 2)
	})

	t.Run("pending reports are flushed on shutdown", func(t *testing.T) {
		publisher := &fakePublisher{}
		reports := make(chan Report, 8)

		invalid := testReport()
		invalid.SessionUUID = ""

		reports <- testReport()
		reports <- invalid
		reports <- testReport()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		<-ReportHandler{
			Publisher:     publisher,
			ReportChan:    reports,
			FlushInterval: time.Hour,
		}.HandleReports(ctx)

		require.Equal(t, 2, publisher.count())
	})

	t.Run("reports are flushed periodically", func(t *testing.T) {
		publisher := &fakePublisher{}
		reports := make(chan Report, 8)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := ReportHandler{
			Publisher:     publisher,
			ReportChan:    reports,
			FlushInterval: time.Millisecond * 10,
		}.HandleReports(ctx)

		reports <- testReport()
		require.Eventually(t, func() bool {
			return publisher.count() == 1
		}, time.Second, time.Millisecond*5)

		cancel()
		<-done
	})
}
