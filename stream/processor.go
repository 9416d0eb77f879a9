package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/glassechidna/lambdalogs/entry"
	"github.com/glassechidna/lambdalogs/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/glassechidna/lambdalogs/stream"

// Result pairs an inserted entry with the id the database assigned it.
type Result struct {
	ID    int64           `json:"id"`
	Entry *entry.LogEntry `json:"entry"`
}

type Processor struct {
	Now    func() time.Time
	Logger *slog.Logger
}

func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{Now: time.Now, Logger: logger}
}

// Process decodes, normalizes and inserts every record concurrently.
// Results are in record order. Any failure fails the whole batch and no
// results are returned, even for records already inserted.
func (p *Processor) Process(ctx context.Context, event *events.KinesisEvent, w store.Writer) ([]Result, error) {
	results := make([]Result, len(event.Records))

	g, gctx := errgroup.WithContext(ctx)
	for i := range event.Records {
		i := i
		g.Go(func() error {
			res, err := p.processRecord(gctx, event.Records[i], w)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Processor) processRecord(ctx context.Context, record events.KinesisEventRecord, w store.Writer) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("kinesis.sequence_number", record.Kinesis.SequenceNumber),
		attribute.String("kinesis.partition_key", record.Kinesis.PartitionKey),
	)

	log := p.logger().With("sequence_number", record.Kinesis.SequenceNumber)
	log.DebugContext(ctx, "got payload", "payload", string(record.Kinesis.Data))

	d, err := DecodeRecord(record, p.now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	e, err := entry.Canonicalize(d.Payload, d.Seconds())
	if err != nil {
		err = &DecodeError{Sequence: record.Kinesis.SequenceNumber, Err: err}
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	log.DebugContext(ctx, "inserting entry", "entry", e)
	id, err := w.InsertEntry(ctx, e)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int64("logs.id", id))

	return Result{ID: id, Entry: e}, nil
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
