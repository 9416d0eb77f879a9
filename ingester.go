package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/glassechidna/lambdalogs/config"
	"github.com/glassechidna/lambdalogs/logging"
	"github.com/glassechidna/lambdalogs/store"
	"github.com/glassechidna/lambdalogs/stream"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Ingester struct {
	cfgErr    error
	open      store.Opener
	now       func() time.Time
	telemetry *logging.Telemetry
	entropy   io.Reader
}

// NewIngester validates cfg once. An invalid config fails every invocation
// before any record is read.
func NewIngester(cfg config.Config, open store.Opener, telemetry *logging.Telemetry) *Ingester {
	t := time.Now()
	return &Ingester{
		cfgErr:    cfg.Validate(),
		open:      open,
		now:       time.Now,
		telemetry: telemetry,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
	}
}

// Handle ingests one Kinesis batch. Failures are reported as 400 rather than
// returned as errors so they do not count towards the Lambda Errors metric.
func (in *Ingester) Handle(ctx context.Context, body json.RawMessage) (*events.APIGatewayV2HTTPResponse, error) {
	invocationID := ulid.MustNew(ulid.Timestamp(in.now()), in.entropy).String()
	log := slog.Default().With("invocation_id", invocationID)

	ctx, span := otel.Tracer("github.com/glassechidna/lambdalogs").Start(ctx, "ingest.batch")
	span.SetAttributes(attribute.String("invocation_id", invocationID))
	defer func() {
		span.End()
		if err := in.telemetry.Flush(context.Background()); err != nil {
			log.Warn("flushing telemetry", "error", err)
		}
	}()

	results, err := in.ingest(ctx, log, body)
	if err != nil {
		log.ErrorContext(ctx, "ingestion failed", "kind", errorKind(err), "error", err)
		span.SetStatus(codes.Error, err.Error())
		return respond(400, map[string]string{"error": err.Error()}), nil
	}

	span.SetAttributes(attribute.Int("records", len(results)))
	return respond(200, results), nil
}

func (in *Ingester) ingest(ctx context.Context, log *slog.Logger, body json.RawMessage) ([]stream.Result, error) {
	if in.cfgErr != nil {
		return nil, in.cfgErr
	}

	event, err := stream.ParseEvent(body)
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "event received", "records", len(event.Records))
	log.DebugContext(ctx, "event body", "event", body)

	w, err := in.open(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	p := &stream.Processor{Now: in.now, Logger: log}
	results, err := p.Process(ctx, event, w)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "insertion results", "inserted", len(results))
	return results, nil
}

func errorKind(err error) string {
	var decodeErr *stream.DecodeError
	var storeErr *store.Error

	switch {
	case errors.Is(err, config.ErrMissingDatabaseURL):
		return "config"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &storeErr):
		return "store"
	default:
		return "unknown"
	}
}

func respond(status int, v interface{}) *events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = 400
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return &events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-type": "application/json"},
		Body:       string(body),
	}
}
