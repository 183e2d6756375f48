// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// slogExporter writes OTel log records to a [slog.Handler]. It is the
// fallback used when no log exporter is configured.
type slogExporter struct {
	handler slog.Handler
}

// Export implements [sdklog.Exporter].
func (s *slogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	const sevOffset = log.SeverityDebug - log.Severity(slog.LevelDebug)
	for _, record := range records {
		sr := slog.NewRecord(
			record.Timestamp(),
			slog.Level(record.Severity()-sevOffset),
			record.Body().AsString(),
			0,
		)

		record.WalkAttributes(func(kv log.KeyValue) bool {
			sr.AddAttrs(slog.Attr{Key: kv.Key, Value: slogValue(kv.Value)})
			return true
		})

		scope := record.InstrumentationScope()
		sr.AddAttrs(
			slog.String("logger", scope.Name),
			slog.Group(
				"otel",
				slog.String("trace.id", record.TraceID().String()),
				slog.String("span.id", record.SpanID().String()),
			),
		)

		if err := s.handler.Handle(ctx, sr); err != nil {
			return err
		}
	}
	return nil
}

func slogValue(v log.Value) slog.Value {
	switch v.Kind() {
	case log.KindBool:
		return slog.BoolValue(v.AsBool())
	case log.KindBytes:
		return slog.AnyValue(v.AsBytes())
	case log.KindFloat64:
		return slog.Float64Value(v.AsFloat64())
	case log.KindInt64:
		return slog.Int64Value(v.AsInt64())
	case log.KindString:
		return slog.StringValue(v.AsString())
	case log.KindMap:
		kvs := v.AsMap()
		attrs := make([]slog.Attr, 0, len(kvs))
		for _, kv := range kvs {
			attrs = append(attrs, slog.Attr{Key: kv.Key, Value: slogValue(kv.Value)})
		}
		return slog.GroupValue(attrs...)
	case log.KindSlice:
		vs := v.AsSlice()
		vals := make([]any, 0, len(vs))
		for _, e := range vs {
			vals = append(vals, slogValue(e).Any())
		}
		return slog.AnyValue(vals)
	default:
		return slog.StringValue(v.String())
	}
}

// ForceFlush implements [sdklog.Exporter].
func (s *slogExporter) ForceFlush(context.Context) error {
	return nil
}

// Shutdown implements [sdklog.Exporter].
func (s *slogExporter) Shutdown(context.Context) error {
	return nil
}
