// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otel installs the global OpenTelemetry providers used by listener
// components for logs, metrics and traces.
package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/z5labs/listener/concurrent"
	"github.com/z5labs/listener/config"
	"github.com/z5labs/listener/internal/detector"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// UnknownOTLPConnTypeError is returned when an exporter is configured with
// an OTLP transport other than grpc or http.
type UnknownOTLPConnTypeError struct {
	Type config.OTLPConnType
}

func (e UnknownOTLPConnTypeError) Error() string {
	return fmt.Sprintf("unknown otlp conn type: %q", e.Type)
}

// UnknownExporterTypeError is returned for an unsupported exporter type.
type UnknownExporterTypeError struct {
	Type config.ExporterType
}

func (e UnknownExporterTypeError) Error() string {
	return fmt.Sprintf("unknown exporter type: %q", e.Type)
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Initialize installs global trace, meter and log providers. Signals without
// an exporter configured keep the no-op providers, except logs which fall
// back to JSON on stdout.
func Initialize(ctx context.Context, cfg config.OTel) (ShutdownFunc, error) {
	r, err := detector.Resource(ctx, cfg.Resource.ServiceName, cfg.Resource.ServiceVersion)
	if err != nil {
		return nil, err
	}

	conns := concurrent.NewCache[string, *grpc.ClientConn]()

	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, f := range shutdowns {
			errs = append(errs, f(ctx))
		}
		conns.Range(func(_ string, cc *grpc.ClientConn) {
			errs = append(errs, cc.Close())
		})
		return errors.Join(errs...)
	}

	tp, err := initTracerProvider(ctx, cfg.Trace, r, conns)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	if tp != nil {
		shutdowns = append(shutdowns, tp.Shutdown)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	mp, err := initMeterProvider(ctx, cfg.Metric, r, conns)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	if mp != nil {
		shutdowns = append(shutdowns, mp.Shutdown)
		otel.SetMeterProvider(mp)

		err = runtime.Start(runtime.WithMeterProvider(mp))
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
	}

	lp, err := initLoggerProvider(ctx, cfg.Log, r, conns)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	shutdowns = append(shutdowns, lp.Shutdown)
	global.SetLoggerProvider(lp)

	return shutdown, nil
}

func clientConn(cfg config.OTLP, conns *concurrent.Cache[string, *grpc.ClientConn]) (*grpc.ClientConn, error) {
	return conns.GetOr(cfg.Target, func() (*grpc.ClientConn, error) {
		return grpc.NewClient(
			cfg.Target,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	})
}

func initTracerProvider(ctx context.Context, cfg config.Trace, r *resource.Resource, conns *concurrent.Cache[string, *grpc.ClientConn]) (*sdktrace.TracerProvider, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.Exporter.Type {
	case "":
		return nil, nil
	case config.OTLPExporterType:
		switch cfg.Exporter.OTLP.Type {
		case config.OTLPGRPC:
			cc, cerr := clientConn(cfg.Exporter.OTLP, conns)
			if cerr != nil {
				return nil, cerr
			}
			exp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(cc))
		case config.OTLPHTTP:
			exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Exporter.OTLP.Target))
		default:
			return nil, UnknownOTLPConnTypeError{Type: cfg.Exporter.OTLP.Type}
		}
	default:
		return nil, UnknownExporterTypeError{Type: cfg.Exporter.Type}
	}
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(orDefault(cfg.BatchTimeout, 5*time.Second))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
		sdktrace.WithResource(r),
	)
	return tp, nil
}

func initMeterProvider(ctx context.Context, cfg config.Metric, r *resource.Resource, conns *concurrent.Cache[string, *grpc.ClientConn]) (*sdkmetric.MeterProvider, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)
	switch cfg.Exporter.Type {
	case "":
		return nil, nil
	case config.OTLPExporterType:
		switch cfg.Exporter.OTLP.Type {
		case config.OTLPGRPC:
			cc, cerr := clientConn(cfg.Exporter.OTLP, conns)
			if cerr != nil {
				return nil, cerr
			}
			exp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(cc))
		case config.OTLPHTTP:
			exp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Exporter.OTLP.Target))
		default:
			return nil, UnknownOTLPConnTypeError{Type: cfg.Exporter.OTLP.Type}
		}
	default:
		return nil, UnknownExporterTypeError{Type: cfg.Exporter.Type}
	}
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exp,
			sdkmetric.WithInterval(orDefault(cfg.ExportInterval, time.Minute)),
		)),
		sdkmetric.WithResource(r),
	)
	return mp, nil
}

func initLoggerProvider(ctx context.Context, cfg config.Log, r *resource.Resource, conns *concurrent.Cache[string, *grpc.ClientConn]) (*sdklog.LoggerProvider, error) {
	var processor sdklog.Processor
	switch cfg.Exporter.Type {
	case "":
		processor = sdklog.NewSimpleProcessor(&slogExporter{
			handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}),
		})
	case config.OTLPExporterType:
		var (
			exp sdklog.Exporter
			err error
		)
		switch cfg.Exporter.OTLP.Type {
		case config.OTLPGRPC:
			cc, cerr := clientConn(cfg.Exporter.OTLP, conns)
			if cerr != nil {
				return nil, cerr
			}
			exp, err = otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(cc))
		case config.OTLPHTTP:
			exp, err = otlploghttp.New(ctx, otlploghttp.WithEndpoint(cfg.Exporter.OTLP.Target))
		default:
			return nil, UnknownOTLPConnTypeError{Type: cfg.Exporter.OTLP.Type}
		}
		if err != nil {
			return nil, err
		}
		processor = sdklog.NewBatchProcessor(
			exp,
			sdklog.WithExportInterval(orDefault(cfg.ExportInterval, time.Second)),
		)
	default:
		return nil, UnknownExporterTypeError{Type: cfg.Exporter.Type}
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(r),
	)
	return lp, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
