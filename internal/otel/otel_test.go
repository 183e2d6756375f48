// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/z5labs/listener/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/log/logtest"
)

func TestInitialize(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		testCases := []struct {
			Name   string
			Config config.OTel
			Assert func(*testing.T, error)
		}{
			{
				Name: "if an unknown otlp conn type is configured for traces",
				Config: config.OTel{
					Trace: config.Trace{
						Exporter: config.Exporter{
							Type: config.OTLPExporterType,
							OTLP: config.OTLP{Type: "carrier-pigeon"},
						},
					},
				},
				Assert: func(t *testing.T, err error) {
					var uerr UnknownOTLPConnTypeError
					require.ErrorAs(t, err, &uerr)
					require.Equal(t, config.OTLPConnType("carrier-pigeon"), uerr.Type)
					require.NotEmpty(t, uerr.Error())
				},
			},
			{
				Name: "if an unknown exporter type is configured for metrics",
				Config: config.OTel{
					Metric: config.Metric{
						Exporter: config.Exporter{Type: "prometheus"},
					},
				},
				Assert: func(t *testing.T, err error) {
					var uerr UnknownExporterTypeError
					require.ErrorAs(t, err, &uerr)
					require.Equal(t, config.ExporterType("prometheus"), uerr.Type)
				},
			},
			{
				Name: "if an unknown otlp conn type is configured for logs",
				Config: config.OTel{
					Log: config.Log{
						Exporter: config.Exporter{
							Type: config.OTLPExporterType,
							OTLP: config.OTLP{Type: "udp"},
						},
					},
				},
				Assert: func(t *testing.T, err error) {
					var uerr UnknownOTLPConnTypeError
					require.ErrorAs(t, err, &uerr)
				},
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				_, err := Initialize(context.Background(), testCase.Config)
				testCase.Assert(t, err)
			})
		}
	})

	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if no exporters are configured", func(t *testing.T) {
			shutdown, err := Initialize(context.Background(), config.OTel{})
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})

		t.Run("if otlp grpc exporters are configured", func(t *testing.T) {
			exp := config.Exporter{
				Type: config.OTLPExporterType,
				OTLP: config.OTLP{Type: config.OTLPGRPC, Target: "localhost:4317"},
			}

			shutdown, err := Initialize(context.Background(), config.OTel{
				Trace:  config.Trace{SamplingRatio: 1, Exporter: exp},
				Metric: config.Metric{Exporter: exp},
				Log:    config.Log{Exporter: exp},
			})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = shutdown(ctx)
		})
	})
}

type captureHandler struct {
	slog.Handler
	records []slog.Record
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func TestSlogExporter_Export(t *testing.T) {
	t.Run("will map the record to slog", func(t *testing.T) {
		h := &captureHandler{Handler: slog.Default().Handler()}
		exp := &slogExporter{handler: h}

		record := logtest.RecordFactory{
			Timestamp: time.Now(),
			Severity:  log.SeverityError,
			Body:      log.StringValue("failed to process message"),
			Attributes: []log.KeyValue{
				log.String("messaging.message.id", "abc"),
				log.Int64("attempt", 2),
			},
		}.NewRecord()

		err := exp.Export(context.Background(), []sdklog.Record{record})
		require.NoError(t, err)
		require.Len(t, h.records, 1)

		sr := h.records[0]
		require.Equal(t, slog.LevelError, sr.Level)
		require.Equal(t, "failed to process message", sr.Message)

		attrs := map[string]slog.Value{}
		sr.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value
			return true
		})
		require.Equal(t, "abc", attrs["messaging.message.id"].String())
		require.Equal(t, int64(2), attrs["attempt"].Int64())
	})
}
