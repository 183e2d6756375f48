// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package detector describes a listener process as an OTel resource.
package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/sdk"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Resource detects the service, host and SDK attributes of the current
// process. Every call yields a new service.instance.id so replicas of the
// same listener can be told apart.
//
// A partially detected resource is returned without error.
func Resource(ctx context.Context, serviceName, serviceVersion string) (*resource.Resource, error) {
	detectors := []resource.Detector{
		sdkDetector{},
		resource.StringDetector(semconv.SchemaURL, semconv.HostNameKey, os.Hostname),
		resource.StringDetector(semconv.SchemaURL, semconv.ServiceNameKey, serviceNameOr(serviceName)),
		resource.StringDetector(semconv.SchemaURL, semconv.ServiceInstanceIDKey, func() (string, error) {
			return uuid.NewString(), nil
		}),
	}
	if serviceVersion != "" {
		detectors = append(detectors, resource.StringDetector(semconv.SchemaURL, semconv.ServiceVersionKey, func() (string, error) {
			return serviceVersion, nil
		}))
	}

	r, err := resource.New(ctx, resource.WithDetectors(detectors...))
	if errors.Is(err, resource.ErrPartialResource) {
		return r, nil
	}
	return r, err
}

type sdkDetector struct{}

func (sdkDetector) Detect(context.Context) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.TelemetrySDKName("opentelemetry"),
		semconv.TelemetrySDKLanguageGo,
		semconv.TelemetrySDKVersion(sdk.Version()),
	), nil
}

func serviceNameOr(name string) func() (string, error) {
	return func() (string, error) {
		if name != "" {
			return name, nil
		}
		exe, err := os.Executable()
		if err != nil {
			return "unknown_service:go", nil
		}
		return "unknown_service:" + filepath.Base(exe), nil
	}
}
