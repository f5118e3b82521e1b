package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// OTLP status codes differ from the API's codes.Code values.
const (
	otlpStatusUnset = 0
	otlpStatusOk    = 1
	otlpStatusError = 2
)

// otlpHTTPExporter posts spans to a collector using the OTLP/HTTP JSON encoding.
type otlpHTTPExporter struct {
	endpoint string
	client   *http.Client
}

func (e *otlpHTTPExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	body, err := json.Marshal(buildOTLPTraceRequest(spans))
	if err != nil {
		return fmt.Errorf("encode otlp request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build otlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send otlp request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("otlp export failed status=%d body-read-error=%v", resp.StatusCode, readErr)
	}
	return fmt.Errorf("otlp export failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(payload)))
}

func (e *otlpHTTPExporter) Shutdown(context.Context) error {
	return nil
}

type otlpTraceRequest struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

type otlpResourceSpans struct {
	Resource   otlpResource     `json:"resource"`
	ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
}

type otlpResource struct {
	Attributes []otlpKeyValue `json:"attributes,omitempty"`
}

type otlpScopeSpans struct {
	Scope otlpScope  `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type otlpScope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type otlpSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano string         `json:"startTimeUnixNano"`
	EndTimeUnixNano   string         `json:"endTimeUnixNano"`
	Attributes        []otlpKeyValue `json:"attributes,omitempty"`
	Status            otlpStatus     `json:"status"`
}

type otlpStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type otlpKeyValue struct {
	Key   string       `json:"key"`
	Value otlpAnyValue `json:"value"`
}

type otlpAnyValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

// buildOTLPTraceRequest groups spans by resource, then by instrumentation scope,
// keeping first-seen order.
func buildOTLPTraceRequest(spans []sdktrace.ReadOnlySpan) otlpTraceRequest {
	request := otlpTraceRequest{}
	resourceIndex := map[attribute.Distinct]int{}
	scopeIndex := map[attribute.Distinct]map[string]int{}

	for _, span := range spans {
		res := span.Resource()
		resKey := res.Equivalent()
		ri, ok := resourceIndex[resKey]
		if !ok {
			ri = len(request.ResourceSpans)
			resourceIndex[resKey] = ri
			scopeIndex[resKey] = map[string]int{}
			request.ResourceSpans = append(request.ResourceSpans, otlpResourceSpans{
				Resource: otlpResource{Attributes: toOTLPAttributes(res.Attributes())},
			})
		}

		scope := span.InstrumentationScope()
		scopeKey := scope.Name + "@" + scope.Version
		si, ok := scopeIndex[resKey][scopeKey]
		if !ok {
			si = len(request.ResourceSpans[ri].ScopeSpans)
			scopeIndex[resKey][scopeKey] = si
			request.ResourceSpans[ri].ScopeSpans = append(request.ResourceSpans[ri].ScopeSpans, otlpScopeSpans{
				Scope: otlpScope{Name: scope.Name, Version: scope.Version},
			})
		}

		scopeSpans := &request.ResourceSpans[ri].ScopeSpans[si]
		scopeSpans.Spans = append(scopeSpans.Spans, toOTLPSpan(span))
	}
	return request
}

func toOTLPSpan(span sdktrace.ReadOnlySpan) otlpSpan {
	spanContext := span.SpanContext()
	converted := otlpSpan{
		TraceID:           spanContext.TraceID().String(),
		SpanID:            spanContext.SpanID().String(),
		Name:              span.Name(),
		Kind:              int(span.SpanKind()),
		StartTimeUnixNano: strconv.FormatInt(span.StartTime().UnixNano(), 10),
		EndTimeUnixNano:   strconv.FormatInt(span.EndTime().UnixNano(), 10),
		Attributes:        toOTLPAttributes(span.Attributes()),
		Status: otlpStatus{
			Code:    toOTLPStatusCode(span.Status().Code),
			Message: span.Status().Description,
		},
	}
	if parent := span.Parent(); parent.HasSpanID() {
		converted.ParentSpanID = parent.SpanID().String()
	}
	return converted
}

func toOTLPStatusCode(code codes.Code) int {
	switch code {
	case codes.Ok:
		return otlpStatusOk
	case codes.Error:
		return otlpStatusError
	default:
		return otlpStatusUnset
	}
}

func toOTLPAttributes(attributes []attribute.KeyValue) []otlpKeyValue {
	if len(attributes) == 0 {
		return nil
	}
	out := make([]otlpKeyValue, 0, len(attributes))
	for _, kv := range attributes {
		value := otlpAnyValue{}
		switch kv.Value.Type() {
		case attribute.BOOL:
			b := kv.Value.AsBool()
			value.BoolValue = &b
		case attribute.INT64:
			i := strconv.FormatInt(kv.Value.AsInt64(), 10)
			value.IntValue = &i
		case attribute.FLOAT64:
			f := kv.Value.AsFloat64()
			value.DoubleValue = &f
		default:
			s := kv.Value.Emit()
			value.StringValue = &s
		}
		out = append(out, otlpKeyValue{Key: string(kv.Key), Value: value})
	}
	return out
}
