package services

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-noc/internal/models"
)

type processorStub struct {
	event  map[string]any
	raw    []byte
	result models.Result
}

func (p *processorStub) ProcessEvent(_ context.Context, event map[string]any) models.Result {
	p.event = event
	return p.result
}

func (p *processorStub) ProcessRawEvent(_ context.Context, payload []byte) models.Result {
	p.raw = payload
	return p.result
}

func TestProcessEvent(t *testing.T) {
	stub := &processorStub{result: models.Result{
		Status:    models.StatusSuccess,
		Results:   []models.IncidentResult{{IncidentID: "inc-1"}},
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}}
	service := NewNOCService(nil, stub)

	req, err := structpb.NewStruct(map[string]any{"detail": map[string]any{"alarmName": "cpu-high"}})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := service.ProcessEvent(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.event["detail"].(map[string]any)["alarmName"] != "cpu-high" {
		t.Fatalf("event not forwarded: %+v", stub.event)
	}
	out := resp.AsMap()
	if out["status"] != "success" {
		t.Fatalf("unexpected status %v", out["status"])
	}
	if results := out["results"].([]any); results[0].(map[string]any)["incident_id"] != "inc-1" {
		t.Fatalf("unexpected results %v", results)
	}
	if service.latencies.Count("event") != 1 {
		t.Fatalf("expected latency observation")
	}
}

func TestProcessEventPipelineErrorIsAResult(t *testing.T) {
	stub := &processorStub{result: models.Result{Status: models.StatusError, Error: "missing detail"}}
	service := NewNOCService(nil, stub)

	resp, err := service.ProcessEvent(context.Background(), &structpb.Struct{})
	if err != nil {
		t.Fatalf("pipeline errors should not be gRPC errors: %v", err)
	}
	if resp.AsMap()["error"] != "missing detail" {
		t.Fatalf("unexpected response %v", resp.AsMap())
	}
}

func TestProcessEventNilRequest(t *testing.T) {
	service := NewNOCService(nil, &processorStub{})
	_, err := service.ProcessEvent(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestProcessEventWithoutPipeline(t *testing.T) {
	service := NewNOCService(nil, nil)
	_, err := service.ProcessEvent(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if res := service.ProcessPayload(context.Background(), []byte(`{}`)); res.Status != models.StatusError {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestProcessPayload(t *testing.T) {
	stub := &processorStub{result: models.Result{Status: models.StatusSuccess}}
	service := NewNOCService(nil, stub)

	res := service.ProcessPayload(context.Background(), []byte(`{"detail":{}}`))
	if res.Status != models.StatusSuccess || string(stub.raw) != `{"detail":{}}` {
		t.Fatalf("unexpected result %+v raw=%s", res, stub.raw)
	}
}
