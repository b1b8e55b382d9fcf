package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-noc/internal/models"
)

// FromProtoEvent maps the gRPC struct into the event map the orchestrator consumes.
func FromProtoEvent(event *structpb.Struct) (map[string]any, error) {
	if event == nil {
		return nil, fmt.Errorf("event is nil")
	}
	return event.AsMap(), nil
}

// ToProtoEvent converts an event map into its gRPC representation.
func ToProtoEvent(event map[string]any) (*structpb.Struct, error) {
	return toStruct(event)
}

// ToProtoResult converts a pipeline result into the gRPC representation. The
// struct mirrors the JSON encoding of models.Result.
func ToProtoResult(res models.Result) (*structpb.Struct, error) {
	return toStruct(res)
}

// structpb only accepts JSON-native values, so round-trip through encoding/json.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}
