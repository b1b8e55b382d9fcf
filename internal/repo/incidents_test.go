package repo

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/miradorstack/mirador-noc/internal/cache"
	"github.com/miradorstack/mirador-noc/internal/models"
)

type fakeDynamo struct {
	items   []map[string]types.AttributeValue
	scans   int
	lastIn  *dynamodb.ScanInput
	putItem map[string]types.AttributeValue
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans++
	f.lastIn = in
	bound, ok := in.ExpressionAttributeValues[":start"].(*types.AttributeValueMemberN)
	if !ok {
		return &dynamodb.ScanOutput{Items: f.items}, nil
	}
	floor, _ := strconv.ParseInt(bound.Value, 10, 64)
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		at, ok := item[recordedAtAttr].(*types.AttributeValueMemberN)
		if !ok {
			continue
		}
		if v, _ := strconv.ParseInt(at.Value, 10, 64); v >= floor {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putItem = in.Item
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func mustMarshalRecord(t *testing.T, rec models.IncidentRecord) map[string]types.AttributeValue {
	t.Helper()
	item, err := incidentItem(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return item
}

func TestRecentScansWithTimestampFilter(t *testing.T) {
	now := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	api := &fakeDynamo{items: []map[string]types.AttributeValue{
		mustMarshalRecord(t, models.IncidentRecord{ID: "new", Timestamp: now.Add(-time.Hour), RootCause: "disk"}),
		mustMarshalRecord(t, models.IncidentRecord{ID: "old", Timestamp: now.Add(-48 * time.Hour), RootCause: "cpu"}),
		mustMarshalRecord(t, models.IncidentRecord{ID: "mid", Timestamp: now.Add(-2 * time.Hour), RootCause: "disk"}),
	}}
	repo := NewIncidentRepo(api, "NOCIncidents", nil, 0, nil)

	records, err := repo.Recent(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if aws.ToString(api.lastIn.TableName) != "NOCIncidents" || aws.ToString(api.lastIn.FilterExpression) != "#at >= :start" {
		t.Fatalf("unexpected scan input: %+v", api.lastIn)
	}
	if api.lastIn.ExpressionAttributeNames["#at"] != recordedAtAttr {
		t.Fatalf("expected filter on the numeric time attribute")
	}
	if len(records) != 2 || records[0].ID != "mid" || records[1].ID != "new" {
		t.Fatalf("expected in-window records oldest first, got %+v", records)
	}
}

func TestRecentKeepsFractionalSecondRecords(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeDynamo{}
	repo := NewIncidentRepo(api, "NOCIncidents", nil, 0, nil)
	ctx := context.Background()
	for _, rec := range []models.IncidentRecord{
		{ID: "later", Timestamp: since.Add(700 * time.Millisecond)},
		{ID: "exact", Timestamp: since},
		{ID: "earlier", Timestamp: since.Add(-time.Millisecond)},
	} {
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, ok := api.putItem[recordedAtAttr].(*types.AttributeValueMemberN); !ok {
		t.Fatalf("expected numeric time attribute on stored item: %+v", api.putItem)
	}

	records, err := repo.Recent(ctx, since)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 || records[0].ID != "exact" || records[1].ID != "later" {
		t.Fatalf("expected exact and sub-second later records, got %+v", records)
	}
}

func TestRecentServesFromCacheUntilRecord(t *testing.T) {
	now := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	api := &fakeDynamo{items: []map[string]types.AttributeValue{
		mustMarshalRecord(t, models.IncidentRecord{ID: "a", Timestamp: now.Add(-time.Hour)}),
	}}
	repo := NewIncidentRepo(api, "NOCIncidents", cache.NewMemoryProvider(), time.Minute, nil)
	ctx := context.Background()

	if _, err := repo.Recent(ctx, now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("recent: %v", err)
	}
	records, err := repo.Recent(ctx, now.Add(-23*time.Hour))
	if err != nil {
		t.Fatalf("recent cached: %v", err)
	}
	if api.scans != 1 || len(records) != 1 {
		t.Fatalf("expected cached narrower window, scans=%d records=%d", api.scans, len(records))
	}

	if _, err := repo.Recent(ctx, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("recent wider: %v", err)
	}
	if api.scans != 2 {
		t.Fatalf("wider window must rescan, scans=%d", api.scans)
	}

	if err := repo.Record(ctx, models.IncidentRecord{ID: "b", Timestamp: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	records, err = repo.Recent(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("recent after record: %v", err)
	}
	if api.scans != 3 || len(records) != 2 {
		t.Fatalf("expected cache invalidated by record, scans=%d records=%d", api.scans, len(records))
	}
}

func TestRecordRequiresID(t *testing.T) {
	repo := NewIncidentRepo(&fakeDynamo{}, "NOCIncidents", nil, 0, nil)
	if err := repo.Record(context.Background(), models.IncidentRecord{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}
