package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/miradorstack/mirador-noc/internal/cache"
	"github.com/miradorstack/mirador-noc/internal/models"
)

const (
	recentIncidentsKey = "noc:incidents:recent"
	// recordedAtAttr holds the incident time as epoch milliseconds. The scan
	// bound filters on it since timestamp strings do not order lexically.
	recordedAtAttr = "recorded_at_ms"
)

// DynamoDBAPI is the subset of the DynamoDB client the incident repo uses.
type DynamoDBAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// IncidentRepo persists incident summaries and serves recent history.
type IncidentRepo struct {
	client DynamoDBAPI
	table  string
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

type cachedIncidents struct {
	Since   time.Time               `json:"since"`
	Records []models.IncidentRecord `json:"records"`
}

// NewIncidentRepo constructs the repo. A nil cache disables caching.
func NewIncidentRepo(client DynamoDBAPI, table string, cacheProvider cache.Provider, ttl time.Duration, logger *slog.Logger) *IncidentRepo {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IncidentRepo{client: client, table: table, cache: cacheProvider, ttl: ttl, logger: logger}
}

// NewIncidentRepoFromConfig builds the repo on a real SDK client.
func NewIncidentRepoFromConfig(cfg aws.Config, table string, cacheProvider cache.Provider, ttl time.Duration, logger *slog.Logger) *IncidentRepo {
	return NewIncidentRepo(dynamodb.NewFromConfig(cfg), table, cacheProvider, ttl, logger)
}

// Recent returns incidents recorded at or after since, oldest first.
func (r *IncidentRepo) Recent(ctx context.Context, since time.Time) ([]models.IncidentRecord, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("incident store not initialised")
	}
	since = since.UTC()

	if data, err := r.cache.Get(ctx, recentIncidentsKey); err == nil {
		var cached cachedIncidents
		if err := json.Unmarshal(data, &cached); err == nil && !cached.Since.After(since) {
			return filterSince(cached.Records, since), nil
		}
	}

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.table),
		FilterExpression:         aws.String("#at >= :start"),
		ExpressionAttributeNames: map[string]string{"#at": recordedAtAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":start": &types.AttributeValueMemberN{Value: strconv.FormatInt(since.UnixMilli(), 10)},
		},
	})

	var records []models.IncidentRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.table, err)
		}
		var batch []models.IncidentRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("decode incidents: %w", err)
		}
		records = append(records, batch...)
	}
	records = filterSince(records, since)

	if r.ttl > 0 {
		if payload, err := json.Marshal(cachedIncidents{Since: since, Records: records}); err == nil {
			if err := r.cache.Set(ctx, recentIncidentsKey, payload, r.ttl); err != nil {
				r.logger.Debug("incident cache write failed", slog.Any("error", err))
			}
		}
	}
	return records, nil
}

// Record stores one incident summary and invalidates the history cache.
func (r *IncidentRepo) Record(ctx context.Context, record models.IncidentRecord) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("incident store not initialised")
	}
	if record.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	item, err := incidentItem(record)
	if err != nil {
		return err
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put incident %s: %w", record.ID, err)
	}
	if err := r.cache.Del(ctx, recentIncidentsKey); err != nil {
		r.logger.Debug("incident cache invalidation failed", slog.Any("error", err))
	}
	return nil
}

func incidentItem(record models.IncidentRecord) (map[string]types.AttributeValue, error) {
	record.Timestamp = record.Timestamp.UTC()
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("marshal incident: %w", err)
	}
	item[recordedAtAttr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(record.Timestamp.UnixMilli(), 10)}
	return item, nil
}

// filterSince re-applies the bound at full precision; the scan filter works
// in whole milliseconds.
func filterSince(records []models.IncidentRecord, since time.Time) []models.IncidentRecord {
	out := make([]models.IncidentRecord, 0, len(records))
	for _, rec := range records {
		if rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
