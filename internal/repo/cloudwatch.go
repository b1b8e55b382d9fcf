package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/miradorstack/mirador-noc/internal/models"
)

// CloudWatchAPI is the subset of the CloudWatch client the repo uses.
type CloudWatchAPI interface {
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatchRepo snapshots firing alarms and reads metric statistics.
type CloudWatchRepo struct {
	client CloudWatchAPI
}

// NewCloudWatchRepo wraps a CloudWatch client.
func NewCloudWatchRepo(client CloudWatchAPI) *CloudWatchRepo {
	return &CloudWatchRepo{client: client}
}

// NewCloudWatchRepoFromConfig builds the repo on a real SDK client.
func NewCloudWatchRepoFromConfig(cfg aws.Config) *CloudWatchRepo {
	return NewCloudWatchRepo(cloudwatch.NewFromConfig(cfg))
}

// ListFiring returns every metric alarm currently in ALARM state.
func (r *CloudWatchRepo) ListFiring(ctx context.Context) ([]models.Alarm, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("cloudwatch client not initialised")
	}
	paginator := cloudwatch.NewDescribeAlarmsPaginator(r.client, &cloudwatch.DescribeAlarmsInput{
		StateValue: types.StateValueAlarm,
	})

	var alarms []models.Alarm
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe alarms: %w", err)
		}
		for _, ma := range page.MetricAlarms {
			alarms = append(alarms, alarmFromMetricAlarm(ma))
		}
	}
	return alarms, nil
}

// Samples fetches Average statistics for AWS/<source> metric over [start, end].
// Datapoints are returned in ascending time order.
func (r *CloudWatchRepo) Samples(ctx context.Context, source, metric string, start, end time.Time, period time.Duration) ([]models.Sample, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("cloudwatch client not initialised")
	}
	seconds := int32(period / time.Second)
	if seconds <= 0 {
		seconds = 300
	}
	out, err := r.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespaceForSource(source)),
		MetricName: aws.String(metric),
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(seconds),
		Statistics: []types.Statistic{types.StatisticAverage},
	})
	if err != nil {
		return nil, fmt.Errorf("get metric statistics %s/%s: %w", source, metric, err)
	}

	samples := make([]models.Sample, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		if dp.Average == nil {
			continue
		}
		samples = append(samples, models.Sample{
			Timestamp: aws.ToTime(dp.Timestamp).UTC(),
			Value:     aws.ToFloat64(dp.Average),
		})
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}

func namespaceForSource(source string) string {
	if strings.Contains(source, "/") {
		return source
	}
	return "AWS/" + source
}

func alarmFromMetricAlarm(ma types.MetricAlarm) models.Alarm {
	alarm := models.Alarm{
		Name:        aws.ToString(ma.AlarmName),
		ARN:         aws.ToString(ma.AlarmArn),
		Namespace:   aws.ToString(ma.Namespace),
		MetricName:  aws.ToString(ma.MetricName),
		State:       models.AlarmState(ma.StateValue),
		StateReason: aws.ToString(ma.StateReason),
	}
	if ma.StateUpdatedTimestamp != nil {
		alarm.StateUpdatedAt = ma.StateUpdatedTimestamp.UTC()
	}
	if len(ma.Dimensions) > 0 {
		alarm.Dimensions = make(map[string]string, len(ma.Dimensions))
		for _, d := range ma.Dimensions {
			alarm.Dimensions[aws.ToString(d.Name)] = aws.ToString(d.Value)
		}
	}
	return alarm
}
