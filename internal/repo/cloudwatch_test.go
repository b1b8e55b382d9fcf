package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type fakeCloudWatch struct {
	pages      []*cloudwatch.DescribeAlarmsOutput
	calls      int
	stateValue types.StateValue
	statsIn    *cloudwatch.GetMetricStatisticsInput
	statsOut   *cloudwatch.GetMetricStatisticsOutput
	err        error
}

func (f *fakeCloudWatch) DescribeAlarms(_ context.Context, in *cloudwatch.DescribeAlarmsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stateValue = in.StateValue
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeCloudWatch) GetMetricStatistics(_ context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	f.statsIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.statsOut, nil
}

func TestListFiringFollowsPages(t *testing.T) {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeCloudWatch{pages: []*cloudwatch.DescribeAlarmsOutput{
		{
			MetricAlarms: []types.MetricAlarm{{
				AlarmName:             aws.String("cpu-high"),
				Namespace:             aws.String("AWS/EC2"),
				MetricName:            aws.String("CPUUtilization"),
				StateValue:            types.StateValueAlarm,
				StateUpdatedTimestamp: aws.Time(updated),
				Dimensions:            []types.Dimension{{Name: aws.String("InstanceId"), Value: aws.String("i-1")}},
			}},
			NextToken: aws.String("page-2"),
		},
		{
			MetricAlarms: []types.MetricAlarm{{AlarmName: aws.String("db-conn"), Namespace: aws.String("AWS/RDS")}},
		},
	}}

	alarms, err := NewCloudWatchRepo(api).ListFiring(context.Background())
	if err != nil {
		t.Fatalf("list firing: %v", err)
	}
	if api.stateValue != types.StateValueAlarm {
		t.Fatalf("expected ALARM state filter, got %q", api.stateValue)
	}
	if api.calls != 2 || len(alarms) != 2 {
		t.Fatalf("expected two pages and two alarms, got calls=%d alarms=%d", api.calls, len(alarms))
	}
	first := alarms[0]
	if first.Name != "cpu-high" || first.Source() != "EC2" || first.Dimensions["InstanceId"] != "i-1" {
		t.Fatalf("unexpected alarm mapping: %+v", first)
	}
	if !first.StateUpdatedAt.Equal(updated) {
		t.Fatalf("unexpected timestamp: %v", first.StateUpdatedAt)
	}
	if !alarms[1].StateUpdatedAt.IsZero() {
		t.Fatalf("missing timestamp should stay zero")
	}
}

func TestListFiringWrapsError(t *testing.T) {
	api := &fakeCloudWatch{err: errors.New("throttled")}
	if _, err := NewCloudWatchRepo(api).ListFiring(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSamplesSortsAndQueriesAverage(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeCloudWatch{statsOut: &cloudwatch.GetMetricStatisticsOutput{Datapoints: []types.Datapoint{
		{Timestamp: aws.Time(base.Add(10 * time.Minute)), Average: aws.Float64(3)},
		{Timestamp: aws.Time(base), Average: aws.Float64(1)},
		{Timestamp: aws.Time(base.Add(5 * time.Minute))},
	}}}

	samples, err := NewCloudWatchRepo(api).Samples(context.Background(), "EC2", "CPUUtilization", base.Add(-time.Hour), base, 5*time.Minute)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if aws.ToString(api.statsIn.Namespace) != "AWS/EC2" || aws.ToInt32(api.statsIn.Period) != 300 {
		t.Fatalf("unexpected query: ns=%s period=%d", aws.ToString(api.statsIn.Namespace), aws.ToInt32(api.statsIn.Period))
	}
	if len(api.statsIn.Statistics) != 1 || api.statsIn.Statistics[0] != types.StatisticAverage {
		t.Fatalf("expected Average statistic, got %v", api.statsIn.Statistics)
	}
	if len(samples) != 2 || samples[0].Value != 1 || samples[1].Value != 3 {
		t.Fatalf("expected sorted samples without empty datapoints, got %+v", samples)
	}
}
