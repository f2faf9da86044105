package metrics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cryptoreport/logger"
)

func stubPublisher(t *testing.T, baseTime time.Time) *[][]cwtypes.MetricDatum {
	t.Helper()
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "test"})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return &batches
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	baseTime := time.Now()
	batches := stubPublisher(t, baseTime)

	metric := Metric{Component: "poller", Name: MetricPollResult, Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(25 * time.Millisecond) }
	publishMetricDatum(metric, 2)

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}
	datum := (*batches)[0][0]
	if datum.MetricName == nil || *datum.MetricName != MetricPollResult {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	baseTime := time.Now()
	batches := stubPublisher(t, baseTime)

	metric := Metric{Component: "poller", Name: MetricPollDuration, Timestamp: baseTime, Fields: logger.Fields{"unit": "milliseconds"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	publishMetricDatum(metric, 2)

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	second := (*batches)[1][0]
	if second.Value == nil || *second.Value != 2 {
		t.Fatalf("unexpected metric value: %v", second.Value)
	}
	if second.Unit != cwtypes.StandardUnitMilliseconds {
		t.Fatalf("unexpected unit: %s", second.Unit)
	}
}

func TestPublishMetricDatumSeparatesDimensions(t *testing.T) {
	baseTime := time.Now()
	batches := stubPublisher(t, baseTime)

	publishMetricDatum(Metric{Component: "poller", Name: MetricPollResult, Fields: logger.Fields{"result": "success"}}, 1)
	publishMetricDatum(Metric{Component: "poller", Name: MetricPollResult, Fields: logger.Fields{"result": "failure"}}, 1)

	if len(*batches) != 2 {
		t.Fatalf("expected one publish per dimension set, got %d", len(*batches))
	}
}

func TestRenderDashboard(t *testing.T) {
	body, err := renderDashboard("Reports", "eu-central-1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !json.Valid([]byte(body)) {
		t.Fatalf("dashboard is not valid JSON")
	}
	if strings.Contains(body, "\"CryptoReport\"") || !strings.Contains(body, "\"Reports\"") {
		t.Fatalf("namespace not substituted")
	}
	if !strings.Contains(body, "\"eu-central-1\"") {
		t.Fatalf("region not substituted")
	}
}

func TestPublishMetricDatumStableSeriesAcrossFieldOrder(t *testing.T) {
	baseTime := time.Now()
	batches := stubPublisher(t, baseTime)

	metric := Metric{
		Component: "poller",
		Name:      MetricPollDuration,
		Fields:    logger.Fields{"result": "success", "kind": "none", "stage": "fetch", "source": "coingecko", "unit": "milliseconds"},
	}
	for i := 0; i < 20; i++ {
		publishMetricDatum(metric, float64(i))
	}

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish inside one window, got %d", len(*batches))
	}
	dims := (*batches)[0][0].Dimensions
	want := []string{"component", "kind", "result", "source", "stage"}
	if len(dims) != len(want) {
		t.Fatalf("unexpected dimensions %v", dims)
	}
	for i, name := range want {
		if got := aws.ToString(dims[i].Name); got != name {
			t.Fatalf("dimension %d = %s, want %s", i, got, name)
		}
	}
}

func TestPublishMetricDatumSumsCountersInWindow(t *testing.T) {
	baseTime := time.Now()
	batches := stubPublisher(t, baseTime)

	metric := Metric{Component: "poller", Name: MetricPollResult, Type: "counter", Fields: logger.Fields{"result": "success", "unit": "count"}}
	publishMetricDatum(metric, 1)

	for _, offset := range []time.Duration{10, 20, 30, 40} {
		timeNow = func() time.Time { return baseTime.Add(offset * time.Millisecond) }
		publishMetricDatum(metric, 1)
	}
	if len(*batches) != 1 {
		t.Fatalf("expected increments inside the window to be held, got %d publishes", len(*batches))
	}

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	publishMetricDatum(metric, 1)

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	if v := aws.ToFloat64((*batches)[0][0].Value); v != 1 {
		t.Fatalf("first publish = %v, want 1", v)
	}
	if v := aws.ToFloat64((*batches)[1][0].Value); v != 5 {
		t.Fatalf("second publish = %v, want accumulated 5", v)
	}
}

func TestFlushCloudWatchPublishesPendingCounters(t *testing.T) {
	baseTime := time.Now()
	batches := stubPublisher(t, baseTime)

	counter := Metric{Component: "poller", Name: MetricPollResult, Type: "counter", Fields: logger.Fields{"result": "failure"}}
	gauge := Metric{Component: "poller", Name: MetricPollDuration, Fields: logger.Fields{"unit": "milliseconds"}}
	publishMetricDatum(counter, 1)
	publishMetricDatum(gauge, 3)
	publishMetricDatum(counter, 1)
	publishMetricDatum(counter, 1)
	publishMetricDatum(gauge, 4)

	FlushCloudWatch(context.Background())

	if len(*batches) != 3 {
		t.Fatalf("expected 3 publishes, got %d", len(*batches))
	}
	flushed := (*batches)[2]
	if len(flushed) != 1 {
		t.Fatalf("expected only the counter to flush, got %d data", len(flushed))
	}
	if aws.ToString(flushed[0].MetricName) != MetricPollResult || aws.ToFloat64(flushed[0].Value) != 2 {
		t.Fatalf("unexpected flushed datum %s=%v", aws.ToString(flushed[0].MetricName), aws.ToFloat64(flushed[0].Value))
	}

	FlushCloudWatch(context.Background())
	if len(*batches) != 3 {
		t.Fatalf("second flush should publish nothing")
	}
}
