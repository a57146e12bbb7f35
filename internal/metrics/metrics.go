package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"go.uber.org/zap"
)

// Metric names.
const (
	OrdersCreated    = "OrdersCreated"
	OrdersReconciled = "OrdersReconciled"
	CheckoutFailures = "CheckoutFailures"
)

// Recorder publishes checkout counters to CloudWatch. A nil client disables it.
type Recorder struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewRecorder creates a Recorder under namespace.
func NewRecorder(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *Recorder {
	return &Recorder{client: client, namespace: namespace, logger: logger, nowFunc: time.Now}
}

// Count adds one to metric. dims are name/value pairs. Errors are logged, not returned.
func (r *Recorder) Count(ctx context.Context, metric string, dims ...string) {
	if r == nil || r.client == nil {
		return
	}
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Timestamp:  timePtr(r.nowFunc()),
		Unit:       cwtypes.StandardUnitCount,
		Value:      float64Ptr(1),
	}
	for i := 0; i+1 < len(dims); i += 2 {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  aws.String(dims[i]),
			Value: aws.String(dims[i+1]),
		})
	}
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		r.logger.Warn("put metric failed", zap.String("metric", metric), zap.Error(fmt.Errorf("put metric data: %w", err)))
	}
}

func timePtr(t time.Time) *time.Time { return &t }
func float64Ptr(v float64) *float64 { return &v }
