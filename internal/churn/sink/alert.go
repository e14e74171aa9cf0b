package sink

import (
	"context"
	"encoding/json"
	"fmt"

	awsclient "churn-service/internal/common/aws"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// LabelLeaves is the prediction label that can trigger an alert.
const LabelLeaves = "Leaves"

// AlertSink publishes a retention alert for customers likely to leave.
type AlertSink struct {
	publisher awsclient.SNSPublisher
	topicARN  string
	threshold float64
}

func NewAlertSink(publisher awsclient.SNSPublisher, topicARN string, threshold float64) *AlertSink {
	return &AlertSink{publisher: publisher, topicARN: topicARN, threshold: threshold}
}

func (s *AlertSink) Name() string { return "sns" }

// ShouldAlert reports whether event crosses the alert threshold.
func (s *AlertSink) ShouldAlert(event Event) bool {
	return event.Prediction == LabelLeaves && event.Probability >= s.threshold
}

func (s *AlertSink) Record(ctx context.Context, event Event) error {
	if !s.ShouldAlert(event) {
		return nil
	}

	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String("Churn risk alert"),
		Message:  aws.String(string(message)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"prediction": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Prediction),
			},
			"probability": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(fmt.Sprintf("%.2f", event.Probability)),
			},
		},
	}
	if event.CustomerID != "" {
		input.MessageAttributes["customerId"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(event.CustomerID),
		}
	}

	if _, err := s.publisher.Publish(ctx, input); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
