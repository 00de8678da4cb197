package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const defaultRegion = "us-east-1"

type sendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient sends run messages to AWS SQS. On a FIFO queue the run ID is
// both the group and the deduplication ID, so a double submit of one run is
// delivered once.
type SQSClient struct {
	client   sendAPI
	queueURL string
	fifo     bool
}

// NewSQSClient constructs an SQS-backed queue client.
func NewSQSClient(ctx context.Context, queueURL, region string) (*SQSClient, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL is required")
	}
	if strings.TrimSpace(region) == "" {
		region = defaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSQSClientWithAPI(sqs.NewFromConfig(cfg), queueURL), nil
}

// NewSQSClientWithAPI wraps an existing SQS API client.
func NewSQSClientWithAPI(api sendAPI, queueURL string) *SQSClient {
	return &SQSClient{client: api, queueURL: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

// Send delivers a message to the configured SQS queue.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"runId": {DataType: aws.String("String"), StringValue: aws.String(msg.RunID)},
		},
	}
	if msg.RequestID != "" {
		input.MessageAttributes["requestId"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.RequestID)}
	}
	if s.fifo {
		input.MessageGroupId = aws.String(msg.RunID)
		input.MessageDeduplicationId = aws.String(msg.RunID)
	}
	if _, err = s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send message run=%s: %w", msg.RunID, err)
	}
	return nil
}

var _ Client = (*SQSClient)(nil)
