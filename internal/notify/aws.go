package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/newthinker/glacier/internal/core"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	DeleteTopic(ctx context.Context, params *sns.DeleteTopicInput, optFns ...func(*sns.Options)) (*sns.DeleteTopicOutput, error)
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
}

// maxReceiveWait is the SQS long-poll ceiling.
const maxReceiveWait = 20 * time.Second

// AWSConfig names the resources created per channel.
type AWSConfig struct {
	TopicPrefix string
	QueuePrefix string
}

// AWS provisions SNS topic + SQS queue channels.
type AWS struct {
	sns    SNSAPI
	sqs    SQSAPI
	cfg    AWSConfig
	logger *zap.Logger
}

// NewAWS creates a provisioner from an AWS config.
func NewAWS(awsCfg aws.Config, cfg AWSConfig, logger *zap.Logger) *AWS {
	return NewAWSWithAPI(sns.NewFromConfig(awsCfg), sqs.NewFromConfig(awsCfg), cfg, logger)
}

// NewAWSWithAPI creates a provisioner from existing clients.
func NewAWSWithAPI(snsAPI SNSAPI, sqsAPI SQSAPI, cfg AWSConfig, logger *zap.Logger) *AWS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AWS{sns: snsAPI, sqs: sqsAPI, cfg: cfg, logger: logger}
}

// Open creates a fresh topic and queue, subscribes the queue to the topic and
// grants the topic permission to deliver. Anything created before a failure
// is deleted again.
func (a *AWS) Open(ctx context.Context, vault core.Vault) (Channel, error) {
	suffix := uuid.NewString()
	ch := &awsChannel{
		sns:    a.sns,
		sqs:    a.sqs,
		logger: a.logger.With(zap.String("vault", vault.Name)),
	}

	topic, err := a.sns.CreateTopic(ctx, &sns.CreateTopicInput{
		Name: aws.String(a.cfg.TopicPrefix + "-" + suffix),
	})
	if err != nil {
		return nil, core.Errorf(core.ErrTransportFailure, "creating topic: %w", err)
	}
	ch.topicARN = aws.ToString(topic.TopicArn)

	fail := func(op string, err error) (Channel, error) {
		cause := fmt.Errorf("%s: %w", op, err)
		if cerr := ch.Close(context.WithoutCancel(ctx)); cerr != nil {
			cause = multierr.Append(cause, cerr)
		}
		return nil, core.WrapError(core.ErrTransportFailure, cause)
	}

	queue, err := a.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(a.cfg.QueuePrefix + "-" + suffix),
	})
	if err != nil {
		return fail("creating queue", err)
	}
	ch.queueURL = aws.ToString(queue.QueueUrl)

	attrs, err := a.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(ch.queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fail("reading queue arn", err)
	}
	queueARN := attrs.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]

	policy, err := deliveryPolicy(queueARN, ch.topicARN)
	if err != nil {
		return fail("building queue policy", err)
	}
	if _, err := a.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl:   aws.String(ch.queueURL),
		Attributes: map[string]string{string(sqstypes.QueueAttributeNamePolicy): policy},
	}); err != nil {
		return fail("setting queue policy", err)
	}

	if _, err := a.sns.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(ch.topicARN),
		Protocol: aws.String("sqs"),
		Endpoint: aws.String(queueARN),
	}); err != nil {
		return fail("subscribing queue", err)
	}

	ch.logger.Debug("notification channel opened",
		zap.String("topic", ch.topicARN),
		zap.String("queue", ch.queueURL))
	return ch, nil
}

func deliveryPolicy(queueARN, topicARN string) (string, error) {
	type statement struct {
		Sid       string                       `json:"Sid"`
		Effect    string                       `json:"Effect"`
		Principal map[string]string            `json:"Principal"`
		Action    string                       `json:"Action"`
		Resource  string                       `json:"Resource"`
		Condition map[string]map[string]string `json:"Condition"`
	}
	doc := struct {
		Version   string      `json:"Version"`
		Statement []statement `json:"Statement"`
	}{
		Version: "2012-10-17",
		Statement: []statement{{
			Sid:       "AllowGlacierTopic",
			Effect:    "Allow",
			Principal: map[string]string{"Service": "sns.amazonaws.com"},
			Action:    "sqs:SendMessage",
			Resource:  queueARN,
			Condition: map[string]map[string]string{"ArnEquals": {"aws:SourceArn": topicARN}},
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type awsChannel struct {
	sns    SNSAPI
	sqs    SQSAPI
	logger *zap.Logger

	topicARN string
	queueURL string

	mu           sync.Mutex
	queueDeleted bool
	topicDeleted bool
}

func (c *awsChannel) TopicARN() string { return c.topicARN }

// waitSeconds rounds wait up to whole seconds within [1s, maxReceiveWait].
// A zero WaitTimeSeconds would make SQS short-poll.
func waitSeconds(wait time.Duration) int32 {
	if wait > maxReceiveWait {
		wait = maxReceiveWait
	}
	secs := int32((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (c *awsChannel) Receive(ctx context.Context, wait time.Duration) ([]Event, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     waitSeconds(wait),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.Errorf(core.ErrTransportFailure, "receiving messages: %w", err)
	}

	events := make([]Event, 0, len(out.Messages))
	for _, m := range out.Messages {
		ev, perr := ParseEvent(aws.ToString(m.Body))
		if perr != nil {
			c.logger.Warn("ignoring unparseable notification", zap.Error(perr))
		} else {
			events = append(events, ev)
		}
		// Each message is consumed exactly once; the channel never sees it again.
		if _, derr := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: m.ReceiptHandle,
		}); derr != nil {
			c.logger.Warn("failed to delete notification", zap.Error(derr))
		}
	}
	return events, nil
}

func (c *awsChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.queueURL != "" && !c.queueDeleted {
		if _, qerr := c.sqs.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(c.queueURL)}); qerr != nil {
			err = multierr.Append(err, fmt.Errorf("deleting queue %s: %w", c.queueURL, qerr))
		} else {
			c.queueDeleted = true
		}
	}
	if c.topicARN != "" && !c.topicDeleted {
		if _, terr := c.sns.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(c.topicARN)}); terr != nil {
			err = multierr.Append(err, fmt.Errorf("deleting topic %s: %w", c.topicARN, terr))
		} else {
			c.topicDeleted = true
		}
	}
	if err != nil {
		return core.WrapError(core.ErrTransportFailure, err)
	}

	c.logger.Debug("notification channel closed", zap.String("topic", c.topicARN))
	return nil
}
