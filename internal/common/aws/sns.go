// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"task-recipes/internal/orchestrator"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client   SNSAPI
	topicARN string
}

func NewSNSClient(ctx context.Context, region, topicARN string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSNSClientWithAPI(sns.NewFromConfig(cfg), topicARN), nil
}

func NewSNSClientWithAPI(api SNSAPI, topicARN string) *SNSClient {
	return &SNSClient{client: api, topicARN: topicARN}
}

// taskRunNotification is the message body published for a final task run.
type taskRunNotification struct {
	TaskRunID string `json:"task_run_id"`
	TaskKey   string `json:"task_key"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StateName string `json:"state_name"`
	Message   string `json:"message,omitempty"`
}

// TaskRunHook publishes final task run states to the topic. Register it as
// an OnCompletion or OnFailure hook.
func (s *SNSClient) TaskRunHook() orchestrator.StateHook {
	return func(ctx context.Context, ev orchestrator.HookEvent) error {
		run := ev.Run
		body, err := json.Marshal(taskRunNotification{
			TaskRunID: run.ID.String(),
			TaskKey:   run.TaskKey,
			Name:      run.Name,
			State:     string(run.State.Type),
			StateName: run.State.Name,
			Message:   run.State.Message,
		})
		if err != nil {
			return err
		}
		_, err = s.client.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(s.topicARN),
			Subject:  aws.String(fmt.Sprintf("%s %s", run.TaskKey, run.State.Type)),
			Message:  aws.String(string(body)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"task_key": {DataType: aws.String("String"), StringValue: aws.String(run.TaskKey)},
				"state":    {DataType: aws.String("String"), StringValue: aws.String(string(run.State.Type))},
			},
		})
		if err != nil {
			return fmt.Errorf("sns publish: %w", err)
		}
		return nil
	}
}
