package sqs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeClient) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	return &sqs.SendMessageOutput{MessageId: aws.String("m-9")}, nil
}

func TestPublish(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	p := &Publisher{queueURL: "https://sqs.example/1/articles", client: fake}

	id, err := p.Publish(context.Background(), "article.published", map[string]string{"article_id": "a1"})
	require.NoError(t, err)
	require.Equal(t, "m-9", id)
	require.Equal(t, "https://sqs.example/1/articles", aws.ToString(fake.input.QueueUrl))
	require.JSONEq(t, `{"article_id":"a1"}`, aws.ToString(fake.input.MessageBody))
}

func TestPublishError(t *testing.T) {
	t.Parallel()

	p := &Publisher{queueURL: "q", client: &fakeClient{err: errors.New("denied")}}
	_, err := p.Publish(context.Background(), "article.published", 1)
	require.ErrorContains(t, err, "denied")
}
