package sqsq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/queue"
)

type fakeAPI struct {
	sent     []string
	received *sqs.ReceiveMessageInput
	deleted  []string
	err      error
}

func (f *fakeAPI) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeAPI) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.received = in
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("r-1"),
		Body:          aws.String(`{"event":"PAYMENT_RECEIVED"}`),
		Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
	}}}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestQueue(t *testing.T) {
	api := &fakeAPI{}
	q := New(api, "https://sqs.local/000/cashin")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []byte(`{"a":1}`)))
	require.Equal(t, []string{`{"a":1}`}, api.sent)

	mm, err := q.Receive(ctx, 50, time.Minute)
	require.NoError(t, err)
	require.Len(t, mm, 1)
	require.Equal(t, queue.Message{
		ID:      "m-1",
		Receipt: "r-1",
		Body:    []byte(`{"event":"PAYMENT_RECEIVED"}`),
		Attempt: 3,
	}, mm[0])
	require.EqualValues(t, maxBatch, api.received.MaxNumberOfMessages)
	require.EqualValues(t, 20, api.received.WaitTimeSeconds)

	require.NoError(t, q.Ack(ctx, mm[0]))
	require.Equal(t, []string{"r-1"}, api.deleted)
}

func TestQueueErrors(t *testing.T) {
	api := &fakeAPI{err: errors.New("throttled")}
	q := New(api, "url")
	ctx := context.Background()

	require.Error(t, q.Enqueue(ctx, []byte("x")))
	_, err := q.Receive(ctx, 1, time.Second)
	require.Error(t, err)
	require.Error(t, q.Ack(ctx, queue.Message{Receipt: "r"}))
}
