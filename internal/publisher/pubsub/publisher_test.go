package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublishAgainstFakeServer(t *testing.T) {
	t.Parallel()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	ctx := context.Background()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	pub, err := New(ctx, "proj", "articles", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	_, err = pub.client.CreateTopic(ctx, "articles")
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "article.published", map[string]string{"article_id": "a1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"article_id":"a1"}`, string(msgs[0].Data))
	require.Equal(t, "article.published", msgs[0].Attributes[EventAttribute])
}

func TestNewRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "proj", "")
	require.Error(t, err)
}
