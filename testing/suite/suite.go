// Package suite starts the shared-record backends of the polling transport in
// throwaway containers for integration tests.
package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	expireDuration  = 120
	maxWaitDuration = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"

	dynamoPort   = "8000/tcp"
	dynamoImage  = "amazon/dynamodb-local"
	dynamoTag    = "latest"
	dynamoRegion = "us-east-1"
)

type Suite struct {
	*testing.T
	Logger *slog.Logger

	Redis  *redis.Client
	Dynamo *dynamodb.DynamoDB
}

// New - starts Redis, the default polling backend.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, pool, resource := start(t, &dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	})

	redisHost := resource.GetHostPort(redisPort)

	var redisClient *redis.Client
	if err := pool.Retry(func() error {
		redisClient = redis.NewClient(&redis.Options{
			Addr: redisHost,
		})
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		t.Fatalf("could not connect to redis: %v", err)
	}

	if err := redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	return ctx, &Suite{
		T:      t,
		Logger: newLogger(),
		Redis:  redisClient,
	}
}

// NewDynamo - starts DynamoDB Local in memory. Tables are left to the caller.
func NewDynamo(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, pool, resource := start(t, &dockertest.RunOptions{
		Repository: dynamoImage,
		Tag:        dynamoTag,
		Cmd:        []string{"-jar", "DynamoDBLocal.jar", "-inMemory"},
	})

	// DynamoDB Local accepts any credentials but the SDK refuses to sign without them
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(dynamoRegion),
		Endpoint:    aws.String("http://" + resource.GetHostPort(dynamoPort)),
		Credentials: credentials.NewStaticCredentials("local", "local", ""),
	})
	if err != nil {
		t.Fatalf("could not create aws session: %v", err)
	}

	db := dynamodb.New(sess)

	if err = pool.Retry(func() error {
		_, listErr := db.ListTablesWithContext(ctx, &dynamodb.ListTablesInput{})
		return listErr
	}); err != nil {
		t.Fatalf("could not connect to dynamodb: %v", err)
	}

	return ctx, &Suite{
		T:      t,
		Logger: newLogger(),
		Dynamo: db,
	}
}

// start - runs a container that is purged with the test and hard killed after expireDuration.
func start(t *testing.T, opts *dockertest.RunOptions) (context.Context, *dockertest.Pool, *dockertest.Resource) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start %s: %v", opts.Repository, err)
	}

	// never returns error
	_ = resource.Expire(expireDuration)

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Errorf("could not purge %s: %v", opts.Repository, err)
		}
	})

	// the service inside may need a moment before it accepts connections
	pool.MaxWait = maxWaitDuration

	return ctx, pool, resource
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
