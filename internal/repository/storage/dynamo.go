package storage

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// NewDynamo - creates a DynamoDB client. An empty endpoint means the regional AWS endpoint.
func NewDynamo(region, endpoint string) (*dynamodb.DynamoDB, error) {
	conf := &aws.Config{
		Region: aws.String(region),
	}

	if endpoint != "" {
		conf.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(conf)
	if err != nil {
		return nil, fmt.Errorf("unable to create aws session: %w", err)
	}

	return dynamodb.New(sess), nil
}
