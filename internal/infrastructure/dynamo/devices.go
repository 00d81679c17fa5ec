package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/huddleup/authsync/internal/domain"
)

// DeviceRepo provides typed DynamoDB operations for the devices table.
type DeviceRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewDeviceRepo(client *dynamodb.Client, tableName string) *DeviceRepo {
	return &DeviceRepo{client: client, tableName: tableName}
}

func (r *DeviceRepo) Put(ctx context.Context, d *domain.Device) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *DeviceRepo) GetByUUID(ctx context.Context, uuid string) (*domain.Device, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("device_uuid-index"),
		KeyConditionExpression: aws.String("device_uuid = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: uuid},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("device not found: %w", domain.ErrNotFound)
	}
	var d domain.Device
	if err := attributevalue.UnmarshalMap(out.Items[0], &d); err != nil {
		return nil, err
	}
	return &d, nil
}
