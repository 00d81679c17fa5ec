package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/huddleup/authsync/internal/domain"
)

// ProfileRepo provides typed DynamoDB operations for the profiles table.
type ProfileRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewProfileRepo(client *dynamodb.Client, tableName string) *ProfileRepo {
	return &ProfileRepo{client: client, tableName: tableName}
}

func (r *ProfileRepo) Put(ctx context.Context, p *domain.Profile) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ProfileRepo) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("profile_id", profileID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	var p domain.Profile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) GetByUser(ctx context.Context, userID string) (*domain.Profile, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	var p domain.Profile
	if err := attributevalue.UnmarshalMap(out.Items[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) Update(ctx context.Context, profileID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("profile_id", profileID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
