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

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Put(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.queryGSI(ctx, "username-index", "username", username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryGSI(ctx, "email-index", "email", email)
}

func (r *UserRepo) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	return r.queryGSI(ctx, "google_sub-index", "google_sub", sub)
}

func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

func (r *UserRepo) SoftDelete(ctx context.Context, userID string) error {
	return r.Update(ctx, userID, map[string]interface{}{domain.FieldEnable: false})
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}
