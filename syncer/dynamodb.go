package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrConcurrentModification is returned when another writer committed the
// same version first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the subset of the DynamoDB API used by DynamoDB.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDB records every exported root as a new version of a pointer item,
// so readers can find the latest root without listing the sink.
//
// Table schema:
//   - Partition key: node_id (string)
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name hashroot-roots \
//	  --attribute-definitions AttributeName=node_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=node_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DynamoDB struct {
	client DDBClient
	table  string
	node   string
}

// NewDynamoDB creates a DynamoDB syncer writing under partition key node.
func NewDynamoDB(client DDBClient, table, node string) *DynamoDB {
	return &DynamoDB{client: client, table: table, node: node}
}

// Name implements Syncer.
func (d *DynamoDB) Name() string { return "dynamodb" }

// Latest returns the newest committed version and its root. Version 0 means
// nothing was committed yet.
func (d *DynamoDB) Latest(ctx context.Context) (uint64, string, error) {
	resp, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("node_id = :node"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":node": &types.AttributeValueMemberS{Value: d.node},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query DynamoDB: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in DynamoDB")
	}
	rootAttr, ok := item["root_hash"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid root_hash attribute in DynamoDB")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}
	return version, rootAttr.Value, nil
}

// Sync commits t as the next version. Committing the root that is already
// the latest is a no-op.
func (d *DynamoDB) Sync(ctx context.Context, t Target) error {
	current, root, err := d.Latest(ctx)
	if err != nil {
		return err
	}
	if current > 0 && root == t.RootHash {
		return nil
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			"node_id":   &types.AttributeValueMemberS{Value: d.node},
			"version":   &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"root_hash": &types.AttributeValueMemberS{Value: t.RootHash},
			"blob":      &types.AttributeValueMemberS{Value: t.Name},
		},
		// Only succeed if this version doesn't exist yet
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit root to DynamoDB: %w", err)
	}
	return nil
}
