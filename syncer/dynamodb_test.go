package syncer

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // key -> item

	// raceOnce simulates another writer committing between Query and PutItem.
	raceOnce bool
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func itemKey(item map[string]types.AttributeValue) string {
	return item["node_id"].(*types.AttributeValueMemberS).Value + ":" +
		item["version"].(*types.AttributeValueMemberN).Value
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(params.Item)
	if m.raceOnce {
		m.raceOnce = false
		m.items[key] = params.Item
	}

	// Check conditional expression
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node := params.ExpressionAttributeValues[":node"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["node_id"].(*types.AttributeValueMemberS).Value == node {
			items = append(items, item)
		}
	}

	version := func(item map[string]types.AttributeValue) uint64 {
		v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
		return v
	}
	sort.Slice(items, func(i, j int) bool { return version(items[i]) > version(items[j]) })

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

type failingDDB struct{ mockDDBClient }

func (f *failingDDB) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return nil, errors.New("throttled")
}

func TestDynamoDB_VersionsIncrease(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	d := NewDynamoDB(client, "roots", "node-1")

	v, root, err := d.Latest(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.Empty(t, root)

	for i, r := range []string{"r1", "r2", "r3"} {
		require.NoError(t, d.Sync(ctx, Target{RootHash: r, Name: "root_hash.json"}))
		v, root, err = d.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), v)
		assert.Equal(t, r, root)
	}
}

func TestDynamoDB_SameRootIsNoop(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	d := NewDynamoDB(client, "roots", "node-1")

	require.NoError(t, d.Sync(ctx, Target{RootHash: "r1"}))
	require.NoError(t, d.Sync(ctx, Target{RootHash: "r1"}))

	v, _, err := d.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestDynamoDB_NodesAreIsolated(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	a := NewDynamoDB(client, "roots", "a")
	b := NewDynamoDB(client, "roots", "b")

	require.NoError(t, a.Sync(ctx, Target{RootHash: "ra"}))
	require.NoError(t, a.Sync(ctx, Target{RootHash: "ra2"}))
	require.NoError(t, b.Sync(ctx, Target{RootHash: "rb"}))

	v, root, err := b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, "rb", root)
}

func TestDynamoDB_ConcurrentModification(t *testing.T) {
	client := newMockDDBClient()
	client.raceOnce = true
	d := NewDynamoDB(client, "roots", "node-1")

	err := d.Sync(context.Background(), Target{RootHash: "r1"})
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestDynamoDB_QueryError(t *testing.T) {
	d := NewDynamoDB(&failingDDB{}, "roots", "node-1")
	err := d.Sync(context.Background(), Target{RootHash: "r1"})
	assert.ErrorContains(t, err, "throttled")
}
