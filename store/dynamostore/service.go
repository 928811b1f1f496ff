package dynamostore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// getItem does a strongly consistent read; a missing item yields a nil map.
func (s *Store) getItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	output, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &tableName,
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get item from table '%s': %w", tableName, err))
	}
	return output.Item, nil
}

// queryAll follows LastEvaluatedKey until the query is exhausted.
func (s *Store) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("failed to query table '%s': %w", aws.ToString(input.TableName), err))
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// queryCount counts matching items without transferring them.
func (s *Store) queryCount(ctx context.Context, input *dynamodb.QueryInput) (int64, error) {
	input.Select = types.SelectCount
	var total int64
	paginator := dynamodb.NewQueryPaginator(s.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, classify(fmt.Errorf("failed to count in table '%s': %w", aws.ToString(input.TableName), err))
		}
		total += int64(page.Count)
	}
	return total, nil
}

func (s *Store) scanAll(ctx context.Context, input *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("failed to scan table '%s': %w", aws.ToString(input.TableName), err))
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// batchWriteItems writes requests in batches of 25, resubmitting unprocessed items.
func (s *Store) batchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	for _, w := range chunk(len(writeRequests), maxBatchSize) {
		pending := map[string][]types.WriteRequest{tableName: writeRequests[w[0]:w[1]]}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= 5 {
				return fmt.Errorf("batch write to table '%s': unprocessed items remain", tableName)
			}
			output, err := s.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return classify(fmt.Errorf("failed to batch write items to table '%s': %w", tableName, err))
			}
			pending = output.UnprocessedItems
			if len(pending) > 0 {
				s.log.Debug("Retrying unprocessed batch items", zap.String("table", tableName), zap.Int("attempt", attempt+1))
			}
		}
	}
	return nil
}

func (s *Store) transact(ctx context.Context, items []types.TransactWriteItem) error {
	_, err := s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return err
}
