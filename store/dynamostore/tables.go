package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"zako_server/models"
)

// CreateTables provisions every table the store needs and waits until they are active.
// Tables that already exist are left untouched.
func (s *Store) CreateTables(ctx context.Context) error {
	inputs := []*dynamodb.CreateTableInput{
		{
			TableName: aws.String(s.tables.participants),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(participantIDAttr), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(participantIDAttr), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(s.tables.uniques),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(uniqueKeyAttr), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(uniqueKeyAttr), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(s.tables.counters),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(counterNameAttr), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(counterNameAttr), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(s.tables.likeEdges),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(likerAttr), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(likedAttr), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(likerAttr), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(likedAttr), KeyType: types.KeyTypeRange},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: aws.String(models.LikedParticipantIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String(likedAttr), KeyType: types.KeyTypeHash},
						{AttributeName: aws.String(likerAttr), KeyType: types.KeyTypeRange},
					},
					Projection: &types.Projection{ProjectionType: types.ProjectionTypeKeysOnly},
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}

	for _, input := range inputs {
		_, err := s.Client.CreateTable(ctx, input)
		var inUse *types.ResourceInUseException
		switch {
		case errors.As(err, &inUse):
			s.log.Debug("Table already exists", zap.String("table", *input.TableName))
			continue
		case err != nil:
			return fmt.Errorf("create table '%s': %w", *input.TableName, err)
		}
		s.log.Info("Created table", zap.String("table", *input.TableName))
	}

	waiter := dynamodb.NewTableExistsWaiter(s.Client)
	for _, input := range inputs {
		err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, 2*time.Minute)
		if err != nil {
			return fmt.Errorf("wait for table '%s': %w", *input.TableName, err)
		}
	}
	return nil
}
