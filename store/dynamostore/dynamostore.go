// Package dynamostore implements store.Store on DynamoDB.
//
// Multi-item changes go through TransactWriteItems with condition expressions,
// so uniqueness of session tokens, client identifiers and like pairs is held by
// the table layout rather than by the caller.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"zako_server/models"
	"zako_server/store"
)

// Options configures New.
type Options struct {
	Region      string
	Endpoint    string // empty means the regional AWS endpoint
	TablePrefix string
	// CreateTables provisions missing tables on startup.
	CreateTables bool
	Logger       *zap.Logger
}

type tableNames struct {
	participants string
	uniques      string
	likeEdges    string
	counters     string
}

func newTableNames(prefix string) tableNames {
	return tableNames{
		participants: prefix + models.ParticipantsTable,
		uniques:      prefix + models.UniquesTable,
		likeEdges:    prefix + models.LikeEdgesTable,
		counters:     prefix + models.CountersTable,
	}
}

// Store is a DynamoDB backed store.Store.
type Store struct {
	Client *dynamodb.Client
	tables tableNames
	log    *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New builds the DynamoDB client and optionally provisions the tables.
func New(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	s := &Store{Client: client, tables: newTableNames(opts.TablePrefix), log: logger}
	if opts.CreateTables {
		if err := s.CreateTables(ctx); err != nil {
			return nil, err
		}
	}
	logger.Info("DynamoDB client initialized", zap.String("region", opts.Region), zap.String("endpoint", opts.Endpoint))
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tables.participants)})
	if err != nil {
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// classify maps transport failures onto store.KindConnectionFailure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	var throttled *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	if errors.As(err, &throttled) || errors.As(err, &limit) {
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	return err
}

// failedCondition returns the index of the first transaction item whose
// condition check failed.
func failedCondition(err error) (int, bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return 0, false
	}
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return i, true
		}
	}
	return 0, false
}

// transactionConflict reports a transaction cancelled because another one
// was writing the same items.
func transactionConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "TransactionConflict" {
			return true
		}
	}
	return false
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
