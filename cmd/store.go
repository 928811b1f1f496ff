package cmd

import (
	"context"

	"go.uber.org/zap"

	"zako_server/config"
	"zako_server/store"
	"zako_server/store/dynamostore"
	"zako_server/store/sqlstore"
)

func dynamoOptions(c config.Config, log *zap.Logger) dynamostore.Options {
	return dynamostore.Options{
		Region:       c.Store.DynamoDB.Region,
		Endpoint:     c.Store.DynamoDB.Endpoint,
		TablePrefix:  c.Store.DynamoDB.TablePrefix,
		CreateTables: c.Store.DynamoDB.CreateTables,
		Logger:       log,
	}
}

func sqlOptions(c config.Config, log *zap.Logger) sqlstore.Options {
	return sqlstore.Options{
		Driver:         c.Store.Driver,
		DSN:            c.Store.DSN,
		ConnectTimeout: c.Store.ConnectTimeout,
		Logger:         log,
	}
}

// openStore connects the configured backend. SQL backends are migrated on open.
func openStore(ctx context.Context, c config.Config, log *zap.Logger) (store.Store, error) {
	if c.Store.Driver == config.DriverDynamoDB {
		st, err := dynamostore.New(ctx, dynamoOptions(c, log))
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlstore.Open(ctx, sqlOptions(c, log))
	if err != nil {
		return nil, err
	}
	return st, nil
}
