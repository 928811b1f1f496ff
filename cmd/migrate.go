package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zako_server/config"
	"zako_server/store/dynamostore"
	"zako_server/store/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations, or create the DynamoDB tables",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	log, done, err := newLogger()
	if err != nil {
		return err
	}
	defer done()
	ctx := cmd.Context()

	if cfg.Store.Driver == config.DriverDynamoDB {
		opts := dynamoOptions(cfg, log)
		opts.CreateTables = false
		st, err := dynamostore.New(ctx, opts)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.CreateTables(ctx); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
		log.Info("DynamoDB tables ready", zap.String("prefix", cfg.Store.DynamoDB.TablePrefix))
		return nil
	}

	// Open applies every pending migration before returning.
	st, err := sqlstore.Open(ctx, sqlOptions(cfg, log))
	if err != nil {
		return err
	}
	log.Info("Schema up to date", zap.String("driver", cfg.Store.Driver))
	return st.Close()
}
