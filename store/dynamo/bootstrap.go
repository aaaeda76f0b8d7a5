package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Bootstrap creates the recovery table and enables TTL eviction on
// expires_at. An existing table is left as is.
func Bootstrap(ctx context.Context, client API, table string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	} else {
		logger.Info("created table", slog.String("table", table))
	}

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(attrExpiresAt),
		},
	})
	if err != nil {
		// TTL already enabled is reported as a validation error.
		logger.Warn("could not enable TTL", slog.String("table", table), slog.Any("error", err))
	}
	return nil
}
