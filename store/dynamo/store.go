// Package dynamo implements goRecovery.RecoveryStore on a single DynamoDB
// table.
//
// The table holds two kinds of item keyed by pk:
//
//	CODE#<code>                          the recovery record
//	ACCT#<tenant>#<STORE>#<username>     pointer to the account's active code
//
// A code is valid only while the account pointer names it. Store creates the
// pointer conditionally, so two racing issuances cannot both succeed.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	goRecovery "github.com/MrEthical07/goRecovery"
)

const (
	attrPK        = "pk"
	attrCode      = "code"
	attrExpiresAt = "expires_at"

	codePrefix    = "CODE#"
	accountPrefix = "ACCT#"

	maxInvalidateRetries = 4
)

var (
	// ErrActiveCodeExists is returned by Store when another issuance created
	// the account pointer first.
	ErrActiveCodeExists = errors.New("dynamo: account already has an active recovery code")
	// ErrInvalidateContention is returned when the account pointer kept
	// changing under Invalidate.
	ErrInvalidateContention = errors.New("dynamo: recovery pointer contention")
)

// API is the subset of *dynamodb.Client used by the store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Config controls record lifetime. Records stay readable for Retention after
// CodeTTL so they can be reported as expired; DynamoDB TTL evicts them after.
type Config struct {
	Table     string
	CodeTTL   time.Duration
	Retention time.Duration
}

type codeItem struct {
	PK              string `dynamodbav:"pk"`
	Code            string `dynamodbav:"code"`
	Username        string `dynamodbav:"username"`
	TenantDomain    string `dynamodbav:"tenant_domain"`
	UserStoreDomain string `dynamodbav:"user_store_domain"`
	Scenario        string `dynamodbav:"scenario"`
	Step            string `dynamodbav:"step"`
	RemainingSetIDs string `dynamodbav:"remaining_set_ids"`
	CreatedAt       int64  `dynamodbav:"created_at"` // unix nanoseconds
	ExpiresAt       int64  `dynamodbav:"expires_at"` // unix seconds, table TTL
}

type pointerItem struct {
	PK        string `dynamodbav:"pk"`
	Code      string `dynamodbav:"code"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// Store is a DynamoDB-backed recovery store.
type Store struct {
	client API
	cfg    Config
	now    func() time.Time
}

var _ goRecovery.RecoveryStore = (*Store)(nil)

func NewStore(client API, cfg Config) *Store {
	if cfg.Table == "" {
		cfg.Table = "account_recovery"
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 15 * time.Minute
	}
	if cfg.Retention < 0 {
		cfg.Retention = 0
	}
	return &Store{client: client, cfg: cfg, now: time.Now}
}

func codeKey(code string) string {
	return codePrefix + code
}

func accountKey(account goRecovery.Account) string {
	return accountPrefix + account.TenantDomain + "#" + strings.ToUpper(account.UserStoreDomain) + "#" + account.Username
}

func pkKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
	}
}

// Store writes the record and the account pointer in one transaction. It
// fails with ErrActiveCodeExists when the account already has a pointer.
func (s *Store) Store(ctx context.Context, record goRecovery.RecoveryRecord) error {
	expiresAt := record.CreatedAt.Add(s.cfg.CodeTTL + s.cfg.Retention).Unix()

	item, err := attributevalue.MarshalMap(codeItem{
		PK:              codeKey(record.Code),
		Code:            record.Code,
		Username:        record.Account.Username,
		TenantDomain:    record.Account.TenantDomain,
		UserStoreDomain: record.Account.UserStoreDomain,
		Scenario:        string(record.Scenario),
		Step:            string(record.Step),
		RemainingSetIDs: record.RemainingSetIDs,
		CreatedAt:       record.CreatedAt.UnixNano(),
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal recovery record: %w", err)
	}
	pointer, err := attributevalue.MarshalMap(pointerItem{
		PK:        accountKey(record.Account),
		Code:      record.Code,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal recovery pointer: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.cfg.Table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.cfg.Table),
				Item:                pointer,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return ErrActiveCodeExists
		}
		return fmt.Errorf("store recovery record: %w", err)
	}
	return nil
}

// Invalidate removes the account pointer and the code it names.
func (s *Store) Invalidate(ctx context.Context, account goRecovery.Account) error {
	acctKey := accountKey(account)

	for i := 0; i < maxInvalidateRetries; i++ {
		pointer, err := s.getPointer(ctx, acctKey)
		if err != nil {
			return err
		}
		if pointer == nil {
			return nil
		}

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{Delete: &types.Delete{
					TableName:                 aws.String(s.cfg.Table),
					Key:                       pkKey(acctKey),
					ConditionExpression:       aws.String("#c = :code"),
					ExpressionAttributeNames:  map[string]string{"#c": attrCode},
					ExpressionAttributeValues: map[string]types.AttributeValue{":code": &types.AttributeValueMemberS{Value: pointer.Code}},
				}},
				{Delete: &types.Delete{
					TableName: aws.String(s.cfg.Table),
					Key:       pkKey(codeKey(pointer.Code)),
				}},
			},
		})
		if err == nil {
			return nil
		}
		if !conditionFailed(err) {
			return fmt.Errorf("invalidate recovery record: %w", err)
		}
	}

	return ErrInvalidateContention
}

// Load returns the record for code. Codes whose account pointer names a
// different code are invalid.
func (s *Store) Load(ctx context.Context, code string) (*goRecovery.RecoveryRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.Table),
		Key:            pkKey(codeKey(code)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load recovery record: %w", err)
	}
	if out.Item == nil {
		return nil, goRecovery.ErrStoreInvalidCode
	}

	var item codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal recovery record: %w", err)
	}

	now := s.now()
	createdAt := time.Unix(0, item.CreatedAt)
	// TTL deletion lags; treat evictable items as gone.
	if now.Unix() >= item.ExpiresAt {
		return nil, goRecovery.ErrStoreInvalidCode
	}

	record := &goRecovery.RecoveryRecord{
		Account: goRecovery.Account{
			Username:        item.Username,
			TenantDomain:    item.TenantDomain,
			UserStoreDomain: item.UserStoreDomain,
		},
		Code:            item.Code,
		Scenario:        goRecovery.RecoveryScenario(item.Scenario),
		Step:            goRecovery.RecoveryStep(item.Step),
		RemainingSetIDs: item.RemainingSetIDs,
		CreatedAt:       createdAt,
	}

	pointer, err := s.getPointer(ctx, accountKey(record.Account))
	if err != nil {
		return nil, err
	}
	if pointer == nil || pointer.Code != code {
		return nil, goRecovery.ErrStoreInvalidCode
	}

	if now.After(createdAt.Add(s.cfg.CodeTTL)) {
		return nil, goRecovery.ErrStoreExpiredCode
	}
	return record, nil
}

func (s *Store) getPointer(ctx context.Context, acctKey string) (*pointerItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.Table),
		Key:            pkKey(acctKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load recovery pointer: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var pointer pointerItem
	if err := attributevalue.UnmarshalMap(out.Item, &pointer); err != nil {
		return nil, fmt.Errorf("unmarshal recovery pointer: %w", err)
	}
	return &pointer, nil
}

func conditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
