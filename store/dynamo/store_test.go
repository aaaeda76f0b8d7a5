package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	goRecovery "github.com/MrEthical07/goRecovery"
)

// fakeAPI is an in-memory table that evaluates the two condition
// expressions the store uses.
type fakeAPI struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	getErr   error
	writeErr error
	writes   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: map[string]map[string]types.AttributeValue{}}
}

func pkOf(m map[string]types.AttributeValue) string {
	return m[attrPK].(*types.AttributeValueMemberS).Value
}

func strAttr(m map[string]types.AttributeValue, name string) string {
	if v, ok := m[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[pkOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	cp := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		cp[k] = v
	}
	return &dynamodb.GetItemOutput{Item: cp}, nil
}

func (f *fakeAPI) check(pk string, cond *string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	existing, exists := f.items[pk]
	switch aws.ToString(cond) {
	case "attribute_not_exists(pk)":
		return !exists
	case "#c = :code":
		return exists && strAttr(existing, attrCode) == strAttr(values, ":code")
	default:
		panic("unsupported condition " + aws.ToString(cond))
	}
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return nil, f.writeErr
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		ok := true
		switch {
		case ti.Put != nil:
			ok = f.check(pkOf(ti.Put.Item), ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues)
		case ti.Delete != nil:
			ok = f.check(pkOf(ti.Delete.Key), ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeValues)
		}
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			f.items[pkOf(ti.Put.Item)] = ti.Put.Item
		case ti.Delete != nil:
			delete(f.items, pkOf(ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeAPI) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAPI) UpdateTimeToLive(context.Context, *dynamodb.UpdateTimeToLiveInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

var alice = goRecovery.Account{Username: "alice", TenantDomain: "carbon.super", UserStoreDomain: "PRIMARY"}

func testRecord(code string, createdAt time.Time) goRecovery.RecoveryRecord {
	return goRecovery.RecoveryRecord{
		Account:         alice,
		Code:            code,
		Scenario:        goRecovery.ScenarioNotificationPasswordRecovery,
		Step:            goRecovery.StepSendRecoveryInformation,
		RemainingSetIDs: "EMAIL:alice@example.com,",
		CreatedAt:       createdAt,
	}
}

func newTestStore(t *testing.T) (*Store, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	return NewStore(api, Config{Table: "recovery", CodeTTL: 15 * time.Minute, Retention: time.Hour}), api
}

// issue mirrors the engine: invalidate, then store.
func issue(ctx context.Context, s *Store, rec goRecovery.RecoveryRecord) error {
	if err := s.Invalidate(ctx, rec.Account); err != nil {
		return err
	}
	return s.Store(ctx, rec)
}

func TestStoreAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	want := testRecord("code-1", now)
	require.NoError(t, issue(ctx, s, want))

	got, err := s.Load(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, want.Account, got.Account)
	assert.Equal(t, want.Step, got.Step)
	assert.Equal(t, want.Scenario, got.Scenario)
	assert.Equal(t, want.RemainingSetIDs, got.RemainingSetIDs)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestLoadUnknownIsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, goRecovery.ErrStoreInvalidCode)
}

func TestReissueInvalidatesPrevious(t *testing.T) {
	s, api := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, issue(ctx, s, testRecord("first", time.Now())))
	require.NoError(t, issue(ctx, s, testRecord("second", time.Now())))

	_, err := s.Load(ctx, "first")
	assert.ErrorIs(t, err, goRecovery.ErrStoreInvalidCode)
	_, err = s.Load(ctx, "second")
	assert.NoError(t, err)
	assert.Len(t, api.items, 2, "one code item and one pointer")
}

func TestStoreWithoutInvalidateConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, testRecord("first", time.Now())))
	err := s.Store(ctx, testRecord("second", time.Now()))
	assert.ErrorIs(t, err, ErrActiveCodeExists)

	_, err = s.Load(ctx, "second")
	assert.ErrorIs(t, err, goRecovery.ErrStoreInvalidCode)
}

func TestExpiredThenEvicted(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, issue(ctx, s, testRecord("code-1", now)))

	s.now = func() time.Time { return now.Add(16 * time.Minute) }
	_, err := s.Load(ctx, "code-1")
	assert.ErrorIs(t, err, goRecovery.ErrStoreExpiredCode)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = s.Load(ctx, "code-1")
	assert.ErrorIs(t, err, goRecovery.ErrStoreInvalidCode)
}

func TestInvalidateWithoutPointerIsNoop(t *testing.T) {
	s, api := newTestStore(t)
	require.NoError(t, s.Invalidate(context.Background(), alice))
	assert.Zero(t, api.writes)
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	s, api := newTestStore(t)
	boom := errors.New("throttled")
	ctx := context.Background()

	api.getErr = boom
	_, err := s.Load(ctx, "x")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, goRecovery.ErrStoreInvalidCode)
	assert.ErrorIs(t, s.Invalidate(ctx, alice), boom)

	api.getErr = nil
	api.writeErr = boom
	assert.ErrorIs(t, s.Store(ctx, testRecord("x", time.Now())), boom)
}

func TestConcurrentIssueLeavesOneActive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = issue(ctx, s, testRecord(fmt.Sprintf("code-%d", i), time.Now()))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, ErrActiveCodeExists) || errors.Is(err, ErrInvalidateContention),
				"worker %d: unexpected error %v", i, err)
		}
	}

	active := 0
	for i := 0; i < workers; i++ {
		if _, err := s.Load(ctx, fmt.Sprintf("code-%d", i)); err == nil {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

func (m *mockAPI) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.CreateTableOutput)
	return out, args.Error(1)
}

func (m *mockAPI) UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateTimeToLiveOutput)
	return out, args.Error(1)
}

func TestBootstrapExistingTable(t *testing.T) {
	api := new(mockAPI)
	api.On("CreateTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.CreateTableInput) bool {
		return aws.ToString(in.TableName) == "recovery"
	})).Return(nil, &types.ResourceInUseException{Message: aws.String("exists")})
	api.On("UpdateTimeToLive", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateTimeToLiveInput) bool {
		return aws.ToString(in.TimeToLiveSpecification.AttributeName) == attrExpiresAt
	})).Return(&dynamodb.UpdateTimeToLiveOutput{}, nil)

	require.NoError(t, Bootstrap(context.Background(), api, "recovery", nil))
	api.AssertExpectations(t)
}

func TestBootstrapCreateFailure(t *testing.T) {
	api := new(mockAPI)
	api.On("CreateTable", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	err := Bootstrap(context.Background(), api, "recovery", nil)
	assert.ErrorContains(t, err, "access denied")
	api.AssertNotCalled(t, "UpdateTimeToLive", mock.Anything, mock.Anything)
}
