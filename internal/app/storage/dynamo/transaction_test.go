package dynamo

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/model"
)

// fakeTable evaluates just the conditions the repository sends
type fakeTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func s(av types.AttributeValue) string {
	if v, ok := av.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := s(in.Item["id"])
	if _, ok := f.items[id]; ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &dynamodb.GetItemOutput{Item: f.items[s(in.Key["id"])]}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref := s(in.ExpressionAttributeValues[":ref"])
	out := &dynamodb.QueryOutput{}
	for _, it := range f.items {
		if s(it["gatewayReference"]) == ref {
			out.Items = append(out.Items, it)
		}
	}
	return out, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	it, ok := f.items[s(in.Key["id"])]
	if !ok || s(it["status"]) != s(in.ExpressionAttributeValues[":expected"]) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition")}
	}

	next := make(map[string]types.AttributeValue, len(it)+1)
	for k, v := range it {
		next[k] = v
	}
	next["status"] = in.ExpressionAttributeValues[":next"]
	next["processedAt"] = in.ExpressionAttributeValues[":processedAt"]
	f.items[s(in.Key["id"])] = next

	return &dynamodb.UpdateItemOutput{}, nil
}

// Scan returns one item per page to exercise pagination
func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.items))
	for id, it := range f.items {
		if kind := s(in.ExpressionAttributeValues[":kind"]); kind != "" && s(it["kind"]) != kind {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := s(in.ExclusiveStartKey["id"])
	for _, id := range ids {
		if id <= start {
			continue
		}
		return &dynamodb.ScanOutput{
			Items:            []map[string]types.AttributeValue{f.items[id]},
			LastEvaluatedKey: keyOf(id),
		}, nil
	}
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.items, s(in.Key["id"]))
	return &dynamodb.DeleteItemOutput{}, nil
}

func newRepo(t *testing.T) *TransactionRepository {
	t.Helper()
	r, err := NewTransactionRepository(newFakeTable(), "transactions", "gatewayReference-index")
	require.NoError(t, err)
	return r
}

func deposit(ref string, createdAt time.Time) *model.Transaction {
	return &model.Transaction{
		ID:               uuid.New(),
		Kind:             model.KindDeposit,
		Value:            decimal.RequireFromString("12.34"),
		GatewayReference: ref,
		Status:           model.StatusPending,
		CreatedAt:        createdAt,
		Deposit:          &model.DepositDetails{QRCodeImage: "img", QRCodeText: "txt"},
	}
}

func TestCreateAndRead(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

	m := deposit("pay_1", now)
	_, err := r.Create(ctx, m)
	require.NoError(t, err)

	_, err = r.Create(ctx, deposit("pay_1", now))
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := r.ReadByGatewayReference(ctx, "pay_1")
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
	require.True(t, m.Value.Equal(got.Value))
	require.True(t, now.Equal(got.CreatedAt))
	require.Equal(t, "txt", got.Deposit.QRCodeText)
	require.Nil(t, got.ProcessedAt)

	_, err = r.ReadByGatewayReference(ctx, "pay_2")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = r.Read(ctx, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransition(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	m := deposit("pay_1", time.Now())
	_, err := r.Create(ctx, m)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Transition(ctx, m.ID, model.StatusPending, model.StatusConfirmed, at))

	err = r.Transition(ctx, m.ID, model.StatusPending, model.StatusFailed, at.Add(time.Hour))
	require.ErrorIs(t, err, apperr.ErrPreconditionFailed)

	err = r.Transition(ctx, uuid.New(), model.StatusPending, model.StatusFailed, at)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := r.Read(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)
	require.True(t, at.Equal(*got.ProcessedAt))
}

func TestListAndDeleteAll(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	base := time.Now()

	for i, ref := range []string{"pay_1", "pay_2", "pay_3"} {
		_, err := r.Create(ctx, deposit(ref, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	w := deposit("tr_1", base)
	w.Kind = model.KindWithdrawal
	w.Deposit = nil
	w.Withdrawal = &model.WithdrawalDetails{PixKey: "k", PixKeyType: model.PixKeyTypeEVP}
	_, err := r.Create(ctx, w)
	require.NoError(t, err)

	deposits, err := r.List(ctx, model.KindDeposit)
	require.NoError(t, err)
	require.Len(t, deposits, 3)
	require.Equal(t, "pay_3", deposits[0].GatewayReference)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)

	n, err := r.DeleteAll(ctx, model.KindWithdrawal)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	all, err = r.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
