package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/storage"
)

// storage.TransactionRepository interface implementation
var _ storage.TransactionRepository = (*TransactionRepository)(nil)

// API is the subset of the DynamoDB client used by the repository.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// item is the document layout, one table holds both kinds
type item struct {
	ID               string `dynamodbav:"id"`
	Kind             string `dynamodbav:"kind"`
	Value            string `dynamodbav:"value"`
	GatewayReference string `dynamodbav:"gatewayReference"`
	Status           string `dynamodbav:"status"`
	Description      string `dynamodbav:"description,omitempty"`
	CreatedAt        string `dynamodbav:"createdAt"`
	ProcessedAt      string `dynamodbav:"processedAt,omitempty"`
	QRCodeImage      string `dynamodbav:"qrCodeImage,omitempty"`
	QRCodeText       string `dynamodbav:"qrCodeText,omitempty"`
	PixKey           string `dynamodbav:"pixKey,omitempty"`
	PixKeyType       string `dynamodbav:"pixKeyType,omitempty"`
}

type TransactionRepository struct {
	api            API
	table          string
	referenceIndex string
}

func (r *TransactionRepository) LoggerComponent() string {
	return "DynamoTransactionRepository"
}

func NewTransactionRepository(api API, table, referenceIndex string) (*TransactionRepository, error) {
	if table == "" || referenceIndex == "" {
		return nil, fmt.Errorf("dynamodb table and index are required: %w", apperr.ErrInvalidInput)
	}
	return &TransactionRepository{
		api:            api,
		table:          table,
		referenceIndex: referenceIndex,
	}, nil
}

// Create implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Create(ctx context.Context, m *model.Transaction) (*model.Transaction, error) {
	// gateway reference uniqueness is enforced by the request path, the table key is the id
	if _, err := r.ReadByGatewayReference(ctx, m.GatewayReference); err == nil {
		return nil, apperr.ErrConflict
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(toItem(m))
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, apperr.ErrConflict
		}
		return nil, fmt.Errorf("put item: %w", err)
	}

	return m, nil
}

// Read implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            keyOf(id.String()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, apperr.ErrNotFound
	}

	return decode(out.Item)
}

// ReadByGatewayReference implementation of interface storage.TransactionRepository
func (r *TransactionRepository) ReadByGatewayReference(ctx context.Context, ref string) (*model.Transaction, error) {
	out, err := r.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.referenceIndex),
		KeyConditionExpression: aws.String("gatewayReference = :ref"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ref": &types.AttributeValueMemberS{Value: ref},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, apperr.ErrNotFound
	}

	return decode(out.Items[0])
}

// Transition implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Transition(ctx context.Context, id uuid.UUID, expected, next model.Status, processedAt time.Time) error {
	l := logger.Get(ctx, r).With().
		Str("method", "Transition").
		Str("transaction_id", id.String()).
		Logger()

	_, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 keyOf(id.String()),
		UpdateExpression:    aws.String("SET #status = :next, #processedAt = :processedAt"),
		ConditionExpression: aws.String("attribute_exists(id) AND #status = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#status":      "status",
			"#processedAt": "processedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next":        &types.AttributeValueMemberS{Value: string(next)},
			":expected":    &types.AttributeValueMemberS{Value: string(expected)},
			":processedAt": &types.AttributeValueMemberS{Value: processedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("update item: %w", err)
	}

	if _, err := r.Read(ctx, id); err != nil {
		return err
	}

	l.Debug().Msg("Precondition failed")

	return apperr.ErrPreconditionFailed
}

// List implementation of interface storage.TransactionRepository
func (r *TransactionRepository) List(ctx context.Context, kind model.Kind) ([]*model.Transaction, error) {
	res := make([]*model.Transaction, 0)

	err := r.scan(ctx, kind, func(av map[string]types.AttributeValue) error {
		m, err := decode(av)
		if err != nil {
			return err
		}
		res = append(res, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	return res, nil
}

// DeleteAll implementation of interface storage.TransactionRepository
func (r *TransactionRepository) DeleteAll(ctx context.Context, kind model.Kind) (int, error) {
	l := logger.Get(ctx, r).With().Str("method", "DeleteAll").Logger()

	n := 0
	err := r.scan(ctx, kind, func(av map[string]types.AttributeValue) error {
		_, err := r.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.table),
			Key:       map[string]types.AttributeValue{"id": av["id"]},
		})
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		n++
		l.Debug().Int("deleted", n).Send()
		return nil
	})

	return n, err
}

func (r *TransactionRepository) scan(ctx context.Context, kind model.Kind, fn func(map[string]types.AttributeValue) error) error {
	in := &dynamodb.ScanInput{
		TableName: aws.String(r.table),
	}
	if kind != "" {
		in.FilterExpression = aws.String("#kind = :kind")
		in.ExpressionAttributeNames = map[string]string{"#kind": "kind"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":kind": &types.AttributeValueMemberS{Value: string(kind)},
		}
	}

	for {
		out, err := r.api.Scan(ctx, in)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		for _, av := range out.Items {
			if err := fn(av); err != nil {
				return err
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func toItem(m *model.Transaction) item {
	it := item{
		ID:               m.ID.String(),
		Kind:             string(m.Kind),
		Value:            m.Value.String(),
		GatewayReference: m.GatewayReference,
		Status:           string(m.Status),
		Description:      m.Description,
		CreatedAt:        m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.ProcessedAt != nil {
		it.ProcessedAt = m.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	if m.Deposit != nil {
		it.QRCodeImage = m.Deposit.QRCodeImage
		it.QRCodeText = m.Deposit.QRCodeText
	}
	if m.Withdrawal != nil {
		it.PixKey = m.Withdrawal.PixKey
		it.PixKeyType = string(m.Withdrawal.PixKeyType)
	}
	return it
}

func decode(av map[string]types.AttributeValue) (*model.Transaction, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	id, err := uuid.Parse(it.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	value, err := decimal.NewFromString(it.Value)
	if err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}

	m := &model.Transaction{
		ID:               id,
		Kind:             model.Kind(it.Kind),
		Value:            value,
		GatewayReference: it.GatewayReference,
		Status:           model.Status(it.Status),
		Description:      it.Description,
		CreatedAt:        createdAt,
	}
	if it.ProcessedAt != "" {
		p, err := time.Parse(time.RFC3339Nano, it.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("parse processedAt: %w", err)
		}
		m.ProcessedAt = &p
	}
	switch m.Kind {
	case model.KindDeposit:
		m.Deposit = &model.DepositDetails{QRCodeImage: it.QRCodeImage, QRCodeText: it.QRCodeText}
	case model.KindWithdrawal:
		m.Withdrawal = &model.WithdrawalDetails{PixKey: it.PixKey, PixKeyType: model.PixKeyType(it.PixKeyType)}
	}

	return m, nil
}
