package appointments

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

	"github.com/wolfman30/salon-booking/pkg/logging"
)

const (
	appointmentKeyPrefix = "APPT#"
	slotKeyPrefix        = "SLOT#"

	stylistDateIndex = "stylist-date-index"
	clientIndex      = "client-index"
	stylistIndex     = "stylist-index"

	conditionalCheckFailed = "ConditionalCheckFailed"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// dynamoItem is the stored form of an appointment. Top-level attributes exist
// for keys, indexes and conditions; the record itself is nested.
type dynamoItem struct {
	PK            string      `dynamodbav:"pk"`
	StylistDate   string      `dynamodbav:"stylistDate"`
	ClientID      string      `dynamodbav:"clientId"`
	StylistID     string      `dynamodbav:"stylistId"`
	Status        string      `dynamodbav:"status"`
	PaymentStatus string      `dynamodbav:"paymentStatus"`
	Version       int64       `dynamodbav:"version"`
	CreatedAt     int64       `dynamodbav:"createdAt"`
	UpdatedAt     int64       `dynamodbav:"updatedAt"`
	EndsAt        int64       `dynamodbav:"endsAt"`
	Record        Appointment `dynamodbav:"record"`
}

type slotLock struct {
	PK            string `dynamodbav:"pk"`
	AppointmentID string `dynamodbav:"appointmentId"`
}

// DynamoRepository stores appointments in a single DynamoDB table. A slot is
// held by a lock item keyed on stylist, date and start time, written in the
// same transaction as the appointment. Change events are not written to the
// Postgres outbox on this backend; consumers read the table's stream instead.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

func NewDynamoRepository(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRepository {
	if client == nil {
		panic("appointments: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("appointments: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRepository{client: client, tableName: tableName, logger: logger}
}

func (r *DynamoRepository) Create(ctx context.Context, appt *Appointment) error {
	item, err := attributevalue.MarshalMap(toDynamoItem(appt))
	if err != nil {
		return fmt.Errorf("appointments: marshal item: %w", err)
	}
	writes := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}}
	lockIndex := -1
	if appt.Status.HoldsSlot() {
		put, err := r.lockPut(appt)
		if err != nil {
			return err
		}
		lockIndex = len(writes)
		writes = append(writes, put)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		if failedAt(err, lockIndex) {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       appointmentKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("appointments: %s: %w", id, ErrNotFound)
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("appointments: decode item: %w", err)
	}
	return &item.Record, nil
}

func (r *DynamoRepository) ListForStylistDate(ctx context.Context, stylistID, date, excludeID string) ([]Appointment, error) {
	items, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(stylistDateIndex),
		KeyConditionExpression: aws.String("stylistDate = :sd"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sd": &types.AttributeValueMemberS{Value: stylistID + "#" + date},
		},
	})
	if err != nil {
		return nil, err
	}
	var out []Appointment
	for _, appt := range items {
		if appt.ID == excludeID || !appt.Status.HoldsSlot() {
			continue
		}
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotTime < out[j].SlotTime })
	return out, nil
}

func (r *DynamoRepository) ListByParty(ctx context.Context, role Role, partyID string) ([]Appointment, error) {
	index, attr := clientIndex, "clientId"
	if role == RoleStylist {
		index, attr = stylistIndex, "stylistId"
	}
	return r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(attr + " = :party"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":party": &types.AttributeValueMemberS{Value: partyID},
		},
		ScanIndexForward: aws.Bool(false),
	})
}

// ListSweepCandidates scans the table. Sweeps run off the request path, on a
// schedule, so a filtered scan is acceptable at salon scale.
func (r *DynamoRepository) ListSweepCandidates(ctx context.Context, kind SweepKind, cutoff time.Time, limit int) ([]Appointment, error) {
	values := map[string]types.AttributeValue{
		":cutoff": &types.AttributeValueMemberN{Value: fmt.Sprint(cutoff.UnixNano())},
		":appt":   &types.AttributeValueMemberS{Value: appointmentKeyPrefix},
	}
	var filter string
	switch kind {
	case SweepStalePending:
		filter = "#status = :pending AND createdAt < :cutoff"
		values[":pending"] = &types.AttributeValueMemberS{Value: string(StatusPending)}
	case SweepAuthorization:
		filter = "paymentStatus = :pending AND #status IN (:pending, :confirmed) AND createdAt < :cutoff"
		values[":pending"] = &types.AttributeValueMemberS{Value: string(PaymentPending)}
		values[":confirmed"] = &types.AttributeValueMemberS{Value: string(StatusConfirmed)}
	case SweepCompletion:
		filter = "#status = :confirmed AND endsAt < :cutoff"
		values[":confirmed"] = &types.AttributeValueMemberS{Value: string(StatusConfirmed)}
	default:
		return nil, fmt.Errorf("appointments: unknown sweep %q", kind)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("begins_with(pk, :appt) AND " + filter),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	}
	var out []Appointment
	for {
		page, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		for _, raw := range page.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("appointments: decode item: %w", err)
			}
			out = append(out, item.Record)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func (r *DynamoRepository) ApplyTransition(ctx context.Context, current, next *Appointment, action Action) (*Appointment, error) {
	saved := next.Clone()
	saved.Version = current.Version + 1

	item, err := attributevalue.MarshalMap(toDynamoItem(saved))
	if err != nil {
		return nil, fmt.Errorf("appointments: marshal item: %w", err)
	}
	writes := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("#status = :status AND paymentStatus = :payment AND #version = :version"),
			ExpressionAttributeNames: map[string]string{
				"#status":  "status",
				"#version": "version",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status":  &types.AttributeValueMemberS{Value: string(current.Status)},
				":payment": &types.AttributeValueMemberS{Value: string(current.PaymentStatus)},
				":version": &types.AttributeValueMemberN{Value: fmt.Sprint(current.Version)},
			},
		},
	}}

	heldBefore := current.Status.HoldsSlot()
	heldAfter := saved.Status.HoldsSlot()
	moved := slotKey(current) != slotKey(saved)
	lockIndex := -1
	if heldAfter && (!heldBefore || moved) {
		put, err := r.lockPut(saved)
		if err != nil {
			return nil, err
		}
		lockIndex = len(writes)
		writes = append(writes, put)
	}
	if heldBefore && (!heldAfter || moved) {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName:           aws.String(r.tableName),
				Key:                 map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: slotKey(current)}},
				ConditionExpression: aws.String("appointmentId = :id"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":id": &types.AttributeValueMemberS{Value: current.ID},
				},
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		switch {
		case failedAt(err, 0):
			return nil, ErrVersionMismatch
		case failedAt(err, lockIndex):
			return nil, ErrSlotTaken
		default:
			return nil, fmt.Errorf("appointments: transition: %w", err)
		}
	}
	r.logger.Debug("appointments: dynamo transition written", "appointment_id", saved.ID, "action", action, "version", saved.Version)
	return saved, nil
}

func (r *DynamoRepository) lockPut(appt *Appointment) (types.TransactWriteItem, error) {
	lock, err := attributevalue.MarshalMap(slotLock{PK: slotKey(appt), AppointmentID: appt.ID})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("appointments: marshal slot lock: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                lock,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}, nil
}

func (r *DynamoRepository) query(ctx context.Context, input *dynamodb.QueryInput) ([]Appointment, error) {
	var out []Appointment
	for {
		page, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("appointments: query %s: %w", aws.ToString(input.IndexName), err)
		}
		for _, raw := range page.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("appointments: decode item: %w", err)
			}
			out = append(out, item.Record)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func toDynamoItem(appt *Appointment) dynamoItem {
	return dynamoItem{
		PK:            appointmentKeyPrefix + appt.ID,
		StylistDate:   appt.StylistID + "#" + appt.SlotDate,
		ClientID:      appt.ClientID,
		StylistID:     appt.StylistID,
		Status:        string(appt.Status),
		PaymentStatus: string(appt.PaymentStatus),
		Version:       appt.Version,
		CreatedAt:     appt.CreatedAt.UnixNano(),
		UpdatedAt:     appt.UpdatedAt.UnixNano(),
		EndsAt:        appt.EndsAt().UnixNano(),
		Record:        *appt,
	}
}

func appointmentKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: appointmentKeyPrefix + id}}
}

func slotKey(appt *Appointment) string {
	return slotKeyPrefix + appt.StylistID + "#" + appt.SlotDate + "#" + appt.SlotTime
}

// failedAt reports whether a cancelled transaction failed its condition at index i.
func failedAt(err error, i int) bool {
	if i < 0 {
		return false
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || i >= len(tce.CancellationReasons) {
		return false
	}
	return aws.ToString(tce.CancellationReasons[i].Code) == conditionalCheckFailed
}
