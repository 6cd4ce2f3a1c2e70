package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute names of the single-table layout. Searchable fields are stored
// as fieldPrefix+name and index lists as indexPrefix+path, with names passed
// through EscapePropertyName.
const (
	AttrKey     = "_key"
	AttrKind    = "_kind"
	AttrParent  = "_parent"
	AttrScope   = "_scope"
	AttrSort    = "_sort"
	AttrChanged = "_changed"
	AttrPayload = "_payload"

	fieldPrefix = "f_"
	indexPrefix = "i_"

	// sortPrefix keeps the GSI sort key non-empty; DynamoDB rejects empty
	// strings in index key attributes.
	sortPrefix = "#"
)

// Global secondary indexes every entry table must define.
const (
	IndexKindSort     = "kind-sort"     // _kind, _sort
	IndexScopeSort    = "scope-sort"    // _scope, _sort
	IndexKindChanged  = "kind-changed"  // _kind, _changed
	IndexScopeChanged = "scope-changed" // _scope, _changed
)

// DynamoClient is the subset of *dynamodb.Client the backend uses.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoBackend implements Backend on DynamoDB. Each registered type lives in
// the table its TypeSpec names.
type DynamoBackend struct {
	client   DynamoClient
	registry *Registry
	tracer   trace.Tracer
}

// NewDynamoBackend creates a DynamoDB backend.
func NewDynamoBackend(client DynamoClient, registry *Registry) *DynamoBackend {
	return &DynamoBackend{
		client:   client,
		registry: registry,
		tracer:   otel.Tracer("github.com/jacentio/codex/store"),
	}
}

func (d *DynamoBackend) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "dynamodb."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Get implements Backend.
func (d *DynamoBackend) Get(ctx context.Context, key StoreKey) (rec Record, err error) {
	ctx, span := d.start(ctx, "Get", attribute.String("codex.key", key.String()))
	defer func() { endSpan(span, err) }()

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.registry.TableFor(key.Kind)),
		Key:       keyAttr(key),
	})
	if err != nil {
		return Record{}, err
	}
	if result.Item == nil {
		return Record{}, ErrNotFound
	}
	return unmarshalRecord(result.Item)
}

// GetByField implements Backend.
func (d *DynamoBackend) GetByField(ctx context.Context, kind, field string, value any) (rec Record, err error) {
	ctx, span := d.start(ctx, "GetByField", attribute.String("codex.kind", kind), attribute.String("codex.field", field))
	defer func() { endSpan(span, err) }()

	recs, err := d.query(ctx, Query{Kind: kind, Order: OrderSort, Limit: 1, Filters: []Filter{FieldFilter(field, value)}}, "")
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// Query implements Backend.
func (d *DynamoBackend) Query(ctx context.Context, q Query) (recs []Record, err error) {
	ctx, span := d.start(ctx, "Query",
		attribute.String("codex.kind", q.Kind),
		attribute.Int("codex.offset", q.Offset),
		attribute.Int("codex.limit", q.Limit),
	)
	defer func() { endSpan(span, err) }()

	return d.query(ctx, q, "")
}

// KeysOnly implements Backend.
func (d *DynamoBackend) KeysOnly(ctx context.Context, kind, field string, value any) (keys []StoreKey, err error) {
	ctx, span := d.start(ctx, "KeysOnly", attribute.String("codex.kind", kind), attribute.String("codex.field", field))
	defer func() { endSpan(span, err) }()

	recs, err := d.query(ctx, Query{Kind: kind, Order: OrderSort, Filters: []Filter{FieldFilter(field, value)}}, AttrKey)
	if err != nil {
		return nil, err
	}
	keys = make([]StoreKey, len(recs))
	for i, rec := range recs {
		keys[i] = rec.Key
	}
	return keys, nil
}

// Put implements Backend.
func (d *DynamoBackend) Put(ctx context.Context, rec Record) (created bool, err error) {
	ctx, span := d.start(ctx, "Put", attribute.String("codex.key", rec.Key.String()))
	defer func() { endSpan(span, err) }()

	item, err := marshalRecord(rec)
	if err != nil {
		return false, err
	}
	out, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:    aws.String(d.registry.TableFor(rec.Key.Kind)),
		Item:         item,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) == 0, nil
}

// Delete implements Backend.
func (d *DynamoBackend) Delete(ctx context.Context, key StoreKey) (existed bool, err error) {
	ctx, span := d.start(ctx, "Delete", attribute.String("codex.key", key.String()))
	defer func() { endSpan(span, err) }()

	out, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(d.registry.TableFor(key.Kind)),
		Key:          keyAttr(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) > 0, nil
}

// query runs q against the matching GSI. DynamoDB has no offset, so the
// first q.Offset matches are skipped while paginating and reading stops once
// q.Limit records are collected. A non-empty projection restricts the
// attributes read.
func (d *DynamoBackend) query(ctx context.Context, q Query, projection string) ([]Record, error) {
	p := dynamodb.NewQueryPaginator(d.client, buildQueryInput(d.registry.TableFor(q.Kind), q, projection))

	var recs []Record
	skipped := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			if skipped < q.Offset {
				skipped++
				continue
			}
			rec, err := unmarshalRecord(raw)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
			if q.Limit > 0 && len(recs) == q.Limit {
				return recs, nil
			}
		}
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Scan implements Backend with a filtered table scan. The cursor is the _key
// of the last record returned, used as ExclusiveStartKey; scan order follows
// the hash of _key, which rewrites and deletes of other items leave alone.
func (d *DynamoBackend) Scan(ctx context.Context, kind, cursor string, limit int) (recs []Record, next string, err error) {
	ctx, span := d.start(ctx, "Scan",
		attribute.String("codex.kind", kind),
		attribute.Int("codex.limit", limit),
	)
	defer func() { endSpan(span, err) }()

	input := buildScanInput(d.registry.TableFor(kind), kind, cursor, limit)
	recs = []Record{}
	for {
		page, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, "", err
		}
		for i, raw := range page.Items {
			rec, err := unmarshalRecord(raw)
			if err != nil {
				return nil, "", err
			}
			recs = append(recs, rec)
			if limit > 0 && len(recs) == limit {
				if i == len(page.Items)-1 && len(page.LastEvaluatedKey) == 0 {
					return recs, "", nil
				}
				return recs, rec.Key.String(), nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return recs, "", nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// buildQueryInput picks the index for q's scope and ordering and renders its
// filters as a FilterExpression.
func buildQueryInput(table string, q Query, projection string) *dynamodb.QueryInput {
	index, pkAttr, pkValue := IndexKindSort, AttrKind, q.Kind
	if q.Parent != nil {
		index, pkAttr, pkValue = IndexScopeSort, AttrScope, scopeValue(*q.Parent, q.Kind)
	}
	if q.Order == OrderRecent {
		if q.Parent != nil {
			index = IndexScopeChanged
		} else {
			index = IndexKindChanged
		}
	}

	exprNames := map[string]string{"#pk": pkAttr}
	exprValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pkValue},
	}

	var clauses []string
	for i, f := range q.Filters {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":f%d", i)
		if f.Index {
			exprNames[nameKey] = indexPrefix + EscapePropertyName(f.Field)
			exprValues[valueKey] = &types.AttributeValueMemberS{Value: FieldString(f.Value)}
			clauses = append(clauses, fmt.Sprintf("contains(%s, %s)", nameKey, valueKey))
			continue
		}
		exprNames[nameKey] = fieldPrefix + EscapePropertyName(f.Field)
		exprValues[valueKey] = marshalScalar(normalizeScalar(f.Value))
		clauses = append(clauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ScanIndexForward:          aws.Bool(q.Order != OrderRecent),
	}
	if len(clauses) > 0 {
		input.FilterExpression = aws.String(strings.Join(clauses, " AND "))
	}
	if projection != "" {
		exprNames["#proj"] = projection
		input.ProjectionExpression = aws.String("#proj")
	}
	// Without filters every read item is a match, so reads can stop at the
	// page holding the last requested record.
	if len(clauses) == 0 && q.Limit > 0 {
		input.Limit = aws.Int32(int32(min(q.Offset+q.Limit, 1000)))
	}
	return input
}

// buildScanInput renders a scan over the kind's records starting after
// cursor. Limit bounds the items read per call, before filtering.
func buildScanInput(table, kind, cursor string, limit int) *dynamodb.ScanInput {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String("#kind = :kind"),
		ExpressionAttributeNames:  map[string]string{"#kind": AttrKind},
		ExpressionAttributeValues: map[string]types.AttributeValue{":kind": &types.AttributeValueMemberS{Value: kind}},
	}
	if cursor != "" {
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			AttrKey: &types.AttributeValueMemberS{Value: cursor},
		}
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(min(limit, 1000)))
	}
	return input
}

func keyAttr(key StoreKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrKey: &types.AttributeValueMemberS{Value: key.String()},
	}
}

func scopeValue(parent StoreKey, kind string) string {
	return parent.String() + "|" + kind
}

// marshalScalar encodes a normalized scalar.
func marshalScalar(v any) types.AttributeValue {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return &types.AttributeValueMemberS{Value: FieldString(v)}
	}
	return av
}

// marshalRecord converts a Record to a DynamoDB item.
func marshalRecord(rec Record) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		AttrKey:     &types.AttributeValueMemberS{Value: rec.Key.String()},
		AttrKind:    &types.AttributeValueMemberS{Value: rec.Key.Kind},
		AttrSort:    &types.AttributeValueMemberS{Value: sortPrefix + rec.Sort},
		AttrChanged: &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.Changed.UnixNano(), 10)},
		AttrPayload: &types.AttributeValueMemberB{Value: rec.Payload},
	}
	if rec.Key.Parent != nil {
		item[AttrParent] = &types.AttributeValueMemberS{Value: rec.Key.Parent.String()}
		item[AttrScope] = &types.AttributeValueMemberS{Value: scopeValue(*rec.Key.Parent, rec.Key.Kind)}
	}
	for name, v := range rec.Fields {
		item[fieldPrefix+EscapePropertyName(name)] = marshalScalar(v)
	}
	for path, values := range rec.Index {
		list, err := attributevalue.MarshalList(values)
		if err != nil {
			return nil, fmt.Errorf("marshal index %q: %w", path, err)
		}
		item[indexPrefix+EscapePropertyName(path)] = &types.AttributeValueMemberL{Value: list}
	}
	return item, nil
}

// unmarshalRecord converts a DynamoDB item to a Record.
func unmarshalRecord(raw map[string]types.AttributeValue) (Record, error) {
	var rec Record

	v, ok := raw[AttrKey].(*types.AttributeValueMemberS)
	if !ok {
		return Record{}, fmt.Errorf("item without %s attribute", AttrKey)
	}
	key, err := ParseStoreKey(v.Value)
	if err != nil {
		return Record{}, err
	}
	rec.Key = key

	if v, ok := raw[AttrSort].(*types.AttributeValueMemberS); ok {
		rec.Sort = strings.TrimPrefix(v.Value, sortPrefix)
	}
	if v, ok := raw[AttrChanged].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			rec.Changed = time.Unix(0, n).UTC()
		}
	}
	if v, ok := raw[AttrPayload].(*types.AttributeValueMemberB); ok {
		rec.Payload = v.Value
	}

	for name, av := range raw {
		switch {
		case strings.HasPrefix(name, fieldPrefix):
			if rec.Fields == nil {
				rec.Fields = make(map[string]any)
			}
			rec.Fields[UnescapePropertyName(strings.TrimPrefix(name, fieldPrefix))] = unmarshalScalar(av)
		case strings.HasPrefix(name, indexPrefix):
			var values []string
			if err := attributevalue.Unmarshal(av, &values); err != nil {
				return Record{}, fmt.Errorf("unmarshal index %q: %w", name, err)
			}
			if rec.Index == nil {
				rec.Index = make(map[string][]string)
			}
			rec.Index[UnescapePropertyName(strings.TrimPrefix(name, indexPrefix))] = values
		}
	}
	return rec, nil
}

// unmarshalScalar decodes a scalar attribute into the normalized forms
// produced by the Converter.
func unmarshalScalar(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return normalizeFloat(f)
		}
		return v.Value
	case *types.AttributeValueMemberBOOL:
		return v.Value
	case *types.AttributeValueMemberNULL:
		return nil
	default:
		return nil
	}
}

// CreateTableInput returns the definition of an entry table named table: a
// string hash key on _key plus the four query indexes, all projecting every
// attribute.
func CreateTableInput(table string) *dynamodb.CreateTableInput {
	gsi := func(name, pk, sk string) types.GlobalSecondaryIndex {
		return types.GlobalSecondaryIndex{
			IndexName: aws.String(name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(sk), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}
	}
	return &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrKey), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(AttrKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrKind), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrScope), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrSort), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrChanged), AttributeType: types.ScalarAttributeTypeN},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(IndexKindSort, AttrKind, AttrSort),
			gsi(IndexScopeSort, AttrScope, AttrSort),
			gsi(IndexKindChanged, AttrKind, AttrChanged),
			gsi(IndexScopeChanged, AttrScope, AttrChanged),
		},
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeKeysOnly,
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

var _ Backend = (*DynamoBackend)(nil)
