// Package ddbtest provides an in-memory DynamoDB client for tests.
//
// It understands the small expression subset used by the store:
// attribute_exists / attribute_not_exists / equality conditions joined with
// AND, SET updates with optional "+" increments, and hash key equality
// queries.
package ddbtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation names accepted by Fail.
const (
	OpGetItem       = "GetItem"
	OpPutItem       = "PutItem"
	OpUpdateItem    = "UpdateItem"
	OpDeleteItem    = "DeleteItem"
	OpQuery         = "Query"
	OpDescribeTable = "DescribeTable"
	OpCreateTable   = "CreateTable"
)

type item = map[string]types.AttributeValue

type table struct {
	hashKey  string
	rangeKey string
	items    map[string]item
}

// Client is an in-memory, concurrency-safe stand-in for *dynamodb.Client.
type Client struct {
	// PageSize caps Query pages when the request sets no Limit (0 = unlimited).
	PageSize int

	mu     sync.Mutex
	tables map[string]*table
	fail   map[string]error
	calls  map[string]int
}

// New returns an empty Client.
func New() *Client {
	return &Client{
		tables: make(map[string]*table),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// WithTable creates a table with the given key schema and returns c.
func (c *Client) WithTable(name, hashKey, rangeKey string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = &table{hashKey: hashKey, rangeKey: rangeKey, items: make(map[string]item)}
	return c
}

// Fail makes every call to op return err until Fail(op, nil) is called.
func (c *Client) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, op)
		return
	}
	c.fail[op] = err
}

// Calls returns how many times op was invoked.
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Len returns the number of items in a table.
func (c *Client) Len(tableName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[tableName]
	if !ok {
		return 0
	}
	return len(t.items)
}

// Put stores an item directly, bypassing conditions.
func (c *Client) Put(tableName string, it map[string]types.AttributeValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.table(tableName)
	if err != nil {
		return err
	}
	k, err := t.keyOf(it)
	if err != nil {
		return err
	}
	t.items[k] = copyItem(it)
	return nil
}

func (c *Client) begin(op string) error {
	c.calls[op]++
	return c.fail[op]
}

func (c *Client) table(name string) (*table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Requested resource not found: Table: " + name + " not found"),
		}
	}
	return t, nil
}

// GetItem implements store.Client.
func (c *Client) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpGetItem); err != nil {
		return nil, err
	}
	t, err := c.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.GetItemOutput{}
	if it, ok := t.items[k]; ok {
		out.Item = copyItem(it)
	}
	return out, nil
}

// PutItem implements store.Client.
func (c *Client) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpPutItem); err != nil {
		return nil, err
	}
	t, err := c.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	existing := t.items[k]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(existing, in.ReturnValuesOnConditionCheckFailure)
	}
	t.items[k] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem implements store.Client.
func (c *Client) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpUpdateItem); err != nil {
		return nil, err
	}
	t, err := c.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	existing := t.items[k]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(existing, in.ReturnValuesOnConditionCheckFailure)
	}

	updated := copyItem(existing)
	if updated == nil {
		updated = copyItem(in.Key)
	}
	if err := applyUpdate(aws.ToString(in.UpdateExpression), updated, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	t.items[k] = updated

	out := &dynamodb.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = copyItem(updated)
	case types.ReturnValueAllOld:
		out.Attributes = copyItem(existing)
	}
	return out, nil
}

// DeleteItem implements store.Client.
func (c *Client) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpDeleteItem); err != nil {
		return nil, err
	}
	t, err := c.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	existing := t.items[k]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(existing, in.ReturnValuesOnConditionCheckFailure)
	}
	delete(t.items, k)
	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(existing)
	}
	return out, nil
}

// Query implements store.Client. Only hash key equality is supported.
func (c *Client) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpQuery); err != nil {
		return nil, err
	}
	t, err := c.table(aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}

	name, placeholder, ok := strings.Cut(aws.ToString(in.KeyConditionExpression), "=")
	if !ok {
		return nil, validationError("unsupported key condition %q", aws.ToString(in.KeyConditionExpression))
	}
	attr := resolveName(strings.TrimSpace(name), in.ExpressionAttributeNames)
	if attr != t.hashKey {
		return nil, validationError("key condition must target hash key %q", t.hashKey)
	}
	want, ok := in.ExpressionAttributeValues[strings.TrimSpace(placeholder)]
	if !ok {
		return nil, validationError("missing value %s", strings.TrimSpace(placeholder))
	}

	var matches []item
	for _, it := range t.items {
		if equal(it[t.hashKey], want) {
			matches = append(matches, it)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return scalar(matches[i][t.rangeKey]) < scalar(matches[j][t.rangeKey])
	})

	start := 0
	if in.ExclusiveStartKey != nil {
		after := scalar(in.ExclusiveStartKey[t.rangeKey])
		for start < len(matches) && scalar(matches[start][t.rangeKey]) <= after {
			start++
		}
	}
	limit := c.PageSize
	if in.Limit != nil {
		limit = int(*in.Limit)
	}
	end := len(matches)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	out := &dynamodb.QueryOutput{}
	for _, it := range matches[start:end] {
		out.Items = append(out.Items, copyItem(it))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = out.Count
	if end < len(matches) {
		last := matches[end-1]
		out.LastEvaluatedKey = item{t.hashKey: last[t.hashKey], t.rangeKey: last[t.rangeKey]}
	}
	return out, nil
}

// DescribeTable implements store.Client. Existing tables are always ACTIVE.
func (c *Client) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpDescribeTable); err != nil {
		return nil, err
	}
	name := aws.ToString(in.TableName)
	t, err := c.table(name)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusActive,
			ItemCount:   aws.Int64(int64(len(t.items))),
		},
	}, nil
}

// CreateTable implements store.Client.
func (c *Client) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(OpCreateTable); err != nil {
		return nil, err
	}
	name := aws.ToString(in.TableName)
	if _, exists := c.tables[name]; exists {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	t := &table{items: make(map[string]item)}
	for _, ks := range in.KeySchema {
		switch ks.KeyType {
		case types.KeyTypeHash:
			t.hashKey = aws.ToString(ks.AttributeName)
		case types.KeyTypeRange:
			t.rangeKey = aws.ToString(ks.AttributeName)
		}
	}
	if t.hashKey == "" {
		return nil, validationError("table %s has no hash key", name)
	}
	c.tables[name] = t
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   aws.String(name),
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (t *table) keyOf(it item) (string, error) {
	h, ok := it[t.hashKey]
	if !ok {
		return "", validationError("missing hash key %q", t.hashKey)
	}
	k := scalar(h)
	if t.rangeKey != "" {
		r, ok := it[t.rangeKey]
		if !ok {
			return "", validationError("missing range key %q", t.rangeKey)
		}
		k += "\x00" + scalar(r)
	}
	return k, nil
}

func conditionFailed(existing item, rv types.ReturnValuesOnConditionCheckFailure) error {
	err := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld && existing != nil {
		err.Item = copyItem(existing)
	}
	return err
}

func evalCondition(expr string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
			if _, ok := it[attr]; !ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
			if _, ok := it[attr]; ok {
				return false, nil
			}
		default:
			lhs, rhs, ok := strings.Cut(clause, "=")
			if !ok {
				return false, validationError("unsupported condition %q", clause)
			}
			attr := resolveName(strings.TrimSpace(lhs), names)
			want, ok := values[strings.TrimSpace(rhs)]
			if !ok {
				return false, validationError("missing value %s", strings.TrimSpace(rhs))
			}
			if !equal(it[attr], want) {
				return false, nil
			}
		}
	}
	return true, nil
}

func applyUpdate(expr string, it item, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return validationError("unsupported update %q", expr)
	}
	for _, clause := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return validationError("unsupported set clause %q", clause)
		}
		attr := resolveName(strings.TrimSpace(lhs), names)
		rhs = strings.TrimSpace(rhs)

		if base, inc, isAdd := strings.Cut(rhs, "+"); isAdd {
			cur, err := number(it[resolveName(strings.TrimSpace(base), names)])
			if err != nil {
				return err
			}
			delta, err := number(values[strings.TrimSpace(inc)])
			if err != nil {
				return err
			}
			it[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(cur+delta, 10)}
			continue
		}

		v, ok := values[rhs]
		if !ok {
			return validationError("missing value %s", rhs)
		}
		it[attr] = v
	}
	return nil
}

func resolveName(token string, names map[string]string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "#") {
		if n, ok := names[token]; ok {
			return n
		}
	}
	return token
}

func number(av types.AttributeValue) (int64, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, validationError("operand is not a number")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func scalar(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return string(v.Value)
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value)
	default:
		return ""
	}
}

func equal(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	default:
		return scalar(a) == scalar(b)
	}
}

func copyItem(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// ErrValidation is wrapped by errors for malformed requests.
var ErrValidation = errors.New("ddbtest: validation error")

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
