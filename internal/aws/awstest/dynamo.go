// Package awstest provides in-memory stand-ins for the AWS clients used by the service.
// The DynamoDB fake understands the small expression dialect the stores emit: SET clauses
// with plain values, list_append and if_not_exists, and AND-joined conditions built from
// attribute_exists, attribute_not_exists and equality.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo is a concurrency-safe in-memory DynamoDB.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]map[string]types.AttributeValue

	// FailOn, when set, is consulted before every call; a non-nil error is returned as-is.
	FailOn func(op, table string) error

	Calls map[string]int
}

// NewDynamo returns an empty fake. Tables must be declared with DefineTable.
func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
		Calls:  map[string]int{},
	}
}

// DefineTable registers a table and the name of its string partition key.
func (d *Dynamo) DefineTable(table, pk string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[table] = pk
	if _, ok := d.tables[table]; !ok {
		d.tables[table] = map[string]map[string]types.AttributeValue{}
	}
}

// Item returns a copy of the stored item, or nil.
func (d *Dynamo) Item(table, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Put stores an item unconditionally, bypassing FailOn.
func (d *Dynamo) Put(table string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pk, _ := d.pkValue(table, item)
	d.tables[table][pk] = copyItem(item)
}

// Len returns the number of items in a table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

func (d *Dynamo) before(op, table string) error {
	d.Calls[op]++
	if d.FailOn != nil {
		return d.FailOn(op, table)
	}
	return nil
}

func (d *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	if err := d.before("PutItem", table); err != nil {
		return nil, err
	}
	pk, err := d.pkValue(table, params.Item)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}
	d.tables[table][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	if err := d.before("GetItem", table); err != nil {
		return nil, err
	}
	pk, err := d.pkValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	if err := d.before("UpdateItem", table); err != nil {
		return nil, err
	}
	pk, err := d.pkValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}

	item := copyItem(existing)
	if item == nil {
		item = copyItem(params.Key)
	}
	if params.UpdateExpression != nil {
		if err := applyUpdate(*params.UpdateExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	d.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (d *Dynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := *params.TableName
	if err := d.before("DeleteItem", table); err != nil {
		return nil, err
	}
	pk, err := d.pkValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}
	delete(d.tables[table], pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (d *Dynamo) pkValue(table string, item map[string]types.AttributeValue) (string, error) {
	name, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("awstest: table %q not defined", table)
	}
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("awstest: missing string key %q", name)
	}
	return v.Value, nil
}

func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
			if _, ok := item[attr]; ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
			if _, ok := item[attr]; !ok {
				return false, nil
			}
		case strings.Contains(clause, " = "):
			parts := strings.SplitN(clause, " = ", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			want, ok := values[strings.TrimSpace(parts[1])]
			if !ok {
				return false, fmt.Errorf("awstest: missing value %s", parts[1])
			}
			got, ok := item[attr]
			if !ok || !equalScalar(got, want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("awstest: unsupported condition %q", clause)
		}
	}
	return true, nil
}

func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("awstest: unsupported update %q", expr)
	}
	for _, assignment := range splitTopLevel(expr[len("SET "):]) {
		parts := strings.SplitN(assignment, " = ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("awstest: bad assignment %q", assignment)
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		rhs := strings.TrimSpace(parts[1])
		switch {
		case strings.HasPrefix(rhs, "list_append("):
			args := splitTopLevel(rhs[len("list_append(") : len(rhs)-1])
			if len(args) != 2 {
				return fmt.Errorf("awstest: bad list_append %q", rhs)
			}
			base, _ := item[resolveName(args[0], names)].(*types.AttributeValueMemberL)
			extra, ok := values[args[1]].(*types.AttributeValueMemberL)
			if !ok {
				return fmt.Errorf("awstest: list_append needs a list value")
			}
			var merged []types.AttributeValue
			if base != nil {
				merged = append(merged, base.Value...)
			}
			merged = append(merged, extra.Value...)
			item[attr] = &types.AttributeValueMemberL{Value: merged}
		case strings.HasPrefix(rhs, "if_not_exists("):
			args := splitTopLevel(rhs[len("if_not_exists(") : len(rhs)-1])
			if len(args) != 2 {
				return fmt.Errorf("awstest: bad if_not_exists %q", rhs)
			}
			if _, ok := item[resolveName(args[0], names)]; !ok {
				item[attr] = values[args[1]]
			}
		default:
			v, ok := values[rhs]
			if !ok {
				return fmt.Errorf("awstest: missing value %s", rhs)
			}
			item[attr] = v
		}
	}
	return nil
}

// splitTopLevel splits on commas that are not nested inside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func equalScalar(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }

// ErrThrottled is a convenience error for FailOn hooks.
var ErrThrottled = errors.New("awstest: throughput exceeded")
