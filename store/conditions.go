package store

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RowExistsCondition returns the condition expression requiring the row to exist.
func RowExistsCondition() string {
	return "attribute_exists(#rk)"
}

// RowAbsentCondition returns the condition expression requiring the row to be absent.
func RowAbsentCondition() string {
	return "attribute_not_exists(#rk)"
}

// VersionCondition returns the condition expression for optimistic locking.
// The row must exist and still carry the expected version.
func VersionCondition() string {
	return RowExistsCondition() + " AND #version = :expected_version"
}

// rowKeyNames returns expression attribute names for the row conditions.
func rowKeyNames() map[string]string {
	return map[string]string{"#rk": AttrRowKey}
}

// versionValues returns expression attribute values for VersionCondition.
func versionValues(expected int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":expected_version": &types.AttributeValueMemberN{
			Value: strconv.FormatInt(expected, 10),
		},
	}
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
