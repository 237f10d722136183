package knowledge

import (
	"context"
	"fmt"
	"strings"

	"kb-ext-api/internal/domain/entity"
	"kb-ext-api/pkg/logger"
)

// evaluateMetadataConditions 对知识条目求值元数据过滤条件组。
// logical_operator 为 or 时任一条件通过即通过，否则要求全部通过。
func evaluateMetadataConditions(ctx context.Context, seg *entity.KnowledgeSegment, conds *MetadataConditions) bool {
	if conds == nil || len(conds.Conditions) == 0 {
		return true
	}

	meta := seg.MetadataMap()
	isOr := strings.EqualFold(conds.LogicalOperator, "or")

	for _, cond := range conds.Conditions {
		matched := evaluateCondition(ctx, meta, &cond)
		if isOr && matched {
			return true
		}
		if !isOr && !matched {
			return false
		}
	}
	return !isOr
}

// evaluateCondition 单个条件对任一命名字段成立即视为通过
func evaluateCondition(ctx context.Context, meta map[string]any, cond *MetadataCondition) bool {
	for _, name := range cond.Name {
		value, present := fieldAsString(meta, name)
		if matchOperator(ctx, cond.ComparisonOperator, value, present, cond.Value) {
			return true
		}
	}
	return false
}

func fieldAsString(meta map[string]any, name string) (string, bool) {
	raw, ok := meta[name]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	default:
		s := fmt.Sprint(v)
		return s, s != ""
	}
}

func matchOperator(ctx context.Context, operator, value string, present bool, target string) bool {
	switch operator {
	case "contains":
		return present && strings.Contains(value, target)
	case "not contains":
		return !strings.Contains(value, target)
	case "start with":
		return present && strings.HasPrefix(value, target)
	case "end with":
		return present && strings.HasSuffix(value, target)
	case "is":
		return value == target
	case "is not":
		return value != target
	case "empty":
		return !present
	case "not empty":
		return present
	default:
		logger.Warn(ctx, "unsupported metadata comparison operator", "operator", operator)
		return false
	}
}
