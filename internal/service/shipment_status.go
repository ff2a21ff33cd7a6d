package service

import (
	"fmt"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/constants"
)

// statusTransitionKey 迁移表键：当前状态、目标状态与触发来源
type statusTransitionKey struct {
	From   string
	To     string
	Source string
}

// statusTransitionRule 迁移规则
type statusTransitionRule struct {
	RequireOverride bool // 仅人工覆盖时放行
}

// TransitionTable 运单状态迁移表。不在表内的组合一律拒绝，
// 同状态迁移不进表（显式拒绝无操作更新）。
type TransitionTable map[statusTransitionKey]statusTransitionRule

var allEventSources = []string{
	constants.EventSourceManual,
	constants.EventSourceAPISync,
	constants.EventSourceWebhook,
	constants.EventSourceUserAction,
}

var allShipmentStatuses = []string{
	constants.ShipmentStatusPending,
	constants.ShipmentStatusInTransit,
	constants.ShipmentStatusOutForDelivery,
	constants.ShipmentStatusDelivered,
	constants.ShipmentStatusException,
	constants.ShipmentStatusCancelled,
}

// DefaultTransitionTable 默认迁移策略：
//   - 正向链路 pending → in_transit → out_for_delivery → delivered，
//     允许跨级推进，全部来源放行；
//   - exception 与 cancelled 可从任意非终态进入，全部来源放行；
//   - exception 可恢复到正向链路中除 pending 以外的状态；
//   - 终态（delivered/cancelled）退出与一切回退仅 manual 且显式覆盖。
func DefaultTransitionTable() TransitionTable {
	table := make(TransitionTable)

	allow := func(from, to string, requireOverride bool, sources ...string) {
		for _, source := range sources {
			table[statusTransitionKey{From: from, To: to, Source: source}] = statusTransitionRule{
				RequireOverride: requireOverride,
			}
		}
	}

	for _, from := range allShipmentStatuses {
		for _, to := range allShipmentStatuses {
			if from == to {
				continue
			}

			switch {
			case isTerminalShipmentStatus(from):
				// 终态退出
				allow(from, to, true, constants.EventSourceManual)
			case to == constants.ShipmentStatusException || to == constants.ShipmentStatusCancelled:
				allow(from, to, false, allEventSources...)
			case from == constants.ShipmentStatusException:
				if to == constants.ShipmentStatusPending {
					allow(from, to, true, constants.EventSourceManual)
				} else {
					allow(from, to, false, allEventSources...)
				}
			case isForwardStatusMove(from, to):
				allow(from, to, false, allEventSources...)
			default:
				// 正向链路上的回退
				allow(from, to, true, constants.EventSourceManual)
			}
		}
	}
	return table
}

// StatusTransitionError 被拒绝的状态迁移，携带明细供响应提示
type StatusTransitionError struct {
	From   string
	To     string
	Source string
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("status transition from %s to %s not allowed for source %s", e.From, e.To, e.Source)
}

// Is 支持 errors.Is(err, ErrShipmentStatusInvalid) 判定
func (e *StatusTransitionError) Is(target error) bool {
	return target == ErrShipmentStatusInvalid
}

// CanTransition 查表判定迁移是否放行
func (t TransitionTable) CanTransition(from, to, source string, override bool) bool {
	rule, ok := t[statusTransitionKey{From: from, To: to, Source: source}]
	if !ok {
		return false
	}
	if rule.RequireOverride && !override {
		return false
	}
	return true
}

func isShipmentStatusSupported(status string) bool {
	switch status {
	case constants.ShipmentStatusPending,
		constants.ShipmentStatusInTransit,
		constants.ShipmentStatusOutForDelivery,
		constants.ShipmentStatusDelivered,
		constants.ShipmentStatusException,
		constants.ShipmentStatusCancelled:
		return true
	default:
		return false
	}
}

func isTerminalShipmentStatus(status string) bool {
	return status == constants.ShipmentStatusDelivered || status == constants.ShipmentStatusCancelled
}

// isForwardStatusMove 两个状态均在正向链路上且向前推进（允许跨级）
func isForwardStatusMove(from, to string) bool {
	fromOrder, fromOK := constants.ShipmentStatusOrder[from]
	toOrder, toOK := constants.ShipmentStatusOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toOrder > fromOrder
}

func normalizeShipmentStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
