package model

import (
	"encoding/json"
	"math"
)

// Meta is the free-form JSON attribute bag stored on transactions and
// receipts.
type Meta map[string]any

// Meta keys with shared meaning across the ledger.
const (
	MetaUserIDs        = "user_ids"
	MetaFailReason     = "fail_reason"
	MetaRejectReason   = "reject_reason"
	MetaUnitPrice      = "unit_price"
	MetaSourceAmount   = "source_amount"
	MetaCommissionRate = "commission_rate"
	MetaSourceReceipt  = "source_receipt_id"
	MetaPayerID        = "source_user_id"
	MetaPayerName      = "source_user_name"
	MetaPayerEmail     = "source_user_email"
	MetaPayerCode      = "source_user_code"
	MetaRefundOf       = "refund_of"
)

// Merge returns a new Meta holding base overlaid with the given layers.
// Later layers win on key collisions. Inputs are never modified.
func Merge(base Meta, layers ...Meta) Meta {
	out := make(Meta, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy that is never nil.
func (m Meta) Clone() Meta {
	return Merge(m)
}

// String returns the value under key when it is a string.
func (m Meta) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Int64 returns the value under key when it is a whole number, including
// the float64 produced by JSON decoding.
func (m Meta) Int64(key string) (int64, bool) {
	return toInt64(m[key])
}

// UserIDs returns the user_ids list, tolerating JSON-decoded numbers.
func (m Meta) UserIDs() []int64 {
	raw, ok := m[MetaUserIDs]
	if !ok {
		return nil
	}
	var ids []int64
	switch list := raw.(type) {
	case []int64:
		ids = append(ids, list...)
	case []any:
		for _, v := range list {
			if id, ok := toInt64(v); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// WithUserIDs returns a copy whose user_ids holds the union of the existing
// ids and ids, deduplicated in first-seen order.
func (m Meta) WithUserIDs(ids ...int64) Meta {
	out := m.Clone()
	if len(ids) == 0 {
		return out
	}
	out[MetaUserIDs] = UniqueIDs(append(m.UserIDs(), ids...))
	return out
}

// UniqueIDs drops repeated ids while keeping the first occurrence order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
