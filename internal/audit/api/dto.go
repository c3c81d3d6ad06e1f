package api

import (
	"time"

	"github.com/xxz807/fieldledger/internal/audit/domain"
)

type RecordResp struct {
	ID          int64          `json:"id"`
	TargetType  string         `json:"target_type"`
	TargetID    string         `json:"target_id"`
	Action      string         `json:"action"`
	Outcome     string         `json:"outcome"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	ActorID     string         `json:"actor_id"`
	ActorRole   string         `json:"actor_role"`
	ActorOrigin string         `json:"actor_origin,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toRecordResp(r domain.Record) RecordResp {
	return RecordResp{
		ID:          r.ID,
		TargetType:  string(r.TargetType),
		TargetID:    r.TargetID,
		Action:      string(r.Action),
		Outcome:     string(r.Outcome),
		ErrorKind:   r.ErrorKind,
		Before:      r.Before,
		After:       r.After,
		Reason:      r.Reason,
		ActorID:     r.ActorID,
		ActorRole:   r.ActorRole,
		ActorOrigin: r.ActorOrigin,
		RequestID:   r.RequestID,
		CreatedAt:   r.CreatedAt,
	}
}
