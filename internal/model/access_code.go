package model

import "time"

type AccessCode struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Used      bool       `json:"used"`
	UsedBy    *string    `json:"used_by"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}
