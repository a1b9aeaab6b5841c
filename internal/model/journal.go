package model

import (
	"encoding/json"
	"time"
)

// Journal はユーザーの気分ジャーナルを表す。
// OwnerKeyは所有者IdentityのKeyで、アカウントのリネーム時に付け替えられる。
type Journal struct {
	ID              string          `json:"id"`
	OwnerKey        string          `json:"userId"`
	Note            string          `json:"catatan"`
	Mood            string          `json:"mood"`
	Activities      []string        `json:"aktivitas"`
	ActivityDetails json.RawMessage `json:"detailAktivitas"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
