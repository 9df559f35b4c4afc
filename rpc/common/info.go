package common

import (
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/memmgr"
)

// ShardInfo is the payload of an Info response (json encoded in Message.Meta).
type ShardInfo struct {
	ShardID uint64          `json:"shard_id"`
	Bucket  uint8           `json:"bucket"`
	Memory  memmgr.Info     `json:"memory"`
	Store   db.DatabaseInfo `json:"store"`
}
