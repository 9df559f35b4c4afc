package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// MemoryType selects the memory region backing the server.
type MemoryType string

const (
	// MemoryVector keeps the region in process memory. Data is lost on exit.
	MemoryVector MemoryType = "vector"
	// MemoryFile maps the region to a file.
	MemoryFile MemoryType = "file"
)

// ServerShard binds a shard id, as used by clients, to a memory manager bucket.
type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Bucket is the bucket holding the shard's store
	Bucket uint8
}

// ServerConfig holds all configuration parameters of the RPC server.
type ServerConfig struct {
	// the shards served and their buckets
	Shards []ServerShard

	// memory region settings
	Memory     MemoryType
	MemoryFile string
	MaxPages   uint64

	// per request timeout
	TimeoutSecond int64

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string
}

// ParseShards parses a list of ID=BUCKET pairs, e.g. "100=0,101=1".
// An entry without "=" maps the shard to bucket 0.
func ParseShards(list string) ([]ServerShard, error) {
	var shards []ServerShard
	seen := make(map[uint64]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, bucketStr, hasBucket := strings.Cut(part, "=")
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard id %q: %w", idStr, err)
		}
		var bucket uint64
		if hasBucket {
			if bucket, err = strconv.ParseUint(strings.TrimSpace(bucketStr), 10, 8); err != nil {
				return nil, fmt.Errorf("invalid bucket for shard %d: %w", id, err)
			}
		}
		if seen[id] {
			return nil, fmt.Errorf("shard %d configured twice", id)
		}
		seen[id] = true
		shards = append(shards, ServerShard{ShardID: id, Bucket: uint8(bucket)})
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	return shards, nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Memory region
	addSection("Memory")
	addField("Type", string(c.Memory))
	if c.Memory == MemoryFile {
		addField("File", c.MemoryFile)
	}
	if c.MaxPages == 0 {
		addField("Max Pages", "unlimited")
	} else {
		addField("Max Pages", strconv.FormatUint(c.MaxPages, 10))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), fmt.Sprintf("bucket %d", shard.Bucket))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
