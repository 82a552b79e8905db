package uuid

import (
	"strings"

	guuid "github.com/google/uuid"
)

// GenUUID16 生成16位的短uuid，用于request_id
func GenUUID16() string {
	id := strings.ReplaceAll(guuid.NewString(), "-", "")
	return id[:16]
}

// GenUUID 生成标准uuid
func GenUUID() string {
	return guuid.NewString()
}
