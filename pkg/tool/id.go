package tool

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateOutTradeNo builds a merchant order id: a second-resolution timestamp
// followed by 40 bits of random suffix. Accepted by the gateway (<= 64 chars,
// alphanumeric) and unique for any realistic order volume.
func GenerateOutTradeNo() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(err)
	}
	return fmt.Sprintf("T%s%X", time.Now().Format("20060102150405"), b[:])
}
