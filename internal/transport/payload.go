package transport

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

const payloadAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomPayload generates JSON documents carrying sizeHint random
// alphanumeric characters in their data field.
type RandomPayload struct{}

type payload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Data      string `json:"data"`
}

// Generate implements PayloadGenerator.
func (RandomPayload) Generate(sizeHint int, kind string) ([]byte, error) {
	if sizeHint < 0 {
		return nil, fmt.Errorf("payload size hint must be non-negative, got %d", sizeHint)
	}
	if kind == "" {
		kind = "default"
	}

	data := make([]byte, sizeHint)
	for i := range data {
		data[i] = payloadAlphabet[rand.IntN(len(payloadAlphabet))]
	}

	return json.Marshal(payload{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		Data:      string(data),
	})
}
