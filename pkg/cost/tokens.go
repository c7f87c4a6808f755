package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// EstimateTokens approximates text's token count using the cl100k_base
// encoding, the closest public tokenizer to Claude's own: a Claude-family
// model's cost is estimated by running its prompt through cl100k.
func EstimateTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
