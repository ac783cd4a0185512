package assistant

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	appLog "campusmap/internal/log"
)

// Counter reports how many tokens a piece of text costs.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the model's BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter selects the encoding for model, falling back to
// cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		appLog.Debug("no tokenizer for model; using cl100k_base", "model", model)
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Budget is the prompt token allowance: the context window minus what is
// reserved for the reply.
type Budget struct {
	Counter   Counter
	MaxTokens int
	Reserve   int
}

// Available is the number of prompt tokens left for content.
func (b Budget) Available() int {
	n := b.MaxTokens - b.Reserve
	if n < 0 {
		return 0
	}
	return n
}

func (b Budget) limited() bool {
	return b.Counter != nil && b.MaxTokens > 0
}
