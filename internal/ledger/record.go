package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/davidahmann/continuum/internal/decision"
	"github.com/davidahmann/continuum/pkg/types"
)

// EncodeDecision returns the persisted JSON body of d.
func EncodeDecision(d types.Decision) ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", decision.ErrStorage, d.ID, err)
	}
	return body, nil
}

// DecodeDecision parses a persisted JSON body.
func DecodeDecision(body []byte) (types.Decision, error) {
	var d types.Decision
	if err := json.Unmarshal(body, &d); err != nil {
		return types.Decision{}, fmt.Errorf("%w: decode record: %w", decision.ErrStorage, err)
	}
	return d, nil
}
