package strategy

import (
	"bytes"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Params are the raw strategy_params of the config file.
type Params map[string]any

// Decode overlays the params onto out, which should already hold the
// defaults, and validates the result. Unknown keys are rejected.
func (p Params) Decode(out any) error {
	if len(p) > 0 {
		data, err := yaml.Marshal(map[string]any(p))
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to encode strategy params", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)

		if err := decoder.Decode(out); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid strategy params", err)
		}
	}

	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid strategy params", err)
	}

	return nil
}
