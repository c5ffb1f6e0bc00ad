package reconcile

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// Options is the order policy shared by every task of a registry.
type Options struct {
	// Price selects the limit price of submitted orders. Defaults to ACTIVE.
	Price types.PriceType
	// OffsetPriority is parsed by ParseOffsetPriority. Defaults to DefaultOffsetPriority.
	OffsetPriority string
	// MinVolume and MaxVolume bound the size of a single order. Both or
	// neither must be set.
	MinVolume optional.Option[int]
	MaxVolume optional.Option[int]
}

// DefaultOptions returns ACTIVE pricing, the default offset priority and no chunking.
func DefaultOptions() Options {
	return Options{
		Price:          types.PriceTypeActive,
		OffsetPriority: DefaultOffsetPriority,
		MinVolume:      optional.None[int](),
		MaxVolume:      optional.None[int](),
	}
}

// Validate checks the policy without building a registry.
func (o Options) Validate() error {
	_, err := o.compile()

	return err
}

type policy struct {
	price     types.PriceType
	priority  OffsetPriority
	maxVolume optional.Option[int]
}

func (o Options) compile() (policy, error) {
	price := o.Price
	if price == "" {
		price = types.PriceTypeActive
	}

	if price != types.PriceTypeActive && price != types.PriceTypePassive {
		return policy{}, errors.Newf(errors.ErrCodeInvalidPriceMode, "price mode must be ACTIVE or PASSIVE, got %q", o.Price)
	}

	raw := o.OffsetPriority
	if raw == "" {
		raw = DefaultOffsetPriority
	}

	priority, err := ParseOffsetPriority(raw)
	if err != nil {
		return policy{}, err
	}

	if o.MinVolume.IsSome() != o.MaxVolume.IsSome() {
		return policy{}, errors.New(errors.ErrCodeInvalidVolumeRange, "min_volume and max_volume must be set together")
	}

	if o.MaxVolume.IsSome() {
		minVolume, maxVolume := o.MinVolume.Unwrap(), o.MaxVolume.Unwrap()
		if minVolume <= 0 || minVolume > maxVolume {
			return policy{}, errors.Newf(errors.ErrCodeInvalidVolumeRange, "volume range must satisfy 0 < min <= max, got [%d, %d]", minVolume, maxVolume)
		}
	}

	return policy{price: price, priority: priority, maxVolume: o.MaxVolume}, nil
}

// chunk splits volume into pieces of at most maxVolume lots. The last piece holds the remainder.
func chunk(volume int, maxVolume optional.Option[int]) []int {
	if volume <= 0 {
		return nil
	}

	if maxVolume.IsNone() {
		return []int{volume}
	}

	size := maxVolume.Unwrap()
	pieces := make([]int, 0, (volume+size-1)/size)

	for volume > 0 {
		piece := min(volume, size)
		pieces = append(pieces, piece)
		volume -= piece
	}

	return pieces
}
