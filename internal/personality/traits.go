package personality

import (
	"fmt"
	"math/rand"

	"github.com/dewwy/petbot/internal/domain"
)

// Traits are the fixed personality scalars of one robot, each in [1, 10].
type Traits struct {
	Openness       int `json:"openness" yaml:"openness"`
	Friendliness   int `json:"friendliness" yaml:"friendliness"`
	Activeness     int `json:"activeness" yaml:"activeness"`
	Expressiveness int `json:"expressiveness" yaml:"expressiveness"`
	Patience       int `json:"patience" yaml:"patience"`
}

// RandomTraits draws every trait uniformly from [1, 10].
func RandomTraits(rng *rand.Rand) Traits {
	draw := func() int { return 1 + rng.Intn(10) }
	return Traits{
		Openness:       draw(),
		Friendliness:   draw(),
		Activeness:     draw(),
		Expressiveness: draw(),
		Patience:       draw(),
	}
}

// Validate checks every trait is in range.
func (t Traits) Validate() error {
	for name, v := range map[string]int{
		"openness":       t.Openness,
		"friendliness":   t.Friendliness,
		"activeness":     t.Activeness,
		"expressiveness": t.Expressiveness,
		"patience":       t.Patience,
	} {
		if v < 1 || v > 10 {
			return fmt.Errorf("%w: trait %s=%d outside [1,10]", domain.ErrInvalidArgument, name, v)
		}
	}
	return nil
}
