package fsm

import (
	"math"

	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/rules"
)

type option = rules.Weighted[behavior.State]

// nextWeights lists the candidate successors of a state with weights driven by the live metrics.
func nextWeights(from behavior.State, m Metrics) []option {
	switch from {
	case behavior.Idle:
		return []option{
			{Value: behavior.Roaming, Weight: 30 + m.Boredom*0.3},
			{Value: behavior.Sleeping, Weight: math.Max(5, m.Tiredness*0.7)},
			{Value: behavior.Curious, Weight: m.Curiosity * 0.5},
			{Value: behavior.Playing, Weight: m.Boredom * 0.2},
			{Value: behavior.Searching, Weight: 10 + m.Curiosity*0.2},
		}
	case behavior.Roaming:
		return []option{
			{Value: behavior.Idle, Weight: 40 + m.Tiredness*0.3},
			{Value: behavior.Searching, Weight: 15 + m.Curiosity*0.3},
			{Value: behavior.Playing, Weight: m.Boredom * 0.3},
			{Value: behavior.Curious, Weight: m.Curiosity * 0.2},
			{Value: behavior.Sleeping, Weight: m.Tiredness*0.4 - 10},
		}
	case behavior.Searching:
		return []option{
			{Value: behavior.Idle, Weight: 40},
			{Value: behavior.Roaming, Weight: 30},
			{Value: behavior.Curious, Weight: m.Curiosity * 0.4},
		}
	case behavior.Sleeping:
		return []option{
			{Value: behavior.Idle, Weight: 70},
			{Value: behavior.Roaming, Weight: 30 - m.Tiredness*0.3},
			{Value: behavior.Curious, Weight: m.Curiosity * 0.2},
		}
	case behavior.Interacting:
		return []option{
			{Value: behavior.Idle, Weight: 50},
			{Value: behavior.Playing, Weight: 20 + m.Boredom*0.3},
			{Value: behavior.Roaming, Weight: 20},
		}
	case behavior.Playing:
		return []option{
			{Value: behavior.Idle, Weight: 40 + m.Tiredness*0.5},
			{Value: behavior.Roaming, Weight: 30},
			{Value: behavior.Sleeping, Weight: m.Tiredness * 0.3},
		}
	case behavior.Startled:
		return []option{
			{Value: behavior.Idle, Weight: 50},
			{Value: behavior.Roaming, Weight: 30},
			{Value: behavior.Searching, Weight: 20},
		}
	case behavior.Curious:
		return []option{
			{Value: behavior.Searching, Weight: 40 + m.Curiosity*0.3},
			{Value: behavior.Roaming, Weight: 30},
			{Value: behavior.Idle, Weight: 20},
		}
	default:
		return nil
	}
}
