package personality

import (
	"github.com/dewwy/petbot/internal/domain/behavior"
	"github.com/dewwy/petbot/internal/domain/emotion"
	"github.com/dewwy/petbot/internal/domain/rules"
)

// reaction returns the emotions a state change can provoke, drawn uniformly.
func (t Traits) reaction(s behavior.State) []emotion.Emotion {
	switch s {
	case behavior.Idle:
		return []emotion.Emotion{emotion.Neutral}
	case behavior.Roaming:
		if t.Activeness > 7 {
			return []emotion.Emotion{emotion.Excited}
		}
		return []emotion.Emotion{emotion.Neutral}
	case behavior.Avoiding:
		if t.Patience < 4 {
			return []emotion.Emotion{emotion.Scared}
		}
		return []emotion.Emotion{emotion.Grumpy, emotion.Neutral}
	case behavior.Interacting:
		if t.Friendliness > 6 {
			return []emotion.Emotion{emotion.Happy}
		}
		return []emotion.Emotion{emotion.Neutral}
	case behavior.Searching:
		return []emotion.Emotion{emotion.Curious}
	case behavior.Sleeping:
		return []emotion.Emotion{emotion.Sleepy}
	case behavior.Playing:
		return []emotion.Emotion{emotion.Playful, emotion.Excited, emotion.Happy}
	case behavior.Startled:
		return []emotion.Emotion{emotion.Scared}
	case behavior.Curious:
		if t.Openness > 4 {
			return []emotion.Emotion{emotion.Curious}
		}
		return []emotion.Emotion{emotion.Neutral}
	default:
		return nil
	}
}

// implausible lists emotions that never arise on their own in a state.
var implausible = map[behavior.State][]emotion.Emotion{
	behavior.Sleeping: {emotion.Excited, emotion.Playful, emotion.Curious},
	behavior.Playing:  {emotion.Sleepy, emotion.Sad},
	behavior.Avoiding: {emotion.Sleepy, emotion.Playful},
	behavior.Startled: {emotion.Sleepy, emotion.Playful},
}

// moodWeights weights a spontaneous mood swing by the traits, minus what the state rules out.
func (t Traits) moodWeights(s behavior.State) []rules.Weighted[emotion.Emotion] {
	weights := []rules.Weighted[emotion.Emotion]{
		{Value: emotion.Happy, Weight: float64(t.Friendliness)},
		{Value: emotion.Sad, Weight: float64(10 - t.Friendliness)},
		{Value: emotion.Excited, Weight: float64(t.Expressiveness)},
		{Value: emotion.Sleepy, Weight: float64(10 - t.Activeness)},
		{Value: emotion.Curious, Weight: float64(t.Openness)},
		{Value: emotion.Playful, Weight: float64(t.Activeness)},
		{Value: emotion.Grumpy, Weight: float64(10 - t.Patience)},
	}
	for _, excluded := range implausible[s] {
		for i := range weights {
			if weights[i].Value == excluded {
				weights[i].Weight = 0
			}
		}
	}
	return weights
}
