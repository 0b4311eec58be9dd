package models

// NarrationState is the spoken-narration channel as the renderer sees it.
type NarrationState struct {
	URL       string  `json:"url"`
	Enabled   bool    `json:"enabled"`
	IsPlaying bool    `json:"is_playing"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
}

// AmbienceState is the looping background channel.
type AmbienceState struct {
	URL     string  `json:"url"`
	Enabled bool    `json:"enabled"`
	Volume  float64 `json:"volume"`
}

// AudioPlaybackState is the composed audio view. Unlocked transitions from
// false to true exactly once per runtime lifetime.
type AudioPlaybackState struct {
	Unlocked  bool           `json:"unlocked"`
	Narration NarrationState `json:"narration"`
	Ambience  AmbienceState  `json:"ambience"`
}
