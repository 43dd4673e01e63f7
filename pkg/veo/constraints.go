package veo

import "fmt"

// Model identifies a video generation model version
type Model string

const (
	ModelV31     Model = "veo-3.1-generate-preview"
	ModelV31Fast Model = "veo-3.1-fast-generate-preview"
	ModelV3      Model = "veo-3.0-generate-001"
	ModelV3Fast  Model = "veo-3.0-fast-generate-001"
	ModelV2      Model = "veo-2.0-generate-001"
)

// Models lists every supported model in presentation order.
var Models = []Model{ModelV31, ModelV31Fast, ModelV3, ModelV3Fast, ModelV2}

// Resolution is an output resolution choice
type Resolution string

const (
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
)

// AspectRatio is an output aspect ratio choice
type AspectRatio string

const (
	AspectWide     AspectRatio = "16:9"
	AspectPortrait AspectRatio = "9:16"
)

// Duration is a clip length in seconds
type Duration int

const (
	Duration4s Duration = 4
	Duration6s Duration = 6
	Duration8s Duration = 8
)

// Safe defaults used when an invalid combination must be corrected.
const (
	DefaultResolution  = Res720p
	DefaultAspectRatio = AspectWide
	DefaultDuration    = Duration8s
)

type capabilities struct {
	durations    []Duration
	resolutions  []Resolution
	aspectRatios []AspectRatio
	audio        bool
	// full1080p means 1080p carries no extra duration/aspect restrictions.
	full1080p bool
}

var table = map[Model]capabilities{
	ModelV31: {
		durations:    []Duration{Duration4s, Duration6s, Duration8s},
		resolutions:  []Resolution{Res720p, Res1080p},
		aspectRatios: []AspectRatio{AspectWide, AspectPortrait},
		audio:        true,
		full1080p:    true,
	},
	ModelV31Fast: {
		durations:    []Duration{Duration4s, Duration6s, Duration8s},
		resolutions:  []Resolution{Res720p, Res1080p},
		aspectRatios: []AspectRatio{AspectWide, AspectPortrait},
		audio:        true,
		full1080p:    true,
	},
	ModelV3: {
		durations:    []Duration{Duration4s, Duration6s, Duration8s},
		resolutions:  []Resolution{Res720p, Res1080p},
		aspectRatios: []AspectRatio{AspectWide},
		audio:        true,
	},
	ModelV3Fast: {
		durations:    []Duration{Duration4s, Duration6s, Duration8s},
		resolutions:  []Resolution{Res720p, Res1080p},
		aspectRatios: []AspectRatio{AspectWide},
		audio:        true,
	},
	ModelV2: {
		durations:    []Duration{Duration4s, Duration6s, Duration8s},
		resolutions:  []Resolution{Res720p},
		aspectRatios: []AspectRatio{AspectWide, AspectPortrait},
		audio:        false,
	},
}

// V31Family reports whether m belongs to the 3.1 model family.
func V31Family(m Model) bool {
	return m == ModelV31 || m == ModelV31Fast
}

// SupportedDurations returns the durations m accepts.
func SupportedDurations(m Model) []Duration {
	return append([]Duration(nil), table[m].durations...)
}

// SupportedResolutions returns the resolutions m accepts.
func SupportedResolutions(m Model) []Resolution {
	return append([]Resolution(nil), table[m].resolutions...)
}

// SupportedAspectRatios returns the aspect ratios m accepts.
func SupportedAspectRatios(m Model) []AspectRatio {
	return append([]AspectRatio(nil), table[m].aspectRatios...)
}

// AudioSupported reports whether m can generate audio.
func AudioSupported(m Model) bool {
	return table[m].audio
}

// ResolutionDurationCompatible reports whether res and dur can be combined on
// m. 1080p output is restricted to 8-second clips on the 3.0-family models.
func ResolutionDurationCompatible(m Model, res Resolution, dur Duration) bool {
	if !contains(table[m].resolutions, res) || !contains(table[m].durations, dur) {
		return false
	}
	if res == Res1080p && !table[m].full1080p && dur != Duration8s {
		return false
	}
	return true
}

// ResolutionAspectRatioCompatible reports whether res and ar can be combined
// on m. 1080p output requires 16:9 on the 3.0-family models.
func ResolutionAspectRatioCompatible(m Model, res Resolution, ar AspectRatio) bool {
	if !contains(table[m].resolutions, res) || !contains(table[m].aspectRatios, ar) {
		return false
	}
	if res == Res1080p && !table[m].full1080p && ar != AspectWide {
		return false
	}
	return true
}

// ModelLimitations returns a human-readable summary of what m cannot do.
func ModelLimitations(m Model) []string {
	caps, ok := table[m]
	if !ok {
		return nil
	}

	var notes []string
	if !caps.audio {
		notes = append(notes, "no audio generation")
	}
	if len(caps.resolutions) == 1 {
		notes = append(notes, fmt.Sprintf("%s only", caps.resolutions[0]))
	}
	if len(caps.aspectRatios) == 1 {
		notes = append(notes, fmt.Sprintf("%s aspect ratio only", caps.aspectRatios[0]))
	}
	if contains(caps.resolutions, Res1080p) && !caps.full1080p {
		notes = append(notes, "1080p limited to 8s clips at 16:9")
	}
	return notes
}

// Selection is a full set of video generation dimensions as chosen by the
// user, plus whether reference images are attached.
type Selection struct {
	Model              Model
	Resolution         Resolution
	Duration           Duration
	AspectRatio        AspectRatio
	HasReferenceImages bool
}

// Clamp corrects any dimension of s that is invalid for its model, falling
// back to safe defaults instead of rejecting the change. Reference images on
// a 3.1-family model pin the duration to 8 seconds.
func Clamp(s Selection) Selection {
	caps, ok := table[s.Model]
	if !ok {
		s.Model = ModelV31
		caps = table[s.Model]
	}

	if !contains(caps.resolutions, s.Resolution) {
		s.Resolution = DefaultResolution
	}
	if !contains(caps.durations, s.Duration) {
		s.Duration = DefaultDuration
	}
	if !contains(caps.aspectRatios, s.AspectRatio) {
		s.AspectRatio = DefaultAspectRatio
	}

	if !ResolutionDurationCompatible(s.Model, s.Resolution, s.Duration) {
		s.Duration = DefaultDuration
	}
	if !ResolutionAspectRatioCompatible(s.Model, s.Resolution, s.AspectRatio) {
		s.AspectRatio = DefaultAspectRatio
	}

	if s.HasReferenceImages && V31Family(s.Model) {
		s.Duration = Duration8s
	}

	return s
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
