// Package config defines the per-player parameter bundle the bridge
// consumes (spec.md §6, "Environment/config"). Parsing any on-disk
// config format is explicitly out of scope (spec.md §1 Non-goals); this
// package only gives that consumed surface a concrete Go shape. yaml
// struct tags are carried so the surrounding host (or tests) can
// marshal/unmarshal fixtures with gopkg.in/yaml.v3, the teacher's config
// library, without this package importing a parser itself.
package config

// L24Format selects how 24-bit LPCM samples are packed for output.
type L24Format int

const (
	L24Packed L24Format = iota
	L24PackedLPCM
	L24Trunc16
	L24Trunc16PCM
	L24UnpackedHigh
	L24UnpackedLow
)

// FlacHeaderMode controls whether/how a synthesized STREAMINFO block is
// attached ahead of a pass-through FLAC frame stream (spec.md §4.3).
type FlacHeaderMode int

const (
	FlacHeaderNo FlacHeaderMode = iota
	FlacHeaderDefault
	FlacHeaderMax
	FlacHeaderAdjust
)

// SendICY controls whether/which ICY metadata is emitted.
type SendICY int

const (
	SendICYNone SendICY = iota
	SendICYFull
	SendICYText
)

// ResampleOptions configures the optional resample processor named in
// spec.md's Design Notes ("process.c path"), wired to
// github.com/tphakala/go-audio-resampler.
type ResampleOptions struct {
	Enabled      bool `yaml:"enabled"`
	Quality      int  `yaml:"quality"`       // 0 (fast) .. 4 (best)
	AttenuationDB int `yaml:"attenuation_db"` // pre-attenuation to avoid clipping post-resample
}

// PlayerParams is the per-player parameter bundle, exactly the fields
// enumerated in spec.md §6.
type PlayerParams struct {
	StreamBufSize  int      `yaml:"streambuf_size"`
	OutputBufSize  int      `yaml:"outputbuf_size"`
	Codecs         []string `yaml:"codecs"`
	Mode           string   `yaml:"mode"` // substring matched: thru/pcm/flc/mp3/null, "flow"
	NextDelay      float64  `yaml:"next_delay_secs"`
	RawAudioFormat string   `yaml:"raw_audio_format"` // for PCM MIME matching

	ServerAddress string `yaml:"server_address"` // "" or "?" means discover

	SampleRateCap int `yaml:"sample_rate_cap"`

	L24Format  L24Format      `yaml:"l24_format"`
	FlacHeader FlacHeaderMode `yaml:"flac_header"`

	Name string `yaml:"name"`
	Mac  [6]byte `yaml:"-"`

	Resample ResampleOptions `yaml:"resample_options"`

	StorePrefix string `yaml:"store_prefix"` // debug dump directory, strftime-templated

	CoverArtSuffix string `yaml:"coverart_suffix"`

	// Runtime-only, not part of any on-disk shape, but still part of the
	// consumed bundle per spec.md §6.
	UseCLI          bool    `yaml:"-"`
	SetServerOverride string `yaml:"-"`
	SendICY         SendICY `yaml:"-"`
}

// Default returns a PlayerParams with the same fallbacks squeezelite
// itself ships: 2MB streambuf, 2MB outputbuf, all built-in codecs,
// "thru" default mode.
func Default() PlayerParams {
	return PlayerParams{
		StreamBufSize:  2 * 1024 * 1024,
		OutputBufSize:  2 * 1024 * 1024,
		Codecs:         []string{"flac", "pcm", "mp3", "ogg", "aac", "alac", "*"},
		Mode:           "thru",
		NextDelay:      0,
		SampleRateCap:  192000,
		L24Format:      L24Packed,
		FlacHeader:     FlacHeaderDefault,
		SendICY:        SendICYFull,
	}
}
