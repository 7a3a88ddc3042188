// Package mode holds the transcription mode registry: a mode pairs a
// transcription prompt with display metadata. Two built-in modes ship with
// the application and are immutable; user-defined custom modes are persisted
// alongside them and can be created, patched, and deleted at runtime.
//
// Exactly one mode is active at any time. The registry is shared-read by the
// session pipeline and the presentation layer and mutated only through its
// own API; all methods are safe for concurrent use.
package mode

import "time"

// Origin tells whether a mode ships with the application or was user-created.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginCustom  Origin = "custom"
)

// Mode is a named prompt profile controlling how audio is transcribed.
type Mode struct {
	// ID uniquely identifies the mode. Built-in ids are fixed ("normal",
	// "email"); custom ids are generated and never reused.
	ID string `yaml:"id"`

	// Name is the display name shown in the tray menu.
	Name string `yaml:"name"`

	// Prompt is the transcription instruction sent to the remote model.
	Prompt string `yaml:"prompt"`

	// Icon is a presentation hint (emoji or icon name). May be empty.
	Icon string `yaml:"icon,omitempty"`

	// Color is a presentation hint (hex color). May be empty.
	Color string `yaml:"color,omitempty"`

	// Origin distinguishes built-in from custom modes.
	Origin Origin `yaml:"-"`

	// CreatedAt is set for custom modes only.
	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

// DefaultModeID is the built-in mode the registry falls back to whenever the
// active mode becomes unavailable.
const DefaultModeID = "normal"

// builtins are the immutable modes seeded at first run, in fixed list order.
// The prompts instruct the model to emit the no-speech sentinel rather than
// an empty transcript when nothing intelligible is heard.
var builtins = []Mode{
	{
		ID:     "normal",
		Name:   "Normal",
		Icon:   "🎙️",
		Color:  "#4a90d9",
		Origin: OriginBuiltin,
		Prompt: "Transcribe the following audio, focusing on clear human speech. " +
			"If there is background noise, do your best to ignore it, but include all intelligible speech. " +
			"Only output the transcription. Never write labels like (clap), (hum), or anything describing background noise. " +
			"If you cannot identify any speech, output exactly %NOSPEECHFOUND%.",
	},
	{
		ID:     "email",
		Name:   "Email",
		Icon:   "✉️",
		Color:  "#2e9e5b",
		Origin: OriginBuiltin,
		Prompt: "Transcribe the following audio as a professionally written email, including greetings, structure, and tone. " +
			"Focus on clear human speech, and do your best to ignore background noise. " +
			"Only output the transcription. Never write labels like (clap), (hum), or anything describing background noise. " +
			"If you cannot identify any speech, output exactly %NOSPEECHFOUND%.",
	},
}

// Builtins returns a copy of the built-in modes in their fixed order.
func Builtins() []Mode {
	out := make([]Mode, len(builtins))
	copy(out, builtins)
	return out
}
