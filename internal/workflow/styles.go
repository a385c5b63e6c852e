package workflow

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"vidluxe/internal/domain"
	"vidluxe/internal/providers/generation"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, oversaturated, text artefacts, watermark, extra limbs"

const (
	DefaultStyle  = "minimal"
	DefaultEffect = "none"
)

// Style is one entry of the catalogue users pick from.
type Style struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Direction  string `json:"direction"`
	Background string `json:"background"`
	Motion     string `json:"motion"`
	ImageSize  string `json:"image_size"`
	VideoSize  string `json:"video_size"`
	Quality    string `json:"quality"`
}

// Effect is an optional finishing treatment layered on top of a style.
type Effect struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

var styleCatalogue = map[string]Style{
	"minimal": {
		Direction:  "clean minimalist composition, soft neutral palette, generous negative space",
		Background: "a seamless light grey studio sweep with soft shadows",
		Motion:     "slow steady push-in",
		ImageSize:  "1024*1024",
		VideoSize:  "1280*720",
		Quality:    generation.QualityStandard,
	},
	"magazine": {
		Direction:  "high-end editorial magazine look, crisp detail, confident framing",
		Background: "a bright editorial set with subtle paper texture and directional key light",
		Motion:     "gentle orbit around the subject",
		ImageSize:  "1024*1280",
		VideoSize:  "720*1280",
		Quality:    generation.QualityHigh,
	},
	"luxury": {
		Direction:  "premium luxury aesthetic, rich blacks, warm metallic highlights",
		Background: "a dark marble surface with warm rim lighting and soft bokeh",
		Motion:     "slow dolly with shallow depth of field",
		ImageSize:  "1024*1024",
		VideoSize:  "1280*720",
		Quality:    generation.QualityHigh,
	},
	"cinematic": {
		Direction:  "cinematic grade, anamorphic feel, dramatic contrast",
		Background: "a moody widescreen environment with volumetric haze",
		Motion:     "sweeping crane move",
		ImageSize:  "1280*720",
		VideoSize:  "1280*720",
		Quality:    generation.QualityHigh,
	},
	"natural": {
		Direction:  "authentic natural light, true-to-life colour, soft contrast",
		Background: "a sunlit wooden table by a window with plants in the distance",
		Motion:     "handheld drift with natural parallax",
		ImageSize:  "1024*1024",
		VideoSize:  "1280*720",
		Quality:    generation.QualityStandard,
	},
}

var effectCatalogue = map[string]Effect{
	"none":          {Instruction: ""},
	"soft-light":    {Instruction: "diffuse the highlights with a soft glow"},
	"golden-hour":   {Instruction: "bathe the scene in warm golden-hour light"},
	"high-contrast": {Instruction: "push contrast and clarity while keeping skin and product tones natural"},
	"film-grain":    {Instruction: "finish with a subtle analogue film grain"},
}

// displayName builds a fresh caser per call; a cases.Caser is stateful and
// must not be shared between goroutines.
func displayName(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "-", " "))
}

// Styles lists the catalogue ordered by key.
func Styles() []Style {
	out := make([]Style, 0, len(styleCatalogue))
	for key := range styleCatalogue {
		s, _ := lookupStyle(key)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Effects lists the finishing treatments ordered by key.
func Effects() []Effect {
	out := make([]Effect, 0, len(effectCatalogue))
	for key := range effectCatalogue {
		e, _ := lookupEffect(key)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResolveStyle validates the user's selection. Empty values pick the defaults.
func ResolveStyle(style, effect string) (Style, Effect, error) {
	s, ok := lookupStyle(style)
	if !ok {
		return Style{}, Effect{}, fmt.Errorf("%w: unknown style %q", domain.ErrInvalidInput, style)
	}
	e, ok := lookupEffect(effect)
	if !ok {
		return Style{}, Effect{}, fmt.Errorf("%w: unknown effect %q", domain.ErrInvalidInput, effect)
	}
	return s, e, nil
}

func lookupStyle(key string) (Style, bool) {
	key = normalizeKey(key, DefaultStyle)
	s, ok := styleCatalogue[key]
	if !ok {
		return Style{}, false
	}
	s.Key = key
	s.Name = displayName(key)
	return s, true
}

func lookupEffect(key string) (Effect, bool) {
	key = normalizeKey(key, DefaultEffect)
	e, ok := effectCatalogue[key]
	if !ok {
		return Effect{}, false
	}
	e.Key = key
	e.Name = displayName(key)
	return e, true
}

func normalizeKey(key, fallback string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")
	if key == "" {
		return fallback
	}
	return key
}

// BuildImagePrompt converts the selection into an instruction for the
// image-to-image model.
func BuildImagePrompt(s Style, e Effect, locale string) string {
	lines := []string{
		"Enhance the uploaded photo into a polished, professional shot.",
		"Use the uploaded photo as the main subject. Preserve its shape, texture, and any logo without warping.",
		fmt.Sprintf("Visual direction (%s): %s.", s.Name, s.Direction),
	}
	if e.Instruction != "" {
		lines = append(lines, fmt.Sprintf("Finishing effect (%s): %s.", e.Name, e.Instruction))
	}
	lines = append(lines, "Render with high quality lighting, sharp focus, and clean post-processing.")
	lines = append(lines, fmt.Sprintf("Use %s for any on-image typography or signage.", languageName(locale)))
	return strings.Join(lines, "\n")
}

// BuildBackgroundPrompt describes the backdrop generated for a video.
func BuildBackgroundPrompt(s Style, e Effect) string {
	lines := []string{
		fmt.Sprintf("Create an empty backdrop for a product video: %s.", s.Background),
		fmt.Sprintf("Mood: %s.", s.Direction),
		"Leave the centre of the frame clear so a subject can be composited in.",
	}
	if e.Instruction != "" {
		lines = append(lines, fmt.Sprintf("Finishing effect: %s.", e.Instruction))
	}
	return strings.Join(lines, "\n")
}

// BuildVideoPrompt describes the final synthesis from background and subject.
func BuildVideoPrompt(s Style, e Effect, withSubject bool) string {
	lines := []string{
		fmt.Sprintf("Animate the scene with a %s.", s.Motion),
		fmt.Sprintf("Keep the %s look consistent across every frame.", s.Name),
	}
	if withSubject {
		lines = append(lines, "Place the cut-out subject from the reference image at the centre of the scene with matching light and shadows.")
	}
	if e.Instruction != "" {
		lines = append(lines, fmt.Sprintf("Finishing effect: %s.", e.Instruction))
	}
	return strings.Join(lines, "\n")
}

// languageName renders a BCP 47 tag as an English language name, falling
// back to English for unparseable input.
func languageName(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || tag == language.Und {
		return "English"
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(language.Make(base.String())); name != "" {
		return name
	}
	return "English"
}
