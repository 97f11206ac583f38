package assist

import (
	"fmt"
	"strings"
)

// Spoken messages.
const (
	MsgReady          = "Assistant ready."
	MsgCameraError    = "Camera error."
	MsgConnectionLost = "Connection lost."
	MsgQueryError     = "Error processing scan."
	MsgNoResults      = "No results found."
)

// Kind selects what a manual query asks about.
type Kind string

const (
	KindObject Kind = "object"
	KindText   Kind = "text"
	KindColor  Kind = "color"

	// KindScene is used by the autonomous scan loop only.
	KindScene Kind = "scene"
)

// ParseKind converts a user-supplied string to a manual query [Kind].
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindObject, KindText, KindColor:
		return k, nil
	default:
		return "", fmt.Errorf("assist: unknown query kind %q (want object, text or color)", s)
	}
}

// Label is announced when a query of this kind starts.
func (k Kind) Label() string {
	switch k {
	case KindObject:
		return "Scanning objects"
	case KindText:
		return "Reading text"
	case KindColor:
		return "Checking colors"
	default:
		return ""
	}
}

// Prompt returns the one-shot prompt for k. The color and scene prompts
// mention the user's color-vision condition.
func (k Kind) Prompt(cv ColorVision) string {
	switch k {
	case KindObject:
		return "Identify the main objects in this image and their approximate distance. Be extremely concise. No markdown."
	case KindText:
		return "Extract and read all text from this image. Do not use any markdown formatting."
	case KindColor:
		return fmt.Sprintf("Identify the dominant colors for a user with %s. Be concise and avoid markdown.", cv.Description())
	case KindScene:
		return fmt.Sprintf("In one short sentence, describe any change in this scene that matters to a blind user with %s, such as obstacles, people or signs. Reply with nothing if nothing notable is visible. No markdown.", cv.Description())
	default:
		return ""
	}
}

// ColorVision is the user's color-vision condition.
type ColorVision string

const (
	ColorVisionNone          ColorVision = "none"
	ColorVisionProtanopia    ColorVision = "protanopia"
	ColorVisionProtanomaly   ColorVision = "protanomaly"
	ColorVisionDeuteranopia  ColorVision = "deuteranopia"
	ColorVisionDeuteranomaly ColorVision = "deuteranomaly"
	ColorVisionTritanopia    ColorVision = "tritanopia"
	ColorVisionTritanomaly   ColorVision = "tritanomaly"
	ColorVisionAchromatopsia ColorVision = "achromatopsia"
	ColorVisionAchromatomaly ColorVision = "achromatomaly"
)

var colorVisionDescriptions = map[ColorVision]string{
	ColorVisionNone:          "None",
	ColorVisionProtanopia:    "Protanopia (Red-Blind)",
	ColorVisionProtanomaly:   "Protanomaly (Red-Weak)",
	ColorVisionDeuteranopia:  "Deuteranopia (Green-Blind)",
	ColorVisionDeuteranomaly: "Deuteranomaly (Green-Weak)",
	ColorVisionTritanopia:    "Tritanopia (Blue-Blind)",
	ColorVisionTritanomaly:   "Tritanomaly (Blue-Weak)",
	ColorVisionAchromatopsia: "Achromatopsia (Total Color Blind)",
	ColorVisionAchromatomaly: "Achromatomaly (Partial Total)",
}

// ColorVisions lists every known condition in display order.
func ColorVisions() []ColorVision {
	return []ColorVision{
		ColorVisionNone,
		ColorVisionProtanopia, ColorVisionProtanomaly,
		ColorVisionDeuteranopia, ColorVisionDeuteranomaly,
		ColorVisionTritanopia, ColorVisionTritanomaly,
		ColorVisionAchromatopsia, ColorVisionAchromatomaly,
	}
}

// Valid reports whether cv is a known condition. The empty value counts as
// none.
func (cv ColorVision) Valid() bool {
	if cv == "" {
		return true
	}
	_, ok := colorVisionDescriptions[cv]
	return ok
}

// Description is the human-readable name used in prompts.
func (cv ColorVision) Description() string {
	if d, ok := colorVisionDescriptions[cv]; ok {
		return d
	}
	return colorVisionDescriptions[ColorVisionNone]
}

// SystemInstruction builds the live stream's system prompt.
func SystemInstruction(cv ColorVision) string {
	return "You are VisionAlly for blind and color-blind users.\n" +
		"User Condition: " + cv.Description() + ".\n" +
		"Provide concise environment updates. Do not use markdown (no asterisks)."
}

// sceneNudge wraps an autonomous scan result for injection into the live
// stream.
func sceneNudge(summary string) string {
	return "Scene update from the camera: " + summary + " Mention it briefly only if it matters to the user."
}
