package prompt

import (
	"fmt"

	"github.com/digkill/ghola/internal/models"
)

var styleGuidance = map[models.StyleTag]string{
	models.StyleRealistic: "Focus on photorealism. Use terms like 'photorealistic', 'DSLR photo', 'sharp focus', 'detailed skin texture', 'natural lighting', '8k resolution', 'cinematic composition', 'professional photography'.",
	models.StyleAnime:     "Render the character as a modern anime key visual. Use terms like 'anime style', 'clean line art', 'cel shading', 'large expressive eyes', 'dynamic hair strands', 'vibrant colors', 'studio anime production quality'.",
	models.StyleGhibli:    "Emphasize a hand-drawn, painted look reminiscent of Hayao Miyazaki. Use terms like 'watercolor textures', 'soft outlines', 'lush natural backgrounds', 'expressive, slightly rounded features', 'gentle lighting', 'whimsical atmosphere'.",
	models.StyleNintendo:  "Focus on bright, saturated, primary colors. Use terms like 'cel-shaded', 'bold outlines', 'clean vector art style', 'appealing character design', 'simplified shapes', 'game art'.",
	models.StyleLego:      "Describe the character *as* a Lego minifigure. Use terms like 'plastic sheen', 'cylindrical head', 'blocky torso', 'claw hands', 'printed facial expression', 'studs', 'modular bricks'.",
	models.StyleSouthPark: "Describe the character using the distinctive South Park cutout animation style. Use terms like 'construction paper texture', 'simple geometric shapes', 'flat colors', 'bold black outlines', 'minimalist features', 'crude animation style'.",
	models.StylePixar:     "Aim for a high-quality 3D render look. Use terms like 'smooth surfaces', 'subsurface scattering', 'realistic yet stylized features', 'expressive eyes', 'cinematic lighting', 'detailed textures', 'warm color palette'.",
}

// Premium-only prefixes prepended to the enriched prompt before image generation.
var stylePrefix = map[models.StyleTag]string{
	models.StyleAnime:     "Anime style illustration, cel-shaded, vibrant colors: ",
	models.StyleGhibli:    "Studio Ghibli style hand-painted watercolor illustration: ",
	models.StyleNintendo:  "Nintendo game art style, cel-shaded, bold outlines: ",
	models.StyleLego:      "Lego minifigure toy photography, plastic bricks: ",
	models.StyleSouthPark: "South Park cutout animation style, construction paper: ",
	models.StylePixar:     "Pixar style 3D render, cinematic lighting: ",
}

const systemTemplate = `You are an expert at creating detailed character descriptions for AI image generation, specifically tailored to the requested visual style: '%[1]s'. The only input you will receive is {character_name}. Your primary goal is to generate a prompt that results in an image strongly reflecting this style.

Based on the character name and the target style ('%[1]s'), you must:

1.  **Identify Source & Traits:** Determine the canonical source (if known) and research key defining traits (facial structure, body, hair, eyes, age, distinctive features like scars/tattoos).
2.  **Integrate Style:** Weave the requested style ('%[1]s') throughout the description. Use keywords, artistic techniques, and visual elements specific to that style. %[2]s
3.  **Add Technical Details:** Include style-specific technical descriptors (e.g., 'cinematic lighting', 'cel-shaded', 'detailed texture', 'soft focus') to enhance quality according to the style.
4.  **Structure Output:** Output a single, cohesive prompt including:
    *   Character Name and source (if identifiable).
    *   Age Range.
    *   Detailed facial/physical description *in the requested style*.
    *   Clothing/accessories authentic to the character *and style*.
    *   Environment/background consistent with the character's world *and style*.
    *   Pose/expression reflecting personality *and style*.
    *   Style-specific technical descriptors.

Output *only* the final prompt, ready for an image generation model.`

// Guidance returns the descriptive block for style, falling back to realistic.
func Guidance(style models.StyleTag) string {
	if g, ok := styleGuidance[style]; ok {
		return g
	}
	return styleGuidance[models.StyleRealistic]
}

// SystemInstruction builds the text-completion system message for style.
func SystemInstruction(style models.StyleTag) string {
	if _, ok := styleGuidance[style]; !ok {
		style = models.StyleRealistic
	}
	return fmt.Sprintf(systemTemplate, style.Label(), Guidance(style))
}

// Messages returns the system instruction and the user message; the character name passes through verbatim.
func Messages(characterName string, style models.StyleTag) (system, user string) {
	return SystemInstruction(style), characterName
}

// ProviderRatio maps an aspect-ratio tag to the image provider's ratio string.
func ProviderRatio(aspect models.AspectRatioTag) string {
	switch aspect {
	case models.AspectSquare:
		return "1:1"
	case models.AspectPortrait:
		return "2:3"
	default:
		return "3:2"
	}
}

// StylePrefix is empty for realistic and unknown styles.
func StylePrefix(style models.StyleTag) string {
	return stylePrefix[style]
}
