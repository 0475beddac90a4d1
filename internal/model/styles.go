package model

import "strings"

// Styles is the fixed catalog offered to the user.
var Styles = []Style{
	{
		Name:   "Món de Lego",
		Prompt: "charming scene built entirely from Lego bricks, Lego minifigures, vibrant primary colors, plastic sheen, visible studs, macro photography",
	},
	{
		Name:   "Aventura Playmobil",
		Prompt: "detailed Playmobil playset scene, charming Playmobil figures with iconic smiling faces, smooth plastic look, detailed accessories, bright and clean studio lighting",
	},
	{
		Name:   "Diorama Detallat",
		Prompt: "hyper-detailed diorama, miniature fimo figures, tilt-shift photography, intricate details, realistic lighting",
	},
	{
		Name:   "Món de Plastilina",
		Prompt: "charming scene made from colorful modeling clay and plasticine, soft textures, handcrafted look, studio lighting, playful and cute characters",
	},
	{
		Name:   "Casa de Nines",
		Prompt: "vibrant miniature dollhouse world, Polly Pocket style, shiny plastic toys, bright pastel colors, cheerful and detailed tiny scene",
	},
	{
		Name:   "Conte de Feltre",
		Prompt: "cute characters and scenes made from stitched felt, handcrafted look, soft textures, storybook illustration aesthetic",
	},
	{
		Name:   "Adhesius Kawaii",
		Prompt: "adorable kawaii sticker art, cute characters with big eyes, pastel colors, simple clean outlines, super cheerful and happy",
	},
	{
		Name:   "Aquarel·la de Somni",
		Prompt: "charming watercolor painting, gentle brush strokes, soft pastel color palette, dreamy storybook illustration",
	},
	{
		Name:   "Fotografia Realista",
		Prompt: "hyper-realistic photograph, cinematic lighting, sharp focus, taken with a high-quality DSLR camera, vivid colors",
	},
	{
		Name:   "Foto Antiga",
		Prompt: "authentic vintage photograph from the 1960s, faded colors, film grain, nostalgic feel, candid shot",
	},
}

// FindStyle looks a style up by name, ignoring case.
func FindStyle(name string) (Style, bool) {
	name = strings.TrimSpace(name)
	for _, s := range Styles {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Style{}, false
}

// AgeBand tunes slide count and paragraph length of the text phase.
type AgeBand struct {
	Name      string `json:"name"`
	Ages      string `json:"ages"`
	MinSlides int    `json:"min_slides"`
	MaxSlides int    `json:"max_slides"`
	MinWords  int    `json:"min_words"`
	MaxWords  int    `json:"max_words"`
	Tone      string `json:"tone"`
}

var AgeBands = map[string]AgeBand{
	"6-8": {
		Name:      "6-8",
		Ages:      "6-8",
		MinSlides: 5,
		MaxSlides: 6,
		MinWords:  25,
		MaxWords:  35,
		Tone:      "playful, warm and very simple, with short sentences and everyday comparisons",
	},
	"9-12": {
		Name:      "9-12",
		Ages:      "9-12",
		MinSlides: 8,
		MaxSlides: 10,
		MinWords:  40,
		MaxWords:  50,
		Tone:      "educational but exciting, avoiding overly simplistic or patronizing language",
	},
}

const DefaultAgeBand = "9-12"

// FindAgeBand returns the named profile or the default one.
func FindAgeBand(name string) AgeBand {
	if b, ok := AgeBands[strings.TrimSpace(name)]; ok {
		return b
	}
	return AgeBands[DefaultAgeBand]
}
