package service

import (
	"sync/atomic"

	"aina-notebook/internal/model"
)

type progressMessages struct {
	content []string
	image   []string
	saving  string
}

var progressCatalog = map[model.Language]progressMessages{
	model.LanguageCatalan: {
		content: []string{
			"Remenant les idees al cap...",
			"Consultant la biblioteca de la imaginació...",
			"Donant forma a una nova aventura...",
			"Escrivint un conte màgic...",
		},
		image: []string{
			"Agafant els llapis de colors...",
			"Barrejant pintures màgiques...",
			"Donant vida als personatges...",
			"Pinzellades d'imaginació...",
			"Creant un món de fantasia...",
		},
		saving: "Desant la presentació a la biblioteca...",
	},
	model.LanguageSpanish: {
		content: []string{
			"Removiendo las ideas en la cabeza...",
			"Consultando la biblioteca de la imaginación...",
			"Dando forma a una nueva aventura...",
			"Escribiendo un cuento mágico...",
		},
		image: []string{
			"Cogiendo los lápices de colores...",
			"Mezclando pinturas mágicas...",
			"Dando vida a los personajes...",
			"Pinceladas de imaginación...",
			"Creando un mundo de fantasía...",
		},
		saving: "Guardando la presentación en la biblioteca...",
	},
}

// progressReporter builds progress values. Messages rotate across calls so
// consecutive steps show different text.
type progressReporter struct {
	contentTurn atomic.Uint64
	imageTurn   atomic.Uint64
}

func messagesFor(lang model.Language) progressMessages {
	if m, ok := progressCatalog[lang]; ok {
		return m
	}
	return progressCatalog[model.LanguageCatalan]
}

func pick(list []string, turn *atomic.Uint64) string {
	n := turn.Add(1) - 1
	return list[n%uint64(len(list))]
}

// content is step 1 of a placeholder total of 1.
func (r *progressReporter) content(lang model.Language) model.GenerationProgress {
	return model.GenerationProgress{
		CurrentStep: 1,
		TotalSteps:  1,
		Message:     pick(messagesFor(lang).content, &r.contentTurn),
	}
}

// image is step index+2 of slides+1.
func (r *progressReporter) image(lang model.Language, index, slides int) model.GenerationProgress {
	return model.GenerationProgress{
		CurrentStep: index + 2,
		TotalSteps:  slides + 1,
		Message:     pick(messagesFor(lang).image, &r.imageTurn),
	}
}

// saving closes the run at the last step.
func (r *progressReporter) saving(lang model.Language, slides int) model.GenerationProgress {
	return model.GenerationProgress{
		CurrentStep: slides + 1,
		TotalSteps:  slides + 1,
		Message:     messagesFor(lang).saving,
	}
}
