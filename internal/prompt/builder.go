// Package prompt строит промты для текстовой и графической моделей.
// Все функции чистые: результат зависит только от аргументов.
package prompt

import (
	"fmt"
	"strings"

	"storybook-server/internal/models"
)

// MissingCharactersMessage возвращается вместо промта, если не выбран ни один персонаж.
const MissingCharactersMessage = "Please select at least one character to start the story."

// Builder хранит только стилевой суффикс для промтов изображений.
type Builder struct {
	styleSuffix string
}

// NewBuilder создает построитель промтов. styleSuffix добавляется к промтам изображений.
func NewBuilder(styleSuffix string) *Builder {
	return &Builder{styleSuffix: styleSuffix}
}

// BuildTextPrompt возвращает промт для текстовой модели на заданной фазе.
func (b *Builder) BuildTextPrompt(req models.GenerationRequest, storySoFar string, phase models.Phase) string {
	if !req.HasCharacters() {
		return MissingCharactersMessage
	}

	switch phase {
	case models.PhaseNext:
		return fmt.Sprintf("Write the next paragraph of %s, details: %s Write in 100 words.", storySoFar, details(req))
	case models.PhaseFinish:
		return fmt.Sprintf("Finish this story: %s details: %s Finish in 100 words.", storySoFar, details(req))
	case models.PhaseTitle:
		return fmt.Sprintf(
			"Create a title for this story: %s The mood of the story is %s. "+
				"The title must be exactly 3 words. "+
				"Respond with the 3-word title only. Do not add quotes, punctuation, explanations or any other text.",
			storySoFar, req.Mood)
	default:
		return "Write the first paragraph of " + details(req) + " Write in 100 words."
	}
}

// BuildImagePrompt возвращает промт для графической модели.
// isCover выбирает шаблон обложки, иначе используется шаблон сцены по последнему фрагменту.
func (b *Builder) BuildImagePrompt(req models.GenerationRequest, latestChunkText string, isCover bool) string {
	var base string
	if isCover {
		base = fmt.Sprintf(
			"A colorful children's storybook cover illustration of %s%s on a %s adventure. "+
				"Genre: %s. Mood: %s. Whimsical hand-painted style, soft warm lighting, bright friendly colors, "+
				"rounded shapes, no text in image",
			joinItems(describeLooks(req.Characters)), petsClause(req.Pets), req.Theme, req.Genre, req.Mood)
	} else {
		base = fmt.Sprintf(
			"A children's storybook illustration of this scene: %s Theme: %s. Mood: %s. Genre: %s",
			strings.TrimSpace(latestChunkText), req.Theme, req.Mood, req.Genre)
	}
	return withStyle(base, b.styleSuffix)
}

// BuildSummaryPrompt возвращает промт для краткого пересказа законченной истории.
func (b *Builder) BuildSummaryPrompt(story string) string {
	return "Summarize this children's story in two short sentences for a parent: " + story +
		" Respond with the summary only, without any introduction."
}

// details - общая часть FIRST/NEXT/FINISH промтов.
func details(req models.GenerationRequest) string {
	return fmt.Sprintf("a %s story where %s go on a %s adventure together%s. The mood of the story is %s.",
		req.Genre, joinItems(describeCharacters(req.Characters)), req.Theme, petsClause(req.Pets), req.Mood)
}

func describeCharacters(chars []models.Character) []string {
	out := make([]string, 0, len(chars))
	for _, c := range chars {
		out = append(out, fmt.Sprintf("%s, who is %d years old and feeling %s", c.Name, c.Age, c.Emotion))
	}
	return out
}

func describeLooks(chars []models.Character) []string {
	out := make([]string, 0, len(chars))
	for _, c := range chars {
		look := fmt.Sprintf("%s, a %d year old", c.Name, c.Age)
		if c.Gender != "" {
			look += " " + c.Gender
		} else {
			look += " child"
		}
		out = append(out, look)
	}
	return out
}

func petsClause(pets []models.Pet) string {
	if len(pets) == 0 {
		return ""
	}
	names := make([]string, 0, len(pets))
	for _, p := range pets {
		names = append(names, fmt.Sprintf("%s the %s", p.Name, p.Kind))
	}
	if len(pets) == 1 {
		return " with their pet " + names[0]
	}
	return " with their pets " + joinItems(names)
}

// joinItems соединяет элементы через ", ", а последний - через " and ".
func joinItems(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func withStyle(base, suffix string) string {
	if suffix == "" {
		return base
	}
	if !strings.HasPrefix(suffix, " ") && !strings.HasPrefix(suffix, ",") {
		suffix = ", " + suffix
	}
	return base + suffix
}
