package prompt

import (
	"strings"
	"testing"

	"storybook-server/internal/models"

	"github.com/stretchr/testify/assert"
)

func spaceRequest(chars ...models.Character) models.GenerationRequest {
	return models.GenerationRequest{
		Theme:      "Space Explorers",
		Genre:      "Adventure",
		Mood:       "Brave",
		Characters: chars,
	}
}

var (
	alex = models.Character{ID: "1", Name: "Alex", Age: 8, Gender: "boy", Emotion: "Happy"}
	sam  = models.Character{ID: "2", Name: "Sam", Age: 6, Gender: "girl", Emotion: "Curious"}
	mia  = models.Character{ID: "3", Name: "Mia", Age: 7, Emotion: "Calm"}
)

func TestBuildTextPrompt_FirstPhase(t *testing.T) {
	b := NewBuilder("")
	got := b.BuildTextPrompt(spaceRequest(alex), "", models.PhaseFirst)

	assert.Equal(t,
		"Write the first paragraph of a Adventure story where Alex, who is 8 years old and feeling Happy go on a Space Explorers adventure together. The mood of the story is Brave. Write in 100 words.",
		got)
}

func TestBuildTextPrompt_NoCharacters(t *testing.T) {
	b := NewBuilder("")
	for _, phase := range []models.Phase{models.PhaseFirst, models.PhaseNext, models.PhaseFinish, models.PhaseTitle} {
		t.Run(string(phase), func(t *testing.T) {
			got := b.BuildTextPrompt(spaceRequest(), "Once upon a time.", phase)
			assert.Equal(t, MissingCharactersMessage, got)
			assert.True(t, strings.HasPrefix(got, "Please select at least one character"))
		})
	}
}

func TestBuildTextPrompt_CharacterJoin(t *testing.T) {
	b := NewBuilder("")

	tests := []struct {
		name      string
		chars     []models.Character
		wantAnds  int
		wantChars string
	}{
		{"One character", []models.Character{alex}, 0, "Alex, who is 8 years old and feeling Happy go on"},
		{"Two characters", []models.Character{alex, sam}, 1,
			"Alex, who is 8 years old and feeling Happy and Sam, who is 6 years old and feeling Curious go on"},
		{"Three characters", []models.Character{alex, sam, mia}, 1,
			"Alex, who is 8 years old and feeling Happy, Sam, who is 6 years old and feeling Curious and Mia, who is 7 years old and feeling Calm go on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.BuildTextPrompt(spaceRequest(tt.chars...), "", models.PhaseFirst)
			assert.Contains(t, got, tt.wantChars)

			// Каждое описание само содержит "years old and feeling", поэтому считаем соединители отдельно.
			clause := got[strings.Index(got, "where ")+len("where ") : strings.Index(got, " go on")]
			joiners := strings.Count(clause, " and ") - len(tt.chars)
			assert.Equal(t, tt.wantAnds, joiners)
		})
	}
}

func TestBuildTextPrompt_Pets(t *testing.T) {
	b := NewBuilder("")
	req := spaceRequest(alex)

	got := b.BuildTextPrompt(req, "", models.PhaseFirst)
	assert.Contains(t, got, "adventure together. The mood")

	req.Pets = []models.Pet{{ID: "p1", Name: "Rex", Kind: "Dog"}}
	got = b.BuildTextPrompt(req, "", models.PhaseFirst)
	assert.Contains(t, got, "adventure together with their pet Rex the Dog. The mood")

	req.Pets = append(req.Pets, models.Pet{ID: "p2", Name: "Tom", Kind: "Cat"})
	got = b.BuildTextPrompt(req, "", models.PhaseFirst)
	assert.Contains(t, got, "with their pets Rex the Dog and Tom the Cat.")
}

func TestBuildTextPrompt_NextAndFinish(t *testing.T) {
	b := NewBuilder("")
	story := "Alex found a rocket."

	next := b.BuildTextPrompt(spaceRequest(alex), story, models.PhaseNext)
	assert.True(t, strings.HasPrefix(next, "Write the next paragraph of Alex found a rocket., details: a Adventure story where Alex"))
	assert.True(t, strings.HasSuffix(next, "Write in 100 words."))

	finish := b.BuildTextPrompt(spaceRequest(alex), story, models.PhaseFinish)
	assert.True(t, strings.HasPrefix(finish, "Finish this story: Alex found a rocket. details: a Adventure story"))
	assert.True(t, strings.HasSuffix(finish, "Finish in 100 words."))
}

func TestBuildTextPrompt_Title(t *testing.T) {
	b := NewBuilder("")
	got := b.BuildTextPrompt(spaceRequest(alex, sam), "The end.", models.PhaseTitle)

	assert.Contains(t, got, "exactly 3 words")
	assert.Contains(t, got, "Brave")
	assert.Contains(t, got, "Do not add quotes, punctuation, explanations or any other text.")
	assert.NotContains(t, got, "Write in 100 words")
}

func TestBuildImagePrompt(t *testing.T) {
	b := NewBuilder("pastel palette")
	req := spaceRequest(alex, mia)
	req.Pets = []models.Pet{{ID: "p1", Name: "Rex", Kind: "Dog"}}

	t.Run("Cover", func(t *testing.T) {
		got := b.BuildImagePrompt(req, "ignored", true)
		assert.Contains(t, got, "cover illustration of Alex, a 8 year old boy and Mia, a 7 year old child with their pet Rex the Dog")
		assert.Contains(t, got, "no text in image")
		assert.Contains(t, got, "Space Explorers")
		assert.NotContains(t, got, "ignored")
		assert.True(t, strings.HasSuffix(got, ", pastel palette"))
	})

	t.Run("Scene", func(t *testing.T) {
		got := b.BuildImagePrompt(req, "  They landed on the moon. ", false)
		assert.Contains(t, got, "scene: They landed on the moon. Theme: Space Explorers. Mood: Brave. Genre: Adventure")
		assert.NotContains(t, got, "cover")
	})
}

func TestJoinItems(t *testing.T) {
	assert.Equal(t, "", joinItems(nil))
	assert.Equal(t, "A", joinItems([]string{"A"}))
	assert.Equal(t, "A and B", joinItems([]string{"A", "B"}))
	assert.Equal(t, "A, B and C", joinItems([]string{"A", "B", "C"}))
}
