// Package catalog содержит фиксированные списки тем, жанров и настроений.
package catalog

var themes = []string{
	"Space Explorers",
	"Underwater Kingdom",
	"Enchanted Forest",
	"Dinosaur Island",
	"Pirate Treasure",
	"Magic School",
	"Jungle Safari",
	"Snowy Mountains",
	"Superhero City",
	"Candy Land",
}

var genres = []string{
	"Adventure",
	"Fantasy",
	"Mystery",
	"Comedy",
	"Fairy Tale",
	"Science Fiction",
	"Friendship",
}

var moods = []string{
	"Happy",
	"Brave",
	"Calm",
	"Curious",
	"Funny",
	"Magical",
	"Exciting",
	"Cozy",
}

// Catalog - набор допустимых значений для выбора.
type Catalog struct {
	Themes []string `json:"themes"`
	Genres []string `json:"genres"`
	Moods  []string `json:"moods"`
}

// Default возвращает копию встроенного каталога.
func Default() Catalog {
	return Catalog{
		Themes: append([]string(nil), themes...),
		Genres: append([]string(nil), genres...),
		Moods:  append([]string(nil), moods...),
	}
}

func (c Catalog) HasTheme(v string) bool { return contains(c.Themes, v) }
func (c Catalog) HasGenre(v string) bool { return contains(c.Genres, v) }
func (c Catalog) HasMood(v string) bool  { return contains(c.Moods, v) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
