package models

import (
	"strings"
	"time"

	"golang.org/x/net/html"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Note is a piece of content published by an actor. Notes are owned
// by their authoring actor; a reply reference is weak, so deleting the
// referenced note clears the reference rather than cascading.
type Note struct {
	ID             string `gorm:"primarykey;size:255"`
	CreatedAt      time.Time
	AttributedToID string   `gorm:"size:255;index;not null"`
	AttributedTo   *Actor   `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Content        string   `gorm:"type:text"`
	To             []string `gorm:"column:to_recipients;serializer:json"`
	CC             []string `gorm:"column:cc_recipients;serializer:json"`
	Published      time.Time
	InReplyToID    *string  `gorm:"size:255"`
	InReplyTo      *Note    `gorm:"foreignKey:InReplyToID;constraint:OnDelete:SET NULL;<-:false;"`
	Tags           []string `gorm:"serializer:json"`
}

type Notes struct {
	db *gorm.DB
}

func NewNotes(db *gorm.DB) *Notes {
	return &Notes{db: db}
}

// Create persists a note. Creating a note whose id already exists is a
// no-op; note ids are globally unique and immutable.
func (n *Notes) Create(note *Note) error {
	return n.db.Clauses(clause.OnConflict{DoNothing: true}).Create(note).Error
}

// FindByID finds a note by its URI.
func (n *Notes) FindByID(uri string) (*Note, error) {
	var note Note
	return &note, n.db.Take(&note, "id = ?", uri).Error
}

// Delete removes a note. Replies referencing it keep their rows; the
// reply reference is cleared by the foreign key.
func (n *Notes) Delete(note *Note) error {
	return n.db.Delete(note).Error
}

// TagsFromContent extracts #hashtags and @mentions from a note's
// (possibly HTML) content.
func TagsFromContent(content string) []string {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var tags []string
	for _, word := range strings.Fields(text.String()) {
		if len(word) < 2 {
			continue
		}
		switch word[0] {
		case '#', '@':
			tags = append(tags, strings.TrimRight(word, ".,!?:;"))
		}
	}
	return tags
}
