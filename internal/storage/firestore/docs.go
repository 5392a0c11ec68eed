package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/JakeFAU/chiripo-news/internal/news"
	"github.com/JakeFAU/chiripo-news/internal/storage/record"
)

type articleDoc struct {
	Title     string `firestore:"title"`
	Link      string `firestore:"link"`
	Summary   string `firestore:"summary"`
	Published any    `firestore:"published"`
	Source    string `firestore:"source"`
	Category  string `firestore:"category"`
	ImageURL  string `firestore:"image_url"`
}

func (d articleDoc) article(id string) news.Article {
	a := news.Article{
		ID:       id,
		Title:    d.Title,
		Link:     d.Link,
		Summary:  news.SanitizeDisplayText(d.Summary),
		Source:   d.Source,
		Category: d.Category,
		ImageURL: d.ImageURL,
	}
	switch v := d.Published.(type) {
	case time.Time:
		a.Published = v.UTC()
	case string:
		a.Published = record.ParseTime(v)
	}
	if a.Category == "" {
		a.Category = news.CategoryGeneral
	}
	return a
}

// articleFields stores published as ISO text, matching documents written by
// earlier deployments.
func articleFields(a news.Article) map[string]any {
	a = record.Article(a)
	return map[string]any{
		"title":     a.Title,
		"link":      a.Link,
		"summary":   a.Summary,
		"published": a.Published.UTC().Format(time.RFC3339),
		"source":    a.Source,
		"category":  a.Category,
		"image_url": a.ImageURL,
		"added_at":  firestore.ServerTimestamp,
	}
}

type explanationDoc struct {
	InlineBlocks    string    `firestore:"inline_blocks"`
	Personas        []string  `firestore:"personas"`
	Persona0        string    `firestore:"persona_0"`
	Persona1        string    `firestore:"persona_1"`
	Persona2        string    `firestore:"persona_2"`
	Persona3        string    `firestore:"persona_3"`
	Persona4        string    `firestore:"persona_4"`
	QuickUnderstand any       `firestore:"quick_understand"`
	VoteData        any       `firestore:"vote_data"`
	CreatedAt       time.Time `firestore:"created_at"`
}

func (d explanationDoc) explanation(articleID string) (news.Explanation, error) {
	e := news.Explanation{ArticleID: articleID, CreatedAt: d.CreatedAt}
	var err error
	if e.Blocks, err = record.DecodeBlocks(d.InlineBlocks); err != nil {
		return news.Explanation{}, fmt.Errorf("explanation %s: %w", articleID, err)
	}
	e.Personas = d.Personas
	if e.Personas == nil {
		e.Personas = []string{d.Persona0, d.Persona1, d.Persona2, d.Persona3, d.Persona4}
	}
	if e.QuickUnderstand, err = decodeLoose[news.QuickUnderstand](d.QuickUnderstand); err != nil {
		return news.Explanation{}, fmt.Errorf("explanation %s: %w", articleID, err)
	}
	if e.Vote, err = decodeLoose[news.VoteQuestion](d.VoteData); err != nil {
		return news.Explanation{}, fmt.Errorf("explanation %s: %w", articleID, err)
	}
	return e, nil
}

func explanationFields(e news.Explanation) (map[string]any, error) {
	blocks, err := record.EncodeBlocks(e.Blocks)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"inline_blocks": blocks,
		"personas":      e.Personas,
		"created_at":    firestore.ServerTimestamp,
	}
	if !e.CreatedAt.IsZero() {
		fields["created_at"] = e.CreatedAt
	}
	if qu := e.QuickUnderstand; qu != nil {
		fields["quick_understand"] = map[string]any{"what": qu.What, "why": qu.Why, "how": qu.How}
	}
	if v := e.Vote; v != nil {
		options := make([]map[string]any, 0, len(v.Options))
		for _, o := range v.Options {
			options = append(options, map[string]any{"id": o.ID, "label": o.Label})
		}
		fields["vote_data"] = map[string]any{"question": v.Question, "options": options}
	}
	return fields, nil
}

type personaCommentDoc struct {
	Name    string `firestore:"name"`
	Emoji   string `firestore:"emoji"`
	Comment string `firestore:"comment"`
}

type dailyDocument struct {
	Date            string              `firestore:"date"`
	Memo            string              `firestore:"memo"`
	PersonaComments []personaCommentDoc `firestore:"persona_comments"`
	UpdatedAt       time.Time           `firestore:"updated_at,serverTimestamp"`
}

func newDailyDocument(c news.DailyContent) dailyDocument {
	d := dailyDocument{Date: c.Date, Memo: c.Memo, UpdatedAt: c.UpdatedAt}
	for _, pc := range c.PersonaComments {
		d.PersonaComments = append(d.PersonaComments, personaCommentDoc(pc))
	}
	return d
}

func (d dailyDocument) content() news.DailyContent {
	c := news.DailyContent{Date: d.Date, Memo: d.Memo, UpdatedAt: d.UpdatedAt}
	for _, pc := range d.PersonaComments {
		c.PersonaComments = append(c.PersonaComments, news.PersonaComment(pc))
	}
	return c
}
