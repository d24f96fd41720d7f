package reporter

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/runview/internal/dom"
)

// Mood is the overall visual state of a run.
type Mood string

const (
	MoodNone  Mood = ""
	MoodHappy Mood = "happy"
	MoodSad   Mood = "sad"
)

const (
	pngPrefix    = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAABAAAAAQCAYAAAAf8/"
	redGraphic   = pngPrefix + "9hAAAAH0lEQVQ4T2P8z8AAROQDxlEDGEbDgGE0DIBZaBikAwCl1B/x0/RuTAAAAABJRU5ErkJggg=="
	greenGraphic = pngPrefix + "9hAAAAHklEQVQ4T2Nk+A+EFADGUQMYRsOAYTQMgHloGKQDAJXkH/HZpKBrAAAAAElFTkSuQmCC"
)

var iconRel = regexp.MustCompile(`(?i)\bicon\b`)

// applyMood moves the session to mood, swapping the stats class and the
// favicon. Sad is terminal: once set, later moods are ignored.
// Reports whether anything changed.
func applyMood(doc *dom.Document, stats *goquery.Selection, s *Session, mood Mood) bool {
	if s.Mood == MoodSad && mood != MoodSad {
		return false
	}
	if s.Mood != MoodNone {
		stats.RemoveClass(string(s.Mood))
	}
	s.Mood = mood
	stats.AddClass(string(mood))
	setFavicon(doc, mood)
	return true
}

// FaviconFor returns the data URI shown for mood.
func FaviconFor(mood Mood) string {
	if mood == MoodHappy {
		return greenGraphic
	}
	return redGraphic
}

func setFavicon(doc *dom.Document, mood Mood) {
	doc.Find("link").Each(func(_ int, link *goquery.Selection) {
		if iconRel.MatchString(link.AttrOr("rel", "")) {
			doc.Forget(link)
			link.Remove()
		}
	})

	link := doc.MustFragment(`<link type="image/x-icon" rel="icon">`)
	link.SetAttr("href", FaviconFor(mood))
	doc.Find("head").AppendSelection(link)
}
