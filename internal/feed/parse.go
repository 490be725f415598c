package feed

import (
	"encoding/xml"
	"fmt"
)

// The feed is Atom with the site's own namespace for the item identifier.
type atomFeed struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string   `xml:"http://www.w3.org/2005/Atom title"`
	Author  struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	VideoID string `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
}

// parseFeed extracts the source title, uploader, and the ordered item ids.
func parseFeed(body []byte) (*Result, error) {
	var f atomFeed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("parse feed xml: %w", err)
	}
	res := &Result{
		Title:    f.Title,
		Uploader: f.Author.Name,
	}
	for _, e := range f.Entries {
		if e.VideoID != "" {
			res.IIDs = append(res.IIDs, e.VideoID)
		}
	}
	return res, nil
}
