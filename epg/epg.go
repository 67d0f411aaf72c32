package epg

import (
	"encoding/xml"
	"fmt"
	"os"

	"tvtv2xmltv/consts"
	"tvtv2xmltv/tvtv"
)

// Guide is the root <tv> element of an XMLTV document.
type Guide struct {
	XMLName           xml.Name     `xml:"tv"`
	Date              string       `xml:"date,attr,omitempty"`
	SourceInfoURL     string       `xml:"source-info-url,attr,omitempty"`
	SourceInfoName    string       `xml:"source-info-name,attr,omitempty"`
	GeneratorInfoName string       `xml:"generator-info-name,attr,omitempty"`
	Channels          []*Channel   `xml:"channel"`
	Programmes        []*Programme `xml:"programme"`
}

type Channel struct {
	XMLName      xml.Name `xml:"channel"`
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         *Icon    `xml:"icon,omitempty"`
}

type Icon struct {
	Src string `xml:"src,attr"`
}

type Programme struct {
	XMLName    xml.Name  `xml:"programme"`
	Channel    string    `xml:"channel,attr"`
	Start      string    `xml:"start,attr"`
	Stop       string    `xml:"stop,attr"`
	Title      string    `xml:"title"`
	SubTitle   string    `xml:"sub-title,omitempty"`
	Desc       string    `xml:"desc,omitempty"`
	Categories []string  `xml:"category,omitempty"`
	Video      *Video    `xml:"video,omitempty"`
	Audio      *Audio    `xml:"audio,omitempty"`
	New        *struct{} `xml:"new,omitempty"`
}

type Video struct {
	Quality string `xml:"quality"`
}

type Audio struct {
	Stereo string `xml:"stereo"`
}

// Build maps a snapshot into an XMLTV document. Channels sharing an id are
// collapsed, the later one in fetch order wins. A programme referencing a
// channel id absent from the snapshot is a DataError, not a silent drop.
func Build(snap *tvtv.Snapshot, sourceURL string) (*Guide, error) {
	g := &Guide{
		SourceInfoURL:     sourceURL,
		SourceInfoName:    "tvtv2xmltv",
		GeneratorInfoName: "tvtv2xmltv",
	}
	index := make(map[string]int)
	for _, ch := range snap.Channels {
		var names []string
		if ch.Number != "" {
			names = append(names, ch.Number)
		}
		if ch.Name != "" && ch.Name != ch.Number {
			names = append(names, ch.Name)
		}
		out := &Channel{ID: ch.ID, DisplayNames: names}
		if ch.Logo != "" {
			out.Icon = &Icon{Src: ch.Logo}
		}
		if pos, ok := index[ch.ID]; ok {
			g.Channels[pos] = out
			continue
		}
		index[ch.ID] = len(g.Channels)
		g.Channels = append(g.Channels, out)
	}

	for _, p := range snap.Programmes {
		if _, ok := index[p.Channel]; !ok {
			return nil, &DataError{Channel: p.Channel, Title: p.Title}
		}
		out := &Programme{
			Channel:    p.Channel,
			Start:      p.Start.Format(consts.TIME_FORMAT),
			Stop:       p.Stop.Format(consts.TIME_FORMAT),
			Title:      p.Title,
			SubTitle:   p.SubTitle,
			Desc:       p.Desc,
			Categories: p.Categories,
		}
		if p.HD {
			out.Video = &Video{Quality: "HDTV"}
		}
		if p.Stereo {
			out.Audio = &Audio{Stereo: "stereo"}
		}
		if p.New {
			out.New = &struct{}{}
		}
		g.Programmes = append(g.Programmes, out)
	}
	return g, nil
}

// WriteFile marshals the whole document into memory, writes it to a temp
// file and renames it onto path. A failure leaves any previous file at path
// untouched; a partially written document never lands on path.
func (g *Guide) WriteFile(path string) error {
	data, err := xml.MarshalIndent(g, "", "  ")
	if err != nil {
		return &SerializeError{Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append([]byte(xml.Header), data...), 0644); err != nil {
		return &SerializeError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &SerializeError{Path: path, Err: err}
	}
	return nil
}

// DataError reports a programme referencing a channel id that is not part
// of the snapshot.
type DataError struct {
	Channel string
	Title   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("programme %q references unknown channel %q", e.Title, e.Channel)
}

// SerializeError reports a failure writing the output document.
type SerializeError struct {
	Path string
	Err  error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("write guide %s: %v", e.Path, e.Err)
}

func (e *SerializeError) Unwrap() error { return e.Err }
