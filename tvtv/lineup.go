package tvtv

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

// DiscoverLineup scrapes the provider's lineup page and returns the channel
// table it shows. Used to bootstrap a lineup file without typing station ids
// by hand.
func (c *Client) DiscoverLineup(ctx context.Context) ([]*Channel, error) {
	url := fmt.Sprintf("%s/tv/lineup/%s", c.base, c.lineupID)
	res, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}
	var channels []*Channel
	doc.Find("table.lineup tbody tr").Each(func(i int, s *goquery.Selection) {
		id, ok := s.Attr("data-station-id")
		if !ok || id == "" {
			return
		}
		callSign := strings.TrimSpace(s.Find("td.callsign").Text())
		name := strings.TrimSpace(s.Find("td.name").Text())
		if name == "" {
			name = callSign
		}
		channels = append(channels, &Channel{
			ID:       id,
			Number:   strings.TrimSpace(s.Find("td.number").Text()),
			CallSign: callSign,
			Name:     name,
		})
	})
	if len(channels) == 0 {
		return nil, &ParseError{URL: url, Err: fmt.Errorf("no channels found on lineup page")}
	}
	return channels, nil
}

// SaveLineup writes the channel list as YAML, temp file first then rename.
func SaveLineup(path string, channels []*Channel) error {
	data, err := yaml.Marshal(channels)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadLineup reads a lineup file written by SaveLineup.
func LoadLineup(path string) ([]*Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var channels []*Channel
	if err := yaml.Unmarshal(data, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}
