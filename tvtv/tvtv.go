package tvtv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tvtv2xmltv/consts"
)

// Channel is one station of the configured lineup.
type Channel struct {
	ID       string `yaml:"id"`
	Number   string `yaml:"number"`
	CallSign string `yaml:"callSign"`
	Name     string `yaml:"name"`
	Logo     string `yaml:"logo,omitempty"`
}

// Programme is a single timeslot entry. Channel references Channel.ID.
type Programme struct {
	Channel    string
	Title      string
	SubTitle   string
	Desc       string
	Categories []string
	Start      time.Time
	Stop       time.Time
	HD         bool
	Stereo     bool
	New        bool
}

// Snapshot holds everything fetched in one run. It is built fresh per
// invocation and never mutated afterwards.
type Snapshot struct {
	Channels   []*Channel
	Programmes []*Programme
}

// Window bounds the listings request.
type Window struct {
	Start time.Time
	End   time.Time
}

type Client struct {
	base     string
	lineupID string
	token    string
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(endpoint, lineupID, token string, log zerolog.Logger) *Client {
	return &Client{
		base:     strings.TrimRight(endpoint, "/"),
		lineupID: lineupID,
		token:    token,
		http:     &http.Client{Timeout: 20 * time.Second},
		log:      log,
	}
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", consts.UA)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, &FetchError{URL: url, Status: res.Status}
	}
	return res, nil
}

type lineupChannel struct {
	StationID     json.Number `json:"stationId"`
	ChannelNumber string      `json:"channelNumber"`
	CallSign      string      `json:"stationCallSign"`
	Logo          string      `json:"logo"`
}

// Lineup fetches the full channel lineup of the configured lineup id.
func (c *Client) Lineup(ctx context.Context) ([]*Channel, error) {
	url := fmt.Sprintf("%s/api/v1/lineup/%s/channels", c.base, c.lineupID)
	res, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var raw []lineupChannel
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}
	channels := make([]*Channel, 0, len(raw))
	for _, lc := range raw {
		name := lc.CallSign
		if name == "" {
			name = lc.ChannelNumber
		}
		channels = append(channels, &Channel{
			ID:       lc.StationID.String(),
			Number:   lc.ChannelNumber,
			CallSign: lc.CallSign,
			Name:     name,
			Logo:     lc.Logo,
		})
	}
	return channels, nil
}

type gridProgramme struct {
	Title       string   `json:"title"`
	SubTitle    string   `json:"subtitle"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Flags       []string `json:"flags"`
	StartTime   string   `json:"startTime"`
	RunTime     int      `json:"runTime"`
}

// grid responses hold one row per requested station, in request order.
func (c *Client) grid(ctx context.Context, start, end time.Time, stations []string) ([][]gridProgramme, error) {
	url := fmt.Sprintf("%s/api/v1/lineup/%s/grid/%s/%s/%s",
		c.base, c.lineupID,
		start.UTC().Format(consts.API_TIME_FORMAT),
		end.UTC().Format(consts.API_TIME_FORMAT),
		strings.Join(stations, ","))
	res, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var rows [][]gridProgramme
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}
	return rows, nil
}

// FetchSnapshot retrieves the lineup and all listings inside window for the
// requested stations. The window is walked one day at a time, each day in
// batches of up to 20 stations. An empty grid is a valid empty result, not
// an error.
func (c *Client) FetchSnapshot(ctx context.Context, stations []string, window Window, loc *time.Location) (*Snapshot, error) {
	if len(stations) == 0 {
		return nil, fmt.Errorf("no stations requested")
	}
	if !window.Start.Before(window.End) {
		return nil, fmt.Errorf("window start %s is not before end %s", window.Start, window.End)
	}
	if loc == nil {
		loc = time.UTC
	}

	lineup, err := c.Lineup(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(stations))
	for _, id := range stations {
		want[id] = true
	}
	snap := &Snapshot{}
	for _, ch := range lineup {
		if want[ch.ID] {
			snap.Channels = append(snap.Channels, ch)
		}
	}

	// Only stations the lineup knows are asked for listings. A requested id
	// absent from the lineup yields no channel, so programmes for it would
	// dangle.
	known := make([]string, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		known = append(known, ch.ID)
	}
	if dropped := len(stations) - len(known); dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Msg("requested stations missing from lineup")
	}

	for day := window.Start; day.Before(window.End) && len(known) > 0; {
		dayEnd := day.Add(24 * time.Hour)
		if dayEnd.After(window.End) {
			dayEnd = window.End
		}
		for i := 0; i < len(known); i += consts.GRID_BATCH_SIZE {
			batch := known[i:min(i+consts.GRID_BATCH_SIZE, len(known))]
			rows, err := c.grid(ctx, day, dayEnd, batch)
			if err != nil {
				return nil, err
			}
			for j, row := range rows {
				if j >= len(batch) {
					break
				}
				for _, p := range row {
					prog, err := convertProgramme(batch[j], p, loc)
					if err != nil {
						c.log.Warn().Err(err).Str("station", batch[j]).Str("title", p.Title).Msg("skipping programme")
						continue
					}
					snap.Programmes = append(snap.Programmes, prog)
				}
			}
		}
		day = dayEnd
	}
	c.log.Info().Int("channels", len(snap.Channels)).Int("programmes", len(snap.Programmes)).Msg("fetched snapshot")
	return snap, nil
}

func convertProgramme(station string, p gridProgramme, loc *time.Location) (*Programme, error) {
	start, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		return nil, fmt.Errorf("bad start time %q: %w", p.StartTime, err)
	}
	start = start.In(loc)
	prog := &Programme{
		Channel:  station,
		Title:    p.Title,
		SubTitle: p.SubTitle,
		Desc:     p.Description,
		Start:    start,
		Stop:     start.Add(time.Duration(p.RunTime) * time.Minute),
	}
	switch p.Type {
	case "M":
		prog.Categories = append(prog.Categories, "movie")
	case "N":
		prog.Categories = append(prog.Categories, "news")
	case "S":
		prog.Categories = append(prog.Categories, "sports")
	}
	for _, f := range p.Flags {
		switch f {
		case "EI":
			prog.Categories = append(prog.Categories, "kids")
		case "HD":
			prog.HD = true
		case "Stereo":
			prog.Stereo = true
		case "New":
			prog.New = true
		}
	}
	return prog, nil
}
