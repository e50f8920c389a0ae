package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/6tail/lunar-go/calendar"
	"gopkg.in/yaml.v3"
)

// DashboardConfig describes the login page widgets. It is read from an
// optional YAML file; anything left out keeps its default.
type DashboardConfig struct {
	Quotes     []string `yaml:"quotes"`
	WeatherURL string   `yaml:"weather_url"`
	RSSProxy   string   `yaml:"rss_proxy"`
	NewsLimit  int      `yaml:"news_limit"`
	Feeds      []Feed   `yaml:"feeds"`
}

type Feed struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

func defaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Quotes: []string{
			"Life is like riding a bicycle. To keep your balance, you must keep moving.",
			"Who you will be is hidden in the work you do now.",
			"Only love outlasts the long years.",
			"The brave are not those who never cry, but those who keep running through their tears.",
			"The best time to plant a tree was ten years ago. The second best time is now.",
			"Starlight does not ask the traveller, and time does not fail those who try.",
			"True heroism is to see life as it is and love it anyway.",
		},
		WeatherURL: "https://wttr.in/?format=j1&lang=zh",
		RSSProxy:   "https://api.rss2json.com/v1/api.json",
		NewsLimit:  5,
		Feeds: []Feed{
			{Name: "china", Title: "China News", URL: "https://rss.ftchinese.com/feed.xml"},
			{Name: "world", Title: "World News", URL: "http://feeds.bbci.co.uk/news/world/rss.xml"},
		},
	}
}

func loadDashboardConfig(path string) (DashboardConfig, error) {
	cfg := defaultDashboardConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DashboardConfig{}, fmt.Errorf("reading dashboard config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DashboardConfig{}, fmt.Errorf("parsing dashboard config %s: %w", path, err)
	}

	if len(cfg.Quotes) == 0 {
		return DashboardConfig{}, errors.New("dashboard config: at least one quote is required")
	}
	seen := make(map[string]bool)
	for _, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return DashboardConfig{}, errors.New("dashboard config: every feed needs a name and url")
		}
		if seen[f.Name] {
			return DashboardConfig{}, fmt.Errorf("dashboard config: duplicate feed %q", f.Name)
		}
		seen[f.Name] = true
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = defaultDashboardConfig().NewsLimit
	}

	return cfg, nil
}

// Dashboard fetches widget data from third-party services. Every call is
// bounded by timeout so a slow service only delays its own widget.
type Dashboard struct {
	cfg     DashboardConfig
	client  *http.Client
	timeout time.Duration
}

func NewDashboard(cfg DashboardConfig, timeout time.Duration) *Dashboard {
	return &Dashboard{
		cfg:     cfg,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// DailyQuote picks a quote by day of year, so it changes once a day.
func (d *Dashboard) DailyQuote(t time.Time) string {
	return d.cfg.Quotes[t.YearDay()%len(d.cfg.Quotes)]
}

// LunarDate renders t's date in the Chinese lunar calendar, e.g. 甲辰年 正月初一.
func (d *Dashboard) LunarDate(t time.Time) string {
	lunar := calendar.NewSolarFromDate(t).GetLunar()
	return fmt.Sprintf("%s年 %s月%s", lunar.GetYearInGanZhi(), lunar.GetMonthInChinese(), lunar.GetDayInChinese())
}

func (d *Dashboard) Feeds() []Feed {
	return d.cfg.Feeds
}

func (d *Dashboard) feed(name string) (Feed, bool) {
	for _, f := range d.cfg.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return Feed{}, false
}

type Weather struct {
	Area        string
	Region      string
	Description string
	TempC       string
	FeelsLikeC  string
	WindKmph    string
}

type wttrValue struct {
	Value string `json:"value"`
}

// wttrResponse is the subset of wttr.in's format=j1 payload we display.
type wttrResponse struct {
	NearestArea []struct {
		AreaName []wttrValue `json:"areaName"`
		Region   []wttrValue `json:"region"`
	} `json:"nearest_area"`
	CurrentCondition []struct {
		TempC         string      `json:"temp_C"`
		FeelsLikeC    string      `json:"FeelsLikeC"`
		WindspeedKmph string      `json:"windspeedKmph"`
		WeatherDesc   []wttrValue `json:"weatherDesc"`
		LangZh        []wttrValue `json:"lang_zh"`
	} `json:"current_condition"`
}

// Weather looks up current conditions at clientIP. wttr.in geolocates a
// public address itself; otherwise it falls back to the server's location.
func (d *Dashboard) Weather(ctx context.Context, clientIP string) (*Weather, error) {
	u, err := weatherURL(d.cfg.WeatherURL, clientIP)
	if err != nil {
		return nil, fmt.Errorf("parsing weather url: %w", err)
	}

	var resp wttrResponse
	if err := d.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching weather: %w", err)
	}

	if len(resp.NearestArea) == 0 || len(resp.CurrentCondition) == 0 {
		return nil, errors.New("fetching weather: incomplete response")
	}
	area := resp.NearestArea[0]
	cur := resp.CurrentCondition[0]

	w := &Weather{
		Area:       firstValue(area.AreaName),
		Region:     firstValue(area.Region),
		TempC:      cur.TempC,
		FeelsLikeC: cur.FeelsLikeC,
		WindKmph:   cur.WindspeedKmph,
	}
	w.Description = firstValue(cur.LangZh)
	if w.Description == "" {
		w.Description = firstValue(cur.WeatherDesc)
	}
	return w, nil
}

// weatherURL appends clientIP as the wttr.in location. Private and loopback
// addresses cannot be geolocated and are left out.
func weatherURL(base, clientIP string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(clientIP)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return u.String(), nil
	}
	u.Path = path.Join("/", u.Path, ip.String())
	return u.String(), nil
}

func firstValue(vs []wttrValue) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0].Value
}

type NewsItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

type rss2jsonResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Items   []NewsItem `json:"items"`
}

// News returns the first items of the named feed, converted to JSON by the
// RSS proxy.
func (d *Dashboard) News(ctx context.Context, name string) ([]NewsItem, error) {
	f, ok := d.feed(name)
	if !ok {
		return nil, fmt.Errorf("unknown feed %q", name)
	}

	u, err := url.Parse(d.cfg.RSSProxy)
	if err != nil {
		return nil, fmt.Errorf("parsing rss proxy url: %w", err)
	}
	q := u.Query()
	q.Set("rss_url", f.URL)
	u.RawQuery = q.Encode()

	var resp rss2jsonResponse
	if err := d.getJSON(ctx, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("fetching feed %q: %w", name, err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("fetching feed %q: %s", name, resp.Message)
	}

	items := resp.Items
	if len(items) > d.cfg.NewsLimit {
		items = items[:d.cfg.NewsLimit]
	}
	return items, nil
}

func (d *Dashboard) getJSON(ctx context.Context, rawURL string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
