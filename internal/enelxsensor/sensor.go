// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package enelxsensor adapts the EnelX/Dexma vendor HTTP API to the
// Dedup Emitter's Sensor contract (§4.8, supplemented features "EnelX
// publisher"): each tick logs into the EMS portal and pulls power,
// energy, and carbon-emission readings for a fixed set of meters
// ("motes").
//
// No HTTP client library appears anywhere in the retrieval pack, so
// this package is built on net/http directly (documented in
// DESIGN.md) rather than adopting a library none of the teacher's
// siblings use.
package enelxsensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
)

const defaultBaseURL = "https://ems.enelx.com"

// Client drives the unofficial EnelX EMS portal API: a cookie-authenticated
// form login followed by chart-data endpoints that hand back a hash to
// redeem for the actual JSON payload.
type Client struct {
	http       *http.Client
	baseURL    string
	username   string
	password   string
	depID      string
	depToken   string
	accountID  string
}

// Config names the vendor credentials a Client needs.
type Config struct {
	Username  string
	Password  string
	DepID     string
	DepToken  string
	AccountID string
	BaseURL   string
}

// NewClient builds a Client with its own cookie jar, mirroring the
// Python source's single `requests.Session`.
func NewClient(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("enelxsensor: building cookie jar: %w", err)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:      &http.Client{Jar: jar, Timeout: 30 * time.Second},
		baseURL:   baseURL,
		username:  cfg.Username,
		password:  cfg.Password,
		depID:     cfg.DepID,
		depToken:  cfg.DepToken,
		accountID: cfg.AccountID,
	}, nil
}

// Login performs the form-based `j_spring_security_check` the portal
// expects before any chart-data endpoint will answer.
func (c *Client) Login() error {
	form := url.Values{
		"j_username": {c.username},
		"j_password": {c.password},
		"j_action":   {""},
		"j_value":    {""},
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/j_spring_security_check", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("enelxsensor: login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("enelxsensor: login failed with status %d", resp.StatusCode)
	}
	return nil
}

var hashPattern = regexp.MustCompile(`createDefaultStockChart\("[^"]*", "([^"]*)"`)

// chartData posts to url with payload and params, extracts the chart
// hash from the HTML response, and redeems it at the export.json
// endpoint, mirroring EnelXClient.get_data.
func (c *Client) chartData(reqURL string, payload url.Values, params url.Values) (json.RawMessage, error) {
	if params != nil {
		reqURL = reqURL + "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodPost, reqURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enelxsensor: chart request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("enelxsensor: chart request failed with status %d", resp.StatusCode)
	}

	match := hashPattern.FindSubmatch(body)
	if match == nil {
		return nil, fmt.Errorf("enelxsensor: no chart hash in response")
	}

	exportURL := fmt.Sprintf("%s/l_107710/analysis/export.json?hash=%s", c.baseURL, url.QueryEscape(string(match[1])))
	resp2, err := c.http.Get(exportURL)
	if err != nil {
		return nil, fmt.Errorf("enelxsensor: export request: %w", err)
	}
	defer resp2.Body.Close()
	return io.ReadAll(resp2.Body)
}

// chartSeries is the shape of a power/energy chart-data response:
// named, unit-tagged series sampled over a shared timestamp axis.
type chartSeries struct {
	SeriesList []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Units string `json:"units"`
	} `json:"seriesList"`
	ChartElementList []struct {
		Timestamp string             `json:"timestamp"`
		Values    map[string]float64 `json:"values"`
	} `json:"chartElementList"`
}

// GetPowerConsumption fetches instantaneous power readings for motes
// over [start, end] (DD/MM/YYYY, matching the portal's own format).
func (c *Client) GetPowerConsumption(start, end string, motes []string) (chartSeries, error) {
	payload := url.Values{"initDate": {start}, "endDate": {end}}
	for _, m := range motes {
		payload.Add("selectedMoteList", m)
	}
	params := url.Values{"param": {"40205"}, "date": {start}}

	raw, err := c.chartData(c.baseURL+"/l_107710/analysis/demand/display.htm", payload, params)
	if err != nil {
		return chartSeries{}, err
	}
	var series chartSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return chartSeries{}, fmt.Errorf("enelxsensor: decoding power consumption: %w", err)
	}
	return series, nil
}

// GetEnergyConsumption fetches cumulative energy readings for motes
// over [start, end].
func (c *Client) GetEnergyConsumption(start, end string, motes []string) (chartSeries, error) {
	payload := url.Values{
		"networkId":        {"402"},
		"serviceFrequency": {"QUARTER"},
		"showComment":      {"1"},
		"graphType":        {"line"},
		"fromDate":         {start},
		"toDate":           {end},
		"periodAction":     {""},
	}
	for _, m := range motes {
		payload.Add("selectedMoteList", m)
	}

	raw, err := c.chartData(c.baseURL+"/l_107710/analysis/consumption/loadChartData.htm", payload, nil)
	if err != nil {
		return chartSeries{}, err
	}
	var series chartSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return chartSeries{}, fmt.Errorf("enelxsensor: decoding energy consumption: %w", err)
	}
	return series, nil
}

// carbonSessionIDPattern extracts the carbon-API session id embedded
// in the market view page's iframe URL.
var carbonSessionIDPattern = regexp.MustCompile(`session_id=([^"&]+)`)

func (c *Client) carbonSessionID() (string, error) {
	resp, err := c.http.Get(c.baseURL + "/l_107710/marketView/show/analysis/7799.htm")
	if err != nil {
		return "", fmt.Errorf("enelxsensor: market view request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	match := carbonSessionIDPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("enelxsensor: no carbon session id in market view page")
	}
	return string(match[1]), nil
}

type carbonReadings struct {
	Unit     string `json:"unit"`
	Readings []struct {
		Timestamp string `json:"timestamp"`
		Values    []struct {
			DeviceID string  `json:"deviceId"`
			Value    float64 `json:"value"`
		} `json:"values"`
	} `json:"readings"`
}

// GetCarbonEmissions fetches daily carbon emission readings for
// devices over [start, end] (DD/MM/YYYY).
func (c *Client) GetCarbonEmissions(devices []string, start, end string) (carbonReadings, error) {
	sessionID, err := c.carbonSessionID()
	if err != nil {
		return carbonReadings{}, err
	}

	body, err := json.Marshal(map[string]any{
		"energySource": "ELECTRICITY",
		"emissionType": "CARBONDIOX",
		"frequency":    "D",
		"devices":      devices,
		"range":        map[string]string{"fromDate": start, "toDate": end},
	})
	if err != nil {
		return carbonReadings{}, err
	}

	req, err := http.NewRequest(http.MethodPost, "https://carbon-api.enerapp.com/accounts/"+c.accountID+"/carbonEmissions/_search", bytes.NewReader(body))
	if err != nil {
		return carbonReadings{}, err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("x-dexma-dep-id", c.depID)
	req.Header.Set("x-dexma-dep-token", c.depToken)
	req.Header.Set("x-dexma-session-id", sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return carbonReadings{}, fmt.Errorf("enelxsensor: carbon emissions request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return carbonReadings{}, err
	}
	if resp.StatusCode >= 400 {
		return carbonReadings{}, fmt.Errorf("enelxsensor: carbon emissions failed with status %d: %s", resp.StatusCode, respBody)
	}

	var out carbonReadings
	if err := json.Unmarshal(respBody, &out); err != nil {
		return carbonReadings{}, fmt.Errorf("enelxsensor: decoding carbon emissions: %w", err)
	}
	return out, nil
}

// reading is one flattened, typed sample ready for Normalise to turn
// into a metric.Record, mirroring DataTransformer's output rows.
type reading struct {
	Timestamp time.Time
	Name      string
	Value     float64
	Units     string
	Type      string
}

// Sensor implements dedup.Sensor for the EnelX vendor API: Read logs
// in and pulls power, energy, and carbon readings for the configured
// motes; Normalise turns them into tagged metric records.
type Sensor struct {
	client       *Client
	motes        map[string]string // name -> mote id ("xxxx-yyyy")
	organization string
	site         string
	lookback     time.Duration
}

// New builds a Sensor. motes maps a human-readable device name to its
// "<deviceID>-<moteID>" identifier, matching the portal's MOTE_DICT.
func New(client *Client, motes map[string]string, organization, site string, lookback time.Duration) *Sensor {
	return &Sensor{client: client, motes: motes, organization: organization, site: site, lookback: lookback}
}

// Read logs into the portal and pulls the three vendor endpoints over
// the trailing lookback window, returning the combined raw readings.
func (s *Sensor) Read() (time.Time, any, error) {
	now := time.Now()
	if err := s.client.Login(); err != nil {
		return time.Time{}, nil, err
	}

	start := now.Add(-s.lookback).Format("02/01/2006")
	end := now.Format("02/01/2006")

	moteList := make([]string, 0, len(s.motes))
	for _, id := range s.motes {
		moteList = append(moteList, id)
	}
	sort.Strings(moteList)

	var readings []reading

	power, err := s.client.GetPowerConsumption(start, end, moteList)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("enelxsensor: power consumption: %w", err)
	}
	readings = append(readings, flattenSeries(power, "power")...)

	energyData, err := s.client.GetEnergyConsumption(start, end, moteList)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("enelxsensor: energy consumption: %w", err)
	}
	readings = append(readings, flattenSeries(energyData, "energy")...)

	deviceIDs := make([]string, 0, len(s.motes))
	deviceNameByID := make(map[string]string, len(s.motes))
	for name, moteID := range s.motes {
		id := strings.SplitN(moteID, "-", 2)[0]
		deviceIDs = append(deviceIDs, id)
		deviceNameByID[id] = name
	}
	sort.Strings(deviceIDs)

	carbon, err := s.client.GetCarbonEmissions(deviceIDs, start, end)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("enelxsensor: carbon emissions: %w", err)
	}
	readings = append(readings, flattenCarbon(carbon, deviceNameByID)...)

	return now, readings, nil
}

// flattenSeries turns a chartSeries response into one reading per
// (timestamp, series) pair, matching DataTransformer.transform_json.
func flattenSeries(series chartSeries, kind string) []reading {
	names := make(map[string]string, len(series.SeriesList))
	units := make(map[string]string, len(series.SeriesList))
	for _, s := range series.SeriesList {
		names[s.ID] = s.Name
		units[s.ID] = s.Units
	}

	out := make([]reading, 0, len(series.ChartElementList))
	for _, el := range series.ChartElementList {
		ts, err := time.ParseInLocation("2006/01/02 15:04", el.Timestamp, romeLocation())
		if err != nil {
			continue
		}
		for seriesID, value := range el.Values {
			out = append(out, reading{
				Timestamp: ts,
				Name:      names[seriesID],
				Value:     value,
				Units:     units[seriesID],
				Type:      kind,
			})
		}
	}
	return out
}

// flattenCarbon turns a carbonReadings response into one reading per
// (day, device) pair, matching DataTransformer.transform_carbon_json.
func flattenCarbon(data carbonReadings, deviceNameByID map[string]string) []reading {
	out := make([]reading, 0, len(data.Readings))
	for _, r := range data.Readings {
		ts, err := time.ParseInLocation("02/01/2006", r.Timestamp, romeLocation())
		if err != nil {
			continue
		}
		for _, v := range r.Values {
			name, ok := deviceNameByID[v.DeviceID]
			if !ok {
				name = "device_" + v.DeviceID
			}
			out = append(out, reading{
				Timestamp: ts,
				Name:      name,
				Value:     v.Value,
				Units:     data.Unit,
				Type:      "carbon",
			})
		}
	}
	return out
}

func romeLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Normalise turns the readings Read collected into metric records
// tagged with the sensor's organization/site and each reading's
// device name, type, and units.
func (s *Sensor) Normalise(_ time.Time, raw any) ([]metric.Record, error) {
	readings, ok := raw.([]reading)
	if !ok {
		return nil, fmt.Errorf("enelxsensor: Normalise expects []reading, got %T", raw)
	}

	records := make([]metric.Record, 0, len(readings))
	for _, r := range readings {
		tags := metric.NewTagSet()
		tags.Set("org", "enelx")
		tags.Set("organization", sanitize.Tag(s.organization, sanitize.SchedulerPath))
		tags.Set("site", sanitize.Tag(s.site, sanitize.SchedulerPath))
		tags.Set("plugin", "enelxpub")
		tags.Set("chnl", r.Type)
		tags.Set("device", sanitize.Tag(r.Name, sanitize.SchedulerPath))
		tags.Set("units", sanitize.Tag(r.Units, sanitize.SchedulerPath))

		records = append(records, metric.New(r.Type, r.Value, r.Timestamp, tags, sanitize.SchedulerPath))
	}
	return records, nil
}
