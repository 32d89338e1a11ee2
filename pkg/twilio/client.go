// Copyright 2025 VeloxVOIP.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package twilio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/errors"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client talks to the carrier's call-control REST API: updating live calls
// with new call-control instructions and managing recordings, addressed by
// call SID.
type Client struct {
	log        logger.Logger
	conf       *config.TwilioConfig
	httpClient *http.Client
	baseURL    string
}

func NewClient(conf *config.TwilioConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger().WithComponent("twilio")
	}
	baseURL := conf.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		log:        log,
		conf:       conf,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Call is the subset of the call resource the engine reads back.
type Call struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// Recording is the subset of the recording resource the engine reads back.
type Recording struct {
	SID      string `json:"sid"`
	CallSID  string `json:"call_sid"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

// UpdateCall replaces the live call's control instructions with the given
// TwiML document.
func (c *Client) UpdateCall(ctx context.Context, callSID, twiml string) error {
	form := url.Values{}
	form.Set("Twiml", twiml)

	var out Call
	err := c.post(ctx, "/Calls/"+callSID+".json", form, &out)
	if err != nil {
		return err
	}
	c.log.Infow("call updated", "callSID", callSID, "status", out.Status)
	return nil
}

// CreateCall originates an outbound call whose media is sent to the given
// TwiML fetch URL.
func (c *Client) CreateCall(ctx context.Context, to, twimlURL string) (*Call, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.conf.FromNumber)
	form.Set("Url", twimlURL)

	var out Call
	if err := c.post(ctx, "/Calls.json", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRecording starts recording the live call. statusCallback, when
// non-empty, receives recording status transitions.
func (c *Client) CreateRecording(ctx context.Context, callSID, statusCallback string) (*Recording, error) {
	form := url.Values{}
	if statusCallback != "" {
		form.Set("RecordingStatusCallback", statusCallback)
		form.Set("RecordingStatusCallbackEvent", "in-progress completed absent")
	}

	var out Recording
	if err := c.post(ctx, "/Calls/"+callSID+"/Recordings.json", form, &out); err != nil {
		return nil, err
	}
	c.log.Infow("recording started", "callSID", callSID, "recordingSID", out.SID)
	return &out, nil
}

// StopRecording ends the in-progress recording on the call.
func (c *Client) StopRecording(ctx context.Context, callSID, recordingSID string) error {
	form := url.Values{}
	form.Set("Status", "stopped")
	return c.post(ctx, "/Calls/"+callSID+"/Recordings/"+recordingSID+".json", form, nil)
}

// ListRecordings returns the recordings made for the call.
func (c *Client) ListRecordings(ctx context.Context, callSID string) ([]Recording, error) {
	var out struct {
		Recordings []Recording `json:"recordings"`
	}
	if err := c.get(ctx, "/Calls/"+callSID+"/Recordings.json", &out); err != nil {
		return nil, err
	}
	return out.Recordings, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountURL(path), strings.NewReader(form.Encode()))
	if err != nil {
		return errors.NewTelephonyError(path, "", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.accountURL(path), nil)
	if err != nil {
		return errors.NewTelephonyError(path, "", 0, err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	req.SetBasicAuth(c.authUser(), c.authPass())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTelephonyError(op, "", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.NewTelephonyError(op, "", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewTelephonyError(op, "", resp.StatusCode,
			errors.New("request rejected: "+strings.TrimSpace(string(body))))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.NewTelephonyError(op, "", resp.StatusCode, err)
		}
	}
	return nil
}

func (c *Client) accountURL(path string) string {
	return c.baseURL + "/Accounts/" + c.conf.AccountSID + path
}

// API key credentials take precedence over the account auth token pair.
func (c *Client) authUser() string {
	if c.conf.APISID != "" {
		return c.conf.APISID
	}
	return c.conf.AccountSID
}

func (c *Client) authPass() string {
	return c.conf.APISecret
}
