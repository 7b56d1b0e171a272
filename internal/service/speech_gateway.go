package service

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"voice_survey_backend/internal/config"
	"voice_survey_backend/internal/util"
	"voice_survey_backend/pkg/logger"

	"go.uber.org/zap"
)

// SpeechGateway is the coarse telephony contract the call runner drives.
// Dial and Listen are the only blocking operations; Listen always honors its
// timeout and reports silence instead of blocking. HangUp is idempotent and
// safe on every exit path.
type SpeechGateway interface {
	Dial(ctx context.Context, phoneNumber, language string) (*CallChannel, error)
	Play(ctx context.Context, ch *CallChannel, text, language string) error
	Listen(ctx context.Context, ch *CallChannel, timeout time.Duration) (string, error)
	HangUp(ch *CallChannel) error
}

// CallChannel is the open leg of one outbound call. The provider pushes
// status and gather callbacks into it; the worker consumes them as blocking
// Dial/Listen results.
type CallChannel struct {
	SID      string
	Number   string
	Language string

	dialResult  chan error
	transcripts chan string

	mu           sync.Mutex
	closed       bool
	remoteHangup bool
	done         chan struct{}
	hangupOnce   sync.Once
}

// Closed reports whether the provider leg is gone.
func (c *CallChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RemoteHangup reports whether the contact ended the call themselves, as
// opposed to a provider-side failure.
func (c *CallChannel) RemoteHangup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteHangup
}

func (c *CallChannel) close(remote bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.remoteHangup = remote
	close(c.done)
}

// TwilioGateway implements SpeechGateway over the Twilio REST API. The
// provider's webhook callbacks (status, gather) are restated as blocking
// Dial/Listen calls: the webhook controller feeds callbacks into the open
// channel and the worker goroutine wakes up.
type TwilioGateway struct {
	cfg    config.TelephonyConfig
	client *http.Client

	mu       sync.RWMutex
	channels map[string]*CallChannel
}

func NewTwilioGateway(cfg config.TelephonyConfig) *TwilioGateway {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}
	cfg.BaseURL = base
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 45 * time.Second
	}
	return &TwilioGateway{
		cfg:      cfg,
		client:   &http.Client{Timeout: 15 * time.Second},
		channels: make(map[string]*CallChannel),
	}
}

type twilioCallResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Dial creates the outbound call and blocks until the provider reports the
// leg answered, or maps the terminal status to a call-level error.
func (g *TwilioGateway) Dial(ctx context.Context, phoneNumber, language string) (*CallChannel, error) {
	form := url.Values{}
	form.Set("To", phoneNumber)
	form.Set("From", g.cfg.PhoneNumber)
	form.Set("Url", g.cfg.WebhookURL+"/answer")
	form.Set("StatusCallback", g.cfg.WebhookURL+"/status")
	form.Set("StatusCallbackEvent", "initiated ringing answered completed")
	form.Set("MachineDetection", "Enable")

	var created twilioCallResponse
	if err := g.post(ctx, "/Calls.json", form, &created); err != nil {
		return nil, err
	}

	ch := &CallChannel{
		SID:         created.SID,
		Number:      phoneNumber,
		Language:    language,
		dialResult:  make(chan error, 1),
		transcripts: make(chan string, 4),
		done:        make(chan struct{}),
	}

	g.mu.Lock()
	g.channels[ch.SID] = ch
	g.mu.Unlock()

	timer := time.NewTimer(g.cfg.DialTimeout)
	defer timer.Stop()

	select {
	case err := <-ch.dialResult:
		if err != nil {
			g.drop(ch.SID)
			return nil, err
		}
		return ch, nil
	case <-ch.done:
		// Leg ended (canceled or completed) before anyone answered.
		g.drop(ch.SID)
		return nil, util.ErrNoAnswer
	case <-timer.C:
		g.HangUp(ch)
		g.drop(ch.SID)
		return nil, util.ErrNoAnswer
	case <-ctx.Done():
		g.HangUp(ch)
		g.drop(ch.SID)
		return nil, ctx.Err()
	}
}

// Play speaks the text on the open call via a <Say> verb.
func (g *TwilioGateway) Play(ctx context.Context, ch *CallChannel, text, language string) error {
	if ch.Closed() {
		return util.ErrChannelClosed
	}

	twiml := sayTwiML(text, language)
	form := url.Values{}
	form.Set("Twiml", twiml)

	var resp twilioCallResponse
	if err := g.post(ctx, "/Calls/"+ch.SID+".json", form, &resp); err != nil {
		if ch.Closed() {
			return util.ErrChannelClosed
		}
		return fmt.Errorf("%w: %v", util.ErrSynthesis, err)
	}
	return nil
}

// Listen arms a speech <Gather> on the call and blocks for the transcript.
// It returns ErrSilence when the timeout elapses with nothing captured.
func (g *TwilioGateway) Listen(ctx context.Context, ch *CallChannel, timeout time.Duration) (string, error) {
	if ch.Closed() {
		return "", util.ErrChannelClosed
	}

	// Drop transcripts left over from an earlier gather. A delivery that
	// arrived after the previous Listen gave up must not be taken as the
	// answer to this question.
drain:
	for {
		select {
		case stale := <-ch.transcripts:
			logger.Log.Warn("discarding stale transcript",
				zap.String("callSid", ch.SID), zap.String("transcript", stale))
		default:
			break drain
		}
	}

	twiml := gatherTwiML(g.cfg.WebhookURL+"/gather", ch.Language, timeout)
	form := url.Values{}
	form.Set("Twiml", twiml)

	var resp twilioCallResponse
	if err := g.post(ctx, "/Calls/"+ch.SID+".json", form, &resp); err != nil {
		if ch.Closed() {
			return "", util.ErrChannelClosed
		}
		return "", fmt.Errorf("%w: %v", util.ErrRecognition, err)
	}

	timer := time.NewTimer(timeout + 5*time.Second)
	defer timer.Stop()

	select {
	case transcript := <-ch.transcripts:
		if strings.TrimSpace(transcript) == "" {
			return "", util.ErrSilence
		}
		return transcript, nil
	case <-ch.done:
		return "", util.ErrChannelClosed
	case <-timer.C:
		return "", util.ErrSilence
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HangUp ends the call leg. Safe to call repeatedly and on channels the
// remote side already closed.
func (g *TwilioGateway) HangUp(ch *CallChannel) error {
	if ch == nil {
		return nil
	}
	ch.hangupOnce.Do(func() {
		if !ch.Closed() {
			form := url.Values{}
			form.Set("Status", "completed")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			var resp twilioCallResponse
			if err := g.post(ctx, "/Calls/"+ch.SID+".json", form, &resp); err != nil {
				logger.Log.Warn("hangup request failed", zap.String("callSid", ch.SID), zap.Error(err))
			}
		}
		ch.close(false)
		g.drop(ch.SID)
	})
	return nil
}

// HandleStatusCallback is invoked by the webhook controller with provider
// call status events and resolves the pending Dial or closes the channel.
func (g *TwilioGateway) HandleStatusCallback(callSID, status, answeredBy string) {
	g.mu.RLock()
	ch, ok := g.channels[callSID]
	g.mu.RUnlock()
	if !ok {
		return
	}

	switch status {
	case "in-progress", "answered":
		if answeredBy == "machine_start" || answeredBy == "machine_end_beep" {
			g.resolveDial(ch, util.ErrVoicemail)
			return
		}
		g.resolveDial(ch, nil)
	case "busy":
		g.resolveDial(ch, util.ErrBusy)
	case "no-answer":
		g.resolveDial(ch, util.ErrNoAnswer)
	case "failed":
		g.resolveDial(ch, util.ErrProvider)
		ch.close(false)
	case "canceled":
		g.resolveDial(ch, util.ErrNoAnswer)
		ch.close(false)
	case "completed":
		// Remote party hung up (our own hangup closes the channel first).
		ch.close(true)
	}
}

// HandleGather is invoked by the webhook controller with a captured speech
// transcript and wakes up the blocked Listen.
func (g *TwilioGateway) HandleGather(callSID, transcript string) {
	g.mu.RLock()
	ch, ok := g.channels[callSID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch.transcripts <- transcript:
	default:
		logger.Log.Warn("dropping transcript, no listener", zap.String("callSid", callSID))
	}
}

func (g *TwilioGateway) resolveDial(ch *CallChannel, err error) {
	select {
	case ch.dialResult <- err:
	default:
	}
}

func (g *TwilioGateway) drop(sid string) {
	g.mu.Lock()
	delete(g.channels, sid)
	g.mu.Unlock()
}

func (g *TwilioGateway) post(ctx context.Context, path string, form url.Values, out *twilioCallResponse) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s%s", g.cfg.BaseURL, g.cfg.AccountSID, path)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "21211") {
			// Twilio error 21211: invalid 'To' phone number.
			return util.ErrInvalidNumber
		}
		return fmt.Errorf("%w: status %d: %s", util.ErrProvider, resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %v", util.ErrProvider, err)
		}
	}
	return nil
}

type sayElement struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type gatherElement struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Language      string   `xml:"language,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Timeout       int      `xml:"timeout,attr"`
}

type responseElement struct {
	XMLName xml.Name      `xml:"Response"`
	Verbs   []interface{} `xml:",any"`
}

func sayTwiML(text, language string) string {
	doc := responseElement{Verbs: []interface{}{
		sayElement{Voice: VoiceForLanguage(language), Language: LocaleForLanguage(language), Text: text},
	}}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "<Response><Say>" + text + "</Say></Response>"
	}
	return string(out)
}

func gatherTwiML(action, language string, timeout time.Duration) string {
	doc := responseElement{Verbs: []interface{}{
		gatherElement{
			Input:         "speech",
			Action:        action,
			Method:        "POST",
			Language:      LocaleForLanguage(language),
			SpeechTimeout: "auto",
			Timeout:       int(timeout.Seconds()),
		},
	}}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "<Response></Response>"
	}
	return string(out)
}
