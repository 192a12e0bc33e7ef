package spotapi

import (
	"encoding/json"
	stdhttp "net/http"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	dealerURL   = "wss://gue1-dealer2.spotify.com"
	spclientURL = "https://gue1-spclient.spotify.com"

	heartbeatInterval = 60 * time.Second
)

// Frame is one message off the dealer channel.
type Frame struct {
	Type     string            `json:"type"`
	URI      string            `json:"uri"`
	Headers  map[string]string `json:"headers"`
	Payloads []FramePayload    `json:"payloads"`
}

// FramePayload keeps the raw payload bytes alongside the routing key so
// subscribers can decode the shape they expect.
type FramePayload struct {
	UpdateReason string
	Raw          json.RawMessage
}

func (p *FramePayload) UnmarshalJSON(data []byte) error {
	var probe struct {
		UpdateReason string `json:"update_reason"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	p.UpdateReason = probe.UpdateReason
	p.Raw = append(p.Raw[:0], data...)
	return nil
}

// RealtimeSession holds a persistent dealer websocket open for push
// updates. The server assigns a connection id in the first frame; that id
// ties the socket to the device registered over HTTP. The heartbeat
// goroutine and ReadFrame contend for the receive path, so both take the
// receive mutex; a ping and its reply form one critical section so a pong
// is never misread as a push frame.
type RealtimeSession struct {
	client *Transport
	broker *Client
	log    *logrus.Entry

	ws   *websocket.Conn
	rmu  sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup

	deviceID     string
	connectionID string
	lastFrame    *Frame
	interval     time.Duration
}

// SessionOption configures a RealtimeSession.
type SessionOption func(*RealtimeSession)

// WithObservedDevice overrides the device id the session registers and
// observes, instead of the broker's own fingerprint id.
func WithObservedDevice(deviceID string) SessionOption {
	return func(s *RealtimeSession) { s.deviceID = deviceID }
}

// NewRealtimeSession dials the dealer with the broker's bearer token, reads
// the init frame and starts the heartbeat. The login must already be
// authorized.
func NewRealtimeSession(login *Login, broker *Client, opts ...SessionOption) (*RealtimeSession, error) {
	if !login.Authorized() {
		return nil, newWebSocketError("must be logged in", "")
	}

	token, err := broker.AccessToken()
	if err != nil {
		return nil, err
	}
	deviceID, err := broker.DeviceID()
	if err != nil {
		return nil, err
	}

	s := &RealtimeSession{
		client:   broker.client,
		broker:   broker,
		log:      broker.log.WithField("component", "realtime"),
		stop:     make(chan struct{}),
		deviceID: deviceID,
		interval: heartbeatInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.dial(dealerURL + "/?access_token=" + token); err != nil {
		return nil, err
	}
	if err := s.handshake(); err != nil {
		s.ws.Close()
		return nil, err
	}
	s.startHeartbeat()
	return s, nil
}

func (s *RealtimeSession) dial(wsURL string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	header := stdhttp.Header{"User-Agent": {s.client.UserAgent()}}

	ws, _, err := dialer.Dial(wsURL, header)
	if err != nil {
		return newWebSocketError("could not connect to dealer", err.Error())
	}
	s.ws = ws
	return nil
}

// handshake reads the init frame and extracts the connection id. Runs
// before the heartbeat starts, so no other reader can steal the frame.
func (s *RealtimeSession) handshake() error {
	frame, err := s.ReadFrame()
	if err != nil {
		return err
	}
	id, ok := frame.Headers["Spotify-Connection-Id"]
	if !ok || id == "" {
		return newWebSocketError("invalid init packet", "")
	}
	s.connectionID = id
	return nil
}

func (s *RealtimeSession) startHeartbeat() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.ping(); err != nil {
					s.log.WithField("event", "heartbeat").WithError(err).Warn("heartbeat failed")
					return
				}
			}
		}
	}()
}

func (s *RealtimeSession) ping() error {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if err := s.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		return newWebSocketError("could not send ping", err.Error())
	}
	// Consume the reply here so ReadFrame never sees it.
	if _, _, err := s.ws.ReadMessage(); err != nil {
		return newWebSocketError("could not read pong", err.Error())
	}
	return nil
}

// ReadFrame blocks for the next frame off the socket.
func (s *RealtimeSession) ReadFrame() (*Frame, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	var frame Frame
	if err := s.ws.ReadJSON(&frame); err != nil {
		return nil, newWebSocketError("could not read frame", err.Error())
	}
	s.lastFrame = &frame
	return &frame, nil
}

// ConnectionID returns the server-assigned id from the init frame.
func (s *RealtimeSession) ConnectionID() string {
	return s.connectionID
}

// RegisterDevice announces this session as a web-player device so the
// backend routes push updates to it.
func (s *RealtimeSession) RegisterDevice() error {
	payload := map[string]any{
		"device": map[string]any{
			"brand": "spotify",
			"capabilities": map[string]any{
				"change_volume":            true,
				"enable_play_token":        true,
				"supports_file_media_type": true,
				"play_token_lost_behavior": "pause",
				"disable_connect":          false,
				"audio_podcasts":           true,
				"video_playback":           true,
				"manifest_formats": []string{
					"file_ids_mp3",
					"file_urls_mp3",
					"manifest_urls_audio_ad",
					"manifest_ids_video",
					"file_urls_external",
					"file_ids_mp4",
					"file_ids_mp4_dual",
					"manifest_urls_audio_ad",
				},
			},
			"device_id":           s.deviceID,
			"device_type":         "computer",
			"metadata":            map[string]any{},
			"model":               "web_player",
			"name":                "Web Player (Chrome)",
			"platform_identifier": "web_player windows 10;chrome " + s.client.browserVersion() + ".0.0.0;desktop",
			"is_group":            false,
		},
		"outro_endcontent_snooping": false,
		"connection_id":             s.connectionID,
		"client_version":            "harmony:4.43.2-a61ecaf5",
		"volume":                    65535,
	}

	resp, err := s.client.Do(&Request{
		Method:       http.MethodPost,
		URL:          spclientURL + "/track-playback/v1/devices",
		JSON:         payload,
		Authenticate: true,
	})
	if err != nil {
		return err
	}
	if resp.Fail() {
		return newWebSocketError("could not register device", resp.Err("track-playback endpoint").Error())
	}
	return nil
}

// ConnectState attaches this session as a hidden observer of the device
// cluster and returns the full cluster snapshot. Cookies are cleared first;
// the connect-state service rejects requests carrying web cookies.
func (s *RealtimeSession) ConnectState() (*ClusterDump, error) {
	s.client.ClearCookies()

	resp, err := s.client.Do(&Request{
		Method: http.MethodPut,
		URL:    spclientURL + "/connect-state/v1/devices/hobs_" + s.deviceID,
		JSON: map[string]any{
			"member_type": "CONNECT_STATE",
			"device": map[string]any{
				"device_info": map[string]any{
					"capabilities": map[string]any{
						"can_be_player":           false,
						"hidden":                  true,
						"needs_full_player_state": true,
					},
				},
			},
		},
		Header: http.Header{
			"X-Spotify-Connection-Id": {s.connectionID},
		},
		Authenticate: true,
	})
	if err != nil {
		return nil, err
	}
	if resp.Fail() {
		return nil, newWebSocketError("could not connect device", resp.Err("connect-state endpoint").Error())
	}

	var dump ClusterDump
	if err := resp.DecodeJSON(&dump); err != nil {
		return nil, err
	}
	return &dump, nil
}

// Close stops the heartbeat and closes the socket. Closing first unblocks
// any goroutine parked on a read.
func (s *RealtimeSession) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	err := s.ws.Close()
	s.wg.Wait()
	return err
}
