package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"lrnchat/internal/model"

	"github.com/gorilla/websocket"
)

func (s *Session) dialRelay() (*websocket.Conn, error) {
	params := url.Values{
		"token": []string{s.token},
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     s.host,
		Path:     "/ws",
		RawQuery: params.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// History fetches recent envelopes over HTTP, newest first. This is the
// reconnect-fetch: the relay itself does not replay missed messages.
func (s *Session) History(conversationID string, limit int) ([]*model.Envelope, error) {
	u := url.URL{
		Scheme:   "http",
		Host:     s.host,
		Path:     fmt.Sprintf("/conversations/%s/messages", conversationID),
		RawQuery: url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode(),
	}

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch: %s", resp.Status)
	}

	var envelopes []*model.Envelope
	err = json.NewDecoder(resp.Body).Decode(&envelopes)
	if err != nil {
		return nil, err
	}

	return envelopes, nil
}
