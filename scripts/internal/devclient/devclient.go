// Package devclient holds the login and dial steps shared by the dev scripts.
package devclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Login exchanges credentials for a token, registering the account first when register is set.
func Login(ctx context.Context, baseURL, username, password string, register bool) (string, error) {
	path := "/api/login"
	if register {
		path = "/api/register"
	}

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", path, err)
	}
	if resp.StatusCode >= 300 || out.Token == "" {
		return "", fmt.Errorf("%s: %d %s", path, resp.StatusCode, out.Error)
	}
	return out.Token, nil
}

// Dial opens the chat socket with token in the auth cookie.
func Dial(ctx context.Context, baseURL, cookie, token string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Cookie": []string{cookie + "=" + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// Frame is any payload the server pushes.
type Frame struct {
	Online *[]struct {
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
	} `json:"online"`

	ID        int64   `json:"id"`
	Text      *string `json:"text"`
	Sender    int64   `json:"sender"`
	Recipient int64   `json:"recipient"`
	File      *string `json:"file"`

	Error *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// String renders a frame for terminal output.
func (f Frame) String() string {
	switch {
	case f.Error != nil:
		return fmt.Sprintf("error %s: %s", f.Error.Code, f.Error.Msg)
	case f.Online != nil:
		names := make([]string, 0, len(*f.Online))
		for _, u := range *f.Online {
			names = append(names, fmt.Sprintf("%s(%d)", u.Username, u.UserID))
		}
		return "online: " + strings.Join(names, ", ")
	default:
		text := ""
		if f.Text != nil {
			text = *f.Text
		}
		if f.File != nil {
			text += " [file " + *f.File + "]"
		}
		return fmt.Sprintf("#%d from %d: %s", f.ID, f.Sender, strings.TrimSpace(text))
	}
}
