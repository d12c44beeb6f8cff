package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/devconnect/chatcore/auth"
	"github.com/devconnect/chatcore/model"
)

// response bodies larger than this are cut off.
const maxBodyBytes = 4 << 20

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 100 {
		body = body[:100] + " ..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// RestStore implements IMessageStore over the backend REST API.
type RestStore struct {
	apiURL  string
	baseURL string
	client  *http.Client
	tokens  auth.TokenSource
}

// NewRestStore creates a RestStore rooted at apiBaseURL, e.g.
// `http://localhost:8081/api`.
func NewRestStore(apiBaseURL string, tokens auth.TokenSource, timeout time.Duration) *RestStore {
	apiURL := strings.TrimRight(apiBaseURL, "/")
	return &RestStore{
		apiURL:  apiURL,
		baseURL: apiURL + "/messages",
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (s *RestStore) GetUserChats(ctx context.Context, uid int64) ([]model.ChatSummary, error) {
	body, err := s.do(ctx, http.MethodGet, "/chats/"+strconv.FormatInt(uid, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	return model.DecodeSummaries(body)
}

func (s *RestStore) GetConversation(ctx context.Context, uid1, uid2 int64) ([]model.Message, error) {
	q := url.Values{}
	q.Set("userId1", strconv.FormatInt(uid1, 10))
	q.Set("userId2", strconv.FormatInt(uid2, 10))
	body, err := s.do(ctx, http.MethodGet, "/conversation", q, nil)
	if err != nil {
		return nil, err
	}
	return model.DecodeMessages(body)
}

func (s *RestStore) SendMessage(ctx context.Context, msg *model.OutboundMessage) (*model.Message, error) {
	req := struct {
		SenderID   int64  `json:"senderId"`
		ReceiverID int64  `json:"receiverId"`
		Text       string `json:"text"`
		ProjectID  int64  `json:"projectId"`
	}{msg.SenderID, msg.ReceiverID, msg.Text, msg.ProjectID}

	body, err := s.do(ctx, http.MethodPost, "/send", nil, &req)
	if err != nil {
		return nil, err
	}
	m, err := model.DecodeMessage(body)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RestStore) MarkRead(ctx context.Context, conversationID, readerID int64) error {
	q := url.Values{}
	q.Set("conversationId", strconv.FormatInt(conversationID, 10))
	q.Set("readerId", strconv.FormatInt(readerID, 10))
	_, err := s.do(ctx, http.MethodPut, "/read", q, nil)
	return err
}

func (s *RestStore) GetStatus(ctx context.Context, uid int64) (model.Presence, error) {
	body, err := s.do(ctx, http.MethodGet, "/status/"+strconv.FormatInt(uid, 10), nil, nil)
	if err != nil {
		return model.PresenceOffline, err
	}
	return model.DecodeStatus(body)
}

func (s *RestStore) UpdateStatus(ctx context.Context, uid int64, status model.Presence) error {
	q := url.Values{}
	q.Set("status", string(status))
	_, err := s.do(ctx, http.MethodPut, "/status/"+strconv.FormatInt(uid, 10), q, nil)
	return err
}

func (s *RestStore) SearchUsers(ctx context.Context, role model.Role, query string) ([]model.User, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", string(role))
	}
	if query = strings.TrimSpace(query); query != "" {
		q.Set("query", query)
	}
	body, err := s.request(ctx, http.MethodGet, s.apiURL, "/users/search", q, nil)
	if err != nil {
		return nil, err
	}
	return model.DecodeUsers(body)
}

func (s *RestStore) do(ctx context.Context, method, path string, query url.Values, in interface{}) ([]byte, error) {
	return s.request(ctx, method, s.baseURL, path, query, in)
}

func (s *RestStore) request(ctx context.Context, method, base, path string, query url.Values, in interface{}) ([]byte, error) {
	token, err := s.tokens.Token()
	if err != nil {
		return nil, &model.AuthenticationError{Err: err}
	}

	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: marshal: %v", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	glog.V(5).Infof("rest: %s %s -> %d (%d bytes)", method, path, resp.StatusCode, len(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &model.AuthenticationError{Err: httpErr}
		}
		return nil, httpErr
	}
	return body, nil
}
