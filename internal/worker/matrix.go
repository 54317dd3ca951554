package worker

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const clientPrefix = "/_matrix/client/v3"

// matrixClient speaks the subset of the client-server API a bot needs.
type matrixClient struct {
	http   *resty.Client
	userID string
	token  string
}

func newMatrixClient(homeserver string, timeout time.Duration) *matrixClient {
	c := resty.New().
		SetBaseURL(strings.TrimSuffix(homeserver, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &matrixClient{http: c}
}

func (c *matrixClient) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx).SetError(&matrixError{})
	if c.token != "" {
		r.SetAuthToken(c.token)
	}
	return r
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsError() {
		return nil
	}
	if me, ok := res.Error().(*matrixError); ok && me != nil {
		me.Status = res.StatusCode()
		return me
	}
	return &matrixError{Status: res.StatusCode()}
}

func (c *matrixClient) login(ctx context.Context, user, password string) error {
	var out loginResponse
	res, err := c.request(ctx).
		SetBody(&loginRequest{
			Type:                     "m.login.password",
			Identifier:               loginIdentifier{Type: "m.id.user", User: user},
			Password:                 password,
			InitialDeviceDisplayName: "botmanager",
		}).
		SetResult(&out).
		Post(clientPrefix + "/login")
	if err := checkResponse(res, err); err != nil {
		return errors.Wrap(err, "login")
	}
	if out.AccessToken == "" {
		return errors.New("login: empty access token")
	}
	c.token = out.AccessToken
	c.userID = out.UserID
	if c.userID == "" {
		c.userID = user
	}
	return nil
}

func (c *matrixClient) sync(ctx context.Context, since string, timeout time.Duration) (*syncResponse, error) {
	var out syncResponse
	r := c.request(ctx).
		SetQueryParam("timeout", strconv.FormatInt(timeout.Milliseconds(), 10)).
		SetResult(&out)
	if since != "" {
		r.SetQueryParam("since", since)
	}
	res, err := r.Get(clientPrefix + "/sync")
	if err := checkResponse(res, err); err != nil {
		return nil, errors.Wrap(err, "sync")
	}
	return &out, nil
}

func (c *matrixClient) join(ctx context.Context, roomID string) error {
	res, err := c.request(ctx).
		SetBody(struct{}{}).
		Post(clientPrefix + "/join/" + url.PathEscape(roomID))
	if err := checkResponse(res, err); err != nil {
		return errors.Wrapf(err, "join %s", roomID)
	}
	return nil
}

func (c *matrixClient) sendText(ctx context.Context, roomID, body string) (string, error) {
	var out sendResponse
	path := clientPrefix + "/rooms/" + url.PathEscape(roomID) + "/send/m.room.message/" + url.PathEscape(uuid.NewString())
	res, err := c.request(ctx).
		SetBody(&messageContent{MsgType: "m.text", Body: body}).
		SetResult(&out).
		Put(path)
	if err := checkResponse(res, err); err != nil {
		return "", errors.Wrapf(err, "send to %s", roomID)
	}
	return out.EventID, nil
}
