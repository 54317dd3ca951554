package worker

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	noAnswer     = "No response from the chatflow"
	failedAnswer = "Error processing request"
)

// upstream relays questions to a chatflow prediction endpoint.
type upstream struct {
	http *resty.Client
	url  string
}

func newUpstream(url string, timeout time.Duration) *upstream {
	return &upstream{
		http: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		url:  url,
	}
}

// ask returns the text to post back for body. Failures become a reply
// text as well; err is non-nil only so the caller can log it.
func (u *upstream) ask(ctx context.Context, body string) (string, error) {
	var out prediction
	res, err := u.http.R().
		SetContext(ctx).
		SetBody(&question{Question: body}).
		SetResult(&out).
		Post(u.url)
	if err != nil {
		return failedAnswer, err
	}
	if res.StatusCode() != http.StatusOK {
		return "Chatflow error: " + strconv.Itoa(res.StatusCode()), nil
	}
	if out.Text == "" {
		return noAnswer, nil
	}
	return out.Text, nil
}
