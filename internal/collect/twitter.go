package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// DefaultTwitterEndpoint is the v1.1 standard search endpoint.
const DefaultTwitterEndpoint = "https://api.twitter.com/1.1/search/tweets.json"

// TwitterClient searches tweets with an OAuth 1.0a signed GET request.
type TwitterClient struct {
	endpoint string
	creds    *config.CredentialStore
	client   *http.Client
}

// NewTwitterClient creates a client for the given search endpoint.
func NewTwitterClient(endpoint string, creds *config.CredentialStore, timeout time.Duration) *TwitterClient {
	if endpoint == "" {
		endpoint = DefaultTwitterEndpoint
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TwitterClient{
		endpoint: endpoint,
		creds:    creds,
		client:   &http.Client{Timeout: timeout},
	}
}

// RequiredCredentials lists the four OAuth secrets.
func (c *TwitterClient) RequiredCredentials() []string {
	return config.SearchCredentialNames
}

// Search issues one request with q, lang and count parameters.
func (c *TwitterClient) Search(ctx context.Context, query, language string, limit int) ([]posts.Post, error) {
	if err := c.creds.Require(c.RequiredCredentials()...); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(limit)},
	}
	if language != "" {
		params.Set("lang", language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.signedClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	return decodeStatuses(resp.StatusCode, resp.Body)
}

func (c *TwitterClient) signedClient(ctx context.Context) *http.Client {
	key, _ := c.creds.Get(config.APIKey)
	secret, _ := c.creds.Get(config.APIKeySecret)
	token, _ := c.creds.Get(config.AccessToken)
	tokenSecret, _ := c.creds.Get(config.AccessTokenSecret)

	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.client)
	signed := oauth1.NewConfig(key, secret).Client(ctx, oauth1.NewToken(token, tokenSecret))
	signed.Timeout = c.client.Timeout
	return signed
}

// searchResponse mirrors the fields we need; pointers tell a missing key
// apart from an empty value.
type searchResponse struct {
	Statuses *[]struct {
		Text *string `json:"text"`
	} `json:"statuses"`
}

func decodeStatuses(status int, body io.Reader) ([]posts.Post, error) {
	var r searchResponse
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, &FetchError{StatusCode: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if r.Statuses == nil {
		return nil, &FetchError{StatusCode: status, Err: fmt.Errorf("%w: missing \"statuses\" list", ErrMalformedResponse)}
	}

	out := make([]posts.Post, 0, len(*r.Statuses))
	for i, s := range *r.Statuses {
		if s.Text == nil {
			return nil, &FetchError{StatusCode: status, Err: fmt.Errorf("%w: statuses[%d] has no \"text\"", ErrMalformedResponse, i)}
		}
		out = append(out, posts.Post{RawText: *s.Text})
	}
	return out, nil
}
