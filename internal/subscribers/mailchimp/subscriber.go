// Package mailchimp manages MailChimp audience members through the
// Marketing API v3.
package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5" // #nosec G501 -- MailChimp identifies members by the MD5 of the address
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lattiq/courier/internal/core"
	"github.com/lattiq/courier/internal/version"
)

// Name is the driver identifier.
const Name = "mailchimp"

// Member statuses.
const (
	StatusSubscribed   = "subscribed"
	StatusPending      = "pending"
	StatusUnsubscribed = "unsubscribed"
)

// FieldNames are MailChimp's default merge tags.
var FieldNames = core.FieldNames{
	Organization: "ORG",
	FirstName:    "FNAME",
	LastName:     "LNAME",
	Phone:        "PHONE",
	Address:      "ADDRESS",
	Address1:     "addr1",
	Address2:     "addr2",
	City:         "city",
	State:        "state",
	PostalCode:   "zip",
	Country:      "country",
}

// Subscriber implements the subscription driver contract for MailChimp
// audiences. The mailing list is the audience name; its id is looked up on
// first use.
type Subscriber struct {
	core.Subscription

	httpClient  *http.Client
	baseURL     string
	apiKey      string
	doubleOptIn bool
	userAgent   string
	logger      *slog.Logger

	listName string
	listID   string
}

// NewSubscriber creates a MailChimp subscriber. The API key comes from the
// "api_key" setting or the credentials password; its "-dcN" suffix selects
// the data center unless "base_url" is set. "double_optin" defaults to true.
func NewSubscriber(cfg core.DriverConfig) (*Subscriber, error) {
	apiKey := cfg.Settings.Get("api_key")
	if apiKey == "" && cfg.Credentials != nil {
		apiKey = cfg.Credentials.Password()
	}
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "MailChimp API key is required")
	}

	baseURL := cfg.Settings.Get("base_url")
	if baseURL == "" {
		i := strings.LastIndex(apiKey, "-")
		if i < 0 || i == len(apiKey)-1 {
			return nil, core.NewValidationError("api_key", "MailChimp API key has no data center suffix")
		}
		baseURL = "https://" + apiKey[i+1:] + ".api.mailchimp.com/3.0"
	}

	timeout := 30 * time.Second
	if raw := cfg.Settings.Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, core.NewValidationErrorWithValue("timeout", "invalid duration", raw)
		}
		timeout = d
	}

	s := &Subscriber{
		Subscription: core.NewSubscription(),
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		doubleOptIn:  cfg.Settings.GetOr("double_optin", "true") == "true",
		userAgent:    version.UserAgent(),
		logger:       cfg.Log().With(slog.String("driver", Name)),
	}
	s.SetMailingList(cfg.Settings.Get("mailing_list"))
	return s, nil
}

// WithHTTPClient replaces the HTTP client, used for testing.
func (s *Subscriber) WithHTTPClient(c *http.Client) *Subscriber {
	s.httpClient = c
	return s
}

// FieldNames returns MailChimp's merge tags.
func (s *Subscriber) FieldNames() core.FieldNames {
	return FieldNames
}

// SetMailingList selects the audience by name.
func (s *Subscriber) SetMailingList(list string) {
	s.Subscription.SetMailingList(list)
	if s.List != s.listName {
		s.listName, s.listID = s.List, ""
	}
}

// Subscribe adds the member. Without force an existing member is an error;
// with force the member is created or updated and marked subscribed.
func (s *Subscriber) Subscribe(ctx context.Context, force bool) bool {
	if !s.Validate("subscribe") {
		return false
	}
	listID, ok := s.resolveList(ctx, "subscribe")
	if !ok {
		return false
	}

	body := member{
		EmailAddress: s.Email,
		EmailType:    s.Format,
		MergeFields:  s.Fields,
	}

	var err error
	if force {
		body.Status = StatusSubscribed
		body.StatusIfNew = StatusSubscribed
		err = s.do(ctx, http.MethodPut, "/lists/"+listID+"/members/"+hash(s.Email), body, nil)
	} else {
		body.Status = StatusSubscribed
		// MailChimp sends its confirmation mail only to pending members.
		if s.doubleOptIn || s.Notify {
			body.Status = StatusPending
		}
		err = s.do(ctx, http.MethodPost, "/lists/"+listID+"/members", body, nil)
	}
	if err != nil {
		s.fail(err)
		return false
	}

	s.Succeed()
	return true
}

// Unsubscribe permanently deletes the member when remove is set, otherwise
// marks it unsubscribed.
func (s *Subscriber) Unsubscribe(ctx context.Context, remove bool) bool {
	if !s.Validate("unsubscribe") {
		return false
	}
	listID, ok := s.resolveList(ctx, "unsubscribe")
	if !ok {
		return false
	}

	path := "/lists/" + listID + "/members/" + hash(s.Email)
	var err error
	if remove {
		err = s.do(ctx, http.MethodPost, path+"/actions/delete-permanent", nil, nil)
	} else {
		err = s.do(ctx, http.MethodPatch, path, member{Status: StatusUnsubscribed}, nil)
	}
	if err != nil {
		s.fail(err)
		return false
	}

	s.Succeed()
	return true
}

func (s *Subscriber) resolveList(ctx context.Context, verb string) (string, bool) {
	if s.listID != "" {
		return s.listID, true
	}

	var out struct {
		Lists []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"lists"`
	}
	query := url.Values{"count": {"1000"}, "fields": {"lists.id,lists.name"}}
	if err := s.do(ctx, http.MethodGet, "/lists?"+query.Encode(), nil, &out); err != nil {
		s.fail(err)
		return "", false
	}

	for _, l := range out.Lists {
		if l.Name == s.listName {
			s.listID = l.ID
			return l.ID, true
		}
	}

	s.Fail("Failed to "+verb+" because mailing list "+s.listName+" does not exist.", http.StatusNotFound)
	return "", false
}

type member struct {
	EmailAddress string           `json:"email_address,omitempty"`
	Status       string           `json:"status,omitempty"`
	StatusIfNew  string           `json:"status_if_new,omitempty"`
	EmailType    string           `json:"email_type,omitempty"`
	MergeFields  core.MergeFields `json:"merge_fields,omitempty"`
}

// apiError is MailChimp's problem document.
type apiError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return e.Title + ": " + e.Detail
}

func (s *Subscriber) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth("courier", s.apiKey)
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Title == "" {
			apiErr.Title = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (s *Subscriber) fail(err error) {
	s.logger.Debug("mailchimp request failed", slog.String("list", s.listName), slog.Any("error", err))
	code := 0
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		code = apiErr.Status
	}
	s.Fail(err.Error(), code)
}

func hash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email))) // #nosec G401
	return hex.EncodeToString(sum[:])
}
