// Package moodle is a client for the Moodle webservice REST protocol.
package moodle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"moodle-notifier/pkg/digest"
)

// DefaultMessageLimit is how many unread messages are fetched per user.
const DefaultMessageLimit = 10

// StatusError indicates a non-2xx HTTP response from the webservice endpoint.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsStatusError checks if an error is an HTTP status error.
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// APIError indicates the webservice answered with a logical error payload
// (invalid token, unknown function, malformed query).
type APIError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moodle %s (%s): %s", e.Exception, e.ErrorCode, e.Message)
}

// IsAPIError checks if an error is a webservice-level error.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Client calls the Moodle webservice REST endpoint. Every call either
// returns a well-formed result or a terminal error; there is no retry and
// no pagination - a failed call aborts the whole aggregation run.
type Client struct {
	client       *http.Client
	logger       *slog.Logger
	restURL      string
	token        string
	messageLimit int
}

// New creates a new Moodle webservice client.
func New(restURL, token string, client *http.Client, logger *slog.Logger) *Client {
	return &Client{
		client:       client,
		logger:       logger,
		restURL:      restURL,
		token:        token,
		messageLimit: DefaultMessageLimit,
	}
}

// WithMessageLimit overrides the unread-message fetch limit.
func (c *Client) WithMessageLimit(limit int) *Client {
	if limit > 0 {
		c.messageLimit = limit
	}
	return c
}

// call performs one GET against the webservice endpoint and decodes the
// JSON response into out.
func (c *Client) call(ctx context.Context, wsfunction string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("wstoken", c.token)
	params.Set("wsfunction", wsfunction)
	params.Set("moodlewsrestformat", "json")

	reqURL := c.restURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Webservice request starting", "wsfunction", wsfunction)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		return fmt.Errorf("webservice request %s: %w", wsfunction, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Debug("Webservice request completed",
		"wsfunction", wsfunction,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: c.restURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	// The webservice reports logical failures as a JSON object with an
	// "exception" field, regardless of what shape a successful response
	// would have. Probe for it before decoding the real payload.
	var fault APIError
	if json.Unmarshal(body, &fault) == nil && fault.Exception != "" {
		c.logger.Error("Webservice reported an exception",
			"wsfunction", wsfunction,
			"exception", fault.Exception,
			"errorcode", fault.ErrorCode,
			"message", fault.Message)
		return &fault
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", wsfunction, err)
	}

	return nil
}

type wireCourse struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullname"`
}

type wireForum struct {
	ID     int64  `json:"id"`
	Course int64  `json:"course"`
	Type   string `json:"type"`
}

type wireDiscussion struct {
	FirstUserFullName string `json:"firstuserfullname"`
	Subject           string `json:"subject"`
	TimeModified      int64  `json:"timemodified"` // unix seconds
}

type wireEnrolledUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
}

type wireMessage struct {
	ID               int64  `json:"id"`
	UserFromFullName string `json:"userfromfullname"`
	UserToFullName   string `json:"usertofullname"`
	Subject          string `json:"subject"`
	TimeCreated      int64  `json:"timecreated"` // unix seconds
}

type wireMessages struct {
	Messages []wireMessage `json:"messages"`
}

// Courses lists all courses visible to the service credential.
func (c *Client) Courses(ctx context.Context) ([]digest.Course, error) {
	var raw []wireCourse
	if err := c.call(ctx, "core_course_get_courses", nil, &raw); err != nil {
		return nil, err
	}

	courses := make([]digest.Course, 0, len(raw))
	for _, item := range raw {
		courses = append(courses, digest.Course{ID: item.ID, FullName: item.FullName})
	}
	return courses, nil
}

// Forums lists the forums of one course.
func (c *Client) Forums(ctx context.Context, courseID int64) ([]digest.Forum, error) {
	params := url.Values{}
	params.Set("courseids[0]", strconv.FormatInt(courseID, 10))

	var raw []wireForum
	if err := c.call(ctx, "mod_forum_get_forums_by_courses", params, &raw); err != nil {
		return nil, err
	}

	forums := make([]digest.Forum, 0, len(raw))
	for _, item := range raw {
		forums = append(forums, digest.Forum{ID: item.ID, CourseID: item.Course, Type: item.Type})
	}
	return forums, nil
}

// Discussions lists the discussions of one forum.
func (c *Client) Discussions(ctx context.Context, forumID int64) ([]digest.Discussion, error) {
	params := url.Values{}
	params.Set("forumids[0]", strconv.FormatInt(forumID, 10))

	var raw []wireDiscussion
	if err := c.call(ctx, "mod_forum_get_forum_discussions", params, &raw); err != nil {
		return nil, err
	}

	discussions := make([]digest.Discussion, 0, len(raw))
	for _, item := range raw {
		discussions = append(discussions, digest.Discussion{
			Author:   item.FirstUserFullName,
			Subject:  item.Subject,
			Modified: time.Unix(item.TimeModified, 0),
		})
	}
	return discussions, nil
}

// EnrolledUsers lists the enrollment roster of one course.
func (c *Client) EnrolledUsers(ctx context.Context, courseID int64) ([]digest.EnrolledUser, error) {
	params := url.Values{}
	params.Set("courseid", strconv.FormatInt(courseID, 10))

	var raw []wireEnrolledUser
	if err := c.call(ctx, "core_enrol_get_enrolled_users", params, &raw); err != nil {
		return nil, err
	}

	users := make([]digest.EnrolledUser, 0, len(raw))
	for _, item := range raw {
		users = append(users, digest.EnrolledUser{ID: item.ID, Email: item.Email, FullName: item.FullName})
	}
	return users, nil
}

// UnreadMessages lists a user's unread private messages, newest first, up
// to the configured fetch limit.
func (c *Client) UnreadMessages(ctx context.Context, userID int64) ([]digest.Message, error) {
	params := url.Values{}
	params.Set("useridto", strconv.FormatInt(userID, 10))
	params.Set("read", "0")
	params.Set("newestfirst", "1")
	params.Set("limitnum", strconv.Itoa(c.messageLimit))

	var raw wireMessages
	if err := c.call(ctx, "core_message_get_messages", params, &raw); err != nil {
		return nil, err
	}

	messages := make([]digest.Message, 0, len(raw.Messages))
	for _, item := range raw.Messages {
		messages = append(messages, digest.Message{
			ID:      item.ID,
			From:    item.UserFromFullName,
			To:      item.UserToFullName,
			Subject: item.Subject,
			Created: time.Unix(item.TimeCreated, 0),
		})
	}
	return messages, nil
}
