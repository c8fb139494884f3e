// Package learn is the HTTP client for the course platform.
package learn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/httpx"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 20 * time.Second

var (
	// ErrAuth indicates that the platform rejected the credentials.
	ErrAuth = errors.New("learn: authentication rejected")
	// ErrSessionExpired indicates that a listing call was refused for lack of a valid session.
	ErrSessionExpired = errors.New("learn: session expired")
	// ErrInvalidClientConfig indicates a missing base URL.
	ErrInvalidClientConfig = errors.New("learn: invalid client config")
)

// ClientConfig configures a platform Client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      httpx.RetryConfig
	Logger     *zap.Logger
}

// Client talks to the platform's JSON API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	retry      httpx.RetryConfig
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewClient validates cfg and returns a Client with its own cookie jar.
func NewClient(cfg ClientConfig) (*Client, error) {
	rawBase := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawBase == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidClientConfig)
	}
	baseURL, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Timeout: defaultRequestTimeout, Jar: jar}
	}

	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = httpx.DefaultRetryConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		retry:      retry,
		logger:     logger,
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login opens a session. Rejected credentials yield ErrAuth.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return err
	}

	var response loginResponse
	err = httpx.DoJSON(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "login"), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	}, &response, c.retry)
	if httpx.IsStatus(err, http.StatusUnauthorized) || httpx.IsStatus(err, http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if err != nil {
		return fmt.Errorf("learn: login: %w", err)
	}
	if strings.TrimSpace(response.Token) == "" {
		return fmt.Errorf("%w: empty session token", ErrAuth)
	}

	c.mu.Lock()
	c.token = response.Token
	c.mu.Unlock()
	return nil
}

type courseRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DownloadURL string `json:"downloadUrl"`
}

type homeworkRecord struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	URL          string           `json:"url"`
	Deadline     course.Timestamp `json:"deadline"`
	Submitted    bool             `json:"submitted"`
	GradeTime    course.Timestamp `json:"gradeTime"`
	Grade        *float64         `json:"grade"`
	GradeLevel   string           `json:"gradeLevel"`
	GradeContent string           `json:"gradeContent"`
}

type notificationRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// ListCourses returns the courses the user is enrolled in for semester.
func (c *Client) ListCourses(ctx context.Context, semester string) ([]course.CourseRef, error) {
	records, err := getList[courseRecord](ctx, c, "semesters", semester, "courses")
	if err != nil {
		return nil, err
	}

	refs := make([]course.CourseRef, 0, len(records))
	for _, record := range records {
		id, err := course.NewCourseID(record.ID)
		if err != nil {
			c.logger.Warn("skipping course with invalid id", zap.String("name", record.Name), zap.Error(err))
			continue
		}
		refs = append(refs, course.CourseRef{ID: id, Name: strings.TrimSpace(record.Name)})
	}
	return refs, nil
}

// ListFiles returns the files published in a course.
func (c *Client) ListFiles(ctx context.Context, courseID course.CourseID) ([]course.FileItem, error) {
	records, err := getList[fileRecord](ctx, c, "courses", courseID.String(), "files")
	if err != nil {
		return nil, err
	}
	files := make([]course.FileItem, 0, len(records))
	for _, record := range records {
		files = append(files, course.FileItem(record))
	}
	return files, nil
}

// ListAssignments returns the homework of a course with timestamps and grades normalized.
func (c *Client) ListAssignments(ctx context.Context, courseID course.CourseID) ([]course.Assignment, error) {
	records, err := getList[homeworkRecord](ctx, c, "courses", courseID.String(), "homeworks")
	if err != nil {
		return nil, err
	}
	assignments := make([]course.Assignment, 0, len(records))
	for _, record := range records {
		assignments = append(assignments, course.Assignment{
			ID:            record.ID,
			Title:         record.Title,
			URL:           record.URL,
			Deadline:      record.Deadline,
			Submitted:     record.Submitted,
			GradeTime:     record.GradeTime,
			Grade:         course.NewGrade(record.GradeLevel, record.Grade),
			GradeFeedback: strings.TrimSpace(record.GradeContent),
		})
	}
	return assignments, nil
}

// ListAnnouncements returns the notices of a course.
func (c *Client) ListAnnouncements(ctx context.Context, courseID course.CourseID) ([]course.Announcement, error) {
	records, err := getList[notificationRecord](ctx, c, "courses", courseID.String(), "notifications")
	if err != nil {
		return nil, err
	}
	announcements := make([]course.Announcement, 0, len(records))
	for _, record := range records {
		announcements = append(announcements, course.Announcement{
			ID:    record.ID,
			Title: record.Title,
			URL:   record.URL,
			Body:  record.Content,
		})
	}
	return announcements, nil
}

func getList[T any](ctx context.Context, c *Client, segments ...string) ([]T, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	endpoint := c.endpoint(append([]string{"api"}, segments...)...)
	var envelope listEnvelope[T]
	err := httpx.DoJSON(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		request.Header.Set("Accept", "application/json")
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
		return request, nil
	}, &envelope, c.retry)
	if httpx.IsStatus(err, http.StatusUnauthorized) {
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if err != nil {
		return nil, fmt.Errorf("learn: list %s: %w", strings.Join(segments, "/"), err)
	}
	return envelope.Data, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return c.baseURL.JoinPath(escaped...).String()
}
