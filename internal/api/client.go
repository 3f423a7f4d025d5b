package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/lms-exam-client/internal/model"
	"github.com/stemsi/lms-exam-client/internal/validator"
)

// Client talks to the LMS content service. All requests carry a JSON body
// and, once a token is set, a bearer Authorization header.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a content service client for the given base URL
// (e.g. http://localhost:8000/api/v1).
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// SetToken installs the bearer token used for all subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// detailBody is the error envelope the content service uses.
type detailBody struct {
	Detail string `json:"detail"`
}

// do performs one JSON round trip. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail detailBody
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		apiErr := &APIError{
			Status: resp.StatusCode,
			Code:   codeForStatus(resp.StatusCode),
			Detail: detail.Detail,
		}
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", string(apiErr.Code)).
			Msg("Request failed")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Login exchanges credentials for a bearer token and installs it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	var tok model.TokenResponse
	req := model.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &tok); err != nil {
		return nil, err
	}
	c.SetToken(tok.AccessToken)
	return &tok, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListCourses returns the dashboard course list.
func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var courses []model.Course
	if err := c.do(ctx, http.MethodGet, "/courses", nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// ListModules returns the modules of a course.
func (c *Client) ListModules(ctx context.Context, courseID string) ([]model.CourseModule, error) {
	var modules []model.CourseModule
	if err := c.do(ctx, http.MethodGet, "/courses/"+courseID+"/modules", nil, &modules); err != nil {
		return nil, err
	}
	return modules, nil
}

// GetModule returns one module.
func (c *Client) GetModule(ctx context.Context, moduleID string) (*model.CourseModule, error) {
	var mod model.CourseModule
	if err := c.do(ctx, http.MethodGet, "/modules/"+moduleID, nil, &mod); err != nil {
		return nil, err
	}
	return &mod, nil
}

// ListLessons returns the lessons of a module.
func (c *Client) ListLessons(ctx context.Context, moduleID string) ([]model.Lesson, error) {
	var lessons []model.Lesson
	if err := c.do(ctx, http.MethodGet, "/modules/"+moduleID+"/lessons", nil, &lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

// StartModule marks a module as started for progress tracking.
func (c *Client) StartModule(ctx context.Context, moduleID string) error {
	return c.do(ctx, http.MethodPost, "/modules/"+moduleID+"/start", nil, nil)
}

// FetchTest retrieves and validates the test definition for a module.
func (c *Client) FetchTest(ctx context.Context, moduleID string) (*model.TestDefinition, error) {
	var def model.TestDefinition
	if err := c.do(ctx, http.MethodGet, "/modules/"+moduleID+"/test", nil, &def); err != nil {
		return nil, err
	}
	if err := validator.Struct(&def); err != nil {
		return nil, fmt.Errorf("invalid test definition for module %s: %v",
			moduleID, validator.TranslateErrors(err))
	}
	if def.ModuleID == "" {
		def.ModuleID = moduleID
	}
	def.Normalize()
	return &def, nil
}

// SubmitTest sends a completed submission and returns the graded result.
func (c *Client) SubmitTest(ctx context.Context, moduleID string, sub *model.TestSubmission) (*model.TestResult, error) {
	var result model.TestResult
	if err := c.do(ctx, http.MethodPost, "/modules/"+moduleID+"/test/submit", sub, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TestResults returns past graded attempts for a module.
func (c *Client) TestResults(ctx context.Context, moduleID string) ([]model.TestResult, error) {
	var results []model.TestResult
	if err := c.do(ctx, http.MethodGet, "/modules/"+moduleID+"/test/results", nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}
