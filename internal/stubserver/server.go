// Package stubserver is a self-contained stand-in for the LMS content
// service, used for local development and end-to-end runs of the exam
// client. It mirrors the production wire format (JSON bodies, bearer auth,
// FastAPI-style {"detail": ...} errors) over in-memory state.
package stubserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-exam-client/internal/model"
)

const tokenTTL = 24 * time.Hour

// account is one registered user.
type account struct {
	user     model.User
	password string
}

// testFixture pairs the served definition with the grading key that is
// never sent to clients.
type testFixture struct {
	def     model.TestDefinition
	correct map[string]correctAnswer
}

// Server holds all in-memory state.
type Server struct {
	log    zerolog.Logger
	secret []byte

	mu       sync.Mutex
	accounts map[string]*account // by email
	courses  []model.Course
	modules  map[string][]model.CourseModule // by course id
	tests    map[string]*testFixture        // by module id
	attempts map[string][]model.TestResult  // by user id + module id
}

// New builds a server preloaded with the demo fixture.
func New(log zerolog.Logger) *Server {
	s := &Server{
		log:      log.With().Str("component", "stub_server").Logger(),
		secret:   []byte("stub-server-signing-key"),
		accounts: make(map[string]*account),
		modules:  make(map[string][]model.CourseModule),
		tests:    make(map[string]*testFixture),
		attempts: make(map[string][]model.TestResult),
	}
	s.loadFixture()
	return s
}

// Router assembles the gin engine. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", s.handleLogin)
	v1.POST("/auth/register", s.handleRegister)

	authed := v1.Group("")
	authed.Use(s.requireAuth)
	authed.GET("/auth/me", s.handleMe)
	authed.GET("/courses", s.handleCourses)
	authed.GET("/courses/:courseId/modules", s.handleModules)
	authed.GET("/modules/:moduleId", s.handleModule)
	authed.POST("/modules/:moduleId/start", s.handleStartModule)
	authed.GET("/modules/:moduleId/test", s.handleGetTest)
	authed.POST("/modules/:moduleId/test/submit", s.handleSubmitTest)
	authed.GET("/modules/:moduleId/test/results", s.handleTestResults)

	return r
}

// fail writes the production error envelope.
func fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// issueToken signs a short-lived HS256 token for a user.
func (s *Server) issueToken(userID uuid.UUID, email string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    "lms-stub-server",
		Audience:  jwt.ClaimStrings{email},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// requireAuth validates the bearer token and stashes the account.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		fail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		fail(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	s.mu.Lock()
	var acct *account
	for _, a := range s.accounts {
		if a.user.ID.String() == claims.Subject {
			acct = a
			break
		}
	}
	s.mu.Unlock()

	if acct == nil {
		fail(c, http.StatusUnauthorized, "Unknown account")
		return
	}
	c.Set("account", acct)
	c.Next()
}

func currentAccount(c *gin.Context) *account {
	v, _ := c.Get("account")
	acct, _ := v.(*account)
	return acct
}

func (s *Server) handleLogin(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || acct.password != req.Password {
		fail(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := s.issueToken(acct.user.ID, acct.user.Email)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Token signing failed")
		return
	}
	c.JSON(http.StatusOK, model.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	email := strings.ToLower(req.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[email]; exists {
		fail(c, http.StatusConflict, "Email already registered")
		return
	}
	acct := &account{
		user: model.User{
			ID:       uuid.New(),
			Email:    email,
			FullName: req.FullName,
			Role:     "student",
		},
		password: req.Password,
	}
	s.accounts[email] = acct
	c.JSON(http.StatusCreated, acct.user)
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentAccount(c).user)
}

func (s *Server) handleCourses(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.courses)
}

func (s *Server) handleModules(c *gin.Context) {
	s.mu.Lock()
	modules, ok := s.modules[c.Param("courseId")]
	s.mu.Unlock()
	if !ok {
		fail(c, http.StatusNotFound, "Course not found")
		return
	}
	c.JSON(http.StatusOK, modules)
}

func (s *Server) findModule(id string) *model.CourseModule {
	for _, mods := range s.modules {
		for i := range mods {
			if mods[i].ID == id {
				return &mods[i]
			}
		}
	}
	return nil
}

func (s *Server) handleModule(c *gin.Context) {
	s.mu.Lock()
	mod := s.findModule(c.Param("moduleId"))
	s.mu.Unlock()
	if mod == nil {
		fail(c, http.StatusNotFound, "Module not found")
		return
	}
	c.JSON(http.StatusOK, mod)
}

func (s *Server) handleStartModule(c *gin.Context) {
	s.mu.Lock()
	mod := s.findModule(c.Param("moduleId"))
	s.mu.Unlock()
	if mod == nil {
		fail(c, http.StatusNotFound, "Module not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// handleGetTest serves the definition without the grading key. Explanations
// stay server-side until the attempt is graded.
func (s *Server) handleGetTest(c *gin.Context) {
	moduleID := c.Param("moduleId")
	s.mu.Lock()
	fixture, ok := s.tests[moduleID]
	s.mu.Unlock()
	if !ok {
		fail(c, http.StatusNotFound, "Test not found")
		return
	}

	out := fixture.def
	out.Questions = make([]model.Question, len(fixture.def.Questions))
	copy(out.Questions, fixture.def.Questions)
	for i := range out.Questions {
		out.Questions[i].Explanation = ""
	}
	c.JSON(http.StatusOK, out)
}

func attemptKey(userID uuid.UUID, moduleID string) string {
	return userID.String() + "/" + moduleID
}

func (s *Server) handleSubmitTest(c *gin.Context) {
	moduleID := c.Param("moduleId")
	acct := currentAccount(c)

	var sub model.TestSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fixture, ok := s.tests[moduleID]
	if !ok {
		fail(c, http.StatusNotFound, "Test not found")
		return
	}

	key := attemptKey(acct.user.ID, moduleID)
	if max := fixture.def.Settings.MaxAttempts; max != nil && len(s.attempts[key]) >= *max {
		fail(c, http.StatusConflict, "Maximum attempts exceeded")
		return
	}

	result := grade(fixture, &sub)
	s.attempts[key] = append(s.attempts[key], result)

	s.log.Info().
		Str("module_id", moduleID).
		Str("user", acct.user.Email).
		Float64("score", result.Score).
		Bool("passed", result.Passed).
		Msg("Attempt graded")
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTestResults(c *gin.Context) {
	moduleID := c.Param("moduleId")
	acct := currentAccount(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[moduleID]; !ok {
		fail(c, http.StatusNotFound, "Test not found")
		return
	}
	results := s.attempts[attemptKey(acct.user.ID, moduleID)]
	if results == nil {
		results = []model.TestResult{}
	}
	c.JSON(http.StatusOK, results)
}
