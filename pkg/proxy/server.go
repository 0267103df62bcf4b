package proxy

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowscribe/pkg/otelhelper"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

const defaultUpstreamTimeout = 60 * time.Second

type Server struct {
	apiKey    string
	tagFilter string
	validate  *validator.Validate
	upstream  *upstream
	logger    *slog.Logger
}

type Option func(*Server)

// WithAPIKey requires every API call to carry "Authorization: Bearer key".
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithTagFilter sets the tag a definition needs to be listed. An empty
// filter lists every definition.
func WithTagFilter(tag string) Option {
	return func(s *Server) {
		s.tagFilter = strings.TrimSpace(tag)
	}
}

func WithOpenRouterURL(url string) Option {
	return func(s *Server) {
		s.upstream.openRouterURL = url
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) {
		s.upstream.httpClient = client
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.upstream.tracer = tracer
	}
}

func New(logger *slog.Logger, opts ...Option) *Server {
	logger = logger.With("module", "proxy")

	server := &Server{
		tagFilter: DefaultTagFilter,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		upstream: &upstream{
			httpClient:    &http.Client{Timeout: defaultUpstreamTimeout},
			openRouterURL: DefaultOpenRouterURL,
			tracer:        otelhelper.Noop("proxy"),
			logger:        logger,
		},
		logger: logger,
	}

	for _, opt := range opts {
		opt(server)
	}

	return server
}

func (s *Server) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowscribe proxy")
	})

	api := app.Group("", s.requireAPIKey)
	api.Post("/validate-config", s.ValidateConfig)
	api.Post("/n8n-api", s.N8nAPI)

	return app
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	app := s.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(addr)
	}()

	s.logger.InfoContext(ctx, "Proxy listening", "addr", addr, "tag_filter", s.tagFilter, "auth", s.apiKey != "")

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "Shutting down proxy")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	}
}

func (s *Server) requireAPIKey(c fiber.Ctx) error {
	if s.apiKey == "" {
		return c.Next()
	}

	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
		return unauthorized(c)
	}

	return c.Next()
}

// ValidateConfig probes whichever credential pairs the request carries.
func (s *Server) ValidateConfig(c fiber.Ctx) error {
	var req ValidateConfigRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	ctx := c.Context()

	var response ValidateConfigResponse

	if req.OpenRouterKey != "" {
		side := s.upstream.probeOpenRouter(ctx, req.OpenRouterKey, req.Model)
		response.OpenRouter = &side
	}

	if req.N8nBaseURL != "" && req.N8nAPIKey != "" {
		side := s.upstream.probeN8n(ctx, req.N8nBaseURL, req.N8nAPIKey)
		response.N8n = &side
	}

	return c.JSON(response)
}

// N8nAPI relays a call to the automation server and normalizes its reply.
func (s *Server) N8nAPI(c fiber.Ctx) error {
	var req N8nAPIRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if strings.TrimSpace(req.N8nBaseURL) == "" || strings.TrimSpace(req.N8nAPIKey) == "" {
		return badRequest(c, "n8n credentials not provided")
	}

	req.Method = strings.ToUpper(req.Method)

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	ctx := c.Context()

	status, body, err := s.upstream.forward(ctx, req)
	if err != nil {
		return badGateway(c, err)
	}

	if status < 200 || status >= 300 {
		s.logger.WarnContext(ctx, "n8n error response", "endpoint", req.Endpoint, "status", status)

		return upstreamError(c, status, body)
	}

	data, err := normalize(req.Endpoint, body, s.tagFilter)
	if err != nil {
		return badGateway(c, err)
	}

	payload, err := json.Marshal(relayResponse{Data: data})
	if err != nil {
		return badGateway(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(payload)
}
