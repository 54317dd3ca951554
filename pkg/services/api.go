package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/logging"
	"github.com/tgdrive/botmanager/internal/middleware"
	"github.com/tgdrive/botmanager/internal/middleware/handler"
	"github.com/tgdrive/botmanager/internal/registrar"
	"github.com/tgdrive/botmanager/internal/store"
	"github.com/tgdrive/botmanager/internal/supervisor"
	"github.com/tgdrive/botmanager/internal/version"
	"github.com/tgdrive/botmanager/pkg/models"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// BotSupervisor is the subset of *supervisor.Supervisor the API drives.
type BotSupervisor interface {
	Start(ctx context.Context, botID string) (*supervisor.Process, error)
	Stop(ctx context.Context, botID string) error
	Restart(ctx context.Context, botID string) (*supervisor.Process, error)
	Status(ctx context.Context, botID string) (models.BotStatus, error)
	Inspect(ctx context.Context, botID string) (*models.Bot, *supervisor.Process, error)
	Delete(ctx context.Context, botID string) error
	List(ctx context.Context) ([]models.Bot, error)
	Processes() []supervisor.Process
}

type apiService struct {
	store     store.Store
	sup       BotSupervisor
	registrar registrar.Registrar
	cnf       *config.ServerCmdConfig
	validate  *validator.Validate
	now       func() time.Time
}

func NewApiService(st store.Store,
	sup BotSupervisor,
	reg registrar.Registrar,
	cnf *config.ServerCmdConfig) *apiService {
	if reg == nil {
		reg = registrar.Nop()
	}
	return &apiService{
		store:     st,
		sup:       sup,
		registrar: reg,
		cnf:       cnf,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// Routes returns the handler served under /api.
func (a *apiService) Routes() chi.Router {
	r := chi.NewRouter()
	// Set before mounting so subrouters inherit them.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, http.StatusNotFound, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, http.StatusMethodNotAllowed, "")
	})

	r.Get("/version", handler.Handle(a.VersionVersion))
	r.With(middleware.RateLimit(rate.Limit(a.cnf.Auth.LoginRate), a.cnf.Auth.LoginBurst)).
		Post("/auth/login", handler.Handle(a.AuthLogin))

	r.Group(func(r chi.Router) {
		if a.cnf.Auth.AdminSecret != "" {
			r.Use(middleware.Authenticate(a.cnf.Auth.JWTSecret))
		}
		r.Route("/bots", func(r chi.Router) {
			r.Post("/", handler.Handle(a.BotsCreate))
			r.Get("/", handler.Handle(a.BotsList))
			r.Route("/{botID}", func(r chi.Router) {
				r.Get("/", handler.Handle(a.BotsGet))
				r.Delete("/", handler.Handle(a.BotsDelete))
				r.Post("/start", handler.Handle(a.BotsStart))
				r.Post("/stop", handler.Handle(a.BotsStop))
				r.Post("/restart", handler.Handle(a.BotsRestart))
				r.Get("/status", handler.Handle(a.BotsStatus))
				r.Get("/logs", handler.Handle(a.BotsLogs))
			})
		})
		r.Route("/users", func(r chi.Router) {
			r.Post("/", handler.Handle(a.UsersCreate))
			r.Get("/", handler.Handle(a.UsersList))
		})
	})

	return r
}

func (a *apiService) VersionVersion(r *http.Request) *handler.Response {
	return handler.OK(version.GetVersionInfo())
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *apiService) decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &apiError{err: errors.Wrap(err, "invalid request body"), code: http.StatusBadRequest}
	}
	if err := a.validate.Struct(v); err != nil {
		return &apiError{err: err, code: http.StatusBadRequest}
	}
	return nil
}

func (a *apiService) fail(r *http.Request, err error) *handler.Response {
	return handler.Err(a.NewError(r.Context(), err))
}

// NewError maps err onto the API error taxonomy.
func (a *apiService) NewError(ctx context.Context, err error) *handler.ErrorResponse {
	var (
		code       = http.StatusInternalServerError
		message    = http.StatusText(code)
		apiErr     *apiError
		launchErr  *supervisor.LaunchError
		termErr    *supervisor.TerminationError
		regErr     *registrar.Error
		validation validator.ValidationErrors
	)
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code()
		message = apiErr.Error()
		if errors.As(apiErr.err, &validation) {
			message = validationMessage(validation)
		}
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, store.ErrDuplicateKey),
		errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNotRunning):
		code = http.StatusConflict
		message = err.Error()
	case errors.As(err, &launchErr), errors.As(err, &regErr):
		code = http.StatusBadGateway
		message = err.Error()
	case errors.As(err, &termErr):
		message = err.Error()
	}
	if code >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("api error", zap.Int("code", code), zap.Error(err))
	}
	return handler.NewError(code, message)
}

type apiError struct {
	err  error
	code int
}

func (a apiError) Error() string {
	return a.err.Error()
}

func (a *apiError) Code() int {
	if a.code == 0 {
		return http.StatusInternalServerError
	}
	return a.code
}

func (a *apiError) Unwrap() error {
	return a.err
}

var (
	_ error         = apiError{}
	_ BotSupervisor = (*supervisor.Supervisor)(nil)
)
