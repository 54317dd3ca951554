package services

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/tgdrive/botmanager/internal/middleware/handler"
	"github.com/tgdrive/botmanager/internal/supervisor"
	"github.com/tgdrive/botmanager/pkg/mapper"
	"github.com/tgdrive/botmanager/pkg/models"
	"github.com/tgdrive/botmanager/pkg/types"
)

const (
	defaultTailLines = 100
	maxTailLines     = 5000
	maxTailBytes     = 4 << 20
)

func botID(r *http.Request) string {
	return chi.URLParam(r, "botID")
}

func (a *apiService) BotsCreate(r *http.Request) *handler.Response {
	var req types.CreateBotRequest
	if err := a.decode(r, &req); err != nil {
		return a.fail(r, err)
	}
	bot, err := a.store.CreateBot(r.Context(), &models.Bot{
		BotID:         req.BotID,
		HomeserverURL: req.HomeserverURL,
		AccountID:     req.AccountID,
		AccountSecret: req.AccountSecret,
		UpstreamURL:   req.UpstreamURL,
	})
	if err != nil {
		return a.fail(r, err)
	}
	return handler.Created(mapper.ToBotOut(bot, nil))
}

func (a *apiService) BotsList(r *http.Request) *handler.Response {
	bots, err := a.sup.List(r.Context())
	if err != nil {
		return a.fail(r, err)
	}
	return handler.OK(mapper.ToBotsOut(bots, a.sup.Processes()))
}

func (a *apiService) BotsGet(r *http.Request) *handler.Response {
	bot, proc, err := a.sup.Inspect(r.Context(), botID(r))
	if err != nil {
		return a.fail(r, err)
	}
	return handler.OK(mapper.ToBotOut(bot, proc))
}

func (a *apiService) BotsDelete(r *http.Request) *handler.Response {
	if err := a.sup.Delete(r.Context(), botID(r)); err != nil {
		return a.fail(r, err)
	}
	return handler.NoContent()
}

func (a *apiService) BotsStart(r *http.Request) *handler.Response {
	proc, err := a.sup.Start(r.Context(), botID(r))
	if err != nil {
		return a.fail(r, err)
	}
	return a.inspect(r, proc)
}

func (a *apiService) BotsStop(r *http.Request) *handler.Response {
	if err := a.sup.Stop(r.Context(), botID(r)); err != nil {
		return a.fail(r, err)
	}
	return a.inspect(r, nil)
}

func (a *apiService) BotsRestart(r *http.Request) *handler.Response {
	proc, err := a.sup.Restart(r.Context(), botID(r))
	if err != nil {
		return a.fail(r, err)
	}
	return a.inspect(r, proc)
}

// inspect answers a lifecycle call with the record as it stands now.
// proc is the process the call started, if any.
func (a *apiService) inspect(r *http.Request, proc *supervisor.Process) *handler.Response {
	bot, err := a.store.GetBot(r.Context(), botID(r))
	if err != nil {
		return a.fail(r, err)
	}
	return handler.OK(mapper.ToBotOut(bot, proc))
}

func (a *apiService) BotsStatus(r *http.Request) *handler.Response {
	id := botID(r)
	status, err := a.sup.Status(r.Context(), id)
	if err != nil {
		return a.fail(r, err)
	}
	return handler.OK(&types.StatusResponse{BotID: id, Status: string(status)})
}

func (a *apiService) BotsLogs(r *http.Request) *handler.Response {
	id := botID(r)
	n := defaultTailLines
	if v := r.URL.Query().Get("tail"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxTailLines {
			return a.fail(r, &apiError{
				err:  errors.Errorf("tail must be between 1 and %d", maxTailLines),
				code: http.StatusBadRequest,
			})
		}
		n = parsed
	}
	if _, err := a.store.GetBot(r.Context(), id); err != nil {
		return a.fail(r, err)
	}
	lines, err := supervisor.TailLog(supervisor.LogPath(a.cnf.Supervisor.LogsDir, id), n, maxTailBytes)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return a.fail(r, errors.Wrap(err, "read log"))
		}
		lines = []string{}
	}
	return handler.OK(&types.LogsResponse{BotID: id, Lines: lines})
}
