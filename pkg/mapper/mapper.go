package mapper

import (
	"github.com/tgdrive/botmanager/internal/supervisor"
	"github.com/tgdrive/botmanager/pkg/models"
	"github.com/tgdrive/botmanager/pkg/types"
)

func ToBotOut(bot *models.Bot, proc *supervisor.Process) *types.BotResponse {
	out := &types.BotResponse{
		BotID:         bot.BotID,
		HomeserverURL: bot.HomeserverURL,
		AccountID:     bot.AccountID,
		UpstreamURL:   bot.UpstreamURL,
		Status:        string(bot.Status),
		CreatedAt:     bot.CreatedAt,
		UpdatedAt:     bot.UpdatedAt,
	}
	if proc != nil {
		out.Process = &types.ProcessInfo{
			PID:       proc.PID,
			RunID:     proc.RunID,
			StartedAt: proc.StartedAt,
		}
	}
	return out
}

// ToBotsOut attaches live process info from procs by bot id.
func ToBotsOut(bots []models.Bot, procs []supervisor.Process) []types.BotResponse {
	byID := make(map[string]*supervisor.Process, len(procs))
	for i := range procs {
		byID[procs[i].BotID] = &procs[i]
	}
	out := make([]types.BotResponse, 0, len(bots))
	for i := range bots {
		out = append(out, *ToBotOut(&bots[i], byID[bots[i].BotID]))
	}
	return out
}

func ToUserOut(user *models.User) *types.UserResponse {
	return &types.UserResponse{
		Username:  user.Username,
		UserType:  string(user.UserType),
		IsAdmin:   user.IsAdmin,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func ToUsersOut(users []models.User) []types.UserResponse {
	out := make([]types.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, *ToUserOut(&users[i]))
	}
	return out
}
