package core

import (
	"context"

	"github.com/rs/zerolog"

	r "urs/data/repos"
	"urs/service/api"
	"urs/service/config"
)

type ServiceContext struct {
	Context context.Context
	Config  *config.Config
	Source  api.HistorySource
	Store   r.Store // nil runs without the price cache and run history
	Log     zerolog.Logger
}
