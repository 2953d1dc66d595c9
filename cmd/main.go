// Package flexipay provides the API to manage pix deposits, withdrawals and balances.
package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/flexipay/flexipay/cmd/httpserver"
	"github.com/flexipay/flexipay/internal/middleware"
	"github.com/flexipay/flexipay/internal/notifier"
	"github.com/flexipay/flexipay/internal/sweeper"
	"github.com/flexipay/flexipay/internal/transactionrepo"
	"github.com/flexipay/flexipay/pkg/configpkg"
	"github.com/flexipay/flexipay/pkg/dbpkg"

	_ "github.com/lib/pq"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.GetLogger(config)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to database")
	}

	server, err := httpserver.New(db, logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()

	events := notifier.NewWebhook(config.UserNotifyURL, config.AdminNotifyURL)
	sweep := sweeper.New(transactionrepo.NewRepoPGS(db), server.Ledger, events,
		config.SweepInterval, config.StaleDepositAge, config.StalePayoutAge)

	go sweep.Run(ctx)

	logger.Info().Msg("FLEXIPAY API SERVER HAS STARTED")

	err = server.Engine.Run(config.ServerAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}
