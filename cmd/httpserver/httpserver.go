// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/internal/accountrepo"
	"github.com/flexipay/flexipay/internal/feepolicy"
	"github.com/flexipay/flexipay/internal/gateway"
	"github.com/flexipay/flexipay/internal/ledgerdelivery"
	"github.com/flexipay/flexipay/internal/ledgerservice"
	"github.com/flexipay/flexipay/internal/middleware"
	"github.com/flexipay/flexipay/internal/notifier"
	"github.com/flexipay/flexipay/internal/transactionrepo"
	"github.com/flexipay/flexipay/pkg/configpkg"
	"github.com/flexipay/flexipay/pkg/tokenpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB     *sql.DB
	Engine *gin.Engine
	Config configpkg.Config
	Ledger *ledgerservice.Service
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	accountRepo := accountrepo.NewRepoPGS(conn)
	transactionRepo := transactionrepo.NewRepoPGS(conn)

	tokenMaker, err := tokenpkg.NewJWTMaker(config.AdminTokenSymmetricKey)
	if err != nil {
		return nil, errors.New("cannot create token maker")
	}

	fees, err := feepolicy.New(config.DepositFeeRate, config.WithdrawalFeeRate, config.WithdrawalFixedFee)
	if err != nil {
		return nil, errors.New("cannot parse fee policy")
	}

	gatewayClient := gateway.NewHTTPClient(config.GatewayBaseURL, config.GatewayToken, config.GatewayTimeout)
	events := notifier.NewWebhook(config.UserNotifyURL, config.AdminNotifyURL)

	ledgerService, err := ledgerservice.New(transactionRepo, accountRepo, gatewayClient, fees, events,
		config.DepositMinimumAmount, config.DepositMaximumAmount)
	if err != nil {
		return nil, errors.New("cannot initialize ledger service")
	}

	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.POST("/deposits", ledgerHandler.CreateDeposit)
	engine.POST("/withdrawals", ledgerHandler.CreateWithdrawal)
	engine.GET("/accounts/:id/wallet", ledgerHandler.Wallet)

	engine.POST("/webhook/pix",
		middleware.WebhookSignature(config.WebhookSigningSecret), ledgerHandler.Webhook)

	adminRoutes := engine.Group("/admin", middleware.AdminAuth(tokenMaker))

	adminRoutes.GET("/withdrawals", ledgerHandler.PendingWithdrawals)
	adminRoutes.POST("/withdrawals/:id/approve", ledgerHandler.ApproveWithdrawal)
	adminRoutes.POST("/withdrawals/:id/reject", ledgerHandler.RejectWithdrawal)
	adminRoutes.PUT("/accounts/:id/balance", ledgerHandler.SetBalance)
	adminRoutes.GET("/profits", ledgerHandler.Profits)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("pixkey", ledgerdelivery.ValidPixKey)
		if err != nil {
			return nil, errors.New("cannot register pix key validator")
		}
	}

	server := &Server{
		DB:     conn,
		Engine: engine,
		Config: config,
		Ledger: ledgerService,
	}

	return server, nil
}
