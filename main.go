package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/middlewares"
	"github.com/securebidz/apiv1/routes"
	"github.com/securebidz/apiv1/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setting up environment variables
	config, err := utils.LoadConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}
	// Setting up logs
	logFile, err := utils.SetupLogger(config.LogFile, config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()
	if err := middlewares.TrustProxies(config.TrustedProxies); err != nil {
		log.Fatal(err)
	}
	// Setting up database
	db, err := dbhelper.OpenDB(config.DB)
	if err != nil {
		log.Fatal(err)
	}
	if err := dbhelper.InitDB(db); err != nil {
		log.Fatal(err)
	}

	secret, oldSecret := config.JWTSecrets()
	tokens := &utils.TokenIssuer{Secret: secret, OldSecret: oldSecret, TTL: config.TokenTTL}
	store := dbhelper.NewStore(db, newMailer(config.SMTP), tokens)
	store.AuctionDuration = config.AuctionDuration

	if config.AuctionSweepInterval > 0 {
		go sweepAuctions(ctx, store, config.AuctionSweepInterval)
	}

	// Opening the webserver
	r := mux.NewRouter()
	r.StrictSlash(true)
	routes.CreateRoutes(r, routes.NewAPI(store, tokens))
	server := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           middlewares.CORS(config.AllowedOrigin)(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutting down: %v", err)
		}
	}()
	log.Infof("listening on %s (env=%s, db=%s)", server.Addr, config.Env, config.DB.Driver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newMailer(config utils.SMTPConfig) mailer.Mailer {
	if config.Host == "" {
		log.Warn("SMTP_HOST not set, emails are logged instead of sent")
		return mailer.LogMailer{}
	}
	return &mailer.SMTPMailer{
		Host:     config.Host,
		Port:     config.Port,
		Username: config.Username,
		Password: config.Password,
		From:     config.From,
		Timeout:  config.Timeout,
	}
}

// sweepAuctions closes expired auctions on a fixed cadence until ctx ends.
// Deployments that run `bidzctl sweep` from a scheduler set the interval to 0.
func sweepAuctions(ctx context.Context, store *dbhelper.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			closed, err := store.CloseExpiredAuctions(ctx, now)
			if err != nil {
				log.Errorf("auction sweep: %v", err)
			}
			if closed > 0 {
				log.Infof("auction sweep closed %d auctions", closed)
			}
		}
	}
}
