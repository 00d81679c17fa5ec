package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/huddleup/authsync/internal/application/auth"
	"github.com/huddleup/authsync/internal/application/profile"
	"github.com/huddleup/authsync/internal/application/session"
	"github.com/huddleup/authsync/internal/application/user"
	"github.com/huddleup/authsync/internal/config"
	"github.com/huddleup/authsync/internal/infrastructure/dynamo"
	"github.com/huddleup/authsync/internal/infrastructure/google"
	jwtinfra "github.com/huddleup/authsync/internal/infrastructure/jwt"
	s3infra "github.com/huddleup/authsync/internal/infrastructure/s3"
	"github.com/huddleup/authsync/internal/infrastructure/smtp"
	"github.com/huddleup/authsync/internal/infrastructure/sns"
	"github.com/huddleup/authsync/internal/transport/http/handler"
	appmiddleware "github.com/huddleup/authsync/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	DeviceRepo       *dynamo.DeviceRepo
	ProfileRepo      *dynamo.ProfileRepo
	VerificationRepo *dynamo.VerificationRepo
	S3Store          *s3infra.Store
	Mailer           smtp.Mailer
	SMSSender        sns.SMSSender
	JWTProvider      *jwtinfra.Provider
	GoogleVerifier   *google.Verifier
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)
	optionalAuthMw := appmiddleware.OptionalAuth(deps.JWTProvider)

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	authSvc := auth.NewService(auth.ServiceDeps{
		VerificationRepo: deps.VerificationRepo,
		UserRepo:         deps.UserRepo,
		Mailer:           deps.Mailer,
		SMSSender:        deps.SMSSender,
		ResendCooldown:   cfg.ResendCooldown,
	})
	sessionDeps := session.ServiceDeps{
		SessionRepo:     deps.SessionRepo,
		UserRepo:        deps.UserRepo,
		DeviceRepo:      deps.DeviceRepo,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: cfg.RefreshTokenDur,
	}
	if deps.GoogleVerifier != nil {
		sessionDeps.GoogleVerifier = deps.GoogleVerifier
	}
	sessionSvc := session.NewService(sessionDeps)
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:     deps.UserRepo,
		SessionRepo:  deps.SessionRepo,
		ProfileRepo:  deps.ProfileRepo,
		Confirmation: authSvc,
	})
	profileSvc := profile.NewService(profile.ServiceDeps{
		ProfileRepo: deps.ProfileRepo,
		ObjectStore: deps.S3Store,
	})

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc, sessionSvc)
	emailH := handler.NewEmailConfirmHandler(authSvc)
	phoneH := handler.NewPhoneConfirmHandler(authSvc)
	pwH := handler.NewPasswordRecoveryHandler(authSvc, sessionSvc)
	profileH := handler.NewProfileHandler(profileSvc)
	snapshotH := handler.NewSnapshotHandler(sessionSvc, profileSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/sessions/google", sessionH.LoginWithGoogle)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/confirm-email/resend", emailH.Resend)
		r.With(sensitiveRL.Limit).Post("/password-recovery/{action}", pwH.Action)

		// Optional auth: answers "who am I" even for signed-out callers.
		r.With(optionalAuthMw).Get("/auth/snapshot", snapshotH.Get)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/users/me", userH.GetMe)
			r.Put("/users/me", userH.UpdateMe)
			r.Delete("/users/me", userH.DeleteMe)
			r.Post("/users/me/change-password", userH.ChangePassword)

			r.Post("/confirm-email/{action}", emailH.Action)
			r.Post("/phone-confirm/{action}", phoneH.Action)
			r.Post("/password-recovery/change-password", pwH.ChangePassword)

			r.Get("/profiles/me", profileH.GetMe)
			r.Put("/profiles/me", profileH.UpdateMe)
			r.Post("/profiles/me/avatar", profileH.UploadAvatar)
			r.Get("/profiles/me/avatar", profileH.AvatarURL)
		})
	})

	return r
}
