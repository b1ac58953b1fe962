package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TooLazyToCreate/blood-connect/config"
	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/TooLazyToCreate/blood-connect/internal/service"
	"github.com/TooLazyToCreate/blood-connect/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// OpenStorage picks the backend from the scheme of the database url.
func OpenStorage(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*repository.Storage, error) {
	url := cfg.DatabaseUrl
	switch {
	case url == "" || strings.HasPrefix(url, "memory://"):
		logger.Warn("DATABASE_URL is not set, using in-memory storage")
		return repository.NewMemoryStorage(logger), nil
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return repository.NewMongoStorage(ctx, logger, url, cfg.DatabaseName)
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return repository.NewPostgresStorage(ctx, logger, url)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", url)
	}
}

func Run(logger *zap.Logger, cfg *config.Config) error {
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	storage, err := OpenStorage(connectCtx, logger, cfg)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	} else {
		logger.Info("Connected to database")
	}
	defer func() {
		err := storage.Close(context.Background())
		if err != nil {
			logger.Error("Connection to database was closed with error", zap.Error(err))
		}
	}()

	issuer := token.NewIssuer(cfg.Secret, cfg.TokenLifetime())
	authService := service.NewAuthService(logger, cfg, issuer, storage.Accounts)

	/* Запускаем на фоне горутину, которая раз в prune_interval чистит просроченные сессии */
	sessionPruneTicker := time.NewTicker(cfg.PruneInterval())
	go func() {
		for {
			<-sessionPruneTicker.C
			pruned, err := authService.PruneSessions(context.Background())
			if err != nil {
				logger.Error("Failed to delete expired sessions", zap.Error(err))
			} else {
				logger.Debug("Expired sessions have been deleted", zap.Int64("count", pruned))
			}
		}
	}()

	serverAddress := cfg.Host + ":" + strconv.Itoa(cfg.Port)

	logger.Info("Will serve on " + serverAddress)
	return http.ListenAndServe(serverAddress, NewRouter(logger, cfg, storage, authService))
}

func NewRouter(logger *zap.Logger, cfg *config.Config, storage *repository.Storage, authService *service.AuthService) http.Handler {
	donorService := service.NewDonorService(logger, storage.Donors)
	emergencyService := service.NewEmergencyService(logger, storage.Emergencies)
	directoryService := service.NewDirectoryService(logger, storage)

	router := chi.NewRouter()

	// Это нагромождение выдаёт в RemoteAddr ip-адрес до переадресаций без порта
	router.Use(middleware.RealIP)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			port := strings.LastIndex(r.RemoteAddr, ":")
			if port != -1 {
				r.RemoteAddr = r.RemoteAddr[:port]
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Use(middleware.Recoverer)

	/* Устанавливаем свой логгер запросов в дебаг режиме */
	if cfg.IsDev() {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logger.Debug("Request to "+r.RequestURI, zap.String("ip", r.RemoteAddr))
				next.ServeHTTP(w, r)
			})
		})
	}

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Server is up!"))
	})

	authLimiter := newIPLimiter(cfg.AuthLimit.PerMinute, cfg.AuthLimit.Burst)
	router.Route("/api/auth", func(r chi.Router) {
		r.Use(authLimiter.middleware(logger))
		r.Post("/register/user", authService.HandleRegisterUser)
		r.Post("/register/hospital", authService.HandleRegisterHospital)
		r.Post("/login/user", authService.HandleLoginUser)
		r.Post("/login/hospital", authService.HandleLoginHospital)
		r.Post("/logout/user", authService.HandleLogoutUser)
		r.Post("/logout/hospital", authService.HandleLogoutHospital)
	})

	router.With(authService.RequireSession(model.KindUser)).Get("/api/users/profile", directoryService.HandleProfile)
	router.Get("/api/hospitals", directoryService.HandleHospitals)
	router.Get("/api/chatbot/data", directoryService.HandleChatbotData)

	router.Post("/api/donate", donorService.HandleCreate)
	router.Route("/api/donors", func(r chi.Router) {
		r.Post("/", donorService.HandleCreate)
		r.Get("/all", donorService.HandleList)
		r.Get("/search", donorService.HandleSearch)
		r.With(authService.RequireSession()).Put("/{id}", donorService.HandleUpdate)
	})

	router.Route("/api/emergency", func(r chi.Router) {
		r.Post("/", emergencyService.HandleCreate)
		r.Group(func(r chi.Router) {
			r.Use(authService.RequireSession(model.KindHospital))
			r.Get("/", emergencyService.HandleList)
			r.Post("/{id}/resolve", emergencyService.HandleResolve)
		})
	})

	return router
}
