package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"sprint-academy/internal/ai"
	"sprint-academy/internal/api"
	"sprint-academy/internal/auth"
	"sprint-academy/internal/config"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/database"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/sandbox"
	"sprint-academy/internal/visitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger mode comes from config, so this one goes to stderr.
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.AppMode)
	if err != nil {
		os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var catalog courses.Catalog
	if cfg.CatalogFile != "" {
		f, err := os.Open(cfg.CatalogFile)
		if err != nil {
			log.Fatal("open catalog", "path", cfg.CatalogFile, "error", err)
		}
		static, err := courses.LoadStaticCatalog(f)
		f.Close()
		if err != nil {
			log.Fatal("load catalog", "path", cfg.CatalogFile, "error", err)
		}
		catalog = static
	}

	var (
		assistant sandbox.Assistant = ai.Disabled{}
		images    api.ImageAI
	)
	if gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiImageModel, log); err == nil {
		assistant, images = gemini, gemini
	} else {
		log.Warn("Gemini disabled, sandbox chat will answer with the fallback", "error", err)
	}

	var oauth api.OAuth
	if cfg.OAuthConfigured() {
		oauth = auth.NewOAuthProvider(auth.OAuthConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			RedirectURL:  cfg.OAuthRedirectURL,
		})
	} else {
		log.Warn("identity provider not configured, OAuth sign-in will fail with missing_config")
	}

	visitors := visitor.NewManager(store, visitor.NewTokens([]byte(cfg.SessionSecret), cfg.SessionTTL), visitor.Options{
		BackendURL:     cfg.BackendURL,
		BackendTimeout: cfg.BackendTimeout,
		SecureCookies:  cfg.SecureCookies(),
		Catalog:        catalog,
		Assistant:      assistant,
		Logger:         log,
	})
	go sweepVisitors(ctx, visitors, log)

	r := mux.NewRouter()
	r.Use(api.Recovery(log), api.RequestLogger(log))
	apiHandler := api.NewApiHandler(visitors, oauth, images, log)
	apiHandler.Mount(r)
	mountPages(r, visitors, cfg.StaticDir, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting server", "port", cfg.Port, "mode", cfg.AppMode, "backend", cfg.BackendURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server start error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", "signal", sig.String())
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	log.Info("Server exiting gracefully.")
}

// openStore uses Postgres when DATABASE_URL is set and memory otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (database.SessionStore, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, visitor sessions will not survive a restart")
		return database.NewMemorySessionStore(), func() {}
	}
	db, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("DB connect error", "error", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("DB migrate error", "error", err)
	}
	log.Info("DB connected!")
	return database.NewSQLSessionStore(db), func() { db.Close() }
}

func sweepVisitors(ctx context.Context, visitors *visitor.Manager, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := visitors.Sweep(ctx)
			if err != nil {
				log.Warn("sweep visitor sessions", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired visitor sessions purged", "count", n)
			}
		}
	}
}

// isLoggedIn reports whether the request carries a signed-in visitor.
func isLoggedIn(visitors *visitor.Manager, r *http.Request) bool {
	v, ok := visitors.Lookup(r)
	return ok && v.SignedIn()
}

// appPages are client-side routes served by index.html.
var appPages = []string{"/app", "/profile", "/courses"}

func isAppPage(path string) bool {
	if strings.HasPrefix(path, "/app/api") {
		return false
	}
	for _, p := range appPages {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// mountPages registers the landing, the gated app shell and the static files.
// The file server goes last.
func mountPages(r *mux.Router, visitors *visitor.Manager, staticDir string, log *logger.Logger) {
	index := filepath.Join(staticDir, "index.html")
	landing := filepath.Join(staticDir, "landing.html")

	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if isLoggedIn(visitors, req) {
			http.Redirect(w, req, "/app", http.StatusSeeOther)
			return
		}
		http.ServeFile(w, req, landing)
	}).Methods("GET")

	r.MatcherFunc(func(req *http.Request, rm *mux.RouteMatch) bool {
		return req.Method == http.MethodGet && isAppPage(req.URL.Path)
	}).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !isLoggedIn(visitors, req) {
			log.Debug("redirecting anonymous visitor to landing", "path", req.URL.Path)
			http.Redirect(w, req, "/", http.StatusSeeOther)
			return
		}
		http.ServeFile(w, req, index)
	})

	for _, p := range []string{"/login", "/register"} {
		r.HandleFunc(p, func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/", http.StatusSeeOther)
		}).Methods("GET")
	}

	fs := http.FileServer(http.Dir(staticDir))
	r.MatcherFunc(func(req *http.Request, rm *mux.RouteMatch) bool {
		path := req.URL.Path
		return path != "/" && !isAppPage(path) && !strings.HasPrefix(path, "/app/api") && !strings.HasPrefix(path, "/auth/")
	}).Handler(fs)
}
