package bootstrap

import (
	"database/sql"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/fieldwork/fieldwork-backend/config"
	httpapi "github.com/fieldwork/fieldwork-backend/internal/api/http"
	"github.com/fieldwork/fieldwork-backend/internal/audit"
	"github.com/fieldwork/fieldwork-backend/internal/auth"
	authhttp "github.com/fieldwork/fieldwork-backend/internal/auth/http"
	authservice "github.com/fieldwork/fieldwork-backend/internal/auth/service"
	"github.com/fieldwork/fieldwork-backend/internal/dict"
	"github.com/fieldwork/fieldwork-backend/internal/files"
	fileshttp "github.com/fieldwork/fieldwork-backend/internal/files/http"
	projecthttp "github.com/fieldwork/fieldwork-backend/internal/projects/http"
	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
	projectservice "github.com/fieldwork/fieldwork-backend/internal/projects/service"
	"github.com/fieldwork/fieldwork-backend/internal/sms"
	systemhttp "github.com/fieldwork/fieldwork-backend/internal/system/http"
	"github.com/fieldwork/fieldwork-backend/internal/users"
)

type RouterDeps struct {
	ServiceName string
	Cfg         *config.Config
	DB          *sql.DB
	Redis       *redis.Client
	ObjectStore files.ObjectStore
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", dep.Cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Cfg.App.Version, dep.DB)
	healthHandler.RegisterRoutes(r)

	projectRepo := repository.NewProjectRepository(dep.DB)
	annexRepo := repository.NewAnnexRepository(dep.DB)
	claimRepo := repository.NewClaimRepository(dep.DB)
	userRepo := users.NewRepo(dep.DB)
	dictRepo := dict.NewRepo(dep.DB)

	policy := audit.NewPolicy(dictRepo, dep.Redis, projectRepo)
	uploader := files.NewUploader(dep.ObjectStore, annexRepo, dep.Cfg.Minio.PresignTTL)
	codes := sms.NewStore(dep.Redis, dep.Cfg.SMS.CodeTTL, dep.Cfg.SMS.SendsPerSecond)
	tokens := auth.NewManager(dep.Cfg.JWT.Secret, dep.Cfg.JWT.TTL)

	projectSvc := projectservice.NewProjectService(projectRepo, annexRepo, claimRepo,
		userRepo, policy, uploader, dep.Cfg.Claim.MaxDistanceMeters)
	authSvc := authservice.NewAuthService(userRepo, codes, tokens, policy)

	api := r.Group("/api/v1")
	api.Use(auth.WithIdentity(tokens))

	projecthttp.Register(api.Group("/project"), projectSvc)
	authhttp.Register(api.Group("/user"), authSvc)
	systemhttp.Register(api.Group("/system"), codes, dictRepo)
	fileshttp.Register(api.Group("/file"), uploader)

	return r
}
