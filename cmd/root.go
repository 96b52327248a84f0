package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	coreconfig "github.com/AzielCF/az-grouppost/core/config"
	coreDB "github.com/AzielCF/az-grouppost/core/database"
	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	domainCache "github.com/AzielCF/az-grouppost/domains/cache"
	domainGroup "github.com/AzielCF/az-grouppost/domains/group"
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	"github.com/AzielCF/az-grouppost/infrastructure/storage"
	"github.com/AzielCF/az-grouppost/infrastructure/valkey"
	"github.com/AzielCF/az-grouppost/infrastructure/vrchat"
	"github.com/AzielCF/az-grouppost/pkg/crypto"
	"github.com/AzielCF/az-grouppost/pkg/msgworker"
	"github.com/AzielCF/az-grouppost/pkg/postmonitor"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/AzielCF/az-grouppost/repository"
	"github.com/AzielCF/az-grouppost/ui/websocket"
	"github.com/AzielCF/az-grouppost/usecase"
)

var (
	cfg   *coreconfig.Config
	clock = clockwork.NewRealClock()

	serverID = uuid.NewString()

	documentStore *storage.DocumentStore
	vkClient      *valkey.Client
	ephemeral     domainCache.EphemeralStore
	vrchatClient  *vrchat.Client
	postPool      *msgworker.Pool
	activity      *postmonitor.Monitor

	authUsecase  domainAuth.IAuthUsecase
	groupUsecase domainGroup.IGroupUsecase
	cacheUsecase domainCache.ICacheUsecase
	scheduler    *usecase.Scheduler
)

var rootCmd = &cobra.Command{
	Use:   "az-grouppost",
	Short: "Schedule VRChat group announcements",
	Long:  `Queues group announcement posts, one-shot or recurring, and publishes them at the right time while respecting the VRChat API rate limits.`,
}

func init() {
	utils.LoadConfig(".")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().StringP("port", "p", "", "change port number with --port <number> | example: --port=3000")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	rootCmd.PersistentFlags().String("data-dir", "", `directory for stored documents --data-dir <path> | example: --data-dir="storages"`)
	rootCmd.PersistentFlags().String("storage", "", `document backend --storage <file|sqlite|postgres>`)
	rootCmd.PersistentFlags().String("timezone", "", `zone used for schedules --timezone <name> | example: --timezone="Europe/Madrid"`)
	rootCmd.PersistentFlags().Int("post-workers", 0, "number of workers publishing posts")

	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("app_data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("storage_driver", rootCmd.PersistentFlags().Lookup("storage"))
	_ = viper.BindPFlag("app_timezone", rootCmd.PersistentFlags().Lookup("timezone"))
	_ = viper.BindPFlag("post_worker_pool_size", rootCmd.PersistentFlags().Lookup("post-workers"))
}

// initEnvConfig loads the environment, then lets explicit flags win.
func initEnvConfig() {
	var err error
	cfg, err = coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	if v := viper.GetString("app_port"); v != "" {
		cfg.App.Port = v
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if v := viper.GetString("app_data_dir"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := viper.GetString("storage_driver"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := viper.GetString("app_timezone"); v != "" {
		cfg.App.Timezone = v
	}
	if v := viper.GetInt("post_worker_pool_size"); v > 0 {
		cfg.WorkerPool.Size = v
	}
}

func initApp() {
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Debugf("[APP] settings: %v", coreconfig.GetAllSettings())
	}

	if err := utils.CreateFolder(cfg.Paths.DataDir); err != nil {
		logrus.Fatalln(err)
	}

	var err error
	documentStore, err = newDocumentStore(cfg)
	if err != nil {
		logrus.Fatalf("[STORAGE] %v", err)
	}
	documentStore.OnInsecureWrite(func(name string) {
		websocket.PublishToast("warning", fmt.Sprintf("%s was stored without encryption, set APP_SECRET_KEY", name))
	})

	ephemeral = repository.NewMemoryCacheStore(clock)
	if cfg.Valkey.Enabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			logrus.Warnf("[CACHE] valkey unavailable, using in-memory cache: %v", err)
			vkClient = nil
		} else {
			ephemeral = repository.NewValkeyCacheStore(vkClient)
			logrus.Infof("[CACHE] using valkey at %s", cfg.Valkey.Address)
		}
	}

	vrchatClient = vrchat.NewClient(
		vrchat.OptionsFromConfig(cfg.VRChat),
		vrchat.NewSessionStore(documentStore),
		vrchat.WithClock(clock),
	)

	authUsecase = usecase.NewAuthService(vrchatClient, ephemeral)
	groupUsecase = usecase.NewGroupService(vrchatClient, documentStore, ephemeral, clock, usecase.GroupSettings{
		CacheTTL:        cfg.Groups.CacheTTL,
		RefreshCooldown: cfg.Groups.RefreshCooldown,
		EphemeralTTL:    cfg.Groups.EphemeralTTL,
	})
	groupUsecase.SetProgressObserver(websocket.ProgressNotifier{})
	cacheUsecase = usecase.NewCacheService(documentStore, ephemeral)

	postPool = msgworker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	postPool.OnJobStart = func(_ int, postID string) {
		websocket.Publish(websocket.BroadcastMessage{Code: websocket.CodePostPublishing, Message: "Publishing", Result: fiber.Map{"postId": postID}})
	}
	scheduler = usecase.NewScheduler(documentStore, vrchatClient, postPool, clock, cfg.Location())
	scheduler.SyncInterval = cfg.WorkerPool.SyncInterval
	activity = postmonitor.New(cfg.WorkerPool.ActivityBuffer, cfg.WorkerPool.ActivityTTL, clock)
	scheduler.OnOutcome = func(p domainPost.Post, at time.Time, _ domainPost.Status, err error) {
		event := postmonitor.Event{
			PostID:       p.ID,
			GroupID:      p.GroupID,
			GroupName:    p.GroupName,
			Title:        p.Title,
			Recurring:    p.IsRecurring(),
			ScheduledFor: at,
			Status:       postmonitor.StatusOK,
		}
		if err != nil {
			event.Status = postmonitor.StatusError
			event.Error = err.Error()
		}
		activity.Record(event)

		if err != nil {
			websocket.PublishToast("error", fmt.Sprintf("Posting %q to %s failed: %v", p.Title, p.GroupName, err))
			return
		}
		websocket.PublishToast("info", fmt.Sprintf("Posted %q to %s", p.Title, p.GroupName))
	}
}

func newDocumentStore(cfg *coreconfig.Config) (*storage.DocumentStore, error) {
	enc := crypto.NewProvider(cfg.Security.SecretKey)
	if !enc.Available() {
		logrus.Warn("[STORAGE] APP_SECRET_KEY is not set, the session will be stored in clear")
	}

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "file" {
		logrus.Infof("[STORAGE] file documents in %s", cfg.Paths.DataDir)
		return storage.NewFileStore(cfg.Paths.DataDir, enc)
	}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	logrus.Infof("[STORAGE] %s documents in %s", cfg.Storage.Driver, cfg.Storage.Name)
	return storage.NewGormStore(db, enc)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp disarms every pending post and releases connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if scheduler != nil {
		scheduler.Stop()
	}
	if vkClient != nil {
		vkClient.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
