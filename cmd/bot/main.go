package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coah80/chocbot/internal/alerts"
	"github.com/coah80/chocbot/internal/bot"
	"github.com/coah80/chocbot/internal/config"
	"github.com/coah80/chocbot/internal/convert"
	"github.com/coah80/chocbot/internal/lifecycle"
	"github.com/coah80/chocbot/internal/platform"
	"github.com/coah80/chocbot/internal/server"
	"github.com/coah80/chocbot/internal/services"
	"github.com/coah80/chocbot/internal/util"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bot exited", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development() {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := util.CheckDependencies(logger); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Storage.TempDir, 0o755); err != nil {
		return err
	}
	if n, err := util.ClearTempDir(cfg.Storage.TempDir); err != nil {
		logger.Warn("failed to clear temp dir", zap.Error(err))
	} else if n > 0 {
		logger.Info("cleared leftover temp files", zap.Int("count", n))
	}
	if disk, err := util.GetDiskSpace(cfg.Storage.TempDir); err == nil {
		logger.Info("disk space", zap.Float64("availGB", disk.AvailGB), zap.Float64("totalGB", disk.TotalGB))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: cfg.Download.HTTPTimeout}
	notifier := alerts.NewNotifier(cfg.Alerts.WebhookURL, cfg.Alerts.PingUserID, config.Version, client, logger)

	ytdlp := services.NewYtdlp(cfg.Ytdlp.CookiesFile, cfg.Ytdlp.Proxy, logger)
	ytdlp.OnCookieIssue = notifier.CookieIssue
	cobalt := services.NewCobalt(cfg.Cobalt.Instances, cfg.Cobalt.APIKey, client, logger)
	cobalt.OnExhausted = notifier.CobaltAllFailed

	// Media streams can take far longer than an API call.
	fetcher := services.NewMaterializer(&http.Client{}, logger)
	processor := services.NewProcessor(logger)
	tagger := services.NewTagger(processor, fetcher, logger)
	musicbrainz := services.NewMusicBrainz(cfg.Music.UserAgent, client, logger)

	var tracks services.TrackResolver
	if cfg.SpotifyEnabled() {
		tracks = services.NewSpotifyClient(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	} else {
		logger.Info("spotify credentials not set, spotify links are disabled")
	}

	youtube := services.NewYouTubeStrategy(ytdlp, cobalt, logger)
	soundcloud := services.NewSoundCloudStrategy(ytdlp, musicbrainz, logger)
	strategies := map[platform.Platform]services.Strategy{
		platform.YouTube:            youtube,
		platform.YouTubePlaylist:    youtube,
		platform.Twitter:            services.NewTwitterStrategy(cobalt, logger),
		platform.Instagram:          services.NewInstagramStrategy(cobalt, logger),
		platform.TikTok:             services.NewTikTokStrategy(cobalt, logger),
		platform.SoundCloud:         soundcloud,
		platform.SoundCloudPlaylist: soundcloud,
		platform.Spotify:            services.NewSpotifyStrategy(tracks, ytdlp, youtube, logger),
	}

	dispatcher, err := services.NewDispatcher(strategies, fetcher, processor, tagger, services.DispatcherConfig{
		TempDir:          cfg.Storage.TempDir,
		Concurrency:      cfg.Download.PlaylistConcurrency,
		MaxPlaylistItems: cfg.Download.MaxPlaylistItems,
	}, logger)
	if err != nil {
		return err
	}
	dispatcher.OnFailure = func(req services.DownloadRequest, err error) {
		notifier.DownloadFailed(req.OwnerID, req.URL, err)
	}

	scheduler := lifecycle.NewScheduler(logger)
	defer scheduler.Stop()
	jobs := lifecycle.NewJobs(config.JobLimits)

	srv := server.New(server.Options{
		Port:        cfg.Server.Port,
		TempDir:     cfg.Storage.TempDir,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     config.Version,
	}, jobs, scheduler.Pending, logger)

	b, err := bot.New(bot.Config{
		Token:     cfg.Discord.Token,
		AppID:     cfg.Discord.AppID,
		GuildID:   cfg.Discord.GuildID,
		UploadURL: cfg.Server.UploadURL,
		TempDir:   cfg.Storage.TempDir,
	}, bot.Deps{
		Downloader: dispatcher,
		Converter:  convert.NewDecider(processor, logger),
		Fetcher:    fetcher,
		Deleter:    scheduler,
		Policy:     lifecycle.DefaultPolicy(cfg.Storage.DeleteTimeout),
		Jobs:       jobs,
		Alerts:     notifier,
	}, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		if err := b.Start(); err != nil {
			return err
		}
		logger.Info("bot is running", zap.String("version", config.Version), zap.String("upload_url", cfg.Server.UploadURL))
		<-gctx.Done()
		logger.Info("shutting down")
		b.Stop()
		return nil
	})
	return g.Wait()
}
