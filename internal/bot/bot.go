package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/alerts"
	"github.com/coah80/chocbot/internal/convert"
	"github.com/coah80/chocbot/internal/lifecycle"
	"github.com/coah80/chocbot/internal/services"
)

type Config struct {
	Token     string
	AppID     string
	GuildID   string
	UploadURL string
	TempDir   string
}

// session is the part of *discordgo.Session the handlers use.
type session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type downloader interface {
	Download(ctx context.Context, req services.DownloadRequest) services.Result
}

type converter interface {
	Check(src, target string) error
	Decide(ctx context.Context, src, out, target string) (*convert.Report, error)
}

type fileFetcher interface {
	Materialize(ctx context.Context, mediaURL, dest string) (*services.MediaArtifact, error)
}

type deleter interface {
	ScheduleDelete(path string, delay time.Duration)
	Delete(path string) error
}

// Deps are the collaborators the command handlers drive.
type Deps struct {
	Downloader downloader
	Converter  converter
	Fetcher    fileFetcher
	Deleter    deleter
	Policy     lifecycle.Policy
	Jobs       *lifecycle.Jobs
	Alerts     *alerts.Notifier
}

type Bot struct {
	session *discordgo.Session
	cfg     Config
	deps    Deps
	cmdIDs  []string
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingConvert

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, deps Deps, logger *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	b := newBot(cfg, deps, logger)
	b.session = s
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.route(s, i)
	})
	s.Identify.Intents = discordgo.IntentsGuilds

	return b, nil
}

func newBot(cfg Config, deps Deps, logger *zap.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.Named("bot"),
		pending: make(map[string]*pendingConvert),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start connects to the gateway and registers the slash commands, scoped to
// the configured guild when there is one.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	user := b.session.State.User.Username
	b.logger.Info("logged in", zap.String("user", user))
	b.deps.Alerts.BotStarted(user)

	for _, cmd := range commandDefinitions() {
		created, err := b.session.ApplicationCommandCreate(b.cfg.AppID, b.cfg.GuildID, cmd)
		if err != nil {
			b.logger.Error("failed to register command", zap.String("command", cmd.Name), zap.Error(err))
			continue
		}
		b.cmdIDs = append(b.cmdIDs, created.ID)
		b.logger.Info("registered command", zap.String("command", created.Name))
	}

	return nil
}

// Stop removes the commands, waits for running jobs to notice cancellation
// and closes the gateway connection.
func (b *Bot) Stop() {
	b.deps.Alerts.BotStopping()
	for _, id := range b.cmdIDs {
		if err := b.session.ApplicationCommandDelete(b.cfg.AppID, b.cfg.GuildID, id); err != nil {
			b.logger.Warn("failed to delete command", zap.String("id", id), zap.Error(err))
		}
	}
	b.cancel()
	b.wait()
	if err := b.session.Close(); err != nil {
		b.logger.Warn("close session", zap.Error(err))
	}
	b.deps.Alerts.Wait()
}

func (b *Bot) route(s session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in interaction handler", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "download":
			b.handleDownload(s, i)
		case "convert":
			b.handleConvert(s, i)
		}
	case discordgo.InteractionMessageComponent:
		b.handleConvertButton(s, i)
	}
}

// goJob runs fn in the background, recovering panics so one bad request
// cannot take the bot down.
func (b *Bot) goJob(s session, i *discordgo.InteractionCreate, fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("panic in job", zap.Any("panic", r), zap.Stack("stack"))
				b.editEmbed(s, i, errorEmbed("Error", "Something went wrong, try again"))
			}
		}()
		fn()
	}()
}

func (b *Bot) wait() {
	b.wg.Wait()
}

func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
