package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/lifecycle"
	"github.com/coah80/chocbot/internal/platform"
	"github.com/coah80/chocbot/internal/services"
	"github.com/coah80/chocbot/internal/util"
)

const (
	downloadTimeout  = 15 * time.Minute
	playlistTimeout  = 60 * time.Minute
	progressInterval = 2 * time.Second
)

func (b *Bot) handleDownload(s session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	rawURL := ""
	kind := services.MediaVideo

	for _, opt := range data.Options {
		switch opt.Name {
		case "url":
			rawURL = opt.StringValue()
		case "format":
			if opt.StringValue() == string(services.MediaAudio) {
				kind = services.MediaAudio
			}
		}
	}

	if err := util.ValidateURL(rawURL); err != nil {
		b.logger.Debug("rejected download url", zap.Error(err))
		b.respondError(s, i, "Invalid Link", "That doesn't look like a valid link.")
		return
	}

	if !b.deferReply(s, i) {
		return
	}

	req := services.DownloadRequest{
		URL:           rawURL,
		OwnerID:       userID(i),
		Kind:          kind,
		Purpose:       "DOWN",
		UseIdentifier: true,
	}
	b.goJob(s, i, func() { b.processDownload(s, i, req) })
}

func (b *Bot) processDownload(s session, i *discordgo.InteractionCreate, req services.DownloadRequest) {
	playlist := platform.Identify(req.URL).IsPlaylist()
	jobType, timeout := "download", downloadTimeout
	if playlist {
		jobType, timeout = "playlist", playlistTimeout
	}

	if b.deps.Jobs != nil {
		check := b.deps.Jobs.Start(jobType)
		if !check.OK {
			b.editEmbed(s, i, errorEmbed("Busy", check.Reason+". Try again in a bit."))
			return
		}
		defer b.deps.Jobs.Done(jobType)
	}

	status := "Downloading..."
	if playlist {
		status = "Downloading playlist..."
	}
	b.editEmbed(s, i, progressEmbed(status, req.URL))

	req.OnProgress = b.progressReporter(s, i, status, req.URL)

	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	res := b.deps.Downloader.Download(ctx, req)

	if !res.Success {
		embed := errorEmbed("Download Failed", res.Message)
		addPlaylistReport(embed, res.Playlist)
		b.editEmbed(s, i, embed)
		return
	}
	if res.Artifact == nil {
		b.logger.Error("successful download without artifact", zap.String("url", req.URL))
		b.editEmbed(s, i, errorEmbed("Download Failed", "Downloaded file not found"))
		return
	}

	art := res.Artifact
	embed := successEmbed("Downloaded", res.Title, art.Size, "")
	if res.Playlist != nil {
		embed.Title = "Playlist Ready"
		embed.Description = fmt.Sprintf("**%s**", res.Title)
		addPlaylistReport(embed, res.Playlist)
	}
	b.deliver(s, i, art.Path, art.Size, embed, "", lifecycle.PurposeDownload)
}

// progressReporter edits the reply with download progress at most once per
// progressInterval. Edit failures are only logged.
func (b *Bot) progressReporter(s session, i *discordgo.InteractionCreate, title, source string) func(services.Progress) {
	var mu sync.Mutex
	var last time.Time
	return func(p services.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if !last.IsZero() && time.Since(last) < progressInterval {
			return
		}
		last = time.Now()
		b.editEmbed(s, i, downloadProgressEmbed(title, source, p))
	}
}
