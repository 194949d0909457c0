package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/convert"
	"github.com/coah80/chocbot/internal/lifecycle"
	"github.com/coah80/chocbot/internal/services"
	"github.com/coah80/chocbot/internal/util"
)

const (
	pickerTimeout  = 60 * time.Second
	convertTimeout = 10 * time.Minute
	buttonsPerRow  = 5
)

// pendingConvert is an uploaded file waiting for its owner to pick a format.
type pendingConvert struct {
	input string
	owner string
	rnd   int
}

func pendingKey(owner string, rnd int) string {
	return fmt.Sprintf("%s:%d", owner, rnd)
}

func (b *Bot) handleConvert(s session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	var attachmentID, format string
	for _, opt := range data.Options {
		switch opt.Name {
		case "file":
			if v, ok := opt.Value.(string); ok {
				attachmentID = v
			}
		case "format":
			format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(opt.StringValue()), "."))
		}
	}

	var attachment *discordgo.MessageAttachment
	if data.Resolved != nil {
		attachment = data.Resolved.Attachments[attachmentID]
	}
	if attachment == nil {
		b.respondError(s, i, "Error", "Please provide an audio, video or image file to convert.")
		return
	}
	if !util.IsDiscordCDN(attachment.URL) {
		b.respondError(s, i, "Error", "Only files uploaded to Discord can be converted.")
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(attachment.Filename), "."))
	if format != "" {
		if msg := b.rejectConversion(ext, format); msg != "" {
			b.respondError(s, i, "Can't Convert", msg)
			return
		}
	} else if len(convert.Targets(ext)) == 0 {
		b.respondError(s, i, "Can't Convert", "No conversion options available for this file type.")
		return
	}

	if !b.deferReply(s, i) {
		return
	}
	b.goJob(s, i, func() { b.processConvert(s, i, attachment, ext, format) })
}

// rejectConversion returns the reply for a request that must not start, or
// "" when the conversion may go ahead.
func (b *Bot) rejectConversion(ext, format string) string {
	if !convert.Supported(format) {
		return fmt.Sprintf("Invalid or unsupported format: %s", format)
	}
	if format != ext && format != "gif" && convert.ClassOf(ext) == convert.ClassVideo && convert.ClassOf(format) == convert.ClassImage {
		return "Converting video to image isn't supported"
	}
	if err := b.deps.Converter.Check("input."+ext, format); err != nil {
		return convert.UserMessage(err)
	}
	return ""
}

func (b *Bot) processConvert(s session, i *discordgo.InteractionCreate, attachment *discordgo.MessageAttachment, ext, format string) {
	owner := userID(i)
	rnd := util.RandomSuffix()
	input := filepath.Join(b.cfg.TempDir, util.ArtifactNameWith(owner, "CONV", rnd, ext))
	log := b.logger.With(zap.String("owner", owner), zap.String("file", attachment.Filename))

	b.editEmbed(s, i, progressEmbed("Fetching file...", attachment.Filename))

	ctx, cancel := context.WithTimeout(b.ctx, convertTimeout)
	defer cancel()
	if _, err := b.deps.Fetcher.Materialize(ctx, attachment.URL, input); err != nil {
		log.Warn("attachment fetch failed", zap.Error(err))
		b.editEmbed(s, i, errorEmbed("Conversion Failed", services.UserMessage(err)))
		return
	}

	if format != "" {
		b.runConversion(ctx, s, i, input, owner, rnd, format)
		return
	}

	b.mu.Lock()
	b.pending[pendingKey(owner, rnd)] = &pendingConvert{input: input, owner: owner, rnd: rnd}
	b.mu.Unlock()
	b.deps.Deleter.ScheduleDelete(input, pickerTimeout)
	time.AfterFunc(pickerTimeout, func() { b.expirePicker(s, i, owner, rnd) })

	content := "Select format to convert to:"
	rows := formatButtons(convert.Targets(ext), owner, rnd)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &[]*discordgo.MessageEmbed{},
		Components: &rows,
	}); err != nil {
		log.Warn("failed to show format picker", zap.Error(err))
	}
}

// expirePicker drops a picker nobody clicked and removes its buttons.
func (b *Bot) expirePicker(s session, i *discordgo.InteractionCreate, owner string, rnd int) {
	b.mu.Lock()
	_, waiting := b.pending[pendingKey(owner, rnd)]
	delete(b.pending, pendingKey(owner, rnd))
	b.mu.Unlock()
	if !waiting {
		return
	}
	b.editEmbed(s, i, errorEmbed("Expired", "No format was picked in time. Run /convert again."))
}

func formatButtons(formats []string, owner string, rnd int) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(formats); start += buttonsPerRow {
		var buttons []discordgo.MessageComponent
		for _, f := range formats[start:min(start+buttonsPerRow, len(formats))] {
			buttons = append(buttons, discordgo.Button{
				Label:    strings.ToUpper(f),
				Style:    discordgo.PrimaryButton,
				CustomID: buttonID(f, owner, rnd),
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func buttonID(format, owner string, rnd int) string {
	return fmt.Sprintf("convert:%s:%s:%d", format, owner, rnd)
}

func parseButtonID(id string) (format, owner string, rnd int, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 || parts[0] != "convert" {
		return "", "", 0, false
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &rnd); err != nil {
		return "", "", 0, false
	}
	return parts[1], parts[2], rnd, true
}

func (b *Bot) handleConvertButton(s session, i *discordgo.InteractionCreate) {
	format, owner, rnd, ok := parseButtonID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	if userID(i) != owner {
		b.respondError(s, i, "Not Yours", "Only the person who uploaded the file can pick a format.")
		return
	}

	b.mu.Lock()
	p, found := b.pending[pendingKey(owner, rnd)]
	delete(b.pending, pendingKey(owner, rnd))
	b.mu.Unlock()
	if !found {
		b.respondError(s, i, "Expired", "This conversion has expired. Run /convert again.")
		return
	}

	// Keep the input alive while the conversion runs.
	b.deps.Deleter.ScheduleDelete(p.input, convertTimeout+time.Minute)

	if !b.deferUpdate(s, i) {
		return
	}
	b.goJob(s, i, func() {
		ctx, cancel := context.WithTimeout(b.ctx, convertTimeout)
		defer cancel()
		b.runConversion(ctx, s, i, p.input, p.owner, p.rnd, format)
	})
}

func (b *Bot) runConversion(ctx context.Context, s session, i *discordgo.InteractionCreate, input, owner string, rnd int, format string) {
	defer func() {
		if err := b.deps.Deleter.Delete(input); err != nil {
			b.logger.Warn("failed to remove conversion input", zap.String("path", input), zap.Error(err))
		}
	}()

	if b.deps.Jobs != nil {
		check := b.deps.Jobs.Start("convert")
		if !check.OK {
			b.editEmbed(s, i, errorEmbed("Busy", check.Reason+". Try again in a bit."))
			return
		}
		defer b.deps.Jobs.Done("convert")
	}

	out := filepath.Join(b.cfg.TempDir, util.ArtifactNameWith(owner, "CONVDONE", rnd, format))
	b.editEmbed(s, i, progressEmbed("Converting...", fmt.Sprintf("Converting to %s", strings.ToUpper(format))))

	report, err := b.deps.Converter.Decide(ctx, input, out, format)
	if err != nil {
		var unsupported *convert.UnsupportedConversion
		rejected := errors.Is(err, convert.ErrAlreadyTarget) || errors.Is(err, convert.ErrGifTooLong) || errors.As(err, &unsupported)
		if !rejected {
			b.logger.Warn("conversion failed", zap.String("owner", owner), zap.String("format", format), zap.Error(err))
			b.deps.Alerts.ConversionFailed(owner, format, err)
		}
		b.editEmbed(s, i, errorEmbed("Conversion Failed", convert.UserMessage(err)))
		return
	}

	embed := successEmbed("Converted", filepath.Base(out), report.NewSize, "")
	b.deliver(s, i, out, report.NewSize, embed, report.String(), lifecycle.PurposeConvert)
}
