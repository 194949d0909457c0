package bot

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/config"
	"github.com/coah80/chocbot/internal/lifecycle"
)

// LinkURL is where the static server exposes a scratch file.
func LinkURL(base, filename string) string {
	return strings.TrimRight(base, "/") + "/temp/" + url.PathEscape(filename)
}

func (b *Bot) deleteNotice() string {
	return fmt.Sprintf("Your file will be deleted from the servers in %d minutes.", b.deps.Policy.LongMinutes())
}

// deliver replies with the file at path: attached when it is small enough,
// linked otherwise. Either way its deletion is scheduled. content goes above
// the embed.
func (b *Bot) deliver(s session, i *discordgo.InteractionCreate, path string, size int64, embed *discordgo.MessageEmbed, content string, purpose lifecycle.Purpose) {
	name := filepath.Base(path)
	policy := b.deps.Policy
	log := b.logger.With(zap.String("file", name), zap.Int64("size", size))

	if policy.IsInline(size) {
		err := b.attach(s, i, path, name, embed, content)
		if err == nil {
			b.deps.Deleter.ScheduleDelete(path, policy.DelayFor(size, purpose))
			log.Info("delivered inline")
			return
		}
		log.Warn("attachment failed, sending link instead", zap.Error(err))
	}

	link := LinkURL(b.cfg.UploadURL, name)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Download",
		Value: fmt.Sprintf("[Click here](%s)", link),
	})
	embed.Description = strings.TrimSpace(embed.Description + "\n\nFile is too large to send.\n" + b.deleteNotice())
	b.edit(s, i, content, embed)
	b.deps.Deleter.ScheduleDelete(path, policy.Long)
	log.Info("delivered as link")
}

func (b *Bot) attach(s session, i *discordgo.InteractionCreate, path, name string, embed *discordgo.MessageEmbed, content string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	edit := &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
		Files: []*discordgo.File{{
			Name:        name,
			ContentType: contentType(name),
			Reader:      f,
		}},
		Components: &[]discordgo.MessageComponent{},
	}
	if content != "" {
		edit.Content = &content
	}
	_, err = s.InteractionResponseEdit(i.Interaction, edit)
	return err
}

func contentType(name string) string {
	if t, ok := config.MIMETypes[strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))]; ok {
		return t
	}
	return "application/octet-stream"
}

// edit replaces the deferred reply. Failures are logged only; the reply may
// have been deleted while the job ran.
func (b *Bot) edit(s session, i *discordgo.InteractionCreate, content string, embed *discordgo.MessageEmbed) {
	edit := &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &[]discordgo.MessageComponent{},
	}
	if content != "" {
		edit.Content = &content
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.logger.Warn("failed to edit reply", zap.Error(err))
	}
}

func (b *Bot) editEmbed(s session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	b.edit(s, i, "", embed)
}

func (b *Bot) respondError(s session, i *discordgo.InteractionCreate, title, message string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{errorEmbed(title, message)},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("failed to respond", zap.Error(err))
	}
}

func (b *Bot) deferReply(s session, i *discordgo.InteractionCreate) bool {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logger.Warn("failed to defer response", zap.Error(err))
		return false
	}
	return true
}

// deferUpdate acknowledges a button press; later edits replace the message
// the button was on.
func (b *Bot) deferUpdate(s session, i *discordgo.InteractionCreate) bool {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		b.logger.Warn("failed to acknowledge button", zap.Error(err))
		return false
	}
	return true
}
