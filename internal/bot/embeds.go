package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/coah80/chocbot/internal/services"
)

const (
	colorProgress = 0x5865F2
	colorSuccess  = 0x57F287
	colorError    = 0xED4245

	footerText        = "chocbot"
	maxListedFailures = 10
)

func progressBar(percent float64) string {
	filled := min(max(int(percent/10), 0), 10)
	return strings.Repeat("\u2593", filled) + strings.Repeat("\u2591", 10-filled)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "Unknown"
	}
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}

func progressEmbed(title, message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       colorProgress,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
	}
}

// downloadProgressEmbed shows a percentage bar, plus speed and ETA for a
// single file or the item count for a playlist.
func downloadProgressEmbed(title, source string, p services.Progress) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("%s %d%%", progressBar(p.Percent), int(p.Percent))

	var details []string
	if p.Speed != "" {
		details = append(details, p.Speed)
	}
	if p.ETA != "" {
		details = append(details, "~"+p.ETA+" left")
	}
	if len(details) > 0 {
		desc += " \u00b7 " + strings.Join(details, " \u00b7 ")
	}
	if p.Total > 0 {
		desc += fmt.Sprintf("\n\n**Progress:** %d/%d items", p.Done, p.Total)
	}
	if source != "" {
		desc += "\n" + source
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       colorProgress,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
	}
}

func successEmbed(title, filename string, fileSize int64, downloadURL string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{}
	if filename != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "File", Value: filename, Inline: true,
		})
	}
	if fileSize > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Size", Value: formatSize(fileSize), Inline: true,
		})
	}
	if downloadURL != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Download", Value: fmt.Sprintf("[Click here](%s)", downloadURL),
		})
	}

	return &discordgo.MessageEmbed{
		Title:  title,
		Color:  colorSuccess,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{Text: footerText},
	}
}

func errorEmbed(title, message string) *discordgo.MessageEmbed {
	if message == "" {
		message = "Something went wrong"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       colorError,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Try a different link or format"},
	}
}

// addPlaylistReport appends the success count and the first failures of a
// playlist run to embed.
func addPlaylistReport(embed *discordgo.MessageEmbed, report *services.PlaylistReport) {
	if report == nil {
		return
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Items",
		Value: fmt.Sprintf("%d downloaded, %d failed", report.SuccessCount, report.ErrorCount),
	})
	if len(report.Failures) == 0 {
		return
	}

	var lines []string
	for _, f := range report.Failures[:min(len(report.Failures), maxListedFailures)] {
		name := f.Title
		if name == "" {
			name = fmt.Sprintf("Item %d", f.Index)
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", f.Index, name, f.Message))
	}
	if extra := len(report.Failures) - maxListedFailures; extra > 0 {
		lines = append(lines, fmt.Sprintf("...and %d more", extra))
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Failed",
		Value: truncate(strings.Join(lines, "\n"), 1024),
	})
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
