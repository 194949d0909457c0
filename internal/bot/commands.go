package bot

import "github.com/bwmarrin/discordgo"

var (
	integrationTypes = &[]discordgo.ApplicationIntegrationType{
		discordgo.ApplicationIntegrationGuildInstall,
		discordgo.ApplicationIntegrationUserInstall,
	}
	contexts = &[]discordgo.InteractionContextType{
		discordgo.InteractionContextGuild,
		discordgo.InteractionContextBotDM,
		discordgo.InteractionContextPrivateChannel,
	}
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:             "download",
			Description:      "Download media from YouTube, Twitter, Instagram, TikTok, SoundCloud or Spotify",
			IntegrationTypes: integrationTypes,
			Contexts:         contexts,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "The link to download",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "format",
					Description: "Output format",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Video", Value: "video"},
						{Name: "Audio (MP3)", Value: "audio"},
					},
				},
			},
		},
		{
			Name:             "convert",
			Description:      "Convert a media file to another format",
			IntegrationTypes: integrationTypes,
			Contexts:         contexts,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "The file to convert",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "format",
					Description: "Target format, e.g. mp3, gif, webm. Leave empty to pick from a list",
					Required:    false,
				},
			},
		},
	}
}
