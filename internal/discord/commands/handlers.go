package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/dmbot/internal/discord"
)

// maxChoices is Discord's limit for autocomplete choices.
const maxChoices = 25

// maxChoiceLen is Discord's limit for a choice name or value.
const maxChoiceLen = 100

// Register registers every command with the router, both as slash command
// and as prefix command.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	for _, def := range Definitions() {
		router.RegisterCommand(def, mc.slashHandler(def.Name))
	}
	router.RegisterAutocomplete("play", mc.handlePlayAutocomplete)

	router.RegisterMessage(mc.messageHandler("play"), "play")
	router.RegisterMessage(mc.messageHandler("register"), "register", "reg")
	router.RegisterMessage(mc.messageHandler("skip"), "skip")
	router.RegisterMessage(mc.messageHandler("stop"), "stop")
	router.RegisterMessage(mc.messageHandler("help"), "help")
	router.RegisterMessage(mc.messageHandler("songs"), "songs")
}

// Definitions returns the slash command definitions.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a YouTube link or a registered song",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "query",
					Description:  "YouTube URL or part of a registered song title",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "register",
			Description: "Store a video's title so it can be played by name",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "YouTube URL of the video",
					Required:    true,
				},
			},
		},
		{Name: "skip", Description: "Skip the currently playing song"},
		{Name: "stop", Description: "Stop the current song and clear the queue"},
		{Name: "help", Description: "Show all commands"},
		{Name: "songs", Description: "List all registered songs"},
	}
}

// dispatch runs the named command.
func (mc *MusicCommands) dispatch(ctx context.Context, name string, inv discord.Invocation, args string) string {
	switch name {
	case "play":
		return mc.Play(ctx, inv, args)
	case "register":
		return mc.RegisterSong(ctx, inv, args)
	case "skip":
		return mc.Skip(ctx, inv)
	case "stop":
		return mc.Stop(ctx, inv)
	case "help":
		return mc.Help(ctx, inv)
	case "songs":
		return mc.Songs(ctx, inv)
	}
	return "Unknown command."
}

// slow reports whether a command may exceed Discord's three second
// interaction deadline and must be deferred.
func slow(name string) bool {
	return name == "play" || name == "register"
}

func (mc *MusicCommands) slashHandler(name string) discord.HandlerFunc {
	return func(r discord.Replier, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		inv := discord.InvocationFromInteraction(i)
		args := stringOption(i.ApplicationCommandData().Options)

		if slow(name) {
			discord.DeferReply(r, i)
			discord.FollowUp(r, i, mc.dispatch(ctx, name, inv, args))
			return
		}
		reply := mc.dispatch(ctx, name, inv, args)
		if name == "help" {
			discord.RespondEphemeral(r, i, reply)
			return
		}
		discord.Respond(r, i, reply)
	}
}

func (mc *MusicCommands) messageHandler(name string) discord.MessageFunc {
	return func(r discord.Replier, m *discordgo.MessageCreate, args string) {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		reply := mc.dispatch(ctx, name, discord.InvocationFromMessage(m), args)
		if reply == msgNotInVoice {
			discord.Reply(r, m, reply)
			return
		}
		discord.Say(r, m, reply)
	}
}

func (mc *MusicCommands) handlePlayAutocomplete(r discord.Replier, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Focused {
			query = opt.StringValue()
		}
	}

	titles := mc.Suggest(ctx, query, maxChoices)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(titles))
	for _, t := range titles {
		if len(t) > maxChoiceLen {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: t, Value: t})
	}
	discord.RespondChoices(r, i, choices)
}

// stringOption returns the value of the first string option, or "".
func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, opt := range opts {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
