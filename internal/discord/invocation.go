package discord

import "github.com/bwmarrin/discordgo"

// Invocation identifies who ran a command and where, independent of whether
// it arrived as a slash command or a prefix message.
type Invocation struct {
	GuildID   string
	ChannelID string
	UserID    string
	Member    *discordgo.Member
}

// InvocationFromInteraction extracts the invoker of a slash command.
func InvocationFromInteraction(i *discordgo.InteractionCreate) Invocation {
	inv := Invocation{GuildID: i.GuildID, ChannelID: i.ChannelID, Member: i.Member}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID = i.Member.User.ID
	case i.User != nil:
		inv.UserID = i.User.ID
	}
	return inv
}

// InvocationFromMessage extracts the invoker of a prefix command.
func InvocationFromMessage(m *discordgo.MessageCreate) Invocation {
	inv := Invocation{GuildID: m.GuildID, ChannelID: m.ChannelID, Member: m.Member}
	if m.Author != nil {
		inv.UserID = m.Author.ID
	}
	return inv
}
