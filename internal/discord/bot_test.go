package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/dmbot/internal/discord/mock"
)

func TestPermissionChecker_IsDJ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		djRoleID string
		member   *discordgo.Member
		want     bool
	}{
		{
			name:     "member with DJ role",
			djRoleID: "role-123",
			member:   &discordgo.Member{Roles: []string{"role-456", "role-123", "role-789"}},
			want:     true,
		},
		{
			name:     "member without DJ role",
			djRoleID: "role-123",
			member:   &discordgo.Member{Roles: []string{"role-456", "role-789"}},
			want:     false,
		},
		{
			name:     "empty DJRoleID allows all",
			djRoleID: "",
			member:   &discordgo.Member{Roles: []string{"role-456"}},
			want:     true,
		},
		{
			name:     "nil member returns false",
			djRoleID: "role-123",
			member:   nil,
			want:     false,
		},
		{
			name:     "member with empty roles",
			djRoleID: "role-123",
			member:   &discordgo.Member{Roles: []string{}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.djRoleID)
			if got := pc.IsDJ(tt.member); got != tt.want {
				t.Errorf("IsDJ() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewCommandRouter(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter("")
	if r.Prefix() != DefaultPrefix {
		t.Errorf("Prefix() = %q, want %q", r.Prefix(), DefaultPrefix)
	}
	if len(r.commands) != 0 || len(r.autocomplete) != 0 || len(r.messages) != 0 {
		t.Error("expected empty handler maps")
	}

	r.SetPrefix("?")
	if r.Prefix() != "?" {
		t.Errorf("Prefix() after SetPrefix = %q, want ?", r.Prefix())
	}
	r.SetPrefix("")
	if r.Prefix() != DefaultPrefix {
		t.Errorf("Prefix() after empty SetPrefix = %q, want %q", r.Prefix(), DefaultPrefix)
	}
}

func TestCommandRouter_ApplicationCommands(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter("!")
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "play"}, func(Replier, *discordgo.InteractionCreate) {})
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "play"}, func(Replier, *discordgo.InteractionCreate) {})
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "skip"}, func(Replier, *discordgo.InteractionCreate) {})

	if n := len(r.ApplicationCommands()); n != 2 {
		t.Fatalf("expected 2 commands, got %d", n)
	}
}

func slashInteraction(typ discordgo.InteractionType, name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: typ,
			Data: discordgo.ApplicationCommandInteractionData{Name: name},
		},
	}
}

func TestCommandRouter_Handle(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter("!")
	var ran, completed string
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "play"}, func(_ Replier, i *discordgo.InteractionCreate) {
		ran = i.ApplicationCommandData().Name
	})
	r.RegisterAutocomplete("play", func(_ Replier, i *discordgo.InteractionCreate) {
		completed = i.ApplicationCommandData().Name
	})
	rep := &mock.Replier{}

	r.Handle(rep, slashInteraction(discordgo.InteractionApplicationCommand, "play"))
	if ran != "play" {
		t.Errorf("slash handler ran for %q, want play", ran)
	}
	r.Handle(rep, slashInteraction(discordgo.InteractionApplicationCommandAutocomplete, "play"))
	if completed != "play" {
		t.Errorf("autocomplete handler ran for %q, want play", completed)
	}
	if len(rep.Responses) != 0 {
		t.Errorf("router responded itself: %d responses", len(rep.Responses))
	}

	r.Handle(rep, slashInteraction(discordgo.InteractionApplicationCommand, "nope"))
	resp := rep.LastResponse()
	if resp == nil || resp.Data.Content != "Unknown command." || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("unknown command response = %+v", resp)
	}

	r.Handle(rep, slashInteraction(discordgo.InteractionApplicationCommandAutocomplete, "skip"))
	if resp := rep.LastResponse(); resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Errorf("missing autocomplete handler response type = %v", resp.Type)
	}
}

func message(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "msg-1",
		GuildID:   "guild-1",
		ChannelID: "text-1",
		Content:   content,
		Author:    &discordgo.User{ID: "user-1"},
	}}
}

func TestCommandRouter_HandleMessage(t *testing.T) {
	t.Parallel()

	type call struct {
		name string
		args string
	}

	tests := []struct {
		name    string
		prefix  string
		msg     *discordgo.MessageCreate
		want    *call
		handled bool
	}{
		{name: "play with phrase", prefix: "!", msg: message("!play daily mix"), want: &call{"play", "daily mix"}, handled: true},
		{name: "alias", prefix: "!", msg: message("!reg https://youtu.be/x"), want: &call{"register", "https://youtu.be/x"}, handled: true},
		{name: "case-insensitive name", prefix: "!", msg: message("!SKIP"), want: &call{"skip", ""}, handled: true},
		{name: "surrounding whitespace", prefix: "!", msg: message("  !play   lofi  "), want: &call{"play", "lofi"}, handled: true},
		{name: "newline after name", prefix: "!", msg: message("!play\nlofi beats"), want: &call{"play", "lofi beats"}, handled: true},
		{name: "tab after name", prefix: "!", msg: message("!play\tlofi"), want: &call{"play", "lofi"}, handled: true},
		{name: "custom prefix", prefix: "dj ", msg: message("dj play lofi"), want: &call{"play", "lofi"}, handled: true},
		{name: "no prefix", prefix: "!", msg: message("play lofi")},
		{name: "prefix only", prefix: "!", msg: message("!")},
		{name: "unknown command", prefix: "!", msg: message("!dance")},
		{
			name:   "bot author",
			prefix: "!",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				GuildID: "guild-1", Content: "!play x", Author: &discordgo.User{ID: "bot", Bot: true},
			}},
		},
		{
			name:   "direct message",
			prefix: "!",
			msg: &discordgo.MessageCreate{Message: &discordgo.Message{
				Content: "!play x", Author: &discordgo.User{ID: "user-1"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewCommandRouter(tt.prefix)
			var got *call
			for _, name := range []string{"play", "skip"} {
				r.RegisterMessage(func(_ Replier, _ *discordgo.MessageCreate, args string) {
					got = &call{name, args}
				}, name)
			}
			r.RegisterMessage(func(_ Replier, _ *discordgo.MessageCreate, args string) {
				got = &call{"register", args}
			}, "register", "reg")

			handled := r.HandleMessage(&mock.Replier{}, tt.msg)
			if handled != tt.handled {
				t.Errorf("HandleMessage() = %v, want %v", handled, tt.handled)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("handler ran: %+v", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("handler call = %+v, want %+v", got, *tt.want)
			}
		})
	}
}

func TestRespondHelpers(t *testing.T) {
	t.Parallel()

	rep := &mock.Replier{}
	i := slashInteraction(discordgo.InteractionApplicationCommand, "play")

	Respond(rep, i, "hello")
	if resp := rep.LastResponse(); resp.Data.Content != "hello" || resp.Data.Flags != 0 {
		t.Errorf("Respond = %+v", resp.Data)
	}

	DeferReply(rep, i)
	if resp := rep.LastResponse(); resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("DeferReply type = %v", resp.Type)
	}

	FollowUp(rep, i, "done")
	if fu := rep.LastFollowUp(); fu == nil || fu.Content != "done" {
		t.Errorf("FollowUp = %+v", fu)
	}

	m := message("!help")
	Say(rep, m, "said")
	if got := rep.LastMessage(); got.ChannelID != "text-1" || got.Content != "said" || got.Reference != nil {
		t.Errorf("Say = %+v", got)
	}
	Reply(rep, m, "replied")
	if got := rep.LastMessage(); got.Reference == nil || got.Reference.MessageID != "msg-1" {
		t.Errorf("Reply = %+v", got)
	}
}

func TestRespondHelpers_ErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	rep := &mock.Replier{Err: errors.New("rate limited")}
	i := slashInteraction(discordgo.InteractionApplicationCommand, "play")

	RespondEphemeral(rep, i, "x")
	FollowUp(rep, i, "x")
	Say(rep, message("!x"), "x")
	if len(rep.Responses) != 1 || len(rep.FollowUps) != 1 || len(rep.Messages) != 1 {
		t.Error("every helper should still attempt delivery")
	}
}

func TestInvocation(t *testing.T) {
	t.Parallel()

	member := &discordgo.Member{User: &discordgo.User{ID: "user-1"}, Roles: []string{"dj"}}
	inv := InvocationFromInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		GuildID: "guild-1", ChannelID: "text-1", Member: member,
	}})
	if inv.GuildID != "guild-1" || inv.ChannelID != "text-1" || inv.UserID != "user-1" || inv.Member != member {
		t.Errorf("InvocationFromInteraction = %+v", inv)
	}

	inv = InvocationFromInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "user-2"},
	}})
	if inv.UserID != "user-2" || inv.GuildID != "" {
		t.Errorf("InvocationFromInteraction (DM) = %+v", inv)
	}

	inv = InvocationFromMessage(message("!play"))
	if inv.GuildID != "guild-1" || inv.ChannelID != "text-1" || inv.UserID != "user-1" {
		t.Errorf("InvocationFromMessage = %+v", inv)
	}
}

func TestNew_RequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("New without token should fail")
	}
}
